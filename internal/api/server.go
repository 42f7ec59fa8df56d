// Package api exposes the job pipeline over HTTP (chi) and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/pipeline"
	"github.com/kalambet/specwright/internal/storage"
	"github.com/kalambet/specwright/internal/timeline"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds the dependencies of the HTTP surface.
type AppDeps struct {
	Orchestrator *pipeline.Orchestrator
	Store        *storage.Store
	Artifacts    contract.ArtifactStore
	Timeline     *timeline.Log
	Registry     *contract.Registry
	Token        string // optional; empty disables auth
}

// NewHandler builds the chi router for the job API.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/health", handleHealth)
	r.Get("/adapters", handleAdapters(deps))

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", handleCreateJob(deps))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetJob(deps))
			r.Get("/artifacts", handleArtifacts(deps))
			r.Get("/semantic", handleSemantic(deps))
			r.Post("/generate", handleGenerate(deps))
			r.Get("/report", handleReport(deps))
			r.Get("/timeline", handleTimeline(deps))
			r.Get("/timeline/summary", handleTimelineSummary(deps))
			r.Get("/timeline/phases", handleTimelinePhases(deps))
			r.Get("/timeline/latest", handleTimelineLatest(deps))
			r.Get("/timeline/phase/{phase}", handleTimelinePhase(deps))
		})
	})

	r.Post("/tests/{id}/run", handleRunTest(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleAdapters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Registry.List())
	}
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	TargetURL   string `json:"target_url"`
	Scope       string `json:"scope"`
	TestProfile string `json:"test_profile"`
	OwnerID     string `json:"owner_id"`
}

// jobView is the JSON shape of a job, consent records included.
type jobView struct {
	ID               string        `json:"id"`
	TargetURL        string        `json:"target_url"`
	Scope            string        `json:"scope"`
	TestProfile      string        `json:"test_profile"`
	OwnerID          string        `json:"owner_id,omitempty"`
	Status           string        `json:"status"`
	PreflightAllowed *bool         `json:"preflight_allowed"`
	PreflightRobots  string        `json:"preflight_robots,omitempty"`
	Consent          []consentView `json:"consent"`
	CreatedAt        string        `json:"created_at"`
	UpdatedAt        string        `json:"updated_at"`
}

type consentView struct {
	OwnerID          string `json:"ownerId"`
	ConsentTimestamp string `json:"consentTimestamp"`
	Note             string `json:"note"`
}

func viewOf(j storage.Job, logs []storage.ConsentLog) jobView {
	consent := make([]consentView, len(logs))
	for i, l := range logs {
		consent[i] = consentView{
			OwnerID:          l.OwnerID,
			ConsentTimestamp: l.CreatedAt.Format(time.RFC3339),
			Note:             l.Note,
		}
	}
	return jobView{
		ID:               j.ID,
		TargetURL:        j.TargetURL,
		Scope:            j.Scope,
		TestProfile:      j.TestProfile,
		OwnerID:          j.OwnerID,
		Status:           j.Status,
		PreflightAllowed: j.PreflightAllowed,
		PreflightRobots:  j.PreflightRobots,
		Consent:          consent,
		CreatedAt:        j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        j.UpdatedAt.Format(time.RFC3339),
	}
}

func handleCreateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CreateJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		job, err := deps.Orchestrator.Create(r.Context(), pipeline.CreateRequest{
			TargetURL:   req.TargetURL,
			Scope:       contract.Scope(req.Scope),
			TestProfile: req.TestProfile,
			OwnerID:     req.OwnerID,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		logs, err := deps.Store.ConsentLogs(job.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(job, logs))
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		logs, err := deps.Store.ConsentLogs(job.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(job, logs))
	}
}

func handleArtifacts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(id); err != nil {
			writeDomainError(w, err)
			return
		}
		records, err := deps.Artifacts.Manifest(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleSemantic(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := deps.Orchestrator.Semantic(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, model)
	}
}

func handleGenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := deps.Orchestrator.Generate(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Orchestrator.Report(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleRunTest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := deps.Orchestrator.Run(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	}
}

// readTimeline loads a job's timeline after confirming the job exists.
func readTimeline(deps AppDeps, w http.ResponseWriter, r *http.Request) ([]timeline.Entry, string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := deps.Store.GetJob(id); err != nil {
		writeDomainError(w, err)
		return nil, "", false
	}
	entries, err := deps.Timeline.Read(id)
	if err != nil {
		writeDomainError(w, err)
		return nil, "", false
	}
	return entries, id, true
}

func handleTimeline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, _, ok := readTimeline(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleTimelineSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, id, ok := readTimeline(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, timeline.Summarize(id, entries))
	}
}

func handleTimelinePhases(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, id, ok := readTimeline(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, timeline.PhaseStatusMap(id, entries))
	}
}

func handleTimelineLatest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		if limit < 1 {
			limit = 1
		}
		entries, _, ok := readTimeline(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, timeline.Latest(entries, limit))
	}
}

func handleTimelinePhase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase := chi.URLParam(r, "phase")
		if !contract.ValidPhase(phase) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown phase %q", phase)
			return
		}
		entries, _, ok := readTimeline(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, timeline.ByPhase(entries, phase))
	}
}

// writeDomainError maps pipeline errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var rerr *pipeline.RequestError
	var verr *contract.ValidationError
	switch {
	case errors.As(err, &rerr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", rerr.Reason)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, pipeline.ErrNotExtracted):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.As(err, &verr):
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
