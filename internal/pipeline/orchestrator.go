// Package pipeline is the job orchestrator. It owns every job status
// transition and every timeline write; adapters never mutate job state
// themselves.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/specwright/internal/artifact"
	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/preflight"
	"github.com/kalambet/specwright/internal/profile"
	"github.com/kalambet/specwright/internal/semantic"
	"github.com/kalambet/specwright/internal/storage"
	"github.com/kalambet/specwright/internal/timeline"
)

// ErrNotExtracted is returned when semantic work is requested before the
// job's DOM has been extracted.
var ErrNotExtracted = errors.New("dom not extracted yet")

// RequestError rejects a malformed job request. It maps to a client error
// at the API boundary.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string { return e.Reason }

// AdapterNames selects which registered adapter serves each contract. The
// generation engine is not named here: it is chosen per job by test profile.
type AdapterNames struct {
	Semantic   string
	Storage    string
	Queue      string
	Execution  string
	Validation string
}

// DefaultAdapterNames points every contract at the adapter registered as
// "default".
func DefaultAdapterNames() AdapterNames {
	return AdapterNames{
		Semantic:   "default",
		Storage:    "default",
		Queue:      "default",
		Execution:  "default",
		Validation: "default",
	}
}

// Orchestrator drives jobs through the pipeline phases.
type Orchestrator struct {
	store    *storage.Store
	timeline *timeline.Log
	registry *contract.Registry
	names    AdapterNames
	profiles *profile.Set
	client   *http.Client
	logger   *slog.Logger
}

// New constructs an orchestrator. The HTTP client is used for the preflight
// robots fetch; pass nil for a default 5s-bounded client.
func New(store *storage.Store, tl *timeline.Log, registry *contract.Registry, names AdapterNames, profiles *profile.Set, client *http.Client, logger *slog.Logger) *Orchestrator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		timeline: tl,
		registry: registry,
		names:    names,
		profiles: profiles,
		client:   client,
		logger:   logger,
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	TargetURL   string
	Scope       contract.Scope
	TestProfile string
	OwnerID     string
}

// Create validates a job request, records the job with its consent log,
// runs the preflight check synchronously, and either rejects the job or
// queues it for extraction. Returns the stored job.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (storage.Job, error) {
	if req.Scope == "" {
		req.Scope = contract.ScopeReadOnly
	}
	if req.TestProfile == "" {
		req.TestProfile = "default"
	}

	u, err := url.Parse(req.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return storage.Job{}, &RequestError{Reason: fmt.Sprintf("target_url must be an absolute http(s) URL, got %q", req.TargetURL)}
	}
	if !contract.ValidScope(req.Scope) {
		return storage.Job{}, &RequestError{Reason: fmt.Sprintf("unknown scope %q", req.Scope)}
	}
	if !o.profiles.Has(req.TestProfile) {
		return storage.Job{}, &RequestError{Reason: fmt.Sprintf("unknown test profile %q", req.TestProfile)}
	}
	// The profile name doubles as the generation engine name. Catch a
	// missing registration now rather than at generation time.
	if _, err := o.registry.Generation(req.TestProfile); err != nil {
		return storage.Job{}, fmt.Errorf("resolving generation engine for profile %q: %w", req.TestProfile, err)
	}

	job := storage.Job{
		ID:          newID("job"),
		TargetURL:   req.TargetURL,
		Scope:       string(req.Scope),
		TestProfile: req.TestProfile,
		OwnerID:     req.OwnerID,
		Status:      storage.JobQueued,
	}
	consent := storage.ConsentLog{
		ID:      newID("consent"),
		JobID:   job.ID,
		OwnerID: req.OwnerID,
		Action:  "job_created",
		Note:    "Consent recorded at job creation",
	}
	if err := o.store.CreateJob(job, consent); err != nil {
		return storage.Job{}, fmt.Errorf("creating job: %w", err)
	}

	o.timeline.Started(job.ID, string(contract.PhasePreflight), map[string]any{
		"target_url": job.TargetURL,
	})

	result := preflight.Check(ctx, o.client, job.TargetURL)
	if err := o.store.SetPreflight(job.ID, result.Allowed, result.Robots); err != nil {
		return storage.Job{}, fmt.Errorf("recording preflight verdict: %w", err)
	}
	o.timeline.Completed(job.ID, string(contract.PhasePreflight), map[string]any{
		"allowed":        result.Allowed,
		"robots_fetched": result.Fetched,
	})

	if !result.Allowed {
		if err := o.store.TransitionJob(job.ID, storage.JobQueued, storage.JobRejected); err != nil {
			return storage.Job{}, fmt.Errorf("rejecting job: %w", err)
		}
		o.logger.Info("job rejected by preflight", "job_id", job.ID, "target_url", job.TargetURL)
		return o.store.GetJob(job.ID)
	}

	queue, err := o.registry.Queue(o.names.Queue)
	if err != nil {
		return storage.Job{}, err
	}
	if err := queue.EnqueueExtraction(ctx, job.ID); err != nil {
		return storage.Job{}, fmt.Errorf("queueing extraction for job %s: %w", job.ID, err)
	}
	o.logger.Info("job created", "job_id", job.ID, "target_url", job.TargetURL, "scope", job.Scope)

	return o.store.GetJob(job.ID)
}

// Semantic returns the job's semantic model, building and persisting it
// from the stored DOM and HAR when no model artifact exists yet. Returns
// ErrNotExtracted when the DOM has not been captured.
func (o *Orchestrator) Semantic(ctx context.Context, jobID string) (contract.SemanticModel, error) {
	if _, err := o.store.GetJob(jobID); err != nil {
		return contract.SemanticModel{}, err
	}

	store, err := o.registry.Storage(o.names.Storage)
	if err != nil {
		return contract.SemanticModel{}, err
	}

	var model contract.SemanticModel
	err = store.LoadJSON(jobID, artifact.SemanticModelName, &model)
	if err == nil {
		return model, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return contract.SemanticModel{}, err
	}

	return o.buildSemantic(ctx, jobID, store)
}

func (o *Orchestrator) buildSemantic(ctx context.Context, jobID string, store contract.ArtifactStore) (contract.SemanticModel, error) {
	var dom artifact.DOM
	if err := store.LoadJSON(jobID, artifact.DOMName, &dom); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contract.SemanticModel{}, fmt.Errorf("job %s: %w", jobID, ErrNotExtracted)
		}
		return contract.SemanticModel{}, err
	}

	// The HAR trace is optional input; extraction may not have captured
	// any network activity.
	har, err := store.LoadBytes(jobID, artifact.TraceName)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return contract.SemanticModel{}, err
	}

	engine, err := o.registry.Semantic(o.names.Semantic)
	if err != nil {
		return contract.SemanticModel{}, err
	}
	model, err := engine.ExtractModel(ctx, jobID, dom.OuterHTML, har)
	if err != nil {
		return contract.SemanticModel{}, err
	}

	modelPath, err := store.SaveJSON(jobID, artifact.SemanticModelName, model)
	if err != nil {
		return contract.SemanticModel{}, err
	}
	catalog := semantic.BuildAPICatalog(har)
	catalogPath, err := store.SaveJSON(jobID, artifact.APICatalogName, catalog)
	if err != nil {
		return contract.SemanticModel{}, err
	}
	if err := store.AppendManifest(jobID,
		contract.ArtifactRecord{Name: artifact.SemanticModelName, Type: "semantic_model", Path: modelPath},
		contract.ArtifactRecord{Name: artifact.APICatalogName, Type: "api_catalog", Path: catalogPath},
	); err != nil {
		return contract.SemanticModel{}, err
	}
	return model, nil
}

// GenerateResult carries the generated test together with its scores.
// EffectiveConfidence is the minimum of the engine's own confidence and the
// validator's score; it decides the ready / needs_review status label.
type GenerateResult struct {
	Test                contract.GeneratedTest `json:"test"`
	ValidationScore     float64                `json:"validation_score"`
	EffectiveConfidence float64                `json:"effective_confidence"`
}

// ReviewThreshold is the effective confidence at or above which a generated
// test is labelled ready.
const ReviewThreshold = 0.8

// Generate runs the generation phase for a job: the engine selected by the
// job's test profile produces a candidate, the validator re-scores it, and
// the result is persisted as the job's generated-test artifact.
func (o *Orchestrator) Generate(ctx context.Context, jobID string) (GenerateResult, error) {
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return GenerateResult{}, err
	}

	// Resolve the model before the phase is marked started so an
	// extraction-not-done request never leaves a failed timeline entry.
	model, err := o.Semantic(ctx, jobID)
	if err != nil {
		return GenerateResult{}, err
	}

	o.timeline.Started(jobID, string(contract.PhaseGeneration), map[string]any{
		"engine": job.TestProfile,
	})

	result, err := o.generate(ctx, job, model)
	if err != nil {
		o.timeline.Failed(jobID, string(contract.PhaseGeneration), contract.ErrorKind(err), err.Error(), nil)
		return GenerateResult{}, err
	}

	o.timeline.Completed(jobID, string(contract.PhaseGeneration), map[string]any{
		"test_id":              result.Test.TestID,
		"steps":                len(result.Test.Steps),
		"confidence":           result.Test.Confidence,
		"validation_score":     result.ValidationScore,
		"effective_confidence": result.EffectiveConfidence,
		"status":               result.Test.Status,
	})
	o.logger.Info("test generated", "job_id", jobID, "test_id", result.Test.TestID, "status", result.Test.Status)
	return result, nil
}

func (o *Orchestrator) generate(ctx context.Context, job storage.Job, model contract.SemanticModel) (GenerateResult, error) {
	engine, err := o.registry.Generation(job.TestProfile)
	if err != nil {
		return GenerateResult{}, err
	}
	test, err := engine.Generate(ctx, job.ID, model)
	if err != nil {
		return GenerateResult{}, err
	}

	validator, err := o.registry.Validation(o.names.Validation)
	if err != nil {
		return GenerateResult{}, err
	}
	score, err := validator.Score(contract.Scope(job.Scope), test.Steps)
	if err != nil {
		return GenerateResult{}, err
	}

	effective := test.Confidence
	if score < effective {
		effective = score
	}
	// The stored test carries the effective confidence, not the engine's
	// own estimate.
	test.Confidence = effective
	if effective >= ReviewThreshold {
		test.Status = contract.TestStatusReady
	} else {
		test.Status = contract.TestStatusNeedsReview
	}

	store, err := o.registry.Storage(o.names.Storage)
	if err != nil {
		return GenerateResult{}, err
	}
	testPath, err := store.SaveJSON(job.ID, artifact.GeneratedTestName, test)
	if err != nil {
		return GenerateResult{}, err
	}
	records := []contract.ArtifactRecord{
		{Name: artifact.GeneratedTestName, Type: "generated_test", Path: testPath},
	}
	if test.Gherkin != "" {
		gherkinPath, err := store.SaveBytes(job.ID, artifact.GherkinName, []byte(test.Gherkin))
		if err != nil {
			return GenerateResult{}, err
		}
		records = append(records, contract.ArtifactRecord{Name: artifact.GherkinName, Type: "gherkin", Path: gherkinPath})
	}
	if err := store.AppendManifest(job.ID, records...); err != nil {
		return GenerateResult{}, err
	}

	return GenerateResult{Test: test, ValidationScore: score, EffectiveConfidence: effective}, nil
}

// Run schedules execution of a previously generated test and moves the job
// to running. Returns the opaque run id; resubmitting an in-flight run
// returns the id already scheduled.
func (o *Orchestrator) Run(ctx context.Context, testID string) (string, error) {
	job, test, err := o.findTest(testID)
	if err != nil {
		return "", err
	}

	switch job.Status {
	case storage.JobRejected, storage.JobDone:
		return "", &RequestError{Reason: fmt.Sprintf("job %s is %s and cannot run tests", job.ID, job.Status)}
	}

	queue, err := o.registry.Queue(o.names.Queue)
	if err != nil {
		return "", err
	}
	runID, err := queue.EnqueueRun(ctx, job.ID, test.TestID)
	if err != nil {
		return "", err
	}

	if job.Status != storage.JobRunning {
		if err := o.store.TransitionJob(job.ID, job.Status, storage.JobRunning); err != nil && !errors.Is(err, storage.ErrStaleStatus) {
			return "", err
		}
	}
	o.logger.Info("run scheduled", "job_id", job.ID, "test_id", test.TestID, "run_id", runID)
	return runID, nil
}

// findTest locates the job owning a generated test id. Test ids are only
// unique per job, so the search walks recent jobs' generated-test artifacts.
func (o *Orchestrator) findTest(testID string) (storage.Job, contract.GeneratedTest, error) {
	store, err := o.registry.Storage(o.names.Storage)
	if err != nil {
		return storage.Job{}, contract.GeneratedTest{}, err
	}

	jobs, err := o.store.RecentJobs(200)
	if err != nil {
		return storage.Job{}, contract.GeneratedTest{}, err
	}
	for _, job := range jobs {
		var test contract.GeneratedTest
		err := store.LoadJSON(job.ID, artifact.GeneratedTestName, &test)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return storage.Job{}, contract.GeneratedTest{}, err
		}
		if test.TestID == testID {
			return job, test, nil
		}
	}
	return storage.Job{}, contract.GeneratedTest{}, fmt.Errorf("test %s: %w", testID, storage.ErrNotFound)
}

// Report returns the job's most recent run report. A job that has never
// executed satisfies errors.Is(err, storage.ErrNotFound).
func (o *Orchestrator) Report(jobID string) (contract.RunReport, error) {
	if _, err := o.store.GetJob(jobID); err != nil {
		return contract.RunReport{}, err
	}
	store, err := o.registry.Storage(o.names.Storage)
	if err != nil {
		return contract.RunReport{}, err
	}

	var report contract.RunReport
	if err := store.LoadJSON(jobID, artifact.LastRunName, &report); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contract.RunReport{}, fmt.Errorf("no run report for job %s: %w", jobID, storage.ErrNotFound)
		}
		return contract.RunReport{}, err
	}
	return report, nil
}
