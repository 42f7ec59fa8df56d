// Package worker holds the queue poll loops that advance jobs through the
// asynchronous pipeline phases.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/specwright/internal/artifact"
	"github.com/kalambet/specwright/internal/browser"
	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/queue"
	"github.com/kalambet/specwright/internal/semantic"
	"github.com/kalambet/specwright/internal/storage"
	"github.com/kalambet/specwright/internal/timeline"
)

// WorkQueue abstracts the durable queue operations the workers need.
type WorkQueue interface {
	Claim(types ...string) (*storage.QueueJob, error)
	Complete(id string) error
	Fail(id string, cause error) error
}

// JobStore abstracts job lookups and guarded status transitions.
type JobStore interface {
	GetJob(id string) (storage.Job, error)
	TransitionJob(id, from, to string) error
}

// BrowserEngine captures a page snapshot through the browser-automation
// daemon.
type BrowserEngine interface {
	Snapshot(ctx context.Context, targetURL string) (browser.Snapshot, error)
}

// Extraction processes extraction queue jobs: it captures the target page,
// persists the raw artifacts, and builds the semantic model while the page
// snapshot is fresh.
type Extraction struct {
	queue     WorkQueue
	jobs      JobStore
	artifacts contract.ArtifactStore
	timeline  *timeline.Log
	engine    contract.SemanticEngine
	browser   BrowserEngine
	poll      time.Duration
	logger    *slog.Logger
}

// NewExtraction creates an extraction worker. If pollInterval is <= 0, it
// defaults to 500ms.
func NewExtraction(q WorkQueue, jobs JobStore, artifacts contract.ArtifactStore, tl *timeline.Log, engine contract.SemanticEngine, b BrowserEngine, pollInterval time.Duration) *Extraction {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Extraction{
		queue:     q,
		jobs:      jobs,
		artifacts: artifacts,
		timeline:  tl,
		engine:    engine,
		browser:   b,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for extraction jobs until ctx is cancelled.
func (w *Extraction) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("extraction worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single extraction job. Returns true if a
// job was processed (regardless of success/failure).
func (w *Extraction) RunOnce(ctx context.Context) (bool, error) {
	item, err := w.queue.Claim(queue.TypeExtraction)
	if err != nil {
		return false, fmt.Errorf("claiming extraction job: %w", err)
	}
	if item == nil {
		return false, nil
	}

	if err := w.process(ctx, item); err != nil {
		w.logger.Warn("extraction failed", "queue_id", item.ID, "error", err)
		if failErr := w.queue.Fail(item.ID, err); failErr != nil {
			w.logger.Error("failed to mark extraction job as failed", "queue_id", item.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.queue.Complete(item.ID); err != nil {
		return true, fmt.Errorf("completing extraction job %s: %w", item.ID, err)
	}
	return true, nil
}

func (w *Extraction) process(ctx context.Context, item *storage.QueueJob) error {
	var payload queue.ExtractionPayload
	if err := json.Unmarshal([]byte(item.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	job, err := w.jobs.GetJob(payload.JobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", payload.JobID, err)
	}

	if err := w.jobs.TransitionJob(job.ID, storage.JobQueued, storage.JobPending); err != nil {
		// A retried attempt finds the job already pending; anything else
		// means the job moved on and this work item is obsolete.
		if !errors.Is(err, storage.ErrStaleStatus) {
			return err
		}
		current, getErr := w.jobs.GetJob(job.ID)
		if getErr != nil {
			return getErr
		}
		if current.Status != storage.JobPending {
			w.logger.Info("skipping extraction for advanced job", "job_id", job.ID, "status", current.Status)
			return nil
		}
	}

	snap, err := w.extract(ctx, job)
	if err != nil {
		return err
	}
	if err := w.buildModel(ctx, job, snap); err != nil {
		return err
	}

	// Back to queued: the job now waits for its generation request.
	if err := w.jobs.TransitionJob(job.ID, storage.JobPending, storage.JobQueued); err != nil {
		return fmt.Errorf("returning job %s to queue: %w", job.ID, err)
	}
	return nil
}

func (w *Extraction) extract(ctx context.Context, job storage.Job) (browser.Snapshot, error) {
	w.timeline.Started(job.ID, string(contract.PhaseExtraction), map[string]any{
		"target_url": job.TargetURL,
	})

	snap, err := w.browser.Snapshot(ctx, job.TargetURL)
	if err != nil {
		w.timeline.Failed(job.ID, string(contract.PhaseExtraction), contract.ErrorKind(err), err.Error(), nil)
		return browser.Snapshot{}, err
	}

	records, err := w.saveSnapshot(job.ID, snap)
	if err != nil {
		w.timeline.Failed(job.ID, string(contract.PhaseExtraction), contract.ErrorKind(err), err.Error(), nil)
		return browser.Snapshot{}, err
	}

	w.timeline.Completed(job.ID, string(contract.PhaseExtraction), map[string]any{
		"artifacts": len(records),
	})
	w.logger.Info("page extracted", "job_id", job.ID, "artifacts", len(records))
	return snap, nil
}

func (w *Extraction) saveSnapshot(jobID string, snap browser.Snapshot) ([]contract.ArtifactRecord, error) {
	domPath, err := w.artifacts.SaveJSON(jobID, artifact.DOMName, artifact.DOM{OuterHTML: snap.OuterHTML})
	if err != nil {
		return nil, err
	}
	records := []contract.ArtifactRecord{
		{Name: artifact.DOMName, Type: "dom", Path: domPath},
	}

	if len(snap.HAR) > 0 {
		harPath, err := w.artifacts.SaveBytes(jobID, artifact.TraceName, snap.HAR)
		if err != nil {
			return nil, err
		}
		records = append(records, contract.ArtifactRecord{Name: artifact.TraceName, Type: "har", Path: harPath})
	}
	if len(snap.Screenshot) > 0 {
		shotPath, err := w.artifacts.SaveBytes(jobID, artifact.ScreenshotName, snap.Screenshot)
		if err != nil {
			return nil, err
		}
		records = append(records, contract.ArtifactRecord{Name: artifact.ScreenshotName, Type: "screenshot", Path: shotPath})
	}

	if err := w.artifacts.AppendManifest(jobID, records...); err != nil {
		return nil, err
	}
	return records, nil
}

func (w *Extraction) buildModel(ctx context.Context, job storage.Job, snap browser.Snapshot) error {
	w.timeline.Started(job.ID, string(contract.PhaseSemantics), nil)

	model, err := w.engine.ExtractModel(ctx, job.ID, snap.OuterHTML, snap.HAR)
	if err != nil {
		w.timeline.Failed(job.ID, string(contract.PhaseSemantics), contract.ErrorKind(err), err.Error(), nil)
		return err
	}

	modelPath, err := w.artifacts.SaveJSON(job.ID, artifact.SemanticModelName, model)
	if err == nil {
		catalog := semantic.BuildAPICatalog(snap.HAR)
		var catalogPath string
		if catalogPath, err = w.artifacts.SaveJSON(job.ID, artifact.APICatalogName, catalog); err == nil {
			err = w.artifacts.AppendManifest(job.ID,
				contract.ArtifactRecord{Name: artifact.SemanticModelName, Type: "semantic_model", Path: modelPath},
				contract.ArtifactRecord{Name: artifact.APICatalogName, Type: "api_catalog", Path: catalogPath},
			)
		}
	}
	if err != nil {
		w.timeline.Failed(job.ID, string(contract.PhaseSemantics), contract.ErrorKind(err), err.Error(), nil)
		return err
	}

	w.timeline.Completed(job.ID, string(contract.PhaseSemantics), map[string]any{
		"elements":   len(model.Elements),
		"flows":      len(model.Flows),
		"confidence": model.Confidence,
	})
	w.logger.Info("semantic model built", "job_id", job.ID, "elements", len(model.Elements), "flows", len(model.Flows))
	return nil
}
