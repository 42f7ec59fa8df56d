package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/kalambet/specwright/internal/artifact"
	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/queue"
	"github.com/kalambet/specwright/internal/storage"
	"github.com/kalambet/specwright/internal/timeline"
)

// Execution processes run queue jobs: it hands the generated steps to the
// execution engine, persists the run report, and closes out the job.
type Execution struct {
	queue      WorkQueue
	jobs       JobStore
	artifacts  contract.ArtifactStore
	timeline   *timeline.Log
	engine     contract.ExecutionEngine
	runTimeout time.Duration
	poll       time.Duration
	logger     *slog.Logger
}

// NewExecution creates an execution worker. If pollInterval is <= 0, it
// defaults to 500ms; if runTimeout is <= 0, it defaults to 60s.
func NewExecution(q WorkQueue, jobs JobStore, artifacts contract.ArtifactStore, tl *timeline.Log, engine contract.ExecutionEngine, runTimeout, pollInterval time.Duration) *Execution {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if runTimeout <= 0 {
		runTimeout = 60 * time.Second
	}
	return &Execution{
		queue:      q,
		jobs:       jobs,
		artifacts:  artifacts,
		timeline:   tl,
		engine:     engine,
		runTimeout: runTimeout,
		poll:       pollInterval,
		logger:     slog.Default(),
	}
}

// Run polls for run jobs until ctx is cancelled.
func (w *Execution) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("execution worker iteration failed", "error", err)
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

// RunOnce claims and processes a single run job. Returns true if a job was
// processed (regardless of success/failure).
func (w *Execution) RunOnce(ctx context.Context) (bool, error) {
	item, err := w.queue.Claim(queue.TypeRun)
	if err != nil {
		return false, fmt.Errorf("claiming run job: %w", err)
	}
	if item == nil {
		return false, nil
	}

	if err := w.process(ctx, item); err != nil {
		w.logger.Warn("run failed", "queue_id", item.ID, "error", err)
		if failErr := w.queue.Fail(item.ID, err); failErr != nil {
			w.logger.Error("failed to mark run job as failed", "queue_id", item.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.queue.Complete(item.ID); err != nil {
		return true, fmt.Errorf("completing run job %s: %w", item.ID, err)
	}
	return true, nil
}

func (w *Execution) process(ctx context.Context, item *storage.QueueJob) error {
	var payload queue.RunPayload
	if err := json.Unmarshal([]byte(item.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	var test contract.GeneratedTest
	if err := w.artifacts.LoadJSON(payload.JobID, artifact.GeneratedTestName, &test); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("job %s has no generated test: %w", payload.JobID, storage.ErrNotFound)
		}
		return err
	}

	report := w.execute(ctx, payload, test)
	if err := w.report(payload, report); err != nil {
		return err
	}

	// The run is over either way; done is the only place left to go.
	if err := w.jobs.TransitionJob(payload.JobID, storage.JobRunning, storage.JobDone); err != nil && !errors.Is(err, storage.ErrStaleStatus) {
		return fmt.Errorf("closing job %s: %w", payload.JobID, err)
	}
	return nil
}

// execute runs the test under the engine. An engine failure or timeout is
// folded into an error-status report so a run is never left pending.
func (w *Execution) execute(ctx context.Context, payload queue.RunPayload, test contract.GeneratedTest) contract.RunReport {
	w.timeline.Started(payload.JobID, string(contract.PhaseExecution), map[string]any{
		"run_id":  payload.RunID,
		"test_id": payload.TestID,
		"steps":   len(test.Steps),
	})

	started := time.Now().UTC()
	report, err := w.engine.Run(ctx, payload.JobID, payload.TestID, test.Steps, w.runTimeout)
	if err != nil {
		report = contract.RunReport{
			RunID:      payload.RunID,
			TestID:     payload.TestID,
			Status:     contract.RunStatusError,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}
		w.timeline.Failed(payload.JobID, string(contract.PhaseExecution), contract.ErrorKind(err), err.Error(), map[string]any{
			"run_id": payload.RunID,
		})
		w.logger.Warn("execution engine failed", "job_id", payload.JobID, "run_id", payload.RunID, "error", err)
		return report
	}

	report.RunID = payload.RunID
	report.TestID = payload.TestID
	w.timeline.Completed(payload.JobID, string(contract.PhaseExecution), map[string]any{
		"run_id": payload.RunID,
		"status": report.Status,
	})
	return report
}

func (w *Execution) report(payload queue.RunPayload, report contract.RunReport) error {
	w.timeline.Started(payload.JobID, string(contract.PhaseReporting), map[string]any{
		"run_id": payload.RunID,
	})

	reportName := artifact.RunReportName(payload.RunID)
	reportPath, err := w.artifacts.SaveJSON(payload.JobID, reportName, report)
	if err == nil {
		var lastPath string
		if lastPath, err = w.artifacts.SaveJSON(payload.JobID, artifact.LastRunName, report); err == nil {
			err = w.artifacts.AppendManifest(payload.JobID,
				contract.ArtifactRecord{Name: reportName, Type: "run_report", Path: reportPath},
				contract.ArtifactRecord{Name: artifact.LastRunName, Type: "run_report", Path: lastPath},
			)
		}
	}
	if err != nil {
		w.timeline.Failed(payload.JobID, string(contract.PhaseReporting), contract.ErrorKind(err), err.Error(), nil)
		return err
	}

	w.timeline.Completed(payload.JobID, string(contract.PhaseReporting), map[string]any{
		"run_id": payload.RunID,
		"report": reportName,
		"status": report.Status,
	})
	w.logger.Info("run report persisted", "job_id", payload.JobID, "run_id", payload.RunID, "status", report.Status)
	return nil
}
