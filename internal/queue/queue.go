// Package queue adapts the durable SQLite work queue to the pipeline's job
// queue contract.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/storage"
)

// Work item types understood by the workers.
const (
	TypeExtraction = "extraction"
	TypeRun        = "run"
)

// RunPayload is the payload of a run work item.
type RunPayload struct {
	JobID  string `json:"job_id"`
	TestID string `json:"test_id"`
	RunID  string `json:"run_id"`
}

// ExtractionPayload is the payload of an extraction work item.
type ExtractionPayload struct {
	JobID string `json:"job_id"`
}

// SQLite is a contract.JobQueue backed by the storage layer.
type SQLite struct {
	store *storage.Store
}

// NewSQLite wraps a store as a job queue.
func NewSQLite(store *storage.Store) *SQLite {
	return &SQLite{store: store}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EnqueueExtraction schedules DOM and trace extraction for a job. Retried
// submissions while extraction is still in flight collapse onto the
// existing work item.
func (q *SQLite) EnqueueExtraction(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(ExtractionPayload{JobID: jobID})
	if err != nil {
		return &contract.QueueError{Op: "enqueue extraction", Err: err}
	}

	_, err = q.store.EnqueueQueueJob(storage.QueueJob{
		ID:          newID("q"),
		Type:        TypeExtraction,
		PayloadJSON: string(payload),
		DedupeKey:   TypeExtraction + ":" + jobID,
	})
	if err != nil {
		return &contract.QueueError{Op: "enqueue extraction", Err: err}
	}
	return nil
}

// EnqueueRun schedules execution of a generated test. The returned run id is
// canonical: resubmitting the same job/test pair while a run is in flight
// returns the id of the run already scheduled.
func (q *SQLite) EnqueueRun(ctx context.Context, jobID, testID string) (string, error) {
	runID := newID("run")
	payload, err := json.Marshal(RunPayload{JobID: jobID, TestID: testID, RunID: runID})
	if err != nil {
		return "", &contract.QueueError{Op: "enqueue run", Err: err}
	}

	canonical, err := q.store.EnqueueQueueJob(storage.QueueJob{
		ID:          newID("q"),
		Type:        TypeRun,
		PayloadJSON: string(payload),
		DedupeKey:   fmt.Sprintf("%s:%s:%s", TypeRun, jobID, testID),
	})
	if err != nil {
		return "", &contract.QueueError{Op: "enqueue run", Err: err}
	}

	var stored RunPayload
	if err := json.Unmarshal([]byte(canonical.PayloadJSON), &stored); err != nil {
		return "", &contract.QueueError{Op: "enqueue run", Err: fmt.Errorf("decoding canonical payload: %w", err)}
	}
	return stored.RunID, nil
}

// Claim hands the oldest runnable work item of the given types to a worker.
// Returns nil when the queue is drained.
func (q *SQLite) Claim(types ...string) (*storage.QueueJob, error) {
	j, err := q.store.ClaimQueueJob(types)
	if err != nil {
		return nil, &contract.QueueError{Op: "claim", Err: err}
	}
	return j, nil
}

// Complete marks a claimed work item done.
func (q *SQLite) Complete(id string) error {
	if err := q.store.CompleteQueueJob(id); err != nil {
		return &contract.QueueError{Op: "complete", Err: err}
	}
	return nil
}

// Fail records a failed attempt, retrying with backoff until attempts are
// exhausted.
func (q *SQLite) Fail(id string, cause error) error {
	if err := q.store.FailQueueJob(id, cause.Error()); err != nil {
		return &contract.QueueError{Op: "fail", Err: err}
	}
	return nil
}
