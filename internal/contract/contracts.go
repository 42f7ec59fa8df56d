// Package contract defines the capability interfaces that decouple the job
// pipeline from concrete engines, the shared data types that cross those
// boundaries, one error kind per boundary, and the adapter registry used to
// swap implementations at runtime.
//
// Contract discipline: no adapter implementation may mutate job state. Only
// the orchestrator observes adapter results and applies state transitions.
package contract

import (
	"context"
	"time"
)

// SemanticEngine interprets an extracted DOM snapshot (plus an optional HAR
// trace) into a semantic model. Implementations must be deterministic: the
// same input always produces the same model.
type SemanticEngine interface {
	ExtractModel(ctx context.Context, jobID, domHTML string, harTrace []byte) (SemanticModel, error)
}

// GenerationEngine produces a candidate test from a semantic model. The
// reported confidence is the engine's own estimate; the orchestrator
// re-scores output independently.
type GenerationEngine interface {
	Generate(ctx context.Context, jobID string, model SemanticModel) (GeneratedTest, error)
}

// ArtifactStore persists blobs and JSON documents under a per-job namespace
// and maintains the job's artifact manifest.
type ArtifactStore interface {
	SaveBytes(jobID, filename string, data []byte) (string, error)
	SaveJSON(jobID, filename string, v any) (string, error)
	LoadBytes(jobID, filename string) ([]byte, error)
	LoadJSON(jobID, filename string, v any) error
	Manifest(jobID string) ([]ArtifactRecord, error)
	AppendManifest(jobID string, records ...ArtifactRecord) error
}

// JobQueue schedules asynchronous pipeline work. Enqueue operations are
// idempotent while the submitted work is still in flight: retried submission
// of the same job id must not duplicate observable work. Ordering is FIFO
// within a single logical queue.
type JobQueue interface {
	EnqueueExtraction(ctx context.Context, jobID string) error
	// EnqueueRun schedules execution of a generated test and returns an
	// opaque run id. Resubmitting the same job/test pair while a run is
	// still pending returns the existing run id.
	EnqueueRun(ctx context.Context, jobID, testID string) (string, error)
}

// ExecutionEngine runs ordered steps in an isolated environment. Exceeding
// the timeout is reported as a failed run, never left pending.
type ExecutionEngine interface {
	Run(ctx context.Context, jobID, testID string, steps []Step, timeout time.Duration) (RunReport, error)
}

// StepValidator structurally checks steps against an execution scope and
// returns a confidence score in [0,1]. Invalid steps are a *ValidationError,
// never a lower score.
type StepValidator interface {
	Score(scope Scope, steps []Step) (float64, error)
}
