package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleStatus is returned when a guarded status transition finds the job
// in a different state than the caller expected.
var ErrStaleStatus = errors.New("stale job status")

// Job lifecycle statuses. A job moves queued -> pending -> running -> done;
// rejected is the terminal side exit taken when preflight denies the target.
const (
	JobQueued   = "queued"
	JobPending  = "pending"
	JobRunning  = "running"
	JobDone     = "done"
	JobRejected = "rejected"
)

// Job is one URL-to-test pipeline job.
type Job struct {
	ID          string
	TargetURL   string
	Scope       string
	TestProfile string
	OwnerID     string
	Status      string
	// PreflightAllowed is nil until the preflight check has run.
	PreflightAllowed *bool
	PreflightRobots  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConsentLog is one immutable consent record tied to a job.
type ConsentLog struct {
	ID        string
	JobID     string
	OwnerID   string
	Action    string
	Note      string
	CreatedAt time.Time
}

// Queue entry statuses.
const (
	QueuePending   = "pending"
	QueueRunning   = "running"
	QueueCompleted = "completed"
	QueueFailed    = "failed"
)

// QueueJob is one durable work item. DedupeKey keeps at most one in-flight
// entry per logical unit of work.
type QueueJob struct {
	ID          string
	Type        string
	PayloadJSON string
	DedupeKey   string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
