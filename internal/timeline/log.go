// Package timeline is the append-only per-job observability log. The log is
// the source of truth: every derived view is a pure fold over a full
// re-read, so views can never drift from the log.
package timeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// EntryStatus is the status of one timeline entry.
type EntryStatus string

const (
	StatusStarted   EntryStatus = "started"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

// Entry is one logical event in a job's timeline. Entries are never
// reordered or mutated after write.
type Entry struct {
	JobID     string         `json:"job_id"`
	Phase     string         `json:"phase"`
	Status    EntryStatus    `json:"status"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// Log writes and reads per-job JSONL timeline files under a directory.
type Log struct {
	dir string
	now func() time.Time
}

// NewLog opens (creating if needed) a timeline directory.
func NewLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating timeline directory: %w", err)
	}
	return &Log{dir: dir, now: time.Now}, nil
}

func (l *Log) path(jobID string) string {
	return filepath.Join(l.dir, jobID+"_timeline.jsonl")
}

// Append records one event. The entry is marshalled to a single line and
// written with one O_APPEND write so concurrent appenders never interleave
// within a line.
func (l *Log) Append(jobID, phase string, status EntryStatus, details map[string]any) (Entry, error) {
	if details == nil {
		details = map[string]any{}
	}
	entry := Entry{
		JobID:     jobID,
		Phase:     phase,
		Status:    status,
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Details:   details,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("marshalling timeline entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("opening timeline log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return Entry{}, fmt.Errorf("appending timeline entry: %w", err)
	}
	return entry, nil
}

// Started records the beginning of a phase.
func (l *Log) Started(jobID, phase string, details map[string]any) (Entry, error) {
	return l.Append(jobID, phase, StatusStarted, details)
}

// Completed records the successful end of a phase.
func (l *Log) Completed(jobID, phase string, details map[string]any) (Entry, error) {
	return l.Append(jobID, phase, StatusCompleted, details)
}

// Failed records a phase failure with its error type and message.
func (l *Log) Failed(jobID, phase, errType, errMsg string, details map[string]any) (Entry, error) {
	if details == nil {
		details = map[string]any{}
	}
	details["error_type"] = errType
	details["error_message"] = errMsg
	return l.Append(jobID, phase, StatusFailed, details)
}

// Read returns a job's timeline in write order. Malformed lines are skipped
// so one corrupt record never discards the rest of the log. A job without a
// timeline yields an empty slice.
func (l *Log) Read(jobID string) ([]Entry, error) {
	f, err := os.Open(l.path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening timeline log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading timeline log: %w", err)
	}
	return entries, nil
}

// Exists reports whether a timeline has been written for jobID.
func (l *Log) Exists(jobID string) bool {
	_, err := os.Stat(l.path(jobID))
	return err == nil
}
