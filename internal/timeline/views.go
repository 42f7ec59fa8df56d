package timeline

import "github.com/kalambet/specwright/internal/contract"

// Derived phase statuses for the phase-status map.
const (
	PhasePending    = "pending"
	PhaseInProgress = "in_progress"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
)

// PhaseSummary aggregates one phase's timing: first started timestamp, last
// terminal timestamp, and a sticky failed flag.
type PhaseSummary struct {
	Started   string `json:"started,omitempty"`
	Completed string `json:"completed,omitempty"`
	Failed    bool   `json:"failed"`
}

// Summary is the aggregated view of a job's timeline.
type Summary struct {
	JobID      string                   `json:"job_id"`
	EntryCount int                      `json:"entry_count"`
	Phases     map[string]*PhaseSummary `json:"phases"`
}

// Summarize folds entries into per-phase timing. The failed flag is sticky:
// once a phase fails it stays failed, and the failure timestamp becomes its
// terminal timestamp.
func Summarize(jobID string, entries []Entry) Summary {
	s := Summary{JobID: jobID, EntryCount: len(entries), Phases: map[string]*PhaseSummary{}}

	for _, e := range entries {
		ps, ok := s.Phases[e.Phase]
		if !ok {
			ps = &PhaseSummary{}
			s.Phases[e.Phase] = ps
		}
		switch e.Status {
		case StatusStarted:
			if ps.Started == "" {
				ps.Started = e.Timestamp
			}
		case StatusCompleted:
			ps.Completed = e.Timestamp
		case StatusFailed:
			ps.Failed = true
			ps.Completed = e.Timestamp
		}
	}
	return s
}

// PhaseStatuses is the six-phase status map plus the current phase: the
// most recently started phase that has not yet completed or failed.
type PhaseStatuses struct {
	JobID        string            `json:"job_id"`
	CurrentPhase string            `json:"current_phase,omitempty"`
	Phases       map[string]string `json:"phases"`
}

// PhaseStatusMap folds entries into the phase-status view.
func PhaseStatusMap(jobID string, entries []Entry) PhaseStatuses {
	statuses := map[string]string{}
	for _, p := range contract.Phases() {
		statuses[string(p)] = PhasePending
	}

	var startOrder []string
	for _, e := range entries {
		if _, known := statuses[e.Phase]; !known {
			continue
		}
		switch e.Status {
		case StatusStarted:
			statuses[e.Phase] = PhaseInProgress
			startOrder = append(startOrder, e.Phase)
		case StatusCompleted:
			statuses[e.Phase] = PhaseCompleted
		case StatusFailed:
			statuses[e.Phase] = PhaseFailed
		}
	}

	current := ""
	for i := len(startOrder) - 1; i >= 0; i-- {
		if statuses[startOrder[i]] == PhaseInProgress {
			current = startOrder[i]
			break
		}
	}

	return PhaseStatuses{JobID: jobID, CurrentPhase: current, Phases: statuses}
}

// Latest returns the last n entries, most recent first.
func Latest(entries []Entry, n int) []Entry {
	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// ByPhase returns all entries for one phase in original write order.
func ByPhase(entries []Entry, phase string) []Entry {
	out := []Entry{}
	for _, e := range entries {
		if e.Phase == phase {
			out = append(out, e)
		}
	}
	return out
}
