package contract

import "time"

// Phase is one named stage of the job pipeline.
type Phase string

const (
	PhasePreflight  Phase = "preflight"
	PhaseExtraction Phase = "extraction"
	PhaseSemantics  Phase = "semantics"
	PhaseGeneration Phase = "generation"
	PhaseExecution  Phase = "execution"
	PhaseReporting  Phase = "reporting"
)

// Phases returns all pipeline phases in execution order.
func Phases() []Phase {
	return []Phase{
		PhasePreflight,
		PhaseExtraction,
		PhaseSemantics,
		PhaseGeneration,
		PhaseExecution,
		PhaseReporting,
	}
}

// ValidPhase reports whether s names a known pipeline phase.
func ValidPhase(s string) bool {
	for _, p := range Phases() {
		if string(p) == s {
			return true
		}
	}
	return false
}

// Scope constrains which step actions a generated test may contain.
type Scope string

const (
	ScopeReadOnly Scope = "read-only"
	ScopeSandbox  Scope = "sandbox"
)

// ValidScope reports whether s is a known execution scope.
func ValidScope(s Scope) bool {
	return s == ScopeReadOnly || s == ScopeSandbox
}

// Action is one of the four permitted step kinds. The set is closed:
// anything else fails validation.
type Action string

const (
	ActionGoto       Action = "goto"
	ActionFill       Action = "fill"
	ActionClick      Action = "click"
	ActionExpectText Action = "expectText"
)

// Step is a single test instruction. Which fields are meaningful depends on
// the action: goto uses URL; fill, click and expectText use Selector; fill
// and expectText additionally use Value. Construct steps through Goto, Fill,
// Click and ExpectText so the field pairing cannot drift.
type Step struct {
	Action   Action `json:"action"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Goto returns a navigation step.
func Goto(url string) Step {
	return Step{Action: ActionGoto, URL: url}
}

// Fill returns a step that types value into the element at selector.
func Fill(selector, value string) Step {
	return Step{Action: ActionFill, Selector: selector, Value: value}
}

// Click returns a step that clicks the element at selector.
func Click(selector string) Step {
	return Step{Action: ActionClick, Selector: selector}
}

// ExpectText returns an assertion step: the element at selector must
// contain value.
func ExpectText(selector, value string) Step {
	return Step{Action: ActionExpectText, Selector: selector, Value: value}
}

// SemanticElement is one classified UI element of a page.
type SemanticElement struct {
	ID         string  `json:"id"`
	Selector   string  `json:"selector"`
	Role       string  `json:"role"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// FlowStep references a semantic element by id within a flow.
type FlowStep struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// Flow is an inferred interaction pattern over semantic elements.
type Flow struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Steps       []FlowStep `json:"steps"`
}

// SemanticModel is the interpreted structure of an extracted page: an
// ordered element list plus inferred flows. Building it from identical
// input must yield identical output.
type SemanticModel struct {
	JobID      string            `json:"jobId"`
	Elements   []SemanticElement `json:"elements"`
	Flows      []Flow            `json:"flows"`
	Confidence float64           `json:"confidence"`
}

// Test artifact status labels, gated on effective confidence.
const (
	TestStatusReady       = "ready"
	TestStatusNeedsReview = "needs_review"
)

// GeneratedTest is the output of a generation engine, later persisted as the
// generated-test artifact. Status is assigned by the orchestrator after
// validation; generation engines leave it empty.
type GeneratedTest struct {
	TestID     string  `json:"testId"`
	JobID      string  `json:"jobId"`
	Steps      []Step  `json:"steps"`
	Confidence float64 `json:"confidence"`
	Format     string  `json:"format"`
	Status     string  `json:"status,omitempty"`
	Gherkin    string  `json:"gherkin,omitempty"`
}

// ArtifactRecord describes one persisted blob under a job's namespace.
type ArtifactRecord struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// Run report statuses.
const (
	RunStatusPassed = "passed"
	RunStatusFailed = "failed"
	RunStatusError  = "error"
)

// StepResult is the outcome of a single executed step.
type StepResult struct {
	Step       int    `json:"step"`
	Status     string `json:"status"`
	Screenshot string `json:"screenshot,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RunReport is the structured result of one isolated test execution.
type RunReport struct {
	RunID      string       `json:"runId"`
	TestID     string       `json:"testId"`
	Status     string       `json:"status"`
	Steps      []StepResult `json:"steps"`
	Artifacts  []string     `json:"artifacts"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}
