package contract

import (
	"context"
	"errors"
	"testing"
)

type stubValidator struct{ score float64 }

func (s stubValidator) Score(scope Scope, steps []Step) (float64, error) { return s.score, nil }

type stubQueue struct{}

func (stubQueue) EnqueueExtraction(ctx context.Context, jobID string) error { return nil }
func (stubQueue) EnqueueRun(ctx context.Context, jobID, testID string) (string, error) {
	return "run_1", nil
}

func TestRegistry_LookupUnregistered(t *testing.T) {
	r := NewRegistry()

	_, err := r.Validation("missing")
	if err == nil {
		t.Fatal("expected error for unregistered adapter")
	}
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("error = %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.RegisterValidation("scope", stubValidator{score: 0.9})
	r.RegisterQueue("sqlite", stubQueue{})

	v, err := r.Validation("scope")
	if err != nil {
		t.Fatalf("Validation(scope) failed: %v", err)
	}
	score, err := v.Score(ScopeReadOnly, nil)
	if err != nil || score != 0.9 {
		t.Errorf("Score = %v, %v; want 0.9, nil", score, err)
	}

	if _, err := r.Queue("sqlite"); err != nil {
		t.Errorf("Queue(sqlite) failed: %v", err)
	}
}

func TestRegistry_IndependentPerInstance(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.RegisterValidation("scope", stubValidator{})

	if _, err := b.Validation("scope"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("registration leaked across registry instances: %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.RegisterValidation("scope", stubValidator{})
	r.RegisterValidation("alt", stubValidator{})

	names := r.List()["validation"]
	if len(names) != 2 || names[0] != "alt" || names[1] != "scope" {
		t.Errorf("validation names = %v, want [alt scope]", names)
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&SemanticError{Op: "parse", Err: errors.New("x")}, "SemanticAdapterError"},
		{&GenerationError{Op: "generate", Err: errors.New("x")}, "GenerationAdapterError"},
		{&StorageError{Op: "save", Err: errors.New("x")}, "StorageAdapterError"},
		{&QueueError{Op: "enqueue", Err: errors.New("x")}, "QueueAdapterError"},
		{&ExecutionError{Op: "run", Err: errors.New("x")}, "ExecutionAdapterError"},
		{&ValidationError{Reason: "bad"}, "ValidationError"},
		{errors.New("plain"), "Error"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestErrorKind_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("outer"), &QueueError{Op: "enqueue", Err: errors.New("inner")})
	if got := ErrorKind(err); got != "QueueAdapterError" {
		t.Errorf("ErrorKind(wrapped) = %q, want QueueAdapterError", got)
	}
}
