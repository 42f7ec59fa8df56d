package contract

import "fmt"

// Each adapter boundary has its own error kind so failures are never
// conflated across boundaries. All kinds except ValidationError wrap a
// cause and participate in errors.Is/As chains.

// SemanticError reports a failure of a semantic engine.
type SemanticError struct {
	Op  string
	Err error
}

func (e *SemanticError) Error() string { return fmt.Sprintf("semantic adapter: %s: %v", e.Op, e.Err) }
func (e *SemanticError) Unwrap() error { return e.Err }

// GenerationError reports a failure of a generation engine.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation adapter: %s: %v", e.Op, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }

// StorageError reports a failure of an artifact store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage adapter: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// QueueError reports a failure of a job queue.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string { return fmt.Sprintf("queue adapter: %s: %v", e.Op, e.Err) }
func (e *QueueError) Unwrap() error { return e.Err }

// ExecutionError reports a failure of an execution engine.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("execution adapter: %s: %v", e.Op, e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// ValidationError reports structurally invalid generated steps. It is an
// expected, typed outcome of validation — a hard failure of the generation
// phase, never softened into a lower confidence score.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid steps: " + e.Reason }
