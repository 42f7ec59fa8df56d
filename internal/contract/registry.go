package contract

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotRegistered is returned when a registry lookup names an adapter that
// was never registered. This is a fatal misconfiguration: lookups are never
// silently defaulted.
var ErrNotRegistered = errors.New("adapter not registered")

// Registry maps logical adapter names to implementations, one namespace per
// contract. A Registry is a plain value constructed at process start (or per
// test case) and injected where needed; there is no package-level instance.
type Registry struct {
	semantic   bucket[SemanticEngine]
	generation bucket[GenerationEngine]
	storage    bucket[ArtifactStore]
	queue      bucket[JobQueue]
	execution  bucket[ExecutionEngine]
	validation bucket[StepValidator]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		semantic:   newBucket[SemanticEngine]("semantic"),
		generation: newBucket[GenerationEngine]("generation"),
		storage:    newBucket[ArtifactStore]("storage"),
		queue:      newBucket[JobQueue]("queue"),
		execution:  newBucket[ExecutionEngine]("execution"),
		validation: newBucket[StepValidator]("validation"),
	}
}

func (r *Registry) RegisterSemantic(name string, e SemanticEngine)     { r.semantic.put(name, e) }
func (r *Registry) RegisterGeneration(name string, e GenerationEngine) { r.generation.put(name, e) }
func (r *Registry) RegisterStorage(name string, s ArtifactStore)       { r.storage.put(name, s) }
func (r *Registry) RegisterQueue(name string, q JobQueue)              { r.queue.put(name, q) }
func (r *Registry) RegisterExecution(name string, e ExecutionEngine)   { r.execution.put(name, e) }
func (r *Registry) RegisterValidation(name string, v StepValidator)    { r.validation.put(name, v) }

func (r *Registry) Semantic(name string) (SemanticEngine, error)     { return r.semantic.get(name) }
func (r *Registry) Generation(name string) (GenerationEngine, error) { return r.generation.get(name) }
func (r *Registry) Storage(name string) (ArtifactStore, error)       { return r.storage.get(name) }
func (r *Registry) Queue(name string) (JobQueue, error)              { return r.queue.get(name) }
func (r *Registry) Execution(name string) (ExecutionEngine, error)   { return r.execution.get(name) }
func (r *Registry) Validation(name string) (StepValidator, error)    { return r.validation.get(name) }

// List returns the registered adapter names per contract, sorted, for
// status/introspection surfaces.
func (r *Registry) List() map[string][]string {
	return map[string][]string{
		"semantic":   r.semantic.names(),
		"generation": r.generation.names(),
		"storage":    r.storage.names(),
		"queue":      r.queue.names(),
		"execution":  r.execution.names(),
		"validation": r.validation.names(),
	}
}

// bucket is one named namespace of registered implementations. Registration
// happens at startup; lookups dominate afterwards, hence the RWMutex.
type bucket[T any] struct {
	kind    string
	mu      *sync.RWMutex
	entries map[string]T
}

func newBucket[T any](kind string) bucket[T] {
	return bucket[T]{kind: kind, mu: &sync.RWMutex{}, entries: make(map[string]T)}
}

func (b bucket[T]) put(name string, v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[name] = v
}

func (b bucket[T]) get(name string) (T, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.entries[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s adapter %q: %w", b.kind, name, ErrNotRegistered)
	}
	return v, nil
}

func (b bucket[T]) names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.entries))
	for name := range b.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
