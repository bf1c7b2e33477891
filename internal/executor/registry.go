package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"magnet-playlets/internal/domain"
)

// Registry maps action types to their executors. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.ActionType]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.ActionType]Executor),
	}
}

// Register adds or replaces the executor for t.
func (r *Registry) Register(t domain.ActionType, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = e
}

// Get returns the executor for t, or an error if none is registered.
func (r *Registry) Get(t domain.ActionType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("unknown action type: %s", t)
	}
	return e, nil
}

// Available returns the registered action types in sorted order.
func (r *Registry) Available() []domain.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.ActionType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate checks that every known action type has an executor.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, t := range domain.ActionTypes {
		if _, ok := r.executors[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no executor registered for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Execute dispatches action to the executor registered for its type.
func (r *Registry) Execute(ctx context.Context, action domain.Action, in Input) error {
	e, err := r.Get(action.Type)
	if err != nil {
		return err
	}
	return e.Execute(ctx, action, in)
}
