package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/hubflow/types"
)

// StepAction is the execution contract for a workflow step. An action receives
// the subset of context variables the step declares as inputs and returns the
// variables it produces, keyed exactly as the step declares its outputs.
//
// Actions may be synchronous or I/O-bound; the engine enforces the step's
// timeout uniformly by racing the action against a timer, so implementations
// should honor ctx cancellation where possible.
type StepAction interface {
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// ActionFunc adapts a function to the StepAction interface.
type ActionFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

func (f ActionFunc) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return f(ctx, inputs)
}

// ActionRegistry is a lookup table of named step actions. Step definitions
// reference actions by name, keeping workflow definitions declarative and
// actions pluggable without reflection.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]StepAction
}

// NewActionRegistry creates an empty action registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions: make(map[string]StepAction),
	}
}

// Register adds an action under name. Registering an already-present name
// fails with DUPLICATE_NAME; actions are not replaceable once bound.
func (r *ActionRegistry) Register(name string, action StepAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return types.Errorf(types.ErrDuplicateName, "action already registered: %s", name)
	}
	r.actions[name] = action
	return nil
}

// Get returns the action registered under name.
func (r *ActionRegistry) Get(name string) (StepAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	return action, ok
}

// Names returns the registered action names, sorted.
func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
