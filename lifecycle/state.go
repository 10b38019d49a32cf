package lifecycle

import "github.com/BaSui01/hubflow/types"

// ComponentState defines the lifecycle state of a managed component.
type ComponentState string

const (
	StateCreated      ComponentState = "created"       // Constructed, not yet registered
	StateInitializing ComponentState = "initializing"  // Initialize in progress
	StateReady        ComponentState = "ready"         // Initialized, serving
	StateShuttingDown ComponentState = "shutting_down" // Cleanup in progress
	StateTerminated   ComponentState = "terminated"    // Cleaned up, absorbing
	StateError        ComponentState = "error"         // Failed, absorbing
)

// validTransitions defines the legal state transitions.
// Terminated and Error are absorbing: no edges lead out of them.
var validTransitions = map[ComponentState][]ComponentState{
	StateCreated:      {StateInitializing},
	StateInitializing: {StateReady, StateError},
	StateReady:        {StateShuttingDown, StateError},
	StateShuttingDown: {StateTerminated, StateError},
	StateTerminated:   {},
	StateError:        {},
}

// CanTransition reports whether the transition from one state to another is legal.
func CanTransition(from, to ComponentState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the requested state change and returns the new state.
// It has no side effects; the Manager uses it as a guard before mutating a
// participant's observable state. Illegal requests fail with an
// INVALID_TRANSITION error carrying the offending pair.
func Transition(current, target ComponentState) (ComponentState, error) {
	if !CanTransition(current, target) {
		return current, types.Errorf(types.ErrInvalidTransition,
			"invalid state transition: %s -> %s", current, target)
	}
	return target, nil
}
