package workflow

import (
	"time"

	"github.com/BaSui01/hubflow/types"
)

// ConditionFunc is a predicate over the execution context variables, evaluated
// before a step runs. When it reports false the step is skipped: recorded in
// history as skipped without invoking its action.
type ConditionFunc func(vars map[string]any) bool

// RetryPolicy bounds the retry behavior of a single step.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values <= 1 disable retries.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// Delay is the wait before the first retry.
	Delay time.Duration `yaml:"delay" json:"delay"`
	// MaxDelay caps the backoff growth. Zero means no cap.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// Multiplier grows the delay between attempts. Values < 1 mean 2.0.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	// Jitter randomizes each delay to avoid synchronized retries.
	Jitter bool `yaml:"jitter" json:"jitter"`
	// RetryAll retries any failure, not just errors marked retryable.
	// Cancellation is never retried regardless of this setting.
	RetryAll bool `yaml:"retry_all" json:"retry_all"`
}

// DefaultRetryPolicy returns the engine-wide default step retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		Delay:       100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// StepDef declares one step of a workflow.
type StepDef struct {
	// ID is the step identifier, unique within the workflow.
	ID string
	// Action names the StepAction to invoke, resolved through the engine's
	// action registry.
	Action string
	// Inputs lists the context variables passed to the action.
	Inputs []string
	// Outputs lists the context variables the action result populates.
	// The action must return exactly these keys.
	Outputs []string
	// DependsOn lists explicit step dependencies. Steps also implicitly
	// depend on steps producing the variables they consume.
	DependsOn []string
	// Condition gates execution; nil means always run.
	Condition ConditionFunc
	// Retry overrides the engine default retry policy for this step.
	Retry *RetryPolicy
	// Timeout bounds a single action attempt. Zero uses the engine default.
	Timeout time.Duration
}

// Definition is the registered, immutable description of a named step graph.
// After registration a Definition is read-only and safe for concurrent reads.
type Definition struct {
	// Name identifies the workflow.
	Name string
	// Description describes the workflow.
	Description string
	// Steps lists the workflow steps in declaration order. Declaration order
	// breaks ties when computing the topological execution order.
	Steps []StepDef
}

// Validate checks the structural invariants of the definition: non-empty
// name, unique non-empty step IDs, actions named, and explicit dependencies
// referencing declared steps. Graph acyclicity is checked at registration.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return types.NewError(types.ErrInvalidDefinition, "workflow name is empty")
	}
	if len(d.Steps) == 0 {
		return types.Errorf(types.ErrInvalidDefinition, "workflow %s has no steps", d.Name)
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.ID == "" {
			return types.Errorf(types.ErrInvalidDefinition,
				"workflow %s has a step with empty id", d.Name)
		}
		if seen[step.ID] {
			return types.Errorf(types.ErrInvalidDefinition,
				"workflow %s has duplicate step id: %s", d.Name, step.ID)
		}
		seen[step.ID] = true
		if step.Action == "" {
			return types.Errorf(types.ErrInvalidDefinition,
				"step %s has no action", step.ID).WithWorkflow(d.Name).WithStep(step.ID)
		}
	}

	for _, step := range d.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return types.Errorf(types.ErrInvalidDefinition,
					"step %s depends on undeclared step: %s", step.ID, dep).
					WithWorkflow(d.Name).WithStep(step.ID)
			}
			if dep == step.ID {
				return types.Errorf(types.ErrCyclicWorkflow,
					"step %s depends on itself", step.ID).
					WithWorkflow(d.Name).WithStep(step.ID)
			}
		}
	}

	return nil
}

// step returns the step with the given ID.
func (d *Definition) step(id string) (*StepDef, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
