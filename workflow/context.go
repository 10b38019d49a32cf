package workflow

import (
	"sync"
	"time"
)

// ExecutionState is the status of one workflow execution.
type ExecutionState string

const (
	// ExecStateCreated indicates the context exists but execution has not started.
	ExecStateCreated ExecutionState = "created"
	// ExecStateRunning indicates the execution is in progress.
	ExecStateRunning ExecutionState = "running"
	// ExecStateCompleted indicates all steps ran or were skipped without failure.
	ExecStateCompleted ExecutionState = "completed"
	// ExecStateFailed indicates a step failure aborted the execution.
	ExecStateFailed ExecutionState = "failed"
	// ExecStatePaused is reserved for callers that persist contexts across
	// suspension; the engine itself never enters it.
	ExecStatePaused ExecutionState = "paused"
	// ExecStateCancelled indicates external cancellation stopped the execution.
	ExecStateCancelled ExecutionState = "cancelled"
)

// StepStatus is the recorded outcome of one step attempt sequence.
type StepStatus string

const (
	// StepCompleted indicates the step's action ran successfully.
	StepCompleted StepStatus = "completed"
	// StepSkipped indicates the step's condition evaluated false; the action
	// was never invoked.
	StepSkipped StepStatus = "skipped"
	// StepFailed indicates the step failed after exhausting its retry policy.
	StepFailed StepStatus = "failed"
	// StepCancelled indicates cancellation interrupted the step.
	StepCancelled StepStatus = "cancelled"
)

// StepResult is one record of the append-only execution history.
type StepResult struct {
	StepID    string        `json:"step_id"`
	Status    StepStatus    `json:"status"`
	Attempts  int           `json:"attempts"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Context is the mutable per-execution state of one workflow run: a variable
// map, an append-only step history, and a status. Each execution owns a fresh
// Context; a Context is never shared across concurrent executions and never
// reused once the execution reaches a terminal state.
//
// The engine is the sole mutator during an execution; callers observe through
// the read accessors, which are safe for concurrent use.
type Context struct {
	executionID string
	workflow    string
	startTime   time.Time

	mu      sync.RWMutex
	state   ExecutionState
	vars    map[string]any
	history []StepResult
}

// newContext creates a context in Created state seeded with the inputs.
func newContext(executionID, workflow string, inputs map[string]any) *Context {
	vars := make(map[string]any, len(inputs))
	for k, v := range inputs {
		vars[k] = v
	}
	return &Context{
		executionID: executionID,
		workflow:    workflow,
		startTime:   time.Now(),
		state:       ExecStateCreated,
		vars:        vars,
	}
}

// ExecutionID returns the execution's unique identifier.
func (c *Context) ExecutionID() string { return c.executionID }

// Workflow returns the name of the workflow being executed.
func (c *Context) Workflow() string { return c.workflow }

// StartTime returns when the context was created.
func (c *Context) StartTime() time.Time { return c.startTime }

// State returns the execution status.
func (c *Context) State() ExecutionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Var returns one context variable.
func (c *Context) Var(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[name]
	return v, ok
}

// Vars returns a copy of the variable map.
func (c *Context) Vars() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// History returns a copy of the step history in append order.
func (c *Context) History() []StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StepResult, len(c.history))
	copy(out, c.history)
	return out
}

// setState transitions the execution status.
func (c *Context) setState(s ExecutionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// varsSubset returns the named variables that are present.
func (c *Context) varsSubset(names []string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := c.vars[name]; ok {
			out[name] = v
		}
	}
	return out
}

// setVars merges output variables into the map.
func (c *Context) setVars(outputs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range outputs {
		c.vars[k] = v
	}
}

// appendResult appends one step record to the history.
func (c *Context) appendResult(r StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, r)
}
