package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/hubflow/internal/metrics"
	"github.com/BaSui01/hubflow/types"
)

// definitionRecord is the engine's stored form of a registered workflow:
// the immutable definition plus its precomputed dependency graph, topological
// order, and execution levels. The idle context is replaced at every
// execution start and is never mutated by two concurrent runs.
type definitionRecord struct {
	def    *Definition
	edges  map[string][]string
	order  []string
	levels [][]string
	idle   *Context
}

// Engine executes registered workflow definitions. It is itself a lifecycle
// Participant, so it can be registered with a lifecycle.Manager: Initialize
// opens the engine and Cleanup cancels in-flight executions and waits for
// them to drain.
//
// Executions of the same definition may run concurrently; each owns an
// independent Context. The definition table and the running-execution table
// are the engine's only shared mutable state and both serialize writers.
type Engine struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	actions *ActionRegistry
	history HistoryStore

	defaultTimeout time.Duration
	defaultRetry   *RetryPolicy
	parallelism    int
	limiter        *rate.Limiter

	mu          sync.RWMutex
	definitions map[string]*definitionRecord
	running     map[string]*Execution
	closed      bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.metrics = c }
}

// WithHistoryStore sets the execution history store.
func WithHistoryStore(s HistoryStore) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.history = s
		}
	}
}

// WithActionRegistry shares an existing action registry with the engine.
func WithActionRegistry(r *ActionRegistry) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.actions = r
		}
	}
}

// WithDefaultStepTimeout sets the timeout applied to steps that declare none.
func WithDefaultStepTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithDefaultRetryPolicy sets the retry policy applied to steps that declare none.
func WithDefaultRetryPolicy(p *RetryPolicy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.defaultRetry = p
		}
	}
}

// WithParallelism allows up to n independent steps of the same topological
// level to run concurrently. The default of 1 executes strictly sequentially
// in topological order; both modes respect all dependency ordering.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithRateLimit throttles step action launches across all executions.
func WithRateLimit(limit rate.Limit, burst int) EngineOption {
	return func(e *Engine) { e.limiter = rate.NewLimiter(limit, burst) }
}

// NewEngine creates a workflow engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("github.com/BaSui01/hubflow/workflow"),
		actions:      NewActionRegistry(),
		history:      NewMemoryHistoryStore(),
		defaultRetry: &RetryPolicy{MaxAttempts: 1},
		parallelism:  1,
		definitions:  make(map[string]*definitionRecord),
		running:      make(map[string]*Execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// RegisterAction binds a step action to the engine's registry.
func (e *Engine) RegisterAction(name string, action StepAction) error {
	return e.actions.Register(name, action)
}

// RegisterWorkflow validates the definition, computes its dependency graph
// (explicit depends_on plus implicit output -> input variable linkage),
// checks acyclicity, and stores it with an idle context. Registration is
// all-or-nothing: on any failure the definition table is unchanged.
// Registering a name twice fails with DUPLICATE_NAME even when the
// definitions are identical.
func (e *Engine) RegisterWorkflow(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	edges := dependencyEdges(def)
	order, err := topologicalOrder(def, edges)
	if err != nil {
		return err
	}
	levels := executionLevels(def, edges, order)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.definitions[def.Name]; exists {
		return types.Errorf(types.ErrDuplicateName,
			"workflow already registered: %s", def.Name).WithWorkflow(def.Name)
	}

	e.definitions[def.Name] = &definitionRecord{
		def:    def,
		edges:  edges,
		order:  order,
		levels: levels,
		idle:   newContext("", def.Name, nil),
	}

	e.logger.Info("workflow registered",
		zap.String("workflow", def.Name),
		zap.Int("steps", len(def.Steps)),
		zap.Int("levels", len(levels)),
	)
	return nil
}

// Workflows returns the registered workflow names in no particular order.
func (e *Engine) Workflows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.definitions))
	for name := range e.definitions {
		names = append(names, name)
	}
	return names
}

// Definition returns a registered workflow definition.
func (e *Engine) Definition(name string) (*Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.definitions[name]
	if !ok {
		return nil, false
	}
	return rec.def, true
}

// Context returns the most recent execution context for a workflow (the idle
// context if it never ran).
func (e *Engine) Context(name string) (*Context, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.definitions[name]
	if !ok {
		return nil, false
	}
	return rec.idle, true
}

// History returns the engine's history store.
func (e *Engine) History() HistoryStore {
	return e.history
}

// Execution is a handle on one in-flight or finished workflow run.
type Execution struct {
	id       string
	workflow string
	context  *Context
	cancel   context.CancelFunc

	cancelled atomic.Bool
	done      chan struct{}

	mu      sync.Mutex
	outputs map[string]any
	err     error
}

// ID returns the unique execution identifier.
func (x *Execution) ID() string { return x.id }

// Workflow returns the name of the executed workflow.
func (x *Execution) Workflow() string { return x.workflow }

// Context returns the execution's workflow context.
func (x *Execution) Context() *Context { return x.context }

// Done returns a channel closed when the execution reaches a terminal state.
func (x *Execution) Done() <-chan struct{} { return x.done }

// Wait blocks until the execution finishes and returns its outputs or error.
func (x *Execution) Wait() (map[string]any, error) {
	<-x.done
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.outputs, x.err
}

func (x *Execution) finish(outputs map[string]any, err error) {
	x.mu.Lock()
	x.outputs = outputs
	x.err = err
	x.mu.Unlock()
	close(x.done)
}

// Start begins an asynchronous execution of a registered workflow with a
// fresh context seeded from inputs, and returns a handle for waiting and
// cancellation. Fails with UNKNOWN_WORKFLOW for unregistered names.
func (e *Engine) Start(ctx context.Context, name string, inputs map[string]any) (*Execution, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.NewError(types.ErrEngineClosed, "workflow engine is shut down")
	}
	rec, ok := e.definitions[name]
	if !ok {
		e.mu.Unlock()
		return nil, types.Errorf(types.ErrUnknownWorkflow,
			"workflow not registered: %s", name).WithWorkflow(name)
	}

	execID := uuid.NewString()
	wctx := newContext(execID, name, inputs)
	rec.idle = wctx

	runCtx, cancel := context.WithCancel(ctx)
	x := &Execution{
		id:       execID,
		workflow: name,
		context:  wctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	e.running[execID] = x
	e.mu.Unlock()

	e.metrics.ExecutionStarted(name)
	go e.run(runCtx, rec, x)
	return x, nil
}

// Execute runs a registered workflow synchronously and returns the final
// variable map as outputs. It is equivalent to Start followed by Wait.
func (e *Engine) Execute(ctx context.Context, name string, inputs map[string]any) (map[string]any, error) {
	x, err := e.Start(ctx, name, inputs)
	if err != nil {
		return nil, err
	}
	return x.Wait()
}

// Cancel requests cancellation of an in-flight execution. The execution
// transitions to Cancelled, no further steps are scheduled, and any step
// already running is given its own timeout/cancellation handling before the
// execution finishes. Fails with UNKNOWN_EXECUTION if the ID is not running.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	x, ok := e.running[executionID]
	e.mu.RUnlock()
	if !ok {
		return types.Errorf(types.ErrUnknownExecution,
			"execution not running: %s", executionID)
	}

	x.cancelled.Store(true)
	x.cancel()
	e.logger.Info("execution cancelled",
		zap.String("workflow", x.workflow),
		zap.String("execution_id", executionID),
	)
	return nil
}

// Running returns the IDs of in-flight executions.
func (e *Engine) Running() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

// Initialize implements lifecycle.Participant.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	e.closed = false
	e.mu.Unlock()
	e.logger.Info("workflow engine initialized")
	return nil
}

// Cleanup implements lifecycle.Participant. It rejects new executions,
// cancels every in-flight one, and waits for them to drain or for ctx to
// expire.
func (e *Engine) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	inflight := make([]*Execution, 0, len(e.running))
	for _, x := range e.running {
		inflight = append(inflight, x)
	}
	e.mu.Unlock()

	for _, x := range inflight {
		x.cancelled.Store(true)
		x.cancel()
	}
	for _, x := range inflight {
		select {
		case <-x.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.logger.Info("workflow engine shut down",
		zap.Int("cancelled_executions", len(inflight)),
	)
	return nil
}

// run drives one execution through the precomputed levels.
func (e *Engine) run(ctx context.Context, rec *definitionRecord, x *Execution) {
	defer x.cancel()

	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.name", x.workflow),
			attribute.String("workflow.execution_id", x.id),
		),
	)
	defer span.End()

	log := e.logger.With(
		zap.String("workflow", x.workflow),
		zap.String("execution_id", x.id),
	)
	log.Info("starting workflow execution", zap.Int("steps", len(rec.def.Steps)))

	x.context.setState(ExecStateRunning)
	start := time.Now()

	// Sequential execution follows the full topological order (declaration
	// order breaking ties); levels exist only for the opt-in parallel path,
	// which is free to reorder independent branches.
	var execErr error
	if e.parallelism <= 1 {
		execErr = e.runSteps(ctx, rec, x, rec.order)
	} else {
		for _, level := range rec.levels {
			if ctx.Err() != nil {
				execErr = e.cancelError(x)
				break
			}
			if len(level) > 1 {
				execErr = e.runLevelParallel(ctx, rec, x, level)
			} else {
				execErr = e.runSteps(ctx, rec, x, level)
			}
			if execErr != nil {
				break
			}
		}
	}

	var outputs map[string]any
	var state ExecutionState
	switch {
	case execErr == nil:
		state = ExecStateCompleted
		outputs = x.context.Vars()
		log.Info("workflow execution completed",
			zap.Duration("duration", time.Since(start)),
		)
	case types.GetErrorCode(execErr) == types.ErrWorkflowCancelled:
		state = ExecStateCancelled
		log.Info("workflow execution cancelled",
			zap.Duration("duration", time.Since(start)),
		)
	default:
		state = ExecStateFailed
		span.RecordError(execErr)
		log.Error("workflow execution failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(execErr),
		)
	}
	x.context.setState(state)
	e.metrics.ExecutionFinished(x.workflow, string(state))

	e.saveRecord(x, state, start, outputs, execErr)

	e.mu.Lock()
	delete(e.running, x.id)
	e.mu.Unlock()

	x.finish(outputs, execErr)
}

// runSteps executes the given steps one at a time, in order.
func (e *Engine) runSteps(ctx context.Context, rec *definitionRecord, x *Execution, stepIDs []string) error {
	for _, stepID := range stepIDs {
		if ctx.Err() != nil {
			return e.cancelError(x)
		}
		step, _ := rec.def.step(stepID)
		if err := e.runStep(ctx, x, step); err != nil {
			return err
		}
	}
	return nil
}

// runLevelParallel executes the level's independent steps concurrently,
// bounded by the engine's parallelism. The first failure cancels the
// remaining siblings.
func (e *Engine) runLevelParallel(ctx context.Context, rec *definitionRecord, x *Execution, level []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, stepID := range level {
		step, _ := rec.def.step(stepID)
		g.Go(func() error {
			return e.runStep(gctx, x, step)
		})
	}
	return g.Wait()
}

// runStep executes one step: condition gate, action resolution, bounded
// retries with backoff, timeout enforcement, and output contract validation.
func (e *Engine) runStep(ctx context.Context, x *Execution, step *StepDef) error {
	log := e.logger.With(
		zap.String("workflow", x.workflow),
		zap.String("execution_id", x.id),
		zap.String("step", step.ID),
	)
	start := time.Now()

	if step.Condition != nil && !step.Condition(x.context.Vars()) {
		log.Debug("step condition false, skipping")
		e.recordStep(x, step.ID, StepSkipped, 0, start, nil)
		return nil
	}

	action, ok := e.actions.Get(step.Action)
	if !ok {
		err := types.Errorf(types.ErrUnknownAction,
			"action not registered: %s", step.Action).
			WithWorkflow(x.workflow).WithStep(step.ID)
		e.recordStep(x, step.ID, StepFailed, 0, start, err)
		return err
	}

	policy := step.Retry
	if policy == nil {
		policy = e.defaultRetry
	}
	policy = policy.normalize()

	timeout := step.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.step_id", step.ID),
			attribute.String("workflow.action", step.Action),
		),
	)
	defer span.End()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attempts = attempt

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				e.recordStep(x, step.ID, StepCancelled, attempts, start, err)
				return e.cancelError(x)
			}
		}

		inputs := x.context.varsSubset(step.Inputs)
		outputs, err := e.invokeAction(ctx, action, inputs, timeout)
		if err == nil {
			if mismatch := validateOutputs(x.workflow, step, outputs); mismatch != nil {
				// Contract violation: fail fast, never retry.
				e.recordStep(x, step.ID, StepFailed, attempts, start, mismatch)
				span.RecordError(mismatch)
				return mismatch
			}
			x.context.setVars(outputs)
			e.recordStep(x, step.ID, StepCompleted, attempts, start, nil)
			log.Debug("step completed",
				zap.Int("attempts", attempts),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			e.recordStep(x, step.ID, StepCancelled, attempts, start, err)
			return e.cancelError(x)
		}
		if attempt == policy.MaxAttempts || !policy.shouldRetry(err) {
			break
		}

		e.metrics.ObserveStepRetry(x.workflow, step.ID)
		log.Warn("step attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Error(err),
		)
		if err := sleepRetry(ctx, policy.nextDelay(attempt)); err != nil {
			e.recordStep(x, step.ID, StepCancelled, attempts, start, err)
			return e.cancelError(x)
		}
	}

	e.recordStep(x, step.ID, StepFailed, attempts, start, lastErr)
	span.RecordError(lastErr)

	if attempts > 1 {
		return types.Errorf(types.ErrStepRetriesExhausted,
			"step %s failed after %d attempts", step.ID, attempts).
			WithWorkflow(x.workflow).WithStep(step.ID).WithCause(lastErr)
	}
	if werr, ok := lastErr.(*types.Error); ok && werr.Code == types.ErrStepTimeout {
		return werr.WithWorkflow(x.workflow).WithStep(step.ID)
	}
	return types.Errorf(types.ErrStepFailed, "step %s failed", step.ID).
		WithWorkflow(x.workflow).WithStep(step.ID).WithCause(lastErr)
}

// invokeAction runs one action attempt, racing it against the step timeout.
// A timed-out or orphaned action keeps running in its own goroutine; the
// buffered channel lets it finish without anyone receiving.
func (e *Engine) invokeAction(ctx context.Context, action StepAction, inputs map[string]any, timeout time.Duration) (map[string]any, error) {
	actionCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		outputs map[string]any
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		outputs, err := action.Execute(actionCtx, inputs)
		ch <- outcome{outputs: outputs, err: err}
	}()

	timeoutErr := func() error {
		return types.Errorf(types.ErrStepTimeout,
			"action exceeded timeout %s", timeout).WithRetryable(true)
	}

	select {
	case out := <-ch:
		// An action that honors the timeout context reports the deadline as
		// its own error; normalize it to the typed timeout error.
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timeoutErr()
		}
		return out.outputs, out.err
	case <-actionCtx.Done():
		if ctx.Err() != nil {
			// External cancellation, not the step timer.
			return nil, ctx.Err()
		}
		return nil, timeoutErr()
	}
}

// validateOutputs enforces the step's output contract: the action must
// return exactly the declared output keys.
func validateOutputs(workflow string, step *StepDef, outputs map[string]any) error {
	declared := make(map[string]bool, len(step.Outputs))
	for _, name := range step.Outputs {
		declared[name] = true
	}
	for key := range outputs {
		if !declared[key] {
			return types.Errorf(types.ErrOutputMismatch,
				"step %s produced undeclared output: %s", step.ID, key).
				WithWorkflow(workflow).WithStep(step.ID)
		}
	}
	for _, name := range step.Outputs {
		if _, ok := outputs[name]; !ok {
			return types.Errorf(types.ErrOutputMismatch,
				"step %s did not produce declared output: %s", step.ID, name).
				WithWorkflow(workflow).WithStep(step.ID)
		}
	}
	return nil
}

// recordStep appends a step result to the context history and observes it.
func (e *Engine) recordStep(x *Execution, stepID string, status StepStatus, attempts int, start time.Time, err error) {
	end := time.Now()
	result := StepResult{
		StepID:    stepID,
		Status:    status,
		Attempts:  attempts,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
	if err != nil {
		result.Error = err.Error()
	}
	x.context.appendResult(result)
	e.metrics.ObserveStep(x.workflow, stepID, string(status), result.Duration)
}

// cancelError builds the terminal error for a cancelled execution.
func (e *Engine) cancelError(x *Execution) error {
	return types.Errorf(types.ErrWorkflowCancelled,
		"execution cancelled: %s", x.id).WithWorkflow(x.workflow)
}

// saveRecord persists the finished execution to the history store.
// History persistence is best-effort diagnostics and never fails the run.
func (e *Engine) saveRecord(x *Execution, state ExecutionState, start time.Time, outputs map[string]any, execErr error) {
	end := time.Now()
	rec := &ExecutionRecord{
		ExecutionID: x.id,
		Workflow:    x.workflow,
		State:       state,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Steps:       x.context.History(),
		Outputs:     outputs,
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.history.Save(saveCtx, rec); err != nil {
		e.logger.Warn("failed to save execution history",
			zap.String("execution_id", x.id),
			zap.Error(err),
		)
	}
}
