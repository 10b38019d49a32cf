package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hubflow/internal/metrics"
	"github.com/BaSui01/hubflow/types"
)

// entry is the manager's record for one registered participant.
// The manager is the only mutator of state and err.
type entry struct {
	participant  Participant
	state        ComponentState
	err          error
	registeredAt time.Time
}

// Manager registers named participants, drives them through initialization,
// tracks per-participant errors, and performs ordered shutdown.
//
// Registration order is significant: ShutdownAll tears components down in
// strict reverse registration order, so a later-registered component that
// depends on an earlier one is always torn down first.
type Manager struct {
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics attaches a metrics collector to the manager.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

// NewManager creates a lifecycle manager. A nil logger falls back to zap.NewNop.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:  logger.With(zap.String("component", "lifecycle_manager")),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register drives the participant through Created -> Initializing -> Ready.
// It fails with DUPLICATE_NAME if the name is held by a live participant.
// If Initialize fails, the recorded state for the name is Error, the error is
// captured, and the failure is propagated to the caller; the participant is
// never part of the shutdown order.
//
// A name whose previous participant ended in Terminated or Error state may be
// registered again; the stale record is replaced.
func (m *Manager) Register(ctx context.Context, name string, participant Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[name]; ok {
		if existing.state != StateTerminated && existing.state != StateError {
			return types.Errorf(types.ErrDuplicateName,
				"component already registered: %s (state %s)", name, existing.state)
		}
		// Stale terminal record; replace it.
		delete(m.entries, name)
		m.removeFromOrder(name)
	}

	e := &entry{
		participant:  participant,
		state:        StateCreated,
		registeredAt: time.Now(),
	}

	if err := m.advance(name, e, StateInitializing); err != nil {
		return err
	}
	m.entries[name] = e

	m.logger.Info("initializing component", zap.String("name", name))

	if err := participant.Initialize(ctx); err != nil {
		m.fail(name, e, err)
		return types.Errorf(types.ErrInitFailed, "initialize component %s", name).WithCause(err)
	}

	if err := m.advance(name, e, StateReady); err != nil {
		return err
	}
	m.order = append(m.order, name)

	m.logger.Info("component ready", zap.String("name", name))
	return nil
}

// Get returns the participant registered under name.
func (m *Manager) Get(name string) (Participant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return e.participant, true
}

// State returns the recorded lifecycle state for name.
func (m *Manager) State(name string) (ComponentState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return "", false
	}
	return e.state, true
}

// Err returns the captured error for name, if any.
func (m *Manager) Err(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[name]; ok {
		return e.err
	}
	return nil
}

// States returns a snapshot of all recorded component states.
func (m *Manager) States() map[string]ComponentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]ComponentState, len(m.entries))
	for name, e := range m.entries {
		snapshot[name] = e.state
	}
	return snapshot
}

// Names returns the active component names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Unregister removes a single component early, driving it through
// Ready -> ShuttingDown -> Terminated and invoking Cleanup. On cleanup failure
// the state is recorded as Error, but the name is removed from the active set
// so it can be reused.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok {
		return types.Errorf(types.ErrNotFound, "component not registered: %s", name)
	}

	err := m.shutdownLocked(ctx, name, e)
	delete(m.entries, name)
	m.removeFromOrder(name)
	return err
}

// ComponentResult records the shutdown outcome for one component.
type ComponentResult struct {
	Name     string
	State    ComponentState
	Err      error
	Duration time.Duration
}

// ShutdownReport aggregates the per-component results of a ShutdownAll sweep.
type ShutdownReport struct {
	Results []ComponentResult
}

// Failed returns the results of components whose cleanup failed.
func (r *ShutdownReport) Failed() []ComponentResult {
	var failed []ComponentResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins all cleanup failures into a single error, or nil if none failed.
func (r *ShutdownReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// ShutdownAll tears down every active component in reverse registration order.
// The sweep never aborts early: a failing component is recorded in the report
// and teardown continues with the rest. After the sweep the active set is empty.
func (m *Manager) ShutdownAll(ctx context.Context) *ShutdownReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &ShutdownReport{}

	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		e, ok := m.entries[name]
		if !ok {
			continue
		}

		start := time.Now()
		err := m.shutdownLocked(ctx, name, e)
		elapsed := time.Since(start)
		m.metrics.ObserveShutdown(name, elapsed)
		report.Results = append(report.Results, ComponentResult{
			Name:     name,
			State:    e.state,
			Err:      err,
			Duration: elapsed,
		})
		delete(m.entries, name)
	}
	m.order = m.order[:0]

	// Records that never reached Ready (failed initialization) have no
	// cleanup to run; drop them too so the registry is empty after the sweep.
	clear(m.entries)

	if failed := report.Failed(); len(failed) > 0 {
		m.logger.Warn("shutdown sweep finished with failures",
			zap.Int("total", len(report.Results)),
			zap.Int("failed", len(failed)),
		)
	} else {
		m.logger.Info("shutdown sweep finished",
			zap.Int("total", len(report.Results)),
		)
	}

	return report
}

// shutdownLocked runs the Ready -> ShuttingDown -> Terminated sequence for a
// single entry. The caller holds m.mu.
func (m *Manager) shutdownLocked(ctx context.Context, name string, e *entry) error {
	if e.state != StateReady {
		// Already terminal; nothing to clean up.
		return nil
	}

	if err := m.advance(name, e, StateShuttingDown); err != nil {
		return err
	}

	m.logger.Info("shutting down component", zap.String("name", name))

	if err := e.participant.Cleanup(ctx); err != nil {
		m.fail(name, e, err)
		return types.Errorf(types.ErrCleanupFailed, "cleanup component %s", name).WithCause(err)
	}

	return m.advance(name, e, StateTerminated)
}

// advance applies a guarded state transition and records it.
func (m *Manager) advance(name string, e *entry, target ComponentState) error {
	next, err := Transition(e.state, target)
	if err != nil {
		return err
	}
	m.metrics.ObserveStateTransition(name, string(e.state), string(next))
	e.state = next
	return nil
}

// removeFromOrder drops name from the registration order. The caller holds m.mu.
func (m *Manager) removeFromOrder(name string) {
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// fail transitions an entry to Error and captures the cause.
func (m *Manager) fail(name string, e *entry, cause error) {
	m.metrics.ObserveStateTransition(name, string(e.state), string(StateError))
	e.state = StateError
	e.err = cause
	m.logger.Error("component failed",
		zap.String("name", name),
		zap.Error(cause),
	)
}
