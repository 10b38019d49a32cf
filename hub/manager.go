package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/hubflow/lifecycle"
	"github.com/BaSui01/hubflow/types"
)

// Manager owns a set of named hubs and drives their lifecycles through a
// top-level lifecycle manager. Hubs are initialized on Add and torn down in
// reverse registration order on ShutdownAll.
type Manager struct {
	logger *zap.Logger
	hubs   *lifecycle.Manager
}

// NewManager creates a hub manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger.With(zap.String("component", "hub_manager")),
		hubs:   lifecycle.NewManager(logger),
	}
}

// Add registers the hub under its configured name and initializes it. A hub
// whose initialization fails is recorded in Error state and not managed.
func (m *Manager) Add(ctx context.Context, h *Hub) error {
	if err := m.hubs.Register(ctx, h.Name(), h); err != nil {
		return err
	}
	m.logger.Info("hub added", zap.String("name", h.Name()))
	return nil
}

// Hub returns a managed hub by name.
func (m *Manager) Hub(name string) (*Hub, bool) {
	p, ok := m.hubs.Get(name)
	if !ok {
		return nil, false
	}
	h, ok := p.(*Hub)
	return h, ok
}

// Remove shuts one hub down early and drops it from the manager.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if err := m.hubs.Unregister(ctx, name); err != nil {
		if types.GetErrorCode(err) == types.ErrNotFound {
			return err
		}
		m.logger.Warn("hub removed with cleanup failure",
			zap.String("name", name),
			zap.Error(err),
		)
		return err
	}
	m.logger.Info("hub removed", zap.String("name", name))
	return nil
}

// Names returns the managed hub names in registration order.
func (m *Manager) Names() []string {
	return m.hubs.Names()
}

// States returns a snapshot of all hub lifecycle states.
func (m *Manager) States() map[string]lifecycle.ComponentState {
	return m.hubs.States()
}

// ShutdownAll tears every hub down in reverse registration order and returns
// the per-hub report. The sweep never aborts early.
func (m *Manager) ShutdownAll(ctx context.Context) *lifecycle.ShutdownReport {
	return m.hubs.ShutdownAll(ctx)
}
