package hub

import (
	"context"
	"errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/hubflow/config"
	"github.com/BaSui01/hubflow/internal/metrics"
	"github.com/BaSui01/hubflow/internal/telemetry"
	"github.com/BaSui01/hubflow/lifecycle"
	"github.com/BaSui01/hubflow/types"
	"github.com/BaSui01/hubflow/workflow"
)

// Hub is the composition root: it wires the workflow engine, the component
// lifecycle manager, history persistence, metrics, and telemetry from one
// configuration.
//
// A Hub is itself a lifecycle Participant, so hubs can be nested under a
// parent Manager. Initialize brings the engine up as the hub's first
// component; Cleanup tears every component down in reverse registration
// order and then shuts down telemetry.
type Hub struct {
	name string
	cfg  *config.Config

	logger     *zap.Logger
	registry   *prometheus.Registry
	collector  *metrics.Collector
	providers  *telemetry.Providers
	components *lifecycle.Manager
	engine     *workflow.Engine

	history       workflow.HistoryStore
	historyCloser io.Closer
	declared      []namedComponent
}

// Option configures a Hub.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	history    workflow.HistoryStore
	engineOpts []workflow.EngineOption
	components []namedComponent
}

type namedComponent struct {
	name        string
	participant lifecycle.Participant
}

// WithLogger overrides the logger built from the log configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the hub's metrics with an external Prometheus
// registerer instead of the hub-owned registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHistoryStore overrides the history store built from configuration.
func WithHistoryStore(s workflow.HistoryStore) Option {
	return func(o *options) { o.history = s }
}

// WithEngineOptions appends extra engine options after the configured ones.
func WithEngineOptions(opts ...workflow.EngineOption) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithComponent declares a participant the hub registers during Initialize,
// after the engine, in the order the options were given.
func WithComponent(name string, p lifecycle.Participant) Option {
	return func(o *options) {
		o.components = append(o.components, namedComponent{name: name, participant: p})
	}
}

// New builds a Hub from configuration. A nil cfg uses defaults. The hub is
// not started; call Initialize (directly or through a parent Manager).
func New(cfg *config.Config, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = config.NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
	}
	logger = logger.With(zap.String("hub", cfg.Hub.Name))

	h := &Hub{
		name:   cfg.Hub.Name,
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Metrics.Enabled {
		registerer := o.registerer
		if registerer == nil {
			h.registry = prometheus.NewRegistry()
			registerer = h.registry
		}
		h.collector = metrics.NewCollector("hubflow", registerer, logger)
	}

	history, closer, err := buildHistoryStore(cfg.History, o.history, logger)
	if err != nil {
		return nil, err
	}
	h.history = history
	h.historyCloser = closer

	h.engine = workflow.NewEngine(h.engineOptions(o.engineOpts)...)
	h.components = lifecycle.NewManager(logger, lifecycle.WithMetrics(h.collector))
	h.declared = o.components

	return h, nil
}

// engineOptions maps the engine configuration onto engine options.
func (h *Hub) engineOptions(extra []workflow.EngineOption) []workflow.EngineOption {
	ec := h.cfg.Engine
	opts := []workflow.EngineOption{
		workflow.WithLogger(h.logger),
		workflow.WithMetrics(h.collector),
		workflow.WithHistoryStore(h.history),
		workflow.WithParallelism(ec.Parallelism),
		workflow.WithDefaultStepTimeout(ec.DefaultStepTimeout),
		workflow.WithDefaultRetryPolicy(&workflow.RetryPolicy{
			MaxAttempts: ec.Retry.MaxAttempts,
			Delay:       ec.Retry.Delay,
			MaxDelay:    ec.Retry.MaxDelay,
			Multiplier:  ec.Retry.Multiplier,
			Jitter:      ec.Retry.Jitter,
		}),
	}
	if ec.RateLimitRPS > 0 {
		burst := ec.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, workflow.WithRateLimit(rate.Limit(ec.RateLimitRPS), burst))
	}
	return append(opts, extra...)
}

// buildHistoryStore selects the history backend. An override store wins over
// the configured backend.
func buildHistoryStore(cfg config.HistoryConfig, override workflow.HistoryStore, logger *zap.Logger) (workflow.HistoryStore, io.Closer, error) {
	if override != nil {
		return override, nil, nil
	}
	switch cfg.Backend {
	case "redis":
		store, err := workflow.NewRedisHistoryStore(workflow.RedisHistoryConfig{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			TTL:            cfg.Redis.TTL,
			KeyPrefix:      cfg.Redis.KeyPrefix,
			MaxPerWorkflow: cfg.Redis.MaxPerWorkflow,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return workflow.NewMemoryHistoryStore(), nil, nil
	}
}

// Name returns the hub's configured name.
func (h *Hub) Name() string { return h.name }

// Engine returns the hub's workflow engine.
func (h *Hub) Engine() *workflow.Engine { return h.engine }

// Components returns the hub's lifecycle manager.
func (h *Hub) Components() *lifecycle.Manager { return h.components }

// History returns the hub's execution history store.
func (h *Hub) History() workflow.HistoryStore { return h.history }

// Registry returns the hub-owned Prometheus registry, or nil when metrics
// are disabled or registered externally.
func (h *Hub) Registry() *prometheus.Registry { return h.registry }

// Initialize implements lifecycle.Participant: it starts telemetry and
// registers the workflow engine as the hub's first component.
func (h *Hub) Initialize(ctx context.Context) error {
	providers, err := telemetry.Init(h.cfg.Telemetry, h.logger)
	if err != nil {
		return types.Errorf(types.ErrInitFailed, "initialize telemetry").WithCause(err)
	}
	h.providers = providers

	if err := h.components.Register(ctx, "workflow_engine", h.engine); err != nil {
		return err
	}
	for _, c := range h.declared {
		if err := h.components.Register(ctx, c.name, c.participant); err != nil {
			return err
		}
	}

	h.logger.Info("hub initialized")
	return nil
}

// Cleanup implements lifecycle.Participant: it tears down every component in
// reverse registration order, closes history persistence, and shuts down
// telemetry. All failures are collected; the sweep never aborts early.
func (h *Hub) Cleanup(ctx context.Context) error {
	var errs []error

	report := h.components.ShutdownAll(ctx)
	if err := report.Err(); err != nil {
		errs = append(errs, err)
	}

	if h.historyCloser != nil {
		if err := h.historyCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.providers.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	h.logger.Info("hub shut down",
		zap.Int("components", len(report.Results)),
		zap.Int("failed", len(report.Failed())),
	)
	return errors.Join(errs...)
}

// RegisterComponent registers a participant with the hub's lifecycle manager
// and initializes it immediately.
func (h *Hub) RegisterComponent(ctx context.Context, name string, p lifecycle.Participant) error {
	return h.components.Register(ctx, name, p)
}

// UnregisterComponent shuts a single component down early.
func (h *Hub) UnregisterComponent(ctx context.Context, name string) error {
	return h.components.Unregister(ctx, name)
}

// Component returns a registered participant.
func (h *Hub) Component(name string) (lifecycle.Participant, bool) {
	return h.components.Get(name)
}

// Health is a point-in-time snapshot of the hub.
type Health struct {
	// Name is the hub name.
	Name string `json:"name"`
	// Components maps component names to their lifecycle states.
	Components map[string]lifecycle.ComponentState `json:"components"`
	// Workflows lists the registered workflow names.
	Workflows []string `json:"workflows"`
	// RunningExecutions counts in-flight workflow executions.
	RunningExecutions int `json:"running_executions"`
}

// Healthy reports whether no component is in Error state.
func (s Health) Healthy() bool {
	for _, state := range s.Components {
		if state == lifecycle.StateError {
			return false
		}
	}
	return true
}

// Health returns the hub's current health snapshot.
func (h *Hub) Health() Health {
	return Health{
		Name:              h.name,
		Components:        h.components.States(),
		Workflows:         h.engine.Workflows(),
		RunningExecutions: len(h.engine.Running()),
	}
}
