// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the prometheus instruments for the lifecycle and
// workflow subsystems. All methods are safe on a nil *Collector, so callers
// can leave metrics unconfigured.
type Collector struct {
	// Lifecycle instruments
	stateTransitions *prometheus.CounterVec
	shutdownDuration *prometheus.HistogramVec

	// Workflow instruments
	executionsTotal  *prometheus.CounterVec
	executionActive  *prometheus.GaugeVec
	stepDuration     *prometheus.HistogramVec
	stepRetriesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered against reg.
// A nil reg falls back to the default prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_state_transitions_total",
			Help:      "Total number of component lifecycle state transitions",
		},
		[]string{"component", "from", "to"},
	)

	c.shutdownDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "component_shutdown_duration_seconds",
			Help:      "Component cleanup duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions by terminal status",
		},
		[]string{"workflow", "status"},
	)

	c.executionActive = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_executions_active",
			Help:      "Number of workflow executions currently running",
		},
		[]string{"workflow"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"workflow", "step", "status"},
	)

	c.stepRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_retries_total",
			Help:      "Total number of workflow step retry attempts",
		},
		[]string{"workflow", "step"},
	)

	return c
}

// ObserveStateTransition records a lifecycle state transition.
func (c *Collector) ObserveStateTransition(component, from, to string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(component, from, to).Inc()
}

// ObserveShutdown records a component cleanup duration.
func (c *Collector) ObserveShutdown(component string, d time.Duration) {
	if c == nil {
		return
	}
	c.shutdownDuration.WithLabelValues(component).Observe(d.Seconds())
}

// ExecutionStarted marks a workflow execution as running.
func (c *Collector) ExecutionStarted(workflow string) {
	if c == nil {
		return
	}
	c.executionActive.WithLabelValues(workflow).Inc()
}

// ExecutionFinished records the terminal status of a workflow execution.
func (c *Collector) ExecutionFinished(workflow, status string) {
	if c == nil {
		return
	}
	c.executionActive.WithLabelValues(workflow).Dec()
	c.executionsTotal.WithLabelValues(workflow, status).Inc()
}

// ObserveStep records a step execution duration and outcome.
func (c *Collector) ObserveStep(workflow, step, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(workflow, step, status).Observe(d.Seconds())
}

// ObserveStepRetry records one retry attempt for a step.
func (c *Collector) ObserveStepRetry(workflow, step string) {
	if c == nil {
		return
	}
	c.stepRetriesTotal.WithLabelValues(workflow, step).Inc()
}
