// Package hubflow provides a top-level convenience entry point for creating
// a fully wired orchestration hub with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/hubflow"
//
//	h, err := hubflow.New()
//	h, err := hubflow.NewFromConfig("config.yaml")
//
// This is a thin wrapper around [hub.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package hubflow

import (
	"github.com/BaSui01/hubflow/config"
	"github.com/BaSui01/hubflow/hub"
)

// Option configures the hub created by [New].
type Option = hub.Option

// New creates a [hub.Hub] with default configuration.
func New(opts ...Option) (*hub.Hub, error) {
	return hub.New(nil, opts...)
}

// NewFromConfig creates a [hub.Hub] from a YAML config file, with environment
// variable overrides applied on top.
func NewFromConfig(path string, opts ...Option) (*hub.Hub, error) {
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return nil, err
	}
	return hub.New(cfg, opts...)
}

// Re-export hub options so callers never need to import hub/.

// WithLogger sets a custom zap logger.
var WithLogger = hub.WithLogger

// WithRegisterer registers metrics with an external Prometheus registerer.
var WithRegisterer = hub.WithRegisterer

// WithHistoryStore overrides the configured execution history store.
var WithHistoryStore = hub.WithHistoryStore

// WithEngineOptions appends extra workflow engine options.
var WithEngineOptions = hub.WithEngineOptions

// WithComponent declares a participant registered during hub initialization.
var WithComponent = hub.WithComponent
