// Package config provides unified configuration loading for hubflow.
//
// Configuration merges three layers with increasing precedence: built-in
// defaults, an optional YAML file, and environment variables prefixed with
// HUBFLOW (for example HUBFLOW_ENGINE_PARALLELISM).
package config
