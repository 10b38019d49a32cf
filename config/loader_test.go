package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "hubflow", cfg.Hub.Name)
	assert.Equal(t, 1, cfg.Engine.Parallelism)
	assert.Equal(t, 3, cfg.Engine.Retry.MaxAttempts)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
hub:
  name: orchestrator
engine:
  parallelism: 4
  default_step_timeout: 30s
  retry:
    max_attempts: 5
history:
  backend: redis
  redis:
    addr: redis.internal:6379
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "orchestrator", cfg.Hub.Name)
	assert.Equal(t, 4, cfg.Engine.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.Engine.DefaultStepTimeout)
	assert.Equal(t, 5, cfg.Engine.Retry.MaxAttempts)
	assert.Equal(t, "redis", cfg.History.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.History.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Hub.ShutdownTimeout)
	assert.Equal(t, "hubflow", cfg.History.Redis.KeyPrefix)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "hubflow", cfg.Hub.Name)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hub: ["), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HUBFLOW_ENGINE_PARALLELISM", "8")
	t.Setenv("HUBFLOW_ENGINE_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("HUBFLOW_HISTORY_BACKEND", "redis")
	t.Setenv("HUBFLOW_HISTORY_REDIS_TTL", "1h")
	t.Setenv("HUBFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/hubflow.log")
	t.Setenv("HUBFLOW_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Parallelism)
	assert.Equal(t, 7, cfg.Engine.Retry.MaxAttempts)
	assert.Equal(t, "redis", cfg.History.Backend)
	assert.Equal(t, time.Hour, cfg.History.Redis.TTL)
	assert.Equal(t, []string{"stdout", "/var/log/hubflow.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  parallelism: 2\n"), 0o600))
	t.Setenv("HUBFLOW_ENGINE_PARALLELISM", "16")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Engine.Parallelism, "environment wins over the file")
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("ORCH_HUB_NAME", "renamed")

	cfg, err := NewLoader().WithEnvPrefix("ORCH").Load()
	require.NoError(t, err)
	assert.Equal(t, "renamed", cfg.Hub.Name)
}

func TestValidatorRuns(t *testing.T) {
	sentinel := errors.New("rejected")
	_, err := NewLoader().
		WithValidator(func(*Config) error { return sentinel }).
		Load()
	require.ErrorIs(t, err, sentinel)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Engine.Parallelism = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.History.Backend = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Telemetry.SampleRate = 1.5
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(DefaultLogConfig())
	require.NoError(t, err)
	logger.Info("configured")
	_ = logger.Sync()

	_, err = NewLogger(LogConfig{Level: "shouting"})
	require.Error(t, err)

	console, err := NewLogger(LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	console.Debug("console format")
}
