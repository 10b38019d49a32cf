package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete hubflow configuration.
type Config struct {
	// Hub configures the composition root.
	Hub HubConfig `yaml:"hub" env:"HUB"`

	// Engine configures the workflow engine.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// History configures execution history persistence.
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Log configures logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// HubConfig configures the hub composition root.
type HubConfig struct {
	// Name identifies the hub instance in logs and metrics.
	Name string `yaml:"name" env:"NAME"`
	// InitTimeout bounds component initialization during startup.
	InitTimeout time.Duration `yaml:"init_timeout" env:"INIT_TIMEOUT"`
	// ShutdownTimeout bounds the graceful shutdown sweep.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// EngineConfig configures the workflow engine.
type EngineConfig struct {
	// Parallelism is the maximum number of independent steps of one level
	// executed concurrently. 1 means strictly sequential.
	Parallelism int `yaml:"parallelism" env:"PARALLELISM"`
	// DefaultStepTimeout bounds a single action attempt for steps that
	// declare no timeout. Zero disables the default.
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout" env:"DEFAULT_STEP_TIMEOUT"`
	// Retry is the default step retry policy.
	Retry RetryConfig `yaml:"retry" env:"RETRY"`
	// RateLimitRPS throttles step action launches. Zero disables limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the limiter burst size.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RetryConfig configures the default step retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// Delay is the wait before the first retry.
	Delay time.Duration `yaml:"delay" env:"DELAY"`
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// Multiplier grows the delay between attempts.
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
	// Jitter randomizes each delay.
	Jitter bool `yaml:"jitter" env:"JITTER"`
}

// HistoryConfig configures execution history persistence.
type HistoryConfig struct {
	// Backend selects the store: memory, redis.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig configures the Redis connection for history persistence.
type RedisConfig struct {
	// Addr is the Redis server address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password authenticates the connection.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB selects the Redis database.
	DB int `yaml:"db" env:"DB"`
	// TTL expires execution records.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// KeyPrefix namespaces the store's keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// MaxPerWorkflow caps the per-workflow index length.
	MaxPerWorkflow int64 `yaml:"max_per_workflow" env:"MAX_PER_WORKFLOW"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists the log sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the caller.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces to error entries.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns telemetry on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName names the service in exported telemetry.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with the precedence
// defaults -> YAML file -> environment variables.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "HUBFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile merges the YAML file into cfg. A missing file keeps defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct and overrides tagged fields from the
// environment.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.Parallelism < 1 {
		errs = append(errs, "engine parallelism must be at least 1")
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry max_attempts must be at least 1")
	}
	if c.Engine.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}
	switch c.History.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown history backend: %s", c.History.Backend))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
