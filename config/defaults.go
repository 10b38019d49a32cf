package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Hub:       DefaultHubConfig(),
		Engine:    DefaultEngineConfig(),
		History:   DefaultHistoryConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Name:            "hubflow",
		InitTimeout:     30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Parallelism:        1,
		DefaultStepTimeout: 5 * time.Minute,
		Retry:              DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns the default step retry policy configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// DefaultHistoryConfig returns the default history configuration.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend: "memory",
		Redis:   DefaultRedisConfig(),
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		Password:       "",
		DB:             0,
		TTL:            24 * time.Hour,
		KeyPrefix:      "hubflow",
		MaxPerWorkflow: 1000,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "hubflow",
		SampleRate:   0.1,
	}
}
