package config

import "time"

// ApplyDefaults fills in any zero-valued fields with sane defaults,
// mirroring the teacher's defaults.go.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":2049"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Tunables deliberately get no zero-filling here: per spec.md §4.1,
	// 0 (and for InactivityTimeoutSeconds, any non-positive value) is a
	// legitimate sentinel tunables.Registry.Update already knows how to
	// clamp or fall back on. Pre-filling here would shadow that logic
	// before Update ever sees the configured value.

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 1000
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 100
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}

	if cfg.Metadata.Type == "" {
		cfg.Metadata.Type = "memory"
	}
	if cfg.Content.Type == "" {
		cfg.Content.Type = "memory"
	}
}
