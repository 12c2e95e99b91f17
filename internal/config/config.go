// Package config loads metafsd's configuration, grounded on the
// teacher's pkg/config/config.go viper+mapstructure+validator pattern
// (env prefix, YAML file, ApplyDefaults then Validate before use).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is metafsd's complete configuration.
//
// Precedence (highest to lowest): environment variables (METAFSD_*),
// config file, defaults.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Tunables   TunablesConfig   `mapstructure:"tunables"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Metadata   MetadataConfig   `mapstructure:"metadata"`
	Content    ContentConfig    `mapstructure:"content"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	ListenAddress   string        `mapstructure:"listen_address" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// TunablesConfig mirrors spec.md §4.1's eight process-wide scalars.
//
// Several fields carry sentinel meanings per §4.1 that a naive "must be
// positive" tag would reject: MaxPendingOps<=0 asks tunables.Registry.Update
// to apply its multithreaded-default-or-keep-previous fallback,
// MaxPendingBytes/MaxReadAhead/MaxWriteBehind<=0 are legal inputs clamped
// up by Update, and InactivityTimeoutSeconds<=0 deliberately disables the
// timer. Only the compaction thresholds are genuinely restricted ("arbitrary
// non-negative integers"), so only those two carry a tag here; the rest are
// validated structurally (correct type) and left for Update to clamp.
type TunablesConfig struct {
	MaxPendingOps             int32 `mapstructure:"max_pending_ops"`
	MaxPendingBytes           int64 `mapstructure:"max_pending_bytes"`
	MaxReadAhead              int32 `mapstructure:"max_read_ahead"`
	InactivityTimeoutSeconds  int32 `mapstructure:"inactivity_timeout_seconds"`
	MaxWriteBehind            int32 `mapstructure:"max_write_behind"`
	InputCompactionThreshold  int32 `mapstructure:"input_compaction_threshold" validate:"gte=0"`
	OutputCompactionThreshold int32 `mapstructure:"output_compaction_threshold" validate:"gte=0"`
	AuditLogging              bool  `mapstructure:"audit_logging"`
}

// RateLimitConfig configures internal/ratelimiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"gt=0"`
}

// MetricsConfig configures internal/metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// MetadataConfig selects and configures internal/metastore's backend.
type MetadataConfig struct {
	Type   string                 `mapstructure:"type" validate:"required,oneof=memory badger"`
	Badger map[string]interface{} `mapstructure:"badger"`
}

// ContentConfig selects and configures internal/contentstore's backend.
type ContentConfig struct {
	Type string                 `mapstructure:"type" validate:"required,oneof=memory s3"`
	S3   map[string]interface{} `mapstructure:"s3"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("METAFSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "metafsd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "metafsd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
