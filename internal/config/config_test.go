package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsThenValidate(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Metadata.Type)
	assert.Equal(t, "memory", cfg.Content.Type)
}

// TestValidateAllowsTunableSentinels guards spec.md §4.1's sentinel
// values (0 to trigger tunables.Registry.Update's own defaulting, a
// negative inactivity timeout to disable it) all the way through
// ApplyDefaults and Validate — neither may reject or silently rewrite
// them before tunables.Registry.Update ever sees the configured value.
func TestValidateAllowsTunableSentinels(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Tunables.MaxPendingOps = 0
	cfg.Tunables.MaxPendingBytes = 0
	cfg.Tunables.MaxReadAhead = 0
	cfg.Tunables.MaxWriteBehind = 0
	cfg.Tunables.InactivityTimeoutSeconds = -1
	cfg.Tunables.InputCompactionThreshold = 0
	cfg.Tunables.OutputCompactionThreshold = 0

	require.NoError(t, Validate(cfg))
	assert.Equal(t, int32(0), cfg.Tunables.MaxPendingOps)
	assert.Equal(t, int32(-1), cfg.Tunables.InactivityTimeoutSeconds)
}

func TestValidateRejectsNegativeCompactionThreshold(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Tunables.InputCompactionThreshold = -1

	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadMetadataType(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Metadata.Type = "not-a-real-backend"

	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresMetricsAddressWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = ""

	assert.Error(t, Validate(cfg))
}
