package tunables

import (
	"testing"

	"github.com/cubbit/metafsd/internal/config"
)

func tunablesConfig(maxPendingOps, maxPendingBytes, maxReadAhead, inactivityTimeoutSeconds, maxWriteBehind, inputCompactionThreshold, outputCompactionThreshold int32, auditLogging bool) config.TunablesConfig {
	return config.TunablesConfig{
		MaxPendingOps:             maxPendingOps,
		MaxPendingBytes:           int64(maxPendingBytes),
		MaxReadAhead:              maxReadAhead,
		InactivityTimeoutSeconds:  inactivityTimeoutSeconds,
		MaxWriteBehind:            maxWriteBehind,
		InputCompactionThreshold:  inputCompactionThreshold,
		OutputCompactionThreshold: outputCompactionThreshold,
		AuditLogging:              auditLogging,
	}
}

func TestUpdateClampsToMinimums(t *testing.T) {
	r := New(false)
	r.Update(tunablesConfig(0, 0, 0, 10, 0, -5, -5, true))

	if got := r.MaxPendingBytes(); got != 1 {
		t.Errorf("MaxPendingBytes = %d, want 1", got)
	}
	if got := r.MaxWriteBehind(); got != 1 {
		t.Errorf("MaxWriteBehind = %d, want 1", got)
	}
	if got := r.MaxReadAhead(); got != 256 {
		t.Errorf("MaxReadAhead = %d, want 256", got)
	}
	if got := r.InputCompactionThreshold(); got != 0 {
		t.Errorf("InputCompactionThreshold = %d, want 0", got)
	}
	if !r.AuditLogging() {
		t.Errorf("AuditLogging = false, want true")
	}
}

func TestMaxPendingOpsDefaultsWhenMultiThreaded(t *testing.T) {
	r := New(true)
	r.Update(tunablesConfig(0, 1, 1, 0, 1, 0, 0, false))

	if got := r.MaxPendingOps(); got != 16 {
		t.Errorf("MaxPendingOps = %d, want 16", got)
	}
}

func TestNonPositiveInactivityTimeoutDisablesTimer(t *testing.T) {
	r := New(false)
	r.Update(tunablesConfig(4, 1, 1, -1, 1, 0, 0, false))

	if got := r.InactivityTimeoutSeconds(); got != -1 {
		t.Errorf("InactivityTimeoutSeconds = %d, want -1 (disabled)", got)
	}
}

func TestMaxPendingOpsKeepsPreviousWhenSingleThreaded(t *testing.T) {
	r := New(false)
	if got := r.MaxPendingOps(); got != 64 {
		t.Fatalf("MaxPendingOps at construction = %d, want seeded baseline 64", got)
	}

	r.Update(tunablesConfig(32, 1, 1, 0, 1, 0, 0, false))
	if got := r.MaxPendingOps(); got != 32 {
		t.Fatalf("MaxPendingOps = %d, want 32", got)
	}

	// A later non-positive update keeps the last configured value
	// rather than reverting to the construction-time baseline.
	r.Update(tunablesConfig(0, 1, 1, 0, 1, 0, 0, false))
	if got := r.MaxPendingOps(); got != 32 {
		t.Fatalf("MaxPendingOps = %d, want 32 (kept previous)", got)
	}
}
