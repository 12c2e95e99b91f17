// Package tunables holds the process-wide scalars every
// internal/session connection reads without locking, per spec §4.1 and
// §9's "ordinary word-sized atomics, no per-read locking" design note.
package tunables

import (
	"sync/atomic"

	"github.com/cubbit/metafsd/internal/audit"
	"github.com/cubbit/metafsd/internal/config"
)

// Registry is a set of process-wide tunables backed by atomics. Updates
// are expected to be rare; reads happen on every event dispatch and
// must never block.
type Registry struct {
	maxPendingOps             atomic.Int32
	maxPendingBytes           atomic.Int64
	maxReadAhead              atomic.Int32
	inactivityTimeoutSeconds  atomic.Int32
	maxWriteBehind            atomic.Int32
	inputCompactionThreshold  atomic.Int32
	outputCompactionThreshold atomic.Int32
	auditLogging              atomic.Bool

	multiThreaded bool
	updated       atomic.Bool

	auditLog *audit.Log
}

// New builds a Registry, applying the clamps spec.md §4.1 requires.
// multiThreaded records whether the reactor will run more than one
// worker; it governs the maxPendingOps default.
//
// maxPendingOps starts at 64 rather than 0: §4.1's "else keep previous
// value" fallback for a non-positive configured value only makes sense
// once some previous value exists, so construction seeds one.
func New(multiThreaded bool) *Registry {
	r := &Registry{multiThreaded: multiThreaded}
	r.maxPendingOps.Store(64)
	r.maxReadAhead.Store(256)
	r.maxPendingBytes.Store(1)
	r.maxWriteBehind.Store(1)
	return r
}

// SetAuditLog wires the audit-log collaborator tunable updates
// propagate to, per spec §4.1 "Updates also propagate to the
// audit-log collaborator."
func (r *Registry) SetAuditLog(log *audit.Log) {
	r.auditLog = log
}

// Update applies a configuration snapshot, clamping each value per
// spec.md §4.1. It has no retroactive effect on already-accepted
// connections beyond the next time each reads a tunable.
func (r *Registry) Update(cfg config.TunablesConfig) {
	firstUpdate := !r.updated.Swap(true)
	maxPendingOps := cfg.MaxPendingOps
	if maxPendingOps <= 0 {
		if r.multiThreaded && firstUpdate {
			maxPendingOps = 16
		} else {
			maxPendingOps = r.maxPendingOps.Load()
		}
	}
	r.maxPendingOps.Store(maxPendingOps)

	r.maxPendingBytes.Store(clampInt64(cfg.MaxPendingBytes, 1))
	r.maxWriteBehind.Store(clampInt32(cfg.MaxWriteBehind, 1))
	r.maxReadAhead.Store(clampInt32(cfg.MaxReadAhead, 256))
	r.inactivityTimeoutSeconds.Store(cfg.InactivityTimeoutSeconds)
	r.inputCompactionThreshold.Store(maxInt32(cfg.InputCompactionThreshold, 0))
	r.outputCompactionThreshold.Store(maxInt32(cfg.OutputCompactionThreshold, 0))
	r.auditLogging.Store(cfg.AuditLogging)

	if r.auditLog != nil {
		r.auditLog.SetEnabled(cfg.AuditLogging)
	}
}

func clampInt32(v, min int32) int32 {
	if v < min {
		return min
	}
	return v
}

func clampInt64(v, min int64) int64 {
	if v < min {
		return min
	}
	return v
}

func maxInt32(v, min int32) int32 {
	if v < min {
		return min
	}
	return v
}

func (r *Registry) MaxPendingOps() int32             { return r.maxPendingOps.Load() }
func (r *Registry) MaxPendingBytes() int64           { return r.maxPendingBytes.Load() }
func (r *Registry) MaxReadAhead() int32              { return r.maxReadAhead.Load() }
func (r *Registry) InactivityTimeoutSeconds() int32  { return r.inactivityTimeoutSeconds.Load() }
func (r *Registry) MaxWriteBehind() int32            { return r.maxWriteBehind.Load() }
func (r *Registry) InputCompactionThreshold() int32  { return r.inputCompactionThreshold.Load() }
func (r *Registry) OutputCompactionThreshold() int32 { return r.outputCompactionThreshold.Load() }
func (r *Registry) AuditLogging() bool               { return r.auditLogging.Load() }
