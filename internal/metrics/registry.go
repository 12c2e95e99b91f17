// Package metrics provides Prometheus metrics collection for metafsd's
// connection and session layer.
//
// Metrics are optional - if the registry is never initialized, callers
// fall back to NoopConnMetrics, which has zero overhead. This lets
// metafsd run with metrics.enabled on or off (spec.md's
// ambient observability section) without every call site branching on
// whether metrics are enabled.
//
// Usage:
//
//	// Initialize the global registry (done once in cmd/metafsd/main.go
//	// when cfg.Metrics.Enabled is true)
//	metrics.InitRegistry()
//
//	// internal/session.Conn takes the resulting ConnMetrics and uses it
//	// for every connection it accepts
//	connMetrics := metrics.NewConnMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all metafsd metrics.
	// Protected by registryOnce for write-once, read-many pattern.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
//
// If not called, GetRegistry() will return nil and all metrics constructors
// will return no-op implementations.
//
// Thread safety:
// sync.Once provides the necessary memory barriers to ensure the registry
// write is visible to all subsequent reads.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
//
// Thread safety:
// Safe to call concurrently. The sync.Once in InitRegistry() provides
// a happens-before relationship ensuring the registry value is visible.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
//
// Metrics are enabled if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
