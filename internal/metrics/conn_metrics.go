package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnMetrics is the metrics surface internal/session reports through.
// Components take a ConnMetrics by interface so they run unmodified
// whether or not InitRegistry was ever called.
type ConnMetrics interface {
	RequestStarted(opcode uint32)
	RequestCompleted(opcode uint32, status uint32, d time.Duration)
	BytesRead(n int)
	BytesWritten(n int)
	ConnectionAccepted()
	ConnectionClosed()
	ConnectionForceClosed()
	SetLiveConnections(n int)
}

// NewConnMetrics returns a PrometheusConnMetrics bound to the global
// registry when IsEnabled, or a NoopConnMetrics otherwise.
func NewConnMetrics() ConnMetrics {
	if !IsEnabled() {
		return NoopConnMetrics{}
	}
	return newPrometheusConnMetrics(GetRegistry())
}

// NoopConnMetrics discards every call. Zero overhead when metrics are
// disabled.
type NoopConnMetrics struct{}

func (NoopConnMetrics) RequestStarted(uint32)                       {}
func (NoopConnMetrics) RequestCompleted(uint32, uint32, time.Duration) {}
func (NoopConnMetrics) BytesRead(int)                                {}
func (NoopConnMetrics) BytesWritten(int)                             {}
func (NoopConnMetrics) ConnectionAccepted()                          {}
func (NoopConnMetrics) ConnectionClosed()                            {}
func (NoopConnMetrics) ConnectionForceClosed()                       {}
func (NoopConnMetrics) SetLiveConnections(int)                       {}

// PrometheusConnMetrics records per-connection activity to Prometheus
// counters/histograms/gauges, grounded on the teacher's
// pkg/metrics/prometheus metric-naming conventions.
type PrometheusConnMetrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	inFlightRequests   prometheus.Gauge
	bytesRead          prometheus.Counter
	bytesWritten       prometheus.Counter
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	connectionsForced   prometheus.Counter
	connectionsLive     prometheus.Gauge
}

func newPrometheusConnMetrics(reg *prometheus.Registry) *PrometheusConnMetrics {
	m := &PrometheusConnMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metafsd",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Requests completed, by opcode and status.",
		}, []string{"opcode", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metafsd",
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency from ingest to egress.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"opcode"}),
		inFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metafsd",
			Subsystem: "session",
			Name:      "requests_in_flight",
			Help:      "Requests submitted to the executor but not yet completed.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metafsd", Subsystem: "session", Name: "bytes_read_total",
			Help: "Bytes read off client sockets.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metafsd", Subsystem: "session", Name: "bytes_written_total",
			Help: "Bytes written to client sockets.",
		}),
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metafsd", Subsystem: "session", Name: "connections_accepted_total",
			Help: "Connections accepted.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metafsd", Subsystem: "session", Name: "connections_closed_total",
			Help: "Connections closed gracefully.",
		}),
		connectionsForced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metafsd", Subsystem: "session", Name: "connections_force_closed_total",
			Help: "Connections torn down due to NET_ERROR or inactivity timeout.",
		}),
		connectionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metafsd", Subsystem: "session", Name: "connections_live",
			Help: "Connections currently registered in the roster.",
		}),
	}

	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.inFlightRequests,
		m.bytesRead, m.bytesWritten,
		m.connectionsAccepted, m.connectionsClosed, m.connectionsForced,
		m.connectionsLive,
	)
	return m
}

func (m *PrometheusConnMetrics) RequestStarted(uint32) {
	m.inFlightRequests.Inc()
}

func (m *PrometheusConnMetrics) RequestCompleted(opcode uint32, status uint32, d time.Duration) {
	m.inFlightRequests.Dec()
	op := strconv.FormatUint(uint64(opcode), 10)
	m.requestsTotal.WithLabelValues(op, strconv.FormatUint(uint64(status), 10)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *PrometheusConnMetrics) BytesRead(n int)    { m.bytesRead.Add(float64(n)) }
func (m *PrometheusConnMetrics) BytesWritten(n int) { m.bytesWritten.Add(float64(n)) }

func (m *PrometheusConnMetrics) ConnectionAccepted()    { m.connectionsAccepted.Inc() }
func (m *PrometheusConnMetrics) ConnectionClosed()      { m.connectionsClosed.Inc() }
func (m *PrometheusConnMetrics) ConnectionForceClosed() { m.connectionsForced.Inc() }

func (m *PrometheusConnMetrics) SetLiveConnections(n int) { m.connectionsLive.Set(float64(n)) }
