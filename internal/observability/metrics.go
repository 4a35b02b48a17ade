// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Split metrics
	SplitRunsTotal      *prometheus.CounterVec
	SplitTransfersTotal prometheus.Counter
	SplitDuration       prometheus.Histogram
	OracleQueriesTotal  *prometheus.CounterVec

	// Forward metrics
	ForwardRunsTotal      *prometheus.CounterVec
	ForwardTransfersTotal prometheus.Counter

	// Position metrics
	PositionOpsTotal *prometheus.CounterVec

	// Policy metrics
	PolicyUpdatesTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec

	// Stream metrics
	StreamClients       prometheus.Gauge
	StreamMessagesTotal prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "valence"
	}

	return &Metrics{
		// Split metrics
		SplitRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "splitter",
			Name:      "runs_total",
			Help:      "Total number of split runs by status",
		}, []string{"status"}),
		SplitTransfersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "splitter",
			Name:      "transfers_total",
			Help:      "Total number of transfers issued by split runs",
		}),
		SplitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "splitter",
			Name:      "run_duration_seconds",
			Help:      "Split run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OracleQueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "splitter",
			Name:      "oracle_queries_total",
			Help:      "Total number of dynamic-ratio resolutions by result",
		}, []string{"result"}),

		// Forward metrics
		ForwardRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forwarder",
			Name:      "runs_total",
			Help:      "Total number of forward runs by status",
		}, []string{"status"}),
		ForwardTransfersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forwarder",
			Name:      "transfers_total",
			Help:      "Total number of transfers issued by forward runs",
		}),

		// Position metrics
		PositionOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "operations_total",
			Help:      "Total number of position operations by venue, operation and status",
		}, []string{"venue", "operation", "status"}),

		// Policy metrics
		PolicyUpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "updates_total",
			Help:      "Total number of policy updates by kind and status",
		}, []string{"kind", "status"}),

		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Stream metrics
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Current number of connected stream clients",
		}),
		StreamMessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total number of messages broadcast to stream clients",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSplitRun records one split run outcome. Safe on a nil receiver so
// metrics stay optional for callers.
func (m *Metrics) RecordSplitRun(status string, transfers int, seconds float64) {
	if m == nil {
		return
	}
	m.SplitRunsTotal.WithLabelValues(status).Inc()
	m.SplitTransfersTotal.Add(float64(transfers))
	m.SplitDuration.Observe(seconds)
}

// RecordOracleQuery records one dynamic-ratio resolution.
// Result is one of ok, failed, cached.
func (m *Metrics) RecordOracleQuery(result string) {
	if m == nil {
		return
	}
	m.OracleQueriesTotal.WithLabelValues(result).Inc()
}

// RecordForwardRun records one forward run outcome.
func (m *Metrics) RecordForwardRun(status string, transfers int) {
	if m == nil {
		return
	}
	m.ForwardRunsTotal.WithLabelValues(status).Inc()
	m.ForwardTransfersTotal.Add(float64(transfers))
}

// RecordPositionOp records one position operation outcome.
func (m *Metrics) RecordPositionOp(venue, operation, status string) {
	if m == nil {
		return
	}
	m.PositionOpsTotal.WithLabelValues(venue, operation, status).Inc()
}

// RecordPolicyUpdate records one policy update outcome.
// Kind is split or forward; status is ok or rejected.
func (m *Metrics) RecordPolicyUpdate(kind, status string) {
	if m == nil {
		return
	}
	m.PolicyUpdatesTotal.WithLabelValues(kind, status).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestLatency.WithLabelValues(route).Observe(seconds)
}

// SetStreamClients updates the connected stream client gauge.
func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.StreamClients.Set(float64(n))
}

// RecordStreamMessage counts one broadcast stream message.
func (m *Metrics) RecordStreamMessage() {
	if m == nil {
		return
	}
	m.StreamMessagesTotal.Inc()
}
