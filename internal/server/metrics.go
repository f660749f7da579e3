package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions metrics by logical endpoint name rather than the
// raw URL path, so /api/documents/{id} stays one series.
const labelHandler = "handler"

// serverMetrics holds the Prometheus collectors owned by the HTTP layer.
// One instance per Server, registered against the Config's registry, so the
// engine's and pool's collectors share the same /metrics page and tests stay
// hermetic with a fresh registry.
type serverMetrics struct {
	// httpRequestsTotal counts handled requests by method, handler, and
	// status code.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds records handler latency by method and handler.
	httpDurationSeconds *prometheus.HistogramVec
	// httpInFlight is the number of requests currently inside a handler.
	// Search fan-out and answer generation can hold requests open for
	// seconds, which the latency histogram only shows after the fact.
	httpInFlight prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of handled HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being handled.",
		}),
	}
}
