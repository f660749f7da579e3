package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics holds the Prometheus metrics owned by the Neo4j store and its
// session pool. Created per store so tests can inject a fresh registry.
type storeMetrics struct {
	// poolInUse is the number of sessions currently leased from the pool.
	poolInUse prometheus.Gauge

	// poolWaitSeconds records how long callers waited for a free slot.
	poolWaitSeconds prometheus.Histogram

	// poolExhaustedTotal counts acquisitions that timed out.
	poolExhaustedTotal prometheus.Counter

	// queriesTotal counts storage round-trips, partitioned by operation.
	queriesTotal *prometheus.CounterVec
}

// newStoreMetrics registers all store metrics against reg.
func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	factory := promauto.With(reg)

	return &storeMetrics{
		poolInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "pool",
			Name:      "in_use",
			Help:      "Number of Neo4j sessions currently leased from the pool.",
		}),

		poolWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "pool",
			Name:      "wait_seconds",
			Help:      "Time callers spent waiting for a free pool slot.",
			Buckets:   []float64{.0001, .001, .01, .1, .5, 1, 5},
		}),

		poolExhaustedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Number of session acquisitions that timed out waiting for a slot.",
		}),

		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "store",
			Name:      "queries_total",
			Help:      "Total storage round-trips, partitioned by operation.",
		}, []string{"op"}),
	}
}
