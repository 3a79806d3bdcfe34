package indexsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the sync pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// operations counts sync attempts by record kind, op and outcome.
	operations *prometheus.CounterVec

	// duration records how long each sync attempt took end to end
	// (embedding + vector store write).
	duration *prometheus.HistogramVec

	// queueDepth is the number of jobs waiting in the async queue.
	queueDepth prometheus.Gauge

	// reconcileRuns counts reconciler passes by result ("ok" or "error").
	reconcileRuns *prometheus.CounterVec

	// reconcileRemoved counts orphaned index entries removed by the reconciler.
	reconcileRemoved *prometheus.CounterVec
}

// NewMetrics registers the sync metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Index sync attempts, partitioned by record kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relief",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of index sync attempts including embedding.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind", "op"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relief",
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Number of sync jobs waiting in the async queue.",
		}),

		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief",
			Name:      "reconcile_runs_total",
			Help:      "Reconciler passes, partitioned by result.",
		}, []string{"result"}),

		reconcileRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief",
			Name:      "reconcile_removed_total",
			Help:      "Orphaned index entries removed by the reconciler.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(r Result) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(r.Kind), string(r.Op), string(r.Outcome)).Inc()
	if r.Outcome != OutcomeDropped {
		m.duration.WithLabelValues(string(r.Kind), string(r.Op)).Observe(r.Duration.Seconds())
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) reconciled(err error, removed map[string]int) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
	for kind, n := range removed {
		m.reconcileRemoved.WithLabelValues(kind).Add(float64(n))
	}
}
