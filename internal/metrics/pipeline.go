package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index pipeline Prometheus metrics.
var (
	ChangeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cookbook",
			Name:      "change_events_total",
			Help:      "Change notifications received by the listener",
		},
		[]string{"status"}, // "indexed" / "decode_error" / "index_error"
	)

	IndexOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cookbook",
			Name:      "index_ops_total",
			Help:      "Index writer outcomes per recipe",
		},
		[]string{"mode", "result"}, // mode: "single" / "batch"; result: "indexed" / "skipped" / "failed"
	)

	BackendWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cookbook",
			Name:      "backend_write_duration_seconds",
			Help:      "Duration of writes to the lexical and vector indexes",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "status"},
	)

	ReconcileBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cookbook",
			Name:      "reconcile_batch_size",
			Help:      "Recipes committed per reconciler cycle",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cookbook",
			Name:      "search_duration_seconds",
			Help:      "Hybrid search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers the index pipeline and search metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ChangeEventsTotal)
	prometheus.MustRegister(IndexOpsTotal)
	prometheus.MustRegister(BackendWriteDuration)
	prometheus.MustRegister(ReconcileBatchSize)
	prometheus.MustRegister(SearchDuration)
	pipelineMetricsRegistered = true
}
