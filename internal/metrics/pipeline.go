package metrics

import "github.com/prometheus/client_golang/prometheus"

// Batch pipeline Prometheus metrics.
var (
	DatasetRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sadcompare",
			Name:      "dataset_runs_total",
			Help:      "Dataset pipeline runs by outcome",
		},
		[]string{"dataset", "status"}, // "ok" / "failed"
	)

	SitesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sadcompare",
			Name:      "sites_processed_total",
			Help:      "Sites reduced to a winning model",
		},
		[]string{"dataset"},
	)

	WinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sadcompare",
			Name:      "wins_total",
			Help:      "Winning model selections",
		},
		[]string{"model"},
	)

	DatasetDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sadcompare",
			Name:      "dataset_duration_seconds",
			Help:      "Import, reduce and store duration per dataset",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"dataset"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sadcompare",
			Name:      "batch_duration_seconds",
			Help:      "Full batch duration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(DatasetRunsTotal)
	prometheus.MustRegister(SitesProcessedTotal)
	prometheus.MustRegister(WinsTotal)
	prometheus.MustRegister(DatasetDuration)
	prometheus.MustRegister(BatchDuration)
}
