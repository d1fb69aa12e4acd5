package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_sweep_runs_total",
			Help: "Total number of expired-upload sweeps by status.",
		},
		[]string{"status"},
	)
	sweepTablesEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_sweep_tables_evicted_total",
			Help: "Total number of expired uploads reported by sweeps.",
		},
	)
	sweepDocumentsRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_sweep_documents_removed_total",
			Help: "Total number of archived documents deleted by sweeps.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sweepRunsTotal,
		sweepTablesEvictedTotal,
		sweepDocumentsRemovedTotal,
	)
}
