package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	federatedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_federated_queries_total",
			Help: "Total number of federated query executions by engine and outcome.",
		},
		[]string{"engine", "outcome"},
	)
	federatedQueryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablechat_federated_query_duration_ms",
			Help:    "Federated query latency, materialization included, in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"engine"},
	)
	federatedRowsLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_federated_rows_loaded_total",
			Help: "Total number of rows materialized into transient engines.",
		},
	)
	federatedTablesLoadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_federated_tables_loaded_total",
			Help: "Total number of tables materialized into transient engines by origin.",
		},
		[]string{"origin"},
	)
	ephemeralTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablechat_ephemeral_tables",
			Help: "Current count of registered ephemeral tables.",
		},
	)
	ingestedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_ingested_documents_total",
			Help: "Total number of uploaded documents by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
	ingestedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_ingested_rows_total",
			Help: "Total number of rows parsed from uploaded documents.",
		},
	)
	completionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_completion_requests_total",
			Help: "Total number of text-completion requests by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)
	completionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablechat_completion_latency_ms",
			Help:    "Text-completion latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"purpose"},
	)
)

func init() {
	prometheus.MustRegister(
		federatedQueriesTotal,
		federatedQueryDurationMs,
		federatedRowsLoadedTotal,
		federatedTablesLoadedTotal,
		ephemeralTables,
		ingestedDocumentsTotal,
		ingestedRowsTotal,
		completionRequestsTotal,
		completionLatencyMs,
	)
}

func ObserveFederatedQuery(engine, outcome string, persistentCount, ephemeralCount, rowsLoaded int, elapsed time.Duration) {
	federatedQueriesTotal.WithLabelValues(engine, outcome).Inc()
	federatedQueryDurationMs.WithLabelValues(engine).Observe(float64(elapsed.Milliseconds()))
	if rowsLoaded > 0 {
		federatedRowsLoadedTotal.Add(float64(rowsLoaded))
	}
	if persistentCount > 0 {
		federatedTablesLoadedTotal.WithLabelValues("persistent").Add(float64(persistentCount))
	}
	if ephemeralCount > 0 {
		federatedTablesLoadedTotal.WithLabelValues("ephemeral").Add(float64(ephemeralCount))
	}
}

func SetEphemeralTables(count int) {
	if count < 0 {
		count = 0
	}
	ephemeralTables.Set(float64(count))
}

func ObserveIngestedDocument(format, outcome string, rows int) {
	ingestedDocumentsTotal.WithLabelValues(format, outcome).Inc()
	if rows > 0 {
		ingestedRowsTotal.Add(float64(rows))
	}
}

func ObserveCompletion(purpose, outcome string, elapsed time.Duration) {
	completionRequestsTotal.WithLabelValues(purpose, outcome).Inc()
	completionLatencyMs.WithLabelValues(purpose).Observe(float64(elapsed.Milliseconds()))
}
