package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlidb_answers_total",
			Help: "Total number of answer pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlidb_validation_rejections_total",
			Help: "Total number of candidate SQL rejections by reason code.",
		},
		[]string{"code"},
	)
	executionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlidb_execution_failures_total",
			Help: "Total number of query execution failures by kind.",
		},
		[]string{"kind"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlidb_query_duration_seconds",
			Help:    "Accepted query execution latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlidb_query_rows",
			Help:    "Rows returned per accepted query, after the row cap.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500, 1000},
		},
	)
	truncatedResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlidb_truncated_results_total",
			Help: "Total number of query results truncated at the row cap.",
		},
	)
	schemaCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlidb_schema_cache_total",
			Help: "Schema description cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		answersTotal,
		validationRejectionsTotal,
		executionFailuresTotal,
		queryDurationSeconds,
		queryRows,
		truncatedResultsTotal,
		schemaCacheTotal,
	)
}

func ObserveAnswerOutcome(outcome string) {
	answersTotal.WithLabelValues(outcome).Inc()
}

func ObserveValidationRejection(code string) {
	validationRejectionsTotal.WithLabelValues(code).Inc()
}

func ObserveExecutionFailure(kind string) {
	executionFailuresTotal.WithLabelValues(kind).Inc()
}

func ObserveQueryResult(rows int, truncated bool, elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
	queryRows.Observe(float64(rows))
	if truncated {
		truncatedResultsTotal.Inc()
	}
}

func ObserveSchemaCache(hit bool) {
	if hit {
		schemaCacheTotal.WithLabelValues("hit").Inc()
	} else {
		schemaCacheTotal.WithLabelValues("miss").Inc()
	}
}
