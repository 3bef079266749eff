package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazer_queries_total",
			Help: "Total number of statements executed, by data source and outcome.",
		},
		[]string{"data_source", "status"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blazer_query_duration_seconds",
			Help:    "Statement execution latency, excluding cache and audit bookkeeping.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"data_source"},
	)
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazer_cache_hits_total",
			Help: "Total number of result cache hits, by namespace.",
		},
		[]string{"namespace"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazer_cache_misses_total",
			Help: "Total number of result cache misses, by namespace.",
		},
		[]string{"namespace"},
	)
	cacheWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blazer_cache_write_failures_total",
			Help: "Total number of failed cache writes (absorbed, never fatal).",
		},
	)
	auditFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blazer_audit_write_failures_total",
			Help: "Total number of failed audit writes (absorbed, never fatal).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheWriteFailuresTotal,
		auditFailuresTotal,
	)
}

// ObserveQuery records one executed statement. status is ok, error, or
// timeout.
func ObserveQuery(dataSourceID, status string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(dataSourceID, status).Inc()
	queryDurationSeconds.WithLabelValues(dataSourceID).Observe(elapsed.Seconds())
}

func RecordCacheHit(namespace string) {
	cacheHitsTotal.WithLabelValues(namespace).Inc()
}

func RecordCacheMiss(namespace string) {
	cacheMissesTotal.WithLabelValues(namespace).Inc()
}

func RecordCacheWriteFailure() {
	cacheWriteFailuresTotal.Inc()
}

func RecordAuditFailure() {
	auditFailuresTotal.Inc()
}
