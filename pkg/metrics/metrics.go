// Package metrics defines the Prometheus collectors for retrieval runs and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcome labels for QueriesTotal.
const (
	StatusRanked    = "ranked"
	StatusMalformed = "malformed"
	StatusFailed    = "failed"
)

type Metrics struct {
	QueriesTotal          *prometheus.CounterVec
	QueryDuration         prometheus.Histogram
	DocumentsScoredTotal  prometheus.Counter
	DocumentsSkippedTotal prometheus.Counter
	TermVectorCacheHits   prometheus.Counter
	TermVectorCacheMisses prometheus.Counter
	ResultsEmittedTotal   prometheus.Counter
	ResultCacheHits       prometheus.Counter
	ResultCacheMisses     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qlm_queries_total",
				Help: "Queries processed by outcome (ranked, malformed, failed).",
			},
			[]string{"status"},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qlm_query_duration_seconds",
				Help:    "Time to score and rank one query.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		DocumentsScoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_documents_scored_total",
				Help: "Document scores computed across all queries.",
			},
		),
		DocumentsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_documents_skipped_total",
				Help: "Documents skipped because their content could not be read.",
			},
		),
		TermVectorCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_termvector_cache_hits_total",
				Help: "Term vector lookups served from the cache.",
			},
		),
		TermVectorCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_termvector_cache_misses_total",
				Help: "Term vector lookups that required extraction.",
			},
		),
		ResultsEmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_results_emitted_total",
				Help: "Ranked result records written to sinks.",
			},
		),
		ResultCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_result_cache_hits_total",
				Help: "Ranked lists served from the result cache.",
			},
		),
		ResultCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qlm_result_cache_misses_total",
				Help: "Ranked-list cache misses.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.QueriesTotal,
			m.QueryDuration,
			m.DocumentsScoredTotal,
			m.DocumentsSkippedTotal,
			m.TermVectorCacheHits,
			m.TermVectorCacheMisses,
			m.ResultsEmittedTotal,
			m.ResultCacheHits,
			m.ResultCacheMisses,
		)
	}
	return m
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
