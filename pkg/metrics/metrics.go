// Package metrics defines the Prometheus metric collectors used across the
// mapper services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the mapper.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocumentsProcessed   prometheus.Counter
	DocumentsSkipped     *prometheus.CounterVec
	HitsTotal            *prometheus.CounterVec
	HitsFiltered         prometheus.Counter
	BatchDuration        prometheus.Histogram
	LexiconTerms         *prometheus.GaugeVec
	AutosearchTotal      *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	StreamMessagesTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mapper_documents_processed_total",
				Help: "Total documents run through the matcher.",
			},
		),
		DocumentsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapper_documents_skipped_total",
				Help: "Documents skipped by reason (empty, encoding, panic).",
			},
			[]string{"reason"},
		),
		HitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapper_hits_total",
				Help: "Lexicon hits by pattern type.",
			},
			[]string{"pattern_type"},
		),
		HitsFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mapper_hits_filtered_total",
				Help: "Hits removed by the false-positive filter.",
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mapper_batch_duration_seconds",
				Help:    "Wall time spent matching one batch.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		LexiconTerms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lexicon_terms",
				Help: "Number of lexicon terms by pattern type.",
			},
			[]string{"pattern_type"},
		),
		AutosearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autosearch_requests_total",
				Help: "Autosearch queries by outcome (id, term, fallback, cached, error).",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		StreamMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_messages_total",
				Help: "Kafka messages handled by status (ok, invalid, publish_error).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsProcessed,
		m.DocumentsSkipped,
		m.HitsTotal,
		m.HitsFiltered,
		m.BatchDuration,
		m.LexiconTerms,
		m.AutosearchTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.StreamMessagesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
