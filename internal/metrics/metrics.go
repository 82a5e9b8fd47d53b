// Package metrics provides Prometheus metrics for search4all
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes
const (
	OutcomeGenerated = "generated"
	OutcomeReplayed  = "replayed"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics for search4all
type Metrics struct {
	// Query metrics
	QueriesTotal    *prometheus.CounterVec
	QueriesInFlight prometheus.Gauge
	AnswerDuration  prometheus.Histogram
	HistoryReuses   prometheus.Counter

	// Search metrics
	SearchDuration *prometheus.HistogramVec
	SearchFailures *prometheus.CounterVec

	// Generation metrics
	GenerationErrors *prometheus.CounterVec

	// Store metrics
	StoreErrors *prometheus.CounterVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search4all_queries_total",
			Help: "Total number of queries by outcome",
		},
		[]string{"outcome"},
	)

	m.QueriesInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "search4all_queries_in_flight",
			Help: "Number of answers currently being streamed",
		},
	)

	m.AnswerDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search4all_answer_duration_seconds",
			Help:    "Time from request to the end of the answer stream",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	m.HistoryReuses = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "search4all_history_reuses_total",
			Help: "Follow-up queries answered from the previous turn's search results",
		},
	)

	m.SearchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search4all_search_duration_seconds",
			Help:    "Duration of web search calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	m.SearchFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search4all_search_failures_total",
			Help: "Web searches that failed or timed out and were replaced by empty contexts",
		},
		[]string{"backend"},
	)

	m.GenerationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search4all_generation_errors_total",
			Help: "LLM failures by stage",
		},
		[]string{"stage"},
	)

	m.StoreErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search4all_store_errors_total",
			Help: "Session store failures by operation",
		},
		[]string{"operation"},
	)

	return m
}

// ObserveSearch records one search call
func (m *Metrics) ObserveSearch(backend string, start time.Time, err error) {
	m.SearchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		m.SearchFailures.WithLabelValues(backend).Inc()
	}
}
