// Package observability provides Prometheus metrics for the enhancement pipeline.
//
// Metrics are registered against an injected prometheus.Registerer so tests
// can use an isolated registry. The server exposes them on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "promptboost"

// Outcome label values for RequestsTotal.
const (
	OutcomeGenerated = "generated"
	OutcomeCacheHit  = "cache_hit"
	OutcomeBypassed  = "bypassed"
	OutcomeDegraded  = "degraded"
	OutcomeError     = "error"
)

// Metrics holds all pipeline metrics.
type Metrics struct {
	// RequestsTotal counts orchestrator runs by terminal outcome.
	// Labels: outcome (generated, cache_hit, bypassed, degraded, error)
	RequestsTotal *prometheus.CounterVec

	// GenerationCallsTotal counts gateway calls.
	// Labels: result (success, error)
	GenerationCallsTotal *prometheus.CounterVec

	QualityRetriesTotal      prometheus.Counter
	QualityGateFailuresTotal prometheus.Counter
	CacheConflictsTotal      prometheus.Counter

	// FeedbackTotal counts feedback calls.
	// Labels: action (accepted, rejected), result (success, warning, conflict, error)
	FeedbackTotal *prometheus.CounterVec

	EnhanceDurationSeconds prometheus.Histogram
	QualityScore           prometheus.Histogram
}

// NewMetrics creates and registers all metrics with reg.
// Panics on duplicate registration, like promauto.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Enhancement requests by outcome",
			},
			[]string{"outcome"},
		),
		GenerationCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "generation_calls_total",
				Help:      "Generation gateway calls by result",
			},
			[]string{"result"},
		),
		QualityRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "quality_retries_total",
			Help:      "Regenerations triggered by a low quality score",
		}),
		QualityGateFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "quality_gate_failures_total",
			Help:      "Classifier errors that were failed open",
		}),
		CacheConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_conflicts_total",
			Help:      "Concurrent cache inserts resolved by re-reading the winner",
		}),
		FeedbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "feedback_total",
				Help:      "Feedback calls by action and result",
			},
			[]string{"action", "result"},
		),
		EnhanceDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "enhance_duration_seconds",
			Help:      "Orchestrator run duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		QualityScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "quality_score",
			Help:      "Classifier probability per generated candidate",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// NewNopMetrics returns metrics registered against a throwaway registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
