// Package metrics exposes Prometheus instrumentation for the scoring
// pipeline, most importantly the degraded-extraction telemetry that lets
// operators distinguish fallback results from real backend results.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionAttempts counts attempts against the real extraction
	// backend by outcome ("success" or "failure").
	ExtractionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facerank_extraction_attempts_total",
		Help: "Extraction backend attempts by outcome.",
	}, []string{"outcome"})

	// ExtractionFallbacks counts scoring requests served by the simulated
	// fallback instead of the real backend.
	ExtractionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facerank_extraction_fallbacks_total",
		Help: "Scoring requests served by the simulated extraction fallback.",
	})

	// BackendHealthState reports the client's health view of the backend:
	// 0 healthy, 1 degraded, 2 unhealthy.
	BackendHealthState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facerank_backend_health_state",
		Help: "Extraction backend health state (0 healthy, 1 degraded, 2 unhealthy).",
	})

	// PopulationSize reports the current number of scored users.
	PopulationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facerank_population_size",
		Help: "Number of scored users in the population store.",
	})

	// ScoringDuration observes end-to-end scoring latency.
	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facerank_scoring_duration_seconds",
		Help:    "End-to-end scoring request duration.",
		Buckets: prometheus.DefBuckets,
	})

	// ScoringOutcomes counts scoring requests by terminal outcome
	// ("completed" or one of the rejection reason codes).
	ScoringOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facerank_scoring_outcomes_total",
		Help: "Scoring requests by terminal outcome.",
	}, []string{"outcome"})
)
