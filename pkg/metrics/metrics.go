package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Diagnosis engine
	DiagnosisRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txfix",
		Subsystem: "diagnosis",
		Name:      "runs_total",
		Help:      "Diagnosis runs by outcome and verdict severity",
	}, []string{"outcome", "severity"})

	DiagnosisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txfix",
		Subsystem: "diagnosis",
		Name:      "duration_seconds",
		Help:      "Wall time of a diagnosis run including data fetch",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// Data provider
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txfix",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Data provider requests by method and status",
	}, []string{"method", "status"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txfix",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Data provider request latency",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})

	ProviderRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txfix",
		Subsystem: "provider",
		Name:      "rate_limit_waits_total",
		Help:      "Requests delayed by the client-side rate limiter",
	})

	// PSBT builder
	PsbtBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txfix",
		Subsystem: "psbt",
		Name:      "builds_total",
		Help:      "Fee-bump PSBT builds by method and outcome",
	}, []string{"method", "outcome"})
)
