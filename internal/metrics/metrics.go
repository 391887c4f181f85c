// Package metrics holds the Prometheus collectors shared across crev.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation lifecycle metrics, labelled by operation name (review, run).
var (
	OperationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crev_operations_started_total",
		Help: "Operations moved to pending",
	}, []string{"operation"})

	OperationsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crev_operations_completed_total",
		Help: "Accepted operation completions by outcome",
	}, []string{"operation", "outcome"})

	StaleResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crev_stale_responses_total",
		Help: "Completions discarded by the token guard, by reason (superseded, not_pending, no_token)",
	}, []string{"operation", "reason"})
)

// Service call metrics.
var (
	ServiceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crev_service_request_duration_seconds",
		Help:    "Latency of calls to the review/run service",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint", "status"})

	DecorationsRendered = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crev_decorations_rendered",
		Help:    "Decorations produced per recomputation",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	})
)

// WebSocket session metrics.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "crev_ws_sessions_active",
	Help: "Open websocket review sessions",
})
