// Package metrics provides Prometheus metrics for delivery reconciliation and confirmations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconciliationRunsTotal tracks job runs by outcome
	ReconciliationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purchasing",
			Subsystem: "delivery_reconciliation",
			Name:      "runs_total",
			Help:      "Total number of delivery reconciliation runs by status",
		},
		[]string{"status"},
	)

	// ReconciliationRunDuration tracks job run duration in seconds
	ReconciliationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "purchasing",
			Subsystem: "delivery_reconciliation",
			Name:      "run_duration_seconds",
			Help:      "Duration of delivery reconciliation runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// ReconciliationItemsTotal tracks processed items by kind and outcome
	ReconciliationItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purchasing",
			Subsystem: "delivery_reconciliation",
			Name:      "items_total",
			Help:      "Total number of overdue deliveries processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// NotificationsTotal tracks notification deliveries by channel and status
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purchasing",
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total number of notifications by channel and status",
		},
		[]string{"channel", "status"},
	)

	// ConfirmationsTotal tracks confirmation endpoint requests by action and outcome
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purchasing",
			Subsystem: "confirmation",
			Name:      "requests_total",
			Help:      "Total number of confirmation link requests by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// RateLimitHits tracks requests rejected by the rate limiter
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "purchasing",
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)
)

// RecordRun records a reconciliation run metric
func RecordRun(status string, durationSeconds float64) {
	ReconciliationRunsTotal.WithLabelValues(status).Inc()
	ReconciliationRunDuration.Observe(durationSeconds)
}

// RecordItem records one processed overdue delivery
func RecordItem(kind, outcome string) {
	ReconciliationItemsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordNotification records one notification attempt
func RecordNotification(channel, status string) {
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordConfirmation records a confirmation endpoint request
func RecordConfirmation(action, outcome string) {
	ConfirmationsTotal.WithLabelValues(action, outcome).Inc()
}
