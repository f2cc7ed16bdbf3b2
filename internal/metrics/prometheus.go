// Package metrics defines Prometheus collectors for the delivery engine
// and the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch worker metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Number of entries currently in the due-time queue",
		},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_dispatch_total",
			Help: "Total number of dispatch attempts",
		},
		[]string{"result"}, // sent, failed, stale
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_dispatch_duration_seconds",
			Help:    "Duration of SMTP submission calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Reconciliation poller metrics
var (
	ReconcilePassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_reconcile_passes_total",
			Help: "Total number of completed mailbox reconciliation passes",
		},
	)

	ReconcileAccountErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_reconcile_account_errors_total",
			Help: "Total number of per-account mailbox failures",
		},
	)

	ReconcileMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_reconcile_messages_total",
			Help: "Total number of inbound messages examined by the poller",
		},
		[]string{"result"}, // seen, untracked, unmatched, matched
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
