// Package metrics holds the process-wide Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Debits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumenart_ledger_debits_total",
		Help: "Successful credit debits.",
	})
	InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumenart_ledger_insufficient_funds_total",
		Help: "Submissions rejected for insufficient balance.",
	})
	RefundsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumenart_ledger_refunds_total",
		Help: "Compensating refunds for failed generation tasks.",
	})
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumenart_generation_completed_total",
		Help: "Generation tasks that reached the completed state.",
	})
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumenart_generation_failed_total",
		Help: "Generation tasks that reached the failed state.",
	})
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lumenart_generation_duration_seconds",
		Help:    "Wall time of the synthesize-and-persist path.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lumenart_progress_streams_active",
		Help: "Open progress event streams.",
	})
)
