package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_applied_total",
		Help: "Total number of ledger operations applied",
	}, []string{"type", "source"})

	OperationsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_skipped_total",
		Help: "Total number of duplicate source events skipped by idempotency check",
	}, []string{"type"})

	InvariantRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_invariant_rejections_total",
		Help: "Total number of mutations rejected to protect balance invariants",
	}, []string{"reason"})

	ReservationUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservation_units_total",
		Help: "Total units reserved, released and reconciled against orders",
	}, []string{"action"})

	IssueBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_issue_batch_latency_seconds",
		Help:    "Latency of issue-from-order batches",
		Buckets: prometheus.DefBuckets,
	})

	TransferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_transfer_latency_seconds",
		Help:    "Latency of transfer operations",
		Buckets: prometheus.DefBuckets,
	})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_events_consumed_total",
		Help: "Total order lifecycle events consumed by the worker",
	}, []string{"type", "outcome"})

	ReportCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_report_cache_total",
		Help: "Summary report cache lookups",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
