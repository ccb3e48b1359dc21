package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_actions_executed_total",
		Help: "The total number of executed actions by kind and status",
	}, []string{"kind", "status"})

	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_action_duration_seconds",
		Help:    "Time taken to execute actions",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"kind"})

	ApprovalsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_approvals_issued_total",
		Help: "The total number of allowance approval transactions issued",
	}, []string{"spender"})

	DispatchStrategy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_dispatch_strategy_total",
		Help: "Dispatch strategy selected per batch submission",
	}, []string{"strategy"})

	TransfersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_transfers_submitted_total",
		Help: "The total number of token transfers submitted by status",
	}, []string{"status"})

	OrderIDResolution = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_orderid_resolution_total",
		Help: "Order id resolution outcomes by tier (decoded, topic, query, unresolved)",
	}, []string{"tier"})

	TokenResolution = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_token_resolution_total",
		Help: "Token resolution outcomes by tier (registry, cache, scan, address, miss)",
	}, []string{"tier"})

	GasPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_gas_price_gwei",
		Help: "Current gas price in gwei",
	})

	PaymentsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_payments_scheduled_total",
		Help: "The total number of schedules created by type (one_time, recurring)",
	}, []string{"type"})

	NonceResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_nonce_resyncs_total",
		Help: "Times the local nonce counter was advanced to the chain-reported pending count",
	})
)
