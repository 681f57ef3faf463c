// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Deployments counts finished deploy flows by template and result
	// (confirmed, rejected, reverted, timeout, event_missing, error).
	Deployments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w3deploy_deployments_total",
			Help: "Deploy flows by template and result",
		},
		[]string{"template", "result"},
	)

	ReceiptPollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w3deploy_receipt_poll_attempts_total",
			Help: "eth_getTransactionReceipt polls by resulting state",
		},
		[]string{"state"},
	)

	RemoteSync = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w3deploy_remote_sync_total",
			Help: "Remote record pushes and pulls by operation and result",
		},
		[]string{"op", "result"},
	)

	ReferralAttributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w3deploy_referral_attributions_total",
			Help: "Referral attribution attempts by result",
		},
		[]string{"result"},
	)

	RPCProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w3deploy_rpc_probes_total",
			Help: "eth_blockNumber probes made while picking an endpoint, by result",
		},
		[]string{"result"},
	)

	PriceCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w3deploy_price_cache_total",
			Help: "Price lookups by cache outcome (hit, miss)",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "w3deploy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Result labels shared by the counters above.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
