// Package metrics exposes Prometheus collectors for balance aggregation,
// eligibility evaluation and reward claims.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey_gate",
		Subsystem: "balance_cache",
		Name:      "lookups_total",
		Help:      "Balance snapshot cache lookups by result",
	}, []string{"result"})

	Aggregations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey_gate",
		Subsystem: "aggregator",
		Name:      "snapshots_total",
		Help:      "Wallet balance aggregations by outcome (fresh, stale, failed)",
	}, []string{"outcome"})

	AggregationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "survey_gate",
		Subsystem: "aggregator",
		Name:      "duration_seconds",
		Help:      "Time spent fetching price and balances for one wallet",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	TokenFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey_gate",
		Subsystem: "aggregator",
		Name:      "token_fetch_failures_total",
		Help:      "Token balance fetches counted as zero after a failure",
	}, []string{"symbol"})

	RPCEndpointUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "survey_gate",
		Subsystem: "rpc",
		Name:      "endpoint_up",
		Help:      "Whether an RPC endpoint is in rotation (1) or cooling down (0)",
	}, []string{"endpoint"})

	RewardClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey_gate",
		Subsystem: "reward",
		Name:      "claims_total",
		Help:      "Reward claim attempts by outcome (accepted, exhausted, error)",
	}, []string{"outcome"})

	EligibleReach = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "survey_gate",
		Subsystem: "eligibility",
		Name:      "reach_users",
		Help:      "Eligible user counts returned by reach estimation",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})
)
