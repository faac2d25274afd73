// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the dining rewards engine.
var (
	// Counters.
	CyclesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_cycles_generated_total",
			Help: "Total number of monthly challenge cycles generated",
		},
		[]string{"market", "status"},
	)

	SwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_swaps_total",
			Help: "Total number of challenge item swaps",
		},
		[]string{"status"},
	)

	RedemptionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redemptions_issued_total",
			Help: "Total number of redemption tokens issued",
		},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_verifications_total",
			Help: "Total number of partner verification attempts",
		},
		[]string{"outcome"}, // 'verified', 'invalid', 'already_used', 'expired'
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge"},
	)

	// Histograms.
	EligiblePoolSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eligible_pool_size",
			Help:    "Number of eligible restaurants remaining after filtering",
			Buckets: prometheus.LinearBuckets(0, 5, 10), // 0 to 45 restaurants
		},
	)
)

// Verification outcome label values.
const (
	OutcomeVerified    = "verified"
	OutcomeInvalid     = "invalid"
	OutcomeAlreadyUsed = "already_used"
	OutcomeExpired     = "expired"
)

// RecordGeneration increments the cycle counter for a market.
func RecordGeneration(market, status string) {
	CyclesGeneratedTotal.WithLabelValues(market, status).Inc()
}

// RecordSwap increments the swap counter.
func RecordSwap(status string) {
	SwapsTotal.WithLabelValues(status).Inc()
}

// RecordVerification increments the verification counter for an outcome.
func RecordVerification(outcome string) {
	VerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordBadgeAwarded increments the badge counter.
func RecordBadgeAwarded(badge string) {
	BadgesAwardedTotal.WithLabelValues(badge).Inc()
}
