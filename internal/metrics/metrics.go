// Package metrics exposes the engine's Prometheus collectors: hop
// execution latency, proof-verification outcomes, and remaining compute
// budget. Every collector is registered at package init via promauto, so
// importing this package for its side effects is enough to make it show
// up on the handler this package also exposes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HopDuration tracks wall-clock time per entry-point operation, so a
	// hop that starts eating into its compute budget shows up as a
	// latency regression before it starts rejecting with
	// ErrComputeBudgetExhausted.
	HopDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinjoin_engine_hop_duration_seconds",
		Help:    "Wall-clock duration of a transfer entry-point operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// ProofVerifications counts every aggregate/range/governance/merkle
	// verification attempt this engine makes, split by outcome.
	ProofVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinjoin_engine_proof_verifications_total",
		Help: "Proof verification attempts, labeled by proof type and outcome.",
	}, []string{"proof_type", "result"})

	// ComputeBudgetRemaining reports the compute-unit headroom left in the
	// most recently processed hop, so an operator can see a transfer
	// config creeping toward MinComputeUnitFloor before it starts failing.
	ComputeBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinjoin_engine_compute_budget_remaining",
		Help: "Compute units left after the most recently processed hop.",
	})

	// ValidatorDrift reports the shadow auditor's most recent synthetic
	// reclassification count (internal/shadow.DualPathAuditor), labeled by
	// whether a real split was swallowed into the fake classification or
	// a fake one leaked into the real one.
	ValidatorDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coinjoin_engine_validator_drift_positions",
		Help: "Most recent synthetic audit's reclassified split-position count.",
	}, []string{"direction"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHopDuration records one operation's wall-clock duration.
func ObserveHopDuration(op string, d time.Duration) {
	HopDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordProofVerification records one verification attempt's outcome.
func RecordProofVerification(proofType string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	ProofVerifications.WithLabelValues(proofType, result).Inc()
}

// SetComputeBudgetRemaining updates the compute-budget gauge.
func SetComputeBudgetRemaining(units uint32) {
	ComputeBudgetRemaining.Set(float64(units))
}

// SetValidatorDrift updates the validator-drift gauges from one audit run.
func SetValidatorDrift(swallowedReal, leakedFake int) {
	ValidatorDrift.WithLabelValues("swallowed_real").Set(float64(swallowedReal))
	ValidatorDrift.WithLabelValues("leaked_fake").Set(float64(leakedFake))
}
