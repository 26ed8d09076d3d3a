package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordProofVerificationIncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(ProofVerifications.WithLabelValues("aggregate", "accepted"))
	RecordProofVerification("aggregate", true)
	after := testutil.ToFloat64(ProofVerifications.WithLabelValues("aggregate", "accepted"))

	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
}

func TestRecordProofVerificationLabelsRejectedSeparately(t *testing.T) {
	before := testutil.ToFloat64(ProofVerifications.WithLabelValues("range", "rejected"))
	RecordProofVerification("range", false)
	after := testutil.ToFloat64(ProofVerifications.WithLabelValues("range", "rejected"))

	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
}

func TestSetComputeBudgetRemainingSetsGauge(t *testing.T) {
	SetComputeBudgetRemaining(1234)
	if got := testutil.ToFloat64(ComputeBudgetRemaining); got != 1234 {
		t.Fatalf("gauge = %v, want 1234", got)
	}
}

func TestSetValidatorDriftSetsBothDirections(t *testing.T) {
	SetValidatorDrift(3, 5)
	if got := testutil.ToFloat64(ValidatorDrift.WithLabelValues("swallowed_real")); got != 3 {
		t.Fatalf("swallowed_real gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ValidatorDrift.WithLabelValues("leaked_fake")); got != 5 {
		t.Fatalf("leaked_fake gauge = %v, want 5", got)
	}
}

func TestObserveHopDurationDoesNotPanic(t *testing.T) {
	ObserveHopDuration("execute_hop", 2*time.Millisecond)
}
