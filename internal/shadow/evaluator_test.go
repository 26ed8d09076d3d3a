package shadow

import (
	"math"
	"testing"
)

func TestAdjustedRandIndexPerfectAgreement(t *testing.T) {
	a := map[string]int{"0:0": 0, "0:1": 0, "0:2": 1, "0:3": 1}
	b := map[string]int{"0:0": 0, "0:1": 0, "0:2": 1, "0:3": 1}

	ari := NewEvaluator().AdjustedRandIndex(a, b)
	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("expected ARI=1.0 for identical partitions, got %f", ari)
	}
}

func TestAdjustedRandIndexDissimilarPartitions(t *testing.T) {
	a := map[string]int{"0:0": 0, "0:1": 0, "0:2": 0, "0:3": 1, "0:4": 1, "0:5": 1}
	b := map[string]int{"0:0": 0, "0:1": 1, "0:2": 0, "0:3": 1, "0:4": 0, "0:5": 1}

	ari := NewEvaluator().AdjustedRandIndex(a, b)
	if ari > 0.5 {
		t.Errorf("expected ARI near 0 for dissimilar partitions, got %f", ari)
	}
}

func TestVariationOfInformationIdentical(t *testing.T) {
	a := map[string]int{"0:0": 0, "0:1": 0, "0:2": 1, "0:3": 1}
	b := map[string]int{"0:0": 0, "0:1": 0, "0:2": 1, "0:3": 1}

	vi := NewEvaluator().VariationOfInformation(a, b)
	if vi > 0.01 {
		t.Errorf("expected VI=0 for identical partitions, got %f", vi)
	}
}

func TestVariationOfInformationDiverges(t *testing.T) {
	a := map[string]int{"0:0": 0, "0:1": 0, "0:2": 0, "0:3": 1, "0:4": 1, "0:5": 1}
	b := map[string]int{"0:0": 0, "0:1": 1, "0:2": 0, "0:3": 1, "0:4": 0, "0:5": 1}

	vi := NewEvaluator().VariationOfInformation(a, b)
	if vi < 0.1 {
		t.Errorf("expected VI > 0 for different partitions, got %f", vi)
	}
}

func TestAlignLabelsIgnoresKeysMissingFromEitherSide(t *testing.T) {
	a := map[string]int{"0:0": 1, "0:1": 0, "0:2": 1}
	b := map[string]int{"0:0": 1, "0:1": 0}

	la, lb := alignLabels(a, b)
	if len(la) != 2 || len(lb) != 2 {
		t.Fatalf("expected only the 2 shared keys to align, got %d/%d", len(la), len(lb))
	}
}
