package shadow

import (
	"math"
	"sort"
)

// Evaluator provides partition-comparison metrics (ARI, VI) for measuring
// how closely two classifications of the same item set agree. DualPathAuditor
// uses it to score how far the bloom fallback's real/fake classification of
// a synthetic transfer's split positions drifts from the composition the
// transfer was configured with.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// AdjustedRandIndex computes the ARI between two label partitions of the
// same item set, keyed by an arbitrary string identifier so callers can
// compare labelings that don't share an implicit ordering (map iteration
// order is not it).
//
// ARI = (Index - ExpectedIndex) / (MaxIndex - ExpectedIndex), built from the
// pairwise contingency table between the two partitions. Returns a value in
// [-1, 1]; 1 is perfect agreement, 0 is what random labeling would produce.
func (e *Evaluator) AdjustedRandIndex(a, b map[string]int) float64 {
	la, lb := alignLabels(a, b)
	return adjustedRandIndex(la, lb)
}

// VariationOfInformation computes the VI distance between two partitions:
// VI(A,B) = H(A|B) + H(B|A), the sum of the two conditional entropies.
// 0 means identical partitions; it grows without bound as they diverge.
func (e *Evaluator) VariationOfInformation(a, b map[string]int) float64 {
	la, lb := alignLabels(a, b)
	return variationOfInformation(la, lb)
}

// Entropy calculates the Shannon entropy of a partition given per-cluster
// item counts.
func (e *Evaluator) Entropy(clusterCounts map[int]int, total int) float64 {
	var ent float64
	for _, count := range clusterCounts {
		p := float64(count) / float64(total)
		ent -= p * math.Log2(p)
	}
	return ent
}

// alignLabels extracts the keys present in both maps, in sorted order, so
// the pairwise formulas below can assume index i in both returned slices
// refers to the same item.
func alignLabels(a, b map[string]int) ([]int, []int) {
	keys := make([]string, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	la := make([]int, len(keys))
	lb := make([]int, len(keys))
	for i, k := range keys {
		la[i] = a[k]
		lb[i] = b[k]
	}
	return la, lb
}

// adjustedRandIndex and variationOfInformation below take two equal-length
// label slices, index-aligned by the caller, and apply the standard
// pairwise-counting contingency-table formulas.
func adjustedRandIndex(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}

	predLabels := uniqueLabels(predicted)
	gtLabels := uniqueLabels(groundTruth)

	predMap := make(map[int]int, len(predLabels))
	for i, l := range predLabels {
		predMap[l] = i
	}
	gtMap := make(map[int]int, len(gtLabels))
	for i, l := range gtLabels {
		gtMap[l] = i
	}

	nij := make([][]int, len(predLabels))
	for i := range nij {
		nij[i] = make([]int, len(gtLabels))
	}
	for k := 0; k < n; k++ {
		nij[predMap[predicted[k]]][gtMap[groundTruth[k]]]++
	}

	rowSums := make([]int, len(predLabels))
	colSums := make([]int, len(gtLabels))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}
	sumAiC2 := 0.0
	for _, a := range rowSums {
		sumAiC2 += comb2(a)
	}
	sumBjC2 := 0.0
	for _, b := range colSums {
		sumBjC2 += comb2(b)
	}

	nC2 := comb2(n)
	if nC2 == 0 {
		return 0.0
	}

	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0
	}
	return (sumNijC2 - expectedIndex) / denominator
}

func variationOfInformation(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}
	nf := float64(n)

	predLabels := uniqueLabels(predicted)
	gtLabels := uniqueLabels(groundTruth)

	predMap := make(map[int]int, len(predLabels))
	for i, l := range predLabels {
		predMap[l] = i
	}
	gtMap := make(map[int]int, len(gtLabels))
	for i, l := range gtLabels {
		gtMap[l] = i
	}

	nij := make([][]int, len(predLabels))
	for i := range nij {
		nij[i] = make([]int, len(gtLabels))
	}
	for k := 0; k < n; k++ {
		nij[predMap[predicted[k]]][gtMap[groundTruth[k]]]++
	}

	rowSums := make([]int, len(predLabels))
	colSums := make([]int, len(gtLabels))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}

	hAgivenB := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && colSums[j] > 0 {
				pij := float64(nij[i][j]) / nf
				hAgivenB -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
		}
	}

	hBgivenA := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] > 0 && rowSums[i] > 0 {
				pij := float64(nij[i][j]) / nf
				hBgivenA -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}

	return hAgivenB + hBgivenA
}

func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}

func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var result []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			result = append(result, l)
		}
	}
	return result
}
