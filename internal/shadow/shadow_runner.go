package shadow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/coinjoin-engine/internal/bloom"
	"github.com/rawblock/coinjoin-engine/internal/metrics"
	"github.com/rawblock/coinjoin-engine/internal/pda"
)

// DualPathAuditor scores synthetic transfers against the bloom
// classification (pda.IsReal) and measures how often the bloom fallback's
// real/fake classification of a (hop, split) position diverges from the
// composition the transfer was configured with. No production transfer
// state is ever read here — every position this package scores is
// synthetic, generated purely from a config and challenge.
//
// The divergence being watched is the collision risk internal/bloom's own
// doc comments call out: a 128-bit filter wrapping hop/split positions
// mod 128 can mark a position fake that the canonical split-count ordering
// designated real, or vice versa. That reclassification never affects a
// genuinely real split's validity (ValidateStealthPDA's crypto path still
// accepts it) but it does affect which splits executeHopSplits treats as
// fund-bearing, so sustained drift here is an operational signal, not
// noise.
type DualPathAuditor struct {
	pool       *pgxpool.Pool
	evaluator  *Evaluator
	snapshotID int64
}

// DriftResult captures one synthetic audit run's divergence between the
// configured split composition and the bloom filter's actual
// classification of those same positions.
type DriftResult struct {
	SnapshotID      int64     `json:"snapshotId"`
	Positions       int       `json:"positions"`
	SwallowedReal   int       `json:"swallowedReal"`
	LeakedFake      int       `json:"leakedFake"`
	AdjustedRandIdx float64   `json:"adjustedRandIndex"`
	VariationOfInfo float64   `json:"variationOfInformation"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewDualPathAuditor creates an auditor that persists its findings under
// the given snapshot ID, grouping related audit runs (e.g. one snapshot
// per deployed bloom generation scheme) into a single comparable cohort.
func NewDualPathAuditor(pool *pgxpool.Pool, snapshotID int64) *DualPathAuditor {
	return &DualPathAuditor{
		pool:       pool,
		evaluator:  NewEvaluator(),
		snapshotID: snapshotID,
	}
}

// RunSyntheticAudit builds the designated (ground-truth) real/fake
// partition for cfg's split positions across all hops — the canonical
// ordering where each hop's first RealSplits indices are real and the
// remaining FakeSplits are decoys — generates the bloom filter for
// (cfg, challenge), and compares it against the filter's own classification
// of the same positions (IsReal). It persists the comparison to
// validator_drift and returns it.
func (a *DualPathAuditor) RunSyntheticAudit(ctx context.Context, cfg bloom.Config, challenge [32]byte) (*DriftResult, error) {
	filter := bloom.Generate(cfg, challenge)

	groundTruth := make(map[string]int)
	observed := make(map[string]int)

	result := &DriftResult{SnapshotID: a.snapshotID, CreatedAt: time.Now()}

	numSplits := cfg.RealSplits + cfg.FakeSplits
	for hop := 0; hop < cfg.NumHops; hop++ {
		for split := 0; split < numSplits; split++ {
			key := fmt.Sprintf("%d:%d", hop, split)

			designatedReal := split < cfg.RealSplits
			observedReal := pda.IsReal(filter, uint8(hop), uint8(split))

			groundTruth[key] = labelFor(designatedReal)
			observed[key] = labelFor(observedReal)

			switch {
			case designatedReal && !observedReal:
				result.SwallowedReal++
			case !designatedReal && observedReal:
				result.LeakedFake++
			}
			result.Positions++
		}
	}

	result.AdjustedRandIdx = a.evaluator.AdjustedRandIndex(groundTruth, observed)
	result.VariationOfInfo = a.evaluator.VariationOfInformation(groundTruth, observed)
	metrics.SetValidatorDrift(result.SwallowedReal, result.LeakedFake)

	if result.SwallowedReal+result.LeakedFake > 0 {
		log.Printf("[shadow] validator drift: snapshot=%d positions=%d swallowed_real=%d leaked_fake=%d ari=%.4f vi=%.4f",
			a.snapshotID, result.Positions, result.SwallowedReal, result.LeakedFake, result.AdjustedRandIdx, result.VariationOfInfo)
	}

	if a.pool != nil {
		if err := a.persistDriftResult(ctx, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func labelFor(real bool) int {
	if real {
		return 1
	}
	return 0
}

// persistDriftResult writes one audit run to validator_drift.
func (a *DualPathAuditor) persistDriftResult(ctx context.Context, result *DriftResult) error {
	sql := `INSERT INTO validator_drift
		(snapshot_id, positions, swallowed_real, leaked_fake, adjusted_rand_index, variation_of_information, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := a.pool.Exec(ctx, sql,
		result.SnapshotID,
		result.Positions,
		result.SwallowedReal,
		result.LeakedFake,
		result.AdjustedRandIdx,
		result.VariationOfInfo,
		result.CreatedAt,
	)
	return err
}

// GenerateDriftReport summarizes every audit run recorded under this
// auditor's snapshot: the total reclassification count and the mean ARI,
// the two numbers an operator watches to decide whether the bloom
// generation scheme needs a wider filter.
func (a *DualPathAuditor) GenerateDriftReport(ctx context.Context) (totalRuns int, totalDivergences int, avgAdjustedRandIdx float64, err error) {
	sql := `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(swallowed_real + leaked_fake), 0) AS divergences,
		COALESCE(AVG(adjusted_rand_index), 1) AS avg_ari
	FROM validator_drift WHERE snapshot_id = $1`

	row := a.pool.QueryRow(ctx, sql, a.snapshotID)
	err = row.Scan(&totalRuns, &totalDivergences, &avgAdjustedRandIdx)
	return
}
