// Package accounting implements the lamport-conservation and rent-recovery
// math of the transfer engine: fee/reserve computation at initialize,
// per-split distribution within a hop, and the conservation check that
// guards every balance-moving transition.
package accounting

import (
	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
	"github.com/holiman/uint256"
)

// BpsDenominator is the fixed-point denominator fee_bps and reserve_bps are
// expressed against.
const BpsDenominator = 10_000

// MaxBps is the combined ceiling ReserveBps+FeeBps must not exceed.
const MaxBps = 10_000

// ComputeFees returns fee = floor(amount*feeBps/10000) and
// reserve = floor(amount*reserveBps/10000). The intermediate product
// amount*bps is computed in 256-bit arithmetic before the division: amount
// up to 2^64-1 times a bps value up to 10000 overflows a native uint64
// multiply (2^64-1 * 10000 > 2^64-1), so the wide multiply has to happen
// somewhere wider than uint64 before truncating the quotient back down.
func ComputeFees(amount uint64, feeBps, reserveBps uint16) (fee uint64, reserve uint64, err error) {
	if uint32(feeBps)+uint32(reserveBps) > MaxBps {
		return 0, 0, coreerrors.ErrInvalidConfig
	}

	fee = bpsOf(amount, feeBps)
	reserve = bpsOf(amount, reserveBps)
	return fee, reserve, nil
}

// bpsOf computes floor(amount*bps/10000) via a 256-bit intermediate
// product, narrowing back to uint64 (the result can never exceed amount,
// so the narrowing is always lossless).
func bpsOf(amount uint64, bps uint16) uint64 {
	product := new(uint256.Int).Mul(
		uint256.NewInt(amount),
		uint256.NewInt(uint64(bps)),
	)
	product.Div(product, uint256.NewInt(BpsDenominator))
	return product.Uint64()
}

// SplitAmounts divides remaining lamports evenly across realSplits
// destinations, floor-rounding each share and assigning the rounding dust
// to the last split so the sum always equals remaining exactly (§4.4,
// §4.6's "last split absorbs any rounding dust").
func SplitAmounts(remaining uint64, realSplits int) ([]uint64, error) {
	if realSplits <= 0 {
		return nil, coreerrors.ErrInvalidSplitIndex
	}
	out := make([]uint64, realSplits)
	perSplit := remaining / uint64(realSplits)
	var distributed uint64
	for i := 0; i < realSplits-1; i++ {
		out[i] = perSplit
		distributed += perSplit
	}
	out[realSplits-1] = remaining - distributed
	return out, nil
}

// CheckConservation verifies that value moved during a transition balances:
// the lamports debited from source equal the sum of amounts credited to
// destinations plus any fee retained in this step. A mismatch is never
// recoverable locally — it is always ConservationViolation, per §4.6 and
// property P5/scenario E6.
func CheckConservation(debited uint64, credited []uint64, feeRetained uint64) error {
	var sum uint64
	for _, c := range credited {
		sum += c
	}
	if sum+feeRetained != debited {
		return coreerrors.ErrConservationViolation
	}
	return nil
}

// RefundAmounts splits a refund between the owner (95%) and the protocol
// (5% retained), per §4.5's refund transition and property P8. The
// retained share absorbs rounding dust so owner+retained always equals
// total exactly.
func RefundAmounts(total uint64) (toOwner uint64, retained uint64) {
	toOwner = bpsOf(total, 9_500)
	retained = total - toOwner
	return toOwner, retained
}
