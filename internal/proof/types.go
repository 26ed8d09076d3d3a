// Package proof defines the abstract verifier contracts of §4.3 —
// range, aggregate, and Merkle verification — plus one concrete reference
// implementation. The proving system itself is an external dependency left
// deliberately opaque; ReferenceVerifier exists so the contract is
// exercised end-to-end by this repository, not so it is the last word on
// soundness.
package proof

import (
	"context"

	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
)

// BlobSize is the fixed width of every proof blob on the wire (§6.2).
const BlobSize = 128

// AggregateSignature is the two magic bytes every aggregate proof must
// begin with.
var AggregateSignature = [2]byte{0x50, 0x53}

// Blob is a 128-byte opaque proof.
type Blob [BlobSize]byte

// Commitment is a 32-byte serialized field element.
type Commitment [32]byte

// Challenge is the 32-byte Fiat-Shamir challenge binding a proof to one transfer.
type Challenge [32]byte

// CUBudget is a synthetic per-call compute-unit counter. It stands in for
// the runtime's real instruction metering (§5): each verifier call
// Spend()s an estimated cost and returns ComputeBudgetExhausted once the
// ceiling trips, instead of actually executing inside an SBF VM.
type CUBudget struct {
	Remaining int
}

// NewCUBudget returns a budget with the given ceiling.
func NewCUBudget(total int) *CUBudget {
	return &CUBudget{Remaining: total}
}

// Spend deducts cost and returns ErrComputeBudgetExhausted if that would
// drive the remaining budget negative — the call that would have exceeded
// the ceiling never partially executes.
func (b *CUBudget) Spend(cost int) error {
	if b == nil {
		return nil // unmetered caller (e.g. a unit test) — budget disabled
	}
	if b.Remaining < cost {
		return coreerrors.ErrComputeBudgetExhausted
	}
	b.Remaining -= cost
	return nil
}

// Verifier is the abstract contract a proving-system integration must
// satisfy. All three methods must be pure, deterministic, and obey the
// supplied CUBudget.
type Verifier interface {
	VerifyRange(ctx context.Context, budget *CUBudget, rangeProof Blob, commitments [8]Commitment, challenge Challenge) error
	VerifyAggregate(ctx context.Context, budget *CUBudget, aggProof Blob, challenge Challenge, publicInputs AggregatePublicInputs) error
	VerifyMerkle(ctx context.Context, budget *CUBudget, leaf [32]byte, root [32]byte, path [][32]byte, directions []bool) error
}

// AggregatePublicInputs carries the per-hop values the aggregate proof
// must be shown consistent with: the declared bloom filter and the
// preceding hop's output commitments.
type AggregatePublicInputs struct {
	BloomFilter      [16]byte
	PrevCommitments  [8]Commitment
}
