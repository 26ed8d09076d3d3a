//go:build accel

package accel

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/coinjoin-engine/internal/pda"
)

// BatchDerive is the accel-tagged build: it lays every (hop, split) input
// for this hop out in one contiguous scratch buffer and hashes each slot
// in place, amortizing the allocation overhead pda.Derive would otherwise
// pay 48 times per hop. The digest primitive itself (chainhash.DoubleHashB)
// is identical to the scalar build — this path changes loop shape, never
// the derivation, so its output is byte-for-byte identical to
// derive_scalar.go's for the same inputs.
func BatchDerive(programID [32]byte, seed [32]byte, hop uint8, numSplits int) []pda.Address {
	const inputLen = 32 + 32 + 1 + 1
	scratch := make([]byte, inputLen*numSplits)

	for split := 0; split < numSplits; split++ {
		off := split * inputLen
		copy(scratch[off:off+32], programID[:])
		copy(scratch[off+32:off+64], seed[:])
		scratch[off+64] = hop
		scratch[off+65] = byte(split)
	}

	out := make([]pda.Address, numSplits)
	for split := 0; split < numSplits; split++ {
		off := split * inputLen
		digest := chainhash.DoubleHashB(scratch[off : off+inputLen])
		copy(out[split][:], digest)
	}
	return out
}
