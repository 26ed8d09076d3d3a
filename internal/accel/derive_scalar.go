//go:build !accel

package accel

import "github.com/rawblock/coinjoin-engine/internal/pda"

// BatchDerive derives the stealth PDA for every split in [0, numSplits) at
// the given hop, in ascending split order. This is the default, portable
// build: a plain sequential loop over pda.Derive.
//
// It exists alongside the accel-tagged variant, CPU-fallback and
// accelerated paths behind a build tag — here there is no GPU-shaped work,
// so the "accelerated" build below only changes the loop's memory layout
// (one flat scratch buffer instead of 48 independent allocations), not the
// primitive it calls.
func BatchDerive(programID [32]byte, seed [32]byte, hop uint8, numSplits int) []pda.Address {
	out := make([]pda.Address, numSplits)
	for split := 0; split < numSplits; split++ {
		addr, _ := pda.Derive(programID, seed, hop, uint8(split))
		out[split] = addr
	}
	return out
}
