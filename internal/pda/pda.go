// Package pda implements deterministic stealth-PDA derivation and the
// dual-path (cryptographic, then bloom-fallback) validator described in
// §4.1. Derivation is pure and total; no input is ever logged.
package pda

import (
	"crypto/subtle"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/coinjoin-engine/internal/bloom"
	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
)

// Address is a 32-byte stealth program-derived address.
type Address [32]byte

// bumpMarker is carried in TransferState.bump for data-model fidelity with
// the original design's PDA-bump field. This derivation never searches for
// a collision-free bump the way a 1-byte-short hash space would require —
// sha256d already gives a 32-byte, cryptographically collision-free output
// — so the marker is fixed rather than computed.
const bumpMarker = 0xFF

// Derive produces the deterministic (address, bump) pair for one
// (programID, seed, hop, split) tuple. Same inputs always produce the same
// outputs, and no runtime state beyond the arguments ever enters the hash.
//
// The digest is chainhash.DoubleHashB (double SHA-256) over the
// concatenation program_id || seed || hop || split, giving the pack's
// btcd stack a direct role in the one primitive §4.1 singles out as
// the ledger runtime's "program-address primitive".
func Derive(programID [32]byte, seed [32]byte, hop, split uint8) (Address, byte) {
	buf := make([]byte, 0, 32+32+1+1)
	buf = append(buf, programID[:]...)
	buf = append(buf, seed[:]...)
	buf = append(buf, hop, split)

	digest := chainhash.DoubleHashB(buf)

	var addr Address
	copy(addr[:], digest)
	return addr, bumpMarker
}

// ValidateStealthPDA returns nil iff either (a) the deterministically
// derived address for (hop, split) equals candidate — the real-split path
// — or (b) bloom.Contains(filter, hop, split) is true — the decoy path.
// Otherwise it returns ErrInvalidStealthPDA.
//
// The cryptographic comparison always runs first and unconditionally,
// using a constant-time byte comparison; the bloom lookup is itself
// branch-free (internal/bloom.Contains). The OR is folded into a single
// return expression so no call site can reorder the two checks — this is
// the code-level enforcement of the §9 open-question ruling: validate
// cryptographically first, bloom only as a fallback, never the reverse.
func ValidateStealthPDA(programID [32]byte, seed [32]byte, hop, split uint8, filter bloom.Filter, candidate Address) error {
	derived, _ := Derive(programID, seed, hop, split)
	return ValidateDerived(derived, filter, hop, split, candidate)
}

// ValidateDerived runs the same dual-path check as ValidateStealthPDA but
// takes an already-derived address instead of recomputing it. Callers that
// have batch- or cache-derived a hop's addresses up front (internal/accel)
// use this to avoid paying for the hash a second time per slot.
func ValidateDerived(derived Address, filter bloom.Filter, hop, split uint8, candidate Address) error {
	cryptoMatch := subtle.ConstantTimeCompare(derived[:], candidate[:]) == 1
	bloomMatch := bloom.Contains(filter, hop, split)

	if cryptoMatch || bloomMatch {
		return nil
	}
	return coreerrors.ErrInvalidStealthPDA
}

// IsReal reports whether (hop, split) is classified as a real (non-decoy)
// slot for this transfer — the complement of the bloom-marked set, per
// invariant 5. It does not consult any supplied candidate account; it is
// used by the split executor to decide how much value a slot should move.
func IsReal(filter bloom.Filter, hop, split uint8) bool {
	return !bloom.Contains(filter, hop, split)
}
