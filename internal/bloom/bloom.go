// Package bloom implements the 128-bit decoy registry: a fixed, constant-
// space approximate-membership structure marking which (hop, split) slots
// are designated decoys for one transfer. It is a fallback, never ground
// truth — see internal/pda for the dual-path validator that consults it.
package bloom

import (
	"golang.org/x/crypto/blake2b"
)

// Size is the fixed filter width in bytes (128 bits).
const Size = 16

// maxAxis bounds hop/split regardless of config, per §4.2's overflow
// guard: generation never visits a position outside this square even if
// the caller's config claims more hops or splits than this.
const maxAxis = 32

// Filter is the 128-bit decoy registry, serialized little-endian on the wire.
type Filter [Size]byte

// Config is the subset of TransferConfig the generator needs.
type Config struct {
	NumHops    int
	RealSplits int
	FakeSplits int
}

// Generate deterministically derives the decoy filter from config and the
// per-transfer Fiat-Shamir challenge. It is a pure function: identical
// (config, challenge) pairs always yield identical filters, and two
// transfers sharing a config but differing challenges diverge with
// overwhelming probability because the challenge keys a blake2b PRF.
func Generate(cfg Config, challenge [32]byte) Filter {
	var f Filter

	hopBound := clamp(cfg.NumHops, maxAxis)
	splitAxis := cfg.RealSplits
	if cfg.FakeSplits > splitAxis {
		splitAxis = cfg.FakeSplits
	}
	splitBound := clamp(splitAxis, maxAxis)

	mac, err := blake2b.New(32, challenge[:])
	if err != nil {
		// blake2b.New only errors on an oversized key; challenge is fixed at
		// 32 bytes which is always valid, so this path is unreachable.
		panic("bloom: blake2b keyed hash init failed: " + err.Error())
	}

	for hop := 0; hop < hopBound; hop++ {
		for split := 0; split < splitBound; split++ {
			mac.Reset()
			var in [2]byte
			in[0] = byte(hop)
			in[1] = byte(split)
			mac.Write(in[:])
			digest := mac.Sum(nil)

			if digest[0]&0x01 == 1 {
				setBit(&f, position(hop, split))
			}
		}
	}

	return f
}

// Contains reports whether (hop, split) is marked as a decoy slot. It is
// O(1) and branch-free on the result: the same arithmetic and memory
// access pattern executes regardless of the bit's value, so the bloom path
// never leaks which outcome it returned via timing.
func Contains(f Filter, hop, split uint8) bool {
	p := position(int(hop), int(split))
	byteIdx := (p % 128) >> 3
	bitIdx := uint(p & 0x07)
	return (f[byteIdx]>>bitIdx)&1 == 1
}

// position computes p = (hop << 8) | split. The mod-128 wrap applied by the
// caller (Contains, setBit) is intentional: it admits collisions, which is
// why this structure is an approximate membership filter and never ground
// truth (ground truth is the cryptographic PDA derivation in internal/pda).
func position(hop, split int) int {
	return (hop << 8) | split
}

// MarkFake sets the bit for (hop, split), designating it a decoy slot.
// Used by the reveal_fake entry point to repair a filter bit the original
// Generate call missed — the only mutation this package exposes, since
// Generate is otherwise meant to be the filter's single source of truth.
func MarkFake(f *Filter, hop, split uint8) {
	setBit(f, position(int(hop), int(split)))
}

func setBit(f *Filter, p int) {
	byteIdx := (p % 128) >> 3
	bitIdx := uint(p & 0x07)
	f[byteIdx] |= 1 << bitIdx
}

func clamp(v, max int) int {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// MarshalWire returns the filter's 16-byte little-endian wire form per
// §6.2. The in-memory layout already is this wire form — bits are
// addressed byte-then-bit in ascending order — so this is an identity
// copy kept for symmetry with UnmarshalWire and the rest of the wire codec.
func (f Filter) MarshalWire() [Size]byte {
	return [Size]byte(f)
}

// UnmarshalWire reconstructs a Filter from its 16-byte little-endian wire form.
func UnmarshalWire(b [Size]byte) Filter {
	return Filter(b)
}
