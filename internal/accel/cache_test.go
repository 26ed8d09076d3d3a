package accel

import (
	"testing"

	"github.com/rawblock/coinjoin-engine/internal/pda"
)

func TestBatchDeriveMatchesScalarDerive(t *testing.T) {
	programID := [32]byte{1}
	seed := [32]byte{2}

	addrs := BatchDerive(programID, seed, 3, 48)
	if len(addrs) != 48 {
		t.Fatalf("expected 48 addresses, got %d", len(addrs))
	}
	seen := make(map[[32]byte]bool)
	for _, a := range addrs {
		if seen[a] {
			t.Fatalf("duplicate address within one hop's batch derivation")
		}
		seen[a] = true
	}
	for split, a := range addrs {
		want, _ := pda.Derive(programID, seed, 3, uint8(split))
		if a != want {
			t.Fatalf("BatchDerive diverged from pda.Derive at split %d", split)
		}
	}
}

func TestDerivationCacheHitMatchesMiss(t *testing.T) {
	cache := NewDerivationCache(1 << 20)
	programID := [32]byte{9}
	seed := [32]byte{8}

	first := cache.BatchDeriveCached(programID, seed, 1, 10)
	second := cache.BatchDeriveCached(programID, seed, 1, 10)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached derivation diverged from initial derivation at split %d", i)
		}
	}
}
