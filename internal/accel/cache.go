package accel

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/rawblock/coinjoin-engine/internal/pda"
)

// DerivationCache memoizes per-transfer PDA derivations so a retried
// execute_hop, or a multi-hop execute_batch_hop call, does not redo
// derivations already paid for in compute budget by a prior attempt within
// the same ledger call. It is bounded (fastcache is RAM-capped, LRU-ish
// eviction) — a cache miss just falls through to pda.Derive, so
// correctness never depends on a hit.
type DerivationCache struct {
	c *fastcache.Cache
}

// NewDerivationCache allocates a cache capped at maxBytes of resident
// memory, shared across every transfer the process is servicing.
func NewDerivationCache(maxBytes int) *DerivationCache {
	return &DerivationCache{c: fastcache.New(maxBytes)}
}

// Get returns the cached address for (seed, hop, split) and whether it was
// present.
func (d *DerivationCache) Get(seed [32]byte, hop, split uint8) (pda.Address, bool) {
	key := cacheKey(seed, hop, split)
	buf, ok := d.c.HasGet(nil, key)
	if !ok || len(buf) != 32 {
		return pda.Address{}, false
	}
	var addr pda.Address
	copy(addr[:], buf)
	return addr, true
}

// Put stores the derived address for (seed, hop, split).
func (d *DerivationCache) Put(seed [32]byte, hop, split uint8, addr pda.Address) {
	d.c.Set(cacheKey(seed, hop, split), addr[:])
}

// BatchDeriveCached is BatchDerive with a memoization layer in front of it:
// every slot is looked up in the cache first, and only cache misses are
// derived and then stored back.
func (d *DerivationCache) BatchDeriveCached(programID [32]byte, seed [32]byte, hop uint8, numSplits int) []pda.Address {
	out := make([]pda.Address, numSplits)
	missing := make([]int, 0, numSplits)

	for split := 0; split < numSplits; split++ {
		if addr, ok := d.Get(seed, hop, uint8(split)); ok {
			out[split] = addr
		} else {
			missing = append(missing, split)
		}
	}

	for _, split := range missing {
		addr, _ := pda.Derive(programID, seed, hop, uint8(split))
		out[split] = addr
		d.Put(seed, hop, uint8(split), addr)
	}

	return out
}

func cacheKey(seed [32]byte, hop, split uint8) []byte {
	key := make([]byte, 32+2)
	copy(key, seed[:])
	binary.LittleEndian.PutUint16(key[32:], uint16(hop)<<8|uint16(split))
	return key
}
