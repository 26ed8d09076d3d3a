package bloom

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	cfg := Config{NumHops: 4, RealSplits: 4, FakeSplits: 44}
	challenge := [32]byte{1, 2, 3}

	a := Generate(cfg, challenge)
	b := Generate(cfg, challenge)

	if a != b {
		t.Fatalf("Generate is not deterministic for identical (config, challenge): %x != %x", a, b)
	}
}

func TestGenerateDivergesOnChallenge(t *testing.T) {
	cfg := Config{NumHops: 4, RealSplits: 4, FakeSplits: 44}
	c1 := [32]byte{1}
	c2 := [32]byte{2}

	a := Generate(cfg, c1)
	b := Generate(cfg, c2)

	if a == b {
		t.Fatalf("Generate produced identical filters for different challenges (same config)")
	}
}

// TestGenerateOverflowSafety is property P3: for any config values up to
// u8::MAX, Generate writes only within the 16-byte buffer. Since Generate's
// only output is a fixed-size Filter array, an out-of-range write would be
// an index-out-of-range panic at run time, so the property reduces to "no
// panic for absurd config": this test runs Generate on a 255x255 config and
// requires it to return.
func TestGenerateOverflowSafety(t *testing.T) {
	cfg := Config{NumHops: 255, RealSplits: 255, FakeSplits: 255}
	challenge := [32]byte{0xFF}

	_ = Generate(cfg, challenge) // must not panic, must not hang
}

func TestContainsMatchesGenerate(t *testing.T) {
	cfg := Config{NumHops: 4, RealSplits: 4, FakeSplits: 44}
	challenge := [32]byte{7, 7, 7}
	f := Generate(cfg, challenge)

	// Bits Generate set must be readable through Contains, which uses the
	// same mod-128 addressing: at least one slot of the 4x48 range must
	// read back as a decoy.
	found := false
	for hop := 0; hop < 4; hop++ {
		for split := 0; split < 48; split++ {
			if Contains(f, uint8(hop), uint8(split)) {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected at least one decoy bit set for a 4x48 transfer, found none")
	}
}

func TestPositionWraps(t *testing.T) {
	// (hop=0, split=128) and (hop=0, split=0) collide mod 128 by construction
	// — this is the intentional approximate-membership property of §4.2.
	p1 := position(0, 0)
	p2 := position(0, 128)
	if (p1 % 128) != (p2 % 128) {
		t.Fatalf("expected mod-128 collision between position(0,0) and position(0,128)")
	}
}

func TestMarshalUnmarshalWireRoundTrip(t *testing.T) {
	cfg := Config{NumHops: 4, RealSplits: 4, FakeSplits: 44}
	f := Generate(cfg, [32]byte{9})

	wire := f.MarshalWire()
	if len(wire) != Size {
		t.Fatalf("expected wire form of %d bytes, got %d", Size, len(wire))
	}

	back := UnmarshalWire(wire)
	if back != f {
		t.Fatalf("round-trip through wire form changed the filter")
	}
}
