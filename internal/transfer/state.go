package transfer

import (
	"encoding/binary"
	"fmt"

	"github.com/rawblock/coinjoin-engine/internal/bloom"
	"github.com/rawblock/coinjoin-engine/internal/proof"
)

// State is the in-memory/transport form of one TransferState account
// (§3). Field order matches the order §3 declares them in, and
// MarshalBinary lays them out densely with no padding (§6.3) — this is
// the one boundary that stays on encoding/binary directly rather than a
// general serialization library, because the wire layout is a fixed
// contract to match, not a format this repository gets to choose.
type State struct {
	Owner                 [32]byte
	Amount                uint64
	CurrentHop            uint8
	Status                Status
	Seed                  [32]byte
	Challenge             proof.Challenge
	Commitments           [8]proof.Commitment
	AggregateProof        proof.Blob
	RangeProof            proof.Blob
	MerkleRoot            [32]byte
	FakeBloom             bloom.Filter
	Config                Config
	BatchCount            uint8
	TotalFees             uint64
	Reserve               uint64
	Recipient             [32]byte
	AdditionalRecipients  []Recipient
	Bump                  byte
	CreatedAt             int64
}

// configSize is the encoded byte length of Config: 3 u8 + 2 u16 + 1 u32.
const configSize = 3 + 2 + 2 + 4

// fixedStateSize is the encoded length of every State field up to and
// including CreatedAt, excluding the variable-length AdditionalRecipients
// list (encoded separately, length-prefixed, at the end).
const fixedStateSize = 32 + 8 + 1 + 1 + 32 + 32 + 8*32 + 128 + 128 + 32 + bloom.Size + configSize + 1 + 8 + 8 + 32 + 1 + 8

// MarshalBinary encodes State in the dense, no-padding field order §6.3
// fixes, with the variable-length additional-recipient list appended
// after a one-byte count (the fixed prefix only ever names a single
// externally-tracked primary recipient per call; the count-prefixed tail
// keeps that prefix byte-for-byte stable for every decoder that only
// needs the primary fields).
func (s *State) MarshalBinary() ([]byte, error) {
	buf := make([]byte, fixedStateSize+1+len(s.AdditionalRecipients)*40)
	off := 0

	copy(buf[off:], s.Owner[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], s.Amount)
	off += 8
	buf[off] = s.CurrentHop
	off++
	buf[off] = byte(s.Status)
	off++
	copy(buf[off:], s.Seed[:])
	off += 32
	copy(buf[off:], s.Challenge[:])
	off += 32
	for _, c := range s.Commitments {
		copy(buf[off:], c[:])
		off += 32
	}
	copy(buf[off:], s.AggregateProof[:])
	off += proof.BlobSize
	copy(buf[off:], s.RangeProof[:])
	off += proof.BlobSize
	copy(buf[off:], s.MerkleRoot[:])
	off += 32
	copy(buf[off:], s.FakeBloom[:])
	off += bloom.Size

	buf[off] = s.Config.NumHops
	off++
	buf[off] = s.Config.RealSplits
	off++
	buf[off] = s.Config.FakeSplits
	off++
	binary.LittleEndian.PutUint16(buf[off:], s.Config.ReserveBps)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], s.Config.FeeBps)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], s.Config.CUBudgetPerHop)
	off += 4

	buf[off] = s.BatchCount
	off++
	binary.LittleEndian.PutUint64(buf[off:], s.TotalFees)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.Reserve)
	off += 8
	copy(buf[off:], s.Recipient[:])
	off += 32
	buf[off] = s.Bump
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(s.CreatedAt))
	off += 8

	if off != fixedStateSize {
		return nil, fmt.Errorf("transfer: fixed-layout encode produced %d bytes, want %d", off, fixedStateSize)
	}

	buf[off] = byte(len(s.AdditionalRecipients))
	off++
	for _, r := range s.AdditionalRecipients {
		copy(buf[off:], r.Address[:])
		off += 32
		binary.LittleEndian.PutUint64(buf[off:], r.Amount)
		off += 8
	}

	return buf, nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (s *State) UnmarshalBinary(buf []byte) error {
	if len(buf) < fixedStateSize+1 {
		return fmt.Errorf("transfer: buffer too short: %d bytes, want at least %d", len(buf), fixedStateSize+1)
	}
	off := 0

	copy(s.Owner[:], buf[off:])
	off += 32
	s.Amount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	s.CurrentHop = buf[off]
	off++
	s.Status = Status(buf[off])
	off++
	copy(s.Seed[:], buf[off:])
	off += 32
	copy(s.Challenge[:], buf[off:])
	off += 32
	for i := range s.Commitments {
		copy(s.Commitments[i][:], buf[off:])
		off += 32
	}
	copy(s.AggregateProof[:], buf[off:])
	off += proof.BlobSize
	copy(s.RangeProof[:], buf[off:])
	off += proof.BlobSize
	copy(s.MerkleRoot[:], buf[off:])
	off += 32
	copy(s.FakeBloom[:], buf[off:])
	off += bloom.Size

	s.Config.NumHops = buf[off]
	off++
	s.Config.RealSplits = buf[off]
	off++
	s.Config.FakeSplits = buf[off]
	off++
	s.Config.ReserveBps = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	s.Config.FeeBps = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	s.Config.CUBudgetPerHop = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	s.BatchCount = buf[off]
	off++
	s.TotalFees = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	s.Reserve = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(s.Recipient[:], buf[off:])
	off += 32
	s.Bump = buf[off]
	off++
	s.CreatedAt = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	count := int(buf[off])
	off++
	s.AdditionalRecipients = nil
	for i := 0; i < count; i++ {
		var r Recipient
		copy(r.Address[:], buf[off:])
		off += 32
		r.Amount = binary.LittleEndian.Uint64(buf[off:])
		off += 8
		s.AdditionalRecipients = append(s.AdditionalRecipients, r)
	}

	return nil
}
