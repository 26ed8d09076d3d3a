package api

import (
	"encoding/hex"
	"fmt"

	"github.com/rawblock/coinjoin-engine/internal/pda"
	"github.com/rawblock/coinjoin-engine/internal/proof"
	"github.com/rawblock/coinjoin-engine/internal/transfer"
	"github.com/rawblock/coinjoin-engine/pkg/models"
)

// decodeAddress hex-decodes s into a 32-byte address, rejecting any length
// other than exactly 32 bytes.
func decodeAddress(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// decodeBlob hex-decodes s into a 128-byte proof blob.
func decodeBlob(s string) (proof.Blob, error) {
	var out proof.Blob
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != proof.BlobSize {
		return out, fmt.Errorf("want %d bytes, got %d", proof.BlobSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeCommitments(in []string) ([8]proof.Commitment, error) {
	var out [8]proof.Commitment
	if len(in) != 8 {
		return out, fmt.Errorf("want 8 commitments, got %d", len(in))
	}
	for i, s := range in {
		addr, err := decodeAddress(s)
		if err != nil {
			return out, fmt.Errorf("commitment %d: %w", i, err)
		}
		out[i] = proof.Commitment(addr)
	}
	return out, nil
}

func decodeMerklePath(in []string) ([][32]byte, error) {
	out := make([][32]byte, len(in))
	for i, s := range in {
		addr, err := decodeAddress(s)
		if err != nil {
			return nil, fmt.Errorf("path entry %d: %w", i, err)
		}
		out[i] = addr
	}
	return out, nil
}

func decodeAggSig(s string) ([96]byte, error) {
	var out [96]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != 96 {
		return out, fmt.Errorf("want 96 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeRecipients(in []models.RecipientDTO) ([]transfer.Recipient, error) {
	out := make([]transfer.Recipient, len(in))
	for i, r := range in {
		addr, err := decodeAddress(r.Address)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
		out[i] = transfer.Recipient{Address: addr, Amount: r.Amount}
	}
	return out, nil
}

func decodeConfig(dto models.ConfigDTO) transfer.Config {
	return transfer.Config{
		NumHops:        dto.NumHops,
		RealSplits:     dto.RealSplits,
		FakeSplits:     dto.FakeSplits,
		ReserveBps:     dto.ReserveBps,
		FeeBps:         dto.FeeBps,
		CUBudgetPerHop: dto.CUBudgetPerHop,
	}
}

func decodeSplitAccounts(in []models.SplitAccountDTO) ([]transfer.SplitAccount, error) {
	out := make([]transfer.SplitAccount, len(in))
	for i, a := range in {
		addr, err := decodeAddress(a.Candidate)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		out[i] = transfer.SplitAccount{Candidate: pda.Address(addr)}
	}
	return out, nil
}

func encodeAddress(a [32]byte) string {
	return hex.EncodeToString(a[:])
}
