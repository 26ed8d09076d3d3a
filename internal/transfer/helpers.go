package transfer

import (
	"github.com/rawblock/coinjoin-engine/internal/accounting"
	"github.com/rawblock/coinjoin-engine/internal/bloom"
)

// stateBumpMarker mirrors internal/pda's fixed bump marker for data-model
// fidelity with §3's `bump` field on TransferState itself (the state PDA
// is derived with StateAccountKey, not internal/pda.Derive, but still
// carries a bump byte on the wire).
const stateBumpMarker = 0xFF

// feesFor computes the one-time fee and reserve lamport amounts at
// initialize, per §4.6.
func feesFor(amount uint64, cfg Config) (fee, reserve uint64, err error) {
	return accounting.ComputeFees(amount, cfg.FeeBps, cfg.ReserveBps)
}

// filterConfigFor narrows a transfer Config down to the fields
// internal/bloom.Generate needs.
func filterConfigFor(cfg Config) bloom.Config {
	return bloom.Config{
		NumHops:    int(cfg.NumHops),
		RealSplits: int(cfg.RealSplits),
		FakeSplits: int(cfg.FakeSplits),
	}
}

// bloomGenerate derives the decoy filter from config and the transfer's
// Fiat-Shamir challenge (§4.2: filters are a pure function of
// (config, challenge), not of the seed).
func bloomGenerate(cfg bloom.Config, challenge [32]byte) bloom.Filter {
	return bloom.Generate(cfg, challenge)
}

// bloomSetFake repairs a bloom bit via the reveal_fake entry point.
func bloomSetFake(f *bloom.Filter, hop, split uint8) {
	bloom.MarkFake(f, hop, split)
}

// splitRecipientPayout divides payout evenly across recipients,
// floor-rounding and assigning dust to the last recipient — the same
// rounding discipline accounting.SplitAmounts uses for per-hop splits
// (§4.6). A single recipient receives the whole payout. Recipient.Amount
// is not consulted.
func splitRecipientPayout(payout uint64, recipients []Recipient) ([]uint64, error) {
	if len(recipients) == 1 {
		return []uint64{payout}, nil
	}
	return accounting.SplitAmounts(payout, len(recipients))
}

// accountingCheckConservation re-exports accounting.CheckConservation
// under the transfer package's naming so call sites in machine.go read
// uniformly with the package's other accounting-adjacent helpers.
func accountingCheckConservation(debited uint64, credited []uint64, fee uint64) error {
	return accounting.CheckConservation(debited, credited, fee)
}

// refundSplit re-exports accounting.RefundAmounts.
func refundSplit(total uint64) (toOwner, retained uint64) {
	return accounting.RefundAmounts(total)
}
