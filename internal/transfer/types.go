// Package transfer implements the transfer state machine (C5) and split
// executor (C4): the lifecycle of one in-flight transfer from
// initialization through finalize or refund.
package transfer

import (
	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
	"github.com/rawblock/coinjoin-engine/internal/proof"
)

// Status is the lifecycle state of a TransferState account. Completed and
// RefundTriggered are never persisted (invariant 1/2) — the engine deletes
// the account in the same call that would otherwise transition to either,
// so the engine never sets a Status of Completed/RefundTriggered at all.
type Status uint8

const (
	StatusUninit Status = iota
	StatusActive
	StatusCompleted
	StatusRefundTriggered
)

func (s Status) String() string {
	switch s {
	case StatusUninit:
		return "Uninit"
	case StatusActive:
		return "Active"
	case StatusCompleted:
		return "Completed"
	case StatusRefundTriggered:
		return "RefundTriggered"
	default:
		return "Unknown"
	}
}

// MaxSlotsPerHop is the hard ceiling on real_splits+fake_splits (§2's "48
// PDAs" default, generalized to an upper bound rather than a fixed count).
const MaxSlotsPerHop = 48

// MaxHops is the hard ceiling on num_hops.
const MaxHops = 32

// MaxAdditionalRecipients is the cap on externally-tracked recipients
// beyond the primary (§3's "up to 5 additional optional recipients").
const MaxAdditionalRecipients = 5

// derivationCostUnits and bloomCheckCostUnits are the synthetic
// compute-unit prices of one PDA derivation and one bloom membership
// check, used only to size MinComputeUnitFloor below.
const (
	derivationCostUnits = 50
	bloomCheckCostUnits = 10
	aggregateVerifyCost = 600
)

// MinComputeUnitFloor is the conservative per-hop compute-unit floor a
// TransferConfig must clear: enough for one PDA derivation, one bloom
// check and one aggregate proof verification per slot, for the maximum
// slot count.
const MinComputeUnitFloor = MaxSlotsPerHop * (derivationCostUnits + bloomCheckCostUnits + aggregateVerifyCost)

// Config is the per-transfer parameter set (§3's `config` field).
type Config struct {
	NumHops        uint8
	RealSplits     uint8
	FakeSplits     uint8
	ReserveBps     uint16
	FeeBps         uint16
	CUBudgetPerHop uint32
}

// Validate enforces the configuration bounds: NumHops in [1,32],
// RealSplits+FakeSplits in [1,48], ReserveBps+FeeBps <= 10000,
// CUBudgetPerHop clearing the floor.
func (c Config) Validate() error {
	if c.NumHops < 1 || c.NumHops > MaxHops {
		return coreerrors.ErrInvalidConfig
	}
	total := int(c.RealSplits) + int(c.FakeSplits)
	if total < 1 || total > MaxSlotsPerHop {
		return coreerrors.ErrInvalidConfig
	}
	if uint32(c.ReserveBps)+uint32(c.FeeBps) > 10_000 {
		return coreerrors.ErrInvalidConfig
	}
	if c.CUBudgetPerHop < MinComputeUnitFloor {
		return coreerrors.ErrInvalidConfig
	}
	return nil
}

// Recipient is one externally-supplied destination (§3's "up to 6";
// primary plus up to MaxAdditionalRecipients tracked here).
type Recipient struct {
	Address [32]byte
	Amount  uint64
}

// OpCode tags the seven entry points (§6.1), used by Dispatch.
type OpCode uint8

const (
	OpInitialize OpCode = iota
	OpExecuteHop
	OpExecuteBatchHop
	OpFinalize
	OpRefund
	OpRevealFake
	OpConfigUpdate
)

// GovernanceAuthority is the governance key set permitted to sign
// config_update, re-exported from internal/proof for callers that only
// need the transfer-layer entry point and shouldn't have to import proof
// directly just to build a signer set.
type GovernanceAuthority = proof.GovernanceAuthority
