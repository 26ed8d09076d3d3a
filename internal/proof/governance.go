package proof

import (
	"github.com/supranational/blst/bindings/go/blst"
)

// dst is the BLS domain-separation tag for governance signatures — fixed
// and versioned so a signature produced for one purpose can never be
// replayed against another.
var dst = []byte("STEALTH-SPLIT-TRANSFER-CORE-GOVERNANCE-V1")

// GovernanceAuthority is one member of the multi-signer set permitted to
// sign a config_update. PublicKey is a compressed BLS12-381 G1 point.
type GovernanceAuthority struct {
	PublicKey [48]byte
}

// VerifyGovernanceAggregate checks a BLS aggregate signature over msg
// (for config_update, the message the caller supplies beside the new
// config; ConfigUpdate does not check that msg encodes that config)
// against the full set of authorized signers — fast aggregate
// verification, so every authority in signers must have co-signed the
// same msg for the check to pass.
//
// Governance authority is modeled as a set rather than a single signer: a
// production deployment of this kind of engine spreads config_update
// authority across several keyholders, which is the shape blst's
// FastAggregateVerify is built for.
func VerifyGovernanceAggregate(signers []GovernanceAuthority, msg []byte, aggSig [96]byte) bool {
	if len(signers) == 0 {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(aggSig[:])
	if sig == nil {
		return false
	}

	pubKeys := make([]*blst.P1Affine, 0, len(signers))
	for _, s := range signers {
		pk := new(blst.P1Affine).Uncompress(s.PublicKey[:])
		if pk == nil {
			return false
		}
		pubKeys = append(pubKeys, pk)
	}

	return sig.FastAggregateVerify(true, pubKeys, msg, dst)
}
