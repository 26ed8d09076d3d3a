package proof

import (
	"testing"

	"github.com/supranational/blst/bindings/go/blst"
)

func TestVerifyGovernanceAggregateAcceptsCoSignedMessage(t *testing.T) {
	msg := []byte("new-config-v2")

	const n = 3
	var signers []GovernanceAuthority
	var sigs []*blst.P2Affine

	for i := 0; i < n; i++ {
		ikm := make([]byte, 32)
		ikm[0] = byte(i + 1)
		sk := blst.KeyGen(ikm)

		pk := new(blst.P1Affine).From(sk)
		var pkBytes [48]byte
		copy(pkBytes[:], pk.Compress())
		signers = append(signers, GovernanceAuthority{PublicKey: pkBytes})

		sig := new(blst.P2Affine).Sign(sk, msg, dst)
		sigs = append(sigs, sig)
	}

	var agg blst.P2Aggregate
	agg.Aggregate(sigs, true)
	aggSigAffine := agg.ToAffine()

	var aggSigBytes [96]byte
	copy(aggSigBytes[:], aggSigAffine.Compress())

	if !VerifyGovernanceAggregate(signers, msg, aggSigBytes) {
		t.Fatalf("expected aggregate signature from all signers to verify")
	}
}

func TestVerifyGovernanceAggregateRejectsWrongMessage(t *testing.T) {
	ikm := make([]byte, 32)
	ikm[0] = 1
	sk := blst.KeyGen(ikm)
	pk := new(blst.P1Affine).From(sk)
	var pkBytes [48]byte
	copy(pkBytes[:], pk.Compress())

	sig := new(blst.P2Affine).Sign(sk, []byte("original"), dst)
	var aggSigBytes [96]byte
	copy(aggSigBytes[:], sig.Compress())

	ok := VerifyGovernanceAggregate([]GovernanceAuthority{{PublicKey: pkBytes}}, []byte("tampered"), aggSigBytes)
	if ok {
		t.Fatalf("expected verification to fail for a message the signer never signed")
	}
}

func TestVerifyGovernanceAggregateRejectsEmptySignerSet(t *testing.T) {
	var aggSigBytes [96]byte
	if VerifyGovernanceAggregate(nil, []byte("msg"), aggSigBytes) {
		t.Fatalf("expected verification to fail with no signers")
	}
}
