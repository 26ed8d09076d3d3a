package transfer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/coinjoin-engine/internal/bloom"
	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
	"github.com/rawblock/coinjoin-engine/internal/ledger"
	"github.com/rawblock/coinjoin-engine/internal/pda"
	"github.com/rawblock/coinjoin-engine/internal/proof"
)

func testConfig() Config {
	return Config{
		NumHops:        1,
		RealSplits:     2,
		FakeSplits:     2,
		ReserveBps:     0,
		FeeBps:         200,
		CUBudgetPerHop: MinComputeUnitFloor + 1000,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var programID, treasury [32]byte
	programID[0] = 0xAA
	treasury[0] = 0xFE

	e := NewEngine(store, proof.NewReferenceVerifier(), programID)
	e.Treasury = treasury
	return e
}

// splitAccountsFor builds a candidate account list for hop that the dual-
// path validator accepts: the real slots use their true derivation, the
// fake slots (per filter) use an arbitrary unrelated candidate accepted
// only via the bloom fallback (E5).
func splitAccountsFor(programID, seed [32]byte, hop uint8, cfg Config, filter bloom.Filter) []SplitAccount {
	total := int(cfg.RealSplits) + int(cfg.FakeSplits)
	out := make([]SplitAccount, total)
	for split := 0; split < total; split++ {
		if bloom.Contains(filter, hop, uint8(split)) {
			var arbitrary pda.Address
			arbitrary[0] = 0xAB
			arbitrary[1] = byte(split)
			out[split] = SplitAccount{Candidate: arbitrary}
		} else {
			derived, _ := pda.Derive(programID, seed, hop, uint8(split))
			out[split] = SplitAccount{Candidate: derived}
		}
	}
	return out
}

func initializeTestTransfer(t *testing.T, e *Engine, owner, seed [32]byte, cfg Config, amount uint64, now int64) (proof.Challenge, bloom.Filter, [32]byte) {
	t.Helper()
	var challenge proof.Challenge
	challenge[0] = 0x42

	var recipient [32]byte
	recipient[0] = 0x10

	var commitments [8]proof.Commitment
	rangeProof := proof.BuildRangeProof(commitments)
	aggProof := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{})

	var merkleRoot [32]byte
	merkleRoot[0] = 0x77

	args := InitializeArgs{
		Owner:          owner,
		Amount:         amount,
		Seed:           seed,
		AggregateProof: aggProof,
		RangeProof:     rangeProof,
		Challenge:      challenge,
		Commitments:    commitments,
		MerkleRoot:     merkleRoot,
		Config:         cfg,
		Recipient:      recipient,
		Now:            now,
	}
	if err := e.Initialize(context.Background(), args); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	filterCfg := filterConfigFor(cfg)
	filter := bloom.Generate(filterCfg, challenge)
	return challenge, filter, recipient
}

// TestE1SingleRecipientHappyPath drives initialize -> one hop -> finalize
// and checks the recipient receives amount net of the fee.
func TestE1SingleRecipientHappyPath(t *testing.T) {
	e := newTestEngine(t)
	cfg := testConfig()

	var owner, seed [32]byte
	owner[0], seed[0] = 0x01, 0x02

	challenge, filter, recipient := initializeTestTransfer(t, e, owner, seed, cfg, 1_000_000_000, 1_700_000_000)

	accounts := splitAccountsFor(e.ProgramID, seed, 0, cfg, filter)
	hopAgg := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{BloomFilter: filter})
	var commitments [8]proof.Commitment
	hopRange := proof.BuildRangeProof(commitments)

	err := e.ExecuteHop(context.Background(), ExecuteHopArgs{
		Owner:      owner,
		HopIndex:   0,
		Proof:      hopAgg,
		RangeProof: hopRange,
		Accounts:   accounts,
	})
	if err != nil {
		t.Fatalf("ExecuteHop: %v", err)
	}

	var merkleRoot [32]byte
	merkleRoot[0] = 0x77
	finAgg := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{BloomFilter: filter})

	err = e.Finalize(context.Background(), FinalizeArgs{
		Owner:      owner,
		Proof:      finAgg,
		MerkleLeaf: merkleRoot,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	recipientAcct, ok, err := e.Store.Get(recipient)
	if err != nil {
		t.Fatalf("Get recipient: %v", err)
	}
	if !ok {
		t.Fatalf("expected recipient account to exist")
	}
	if recipientAcct.Lamports != 980_000_000 {
		t.Fatalf("recipient balance = %d, want 980000000", recipientAcct.Lamports)
	}

	// Invariant 1 / property P7: terminal state is never persisted.
	key := StateAccountKey(e.ProgramID, owner)
	if _, ok, _ := e.Store.Get(key); ok {
		t.Fatalf("expected transfer-state account to be deleted after finalize")
	}
}

// TestE3ProofTamperingRejection is property P9 at the transfer layer:
// flipping the aggregate proof's signature byte rejects with a Proof
// category error and leaves current_hop unchanged.
func TestE3ProofTamperingRejection(t *testing.T) {
	e := newTestEngine(t)
	cfg := testConfig()

	var owner, seed [32]byte
	owner[0], seed[0] = 0x03, 0x04

	challenge, filter, _ := initializeTestTransfer(t, e, owner, seed, cfg, 1_000_000_000, 1_700_000_000)
	accounts := splitAccountsFor(e.ProgramID, seed, 0, cfg, filter)

	hopAgg := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{BloomFilter: filter})
	hopAgg[1] = 0x00 // corrupt the protocol signature
	var commitments [8]proof.Commitment
	hopRange := proof.BuildRangeProof(commitments)

	err := e.ExecuteHop(context.Background(), ExecuteHopArgs{
		Owner:      owner,
		HopIndex:   0,
		Proof:      hopAgg,
		RangeProof: hopRange,
		Accounts:   accounts,
	})
	if !coreerrors.Is(err, coreerrors.ErrInvalidProofSignature) {
		t.Fatalf("expected ErrInvalidProofSignature, got %v", err)
	}

	key := StateAccountKey(e.ProgramID, owner)
	acct, ok, err := e.Store.Get(key)
	if err != nil || !ok {
		t.Fatalf("expected transfer state to still exist after a failed hop")
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if st.CurrentHop != 0 {
		t.Fatalf("current_hop = %d, want 0 (unchanged after rejected proof)", st.CurrentHop)
	}
}

// TestE6AmountTamperingRejection is scenario E6: the persisted Amount
// field is mutated independently of the state account's real lamport
// balance between initialize and the next execute_hop. The mismatch must
// be caught as a ConservationViolation before the hop's split executor
// runs, not three calls later at finalize.
func TestE6AmountTamperingRejection(t *testing.T) {
	e := newTestEngine(t)
	cfg := testConfig()

	var owner, seed [32]byte
	owner[0], seed[0] = 0x30, 0x31

	challenge, filter, _ := initializeTestTransfer(t, e, owner, seed, cfg, 1_000_000_000, 1_700_000_000)
	accounts := splitAccountsFor(e.ProgramID, seed, 0, cfg, filter)

	key := StateAccountKey(e.ProgramID, owner)
	acct, ok, err := e.Store.Get(key)
	if err != nil || !ok {
		t.Fatalf("expected transfer state to exist after initialize")
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	st.Amount += 1_000_000 // tamper with the declared amount only
	acct.Data, err = st.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if err := e.Store.Put(acct); err != nil {
		t.Fatalf("Put: %v", err)
	}

	hopAgg := proof.BuildAggregateProof(challenge, proof.AggregatePublicInputs{BloomFilter: filter})
	var commitments [8]proof.Commitment
	hopRange := proof.BuildRangeProof(commitments)

	err = e.ExecuteHop(context.Background(), ExecuteHopArgs{
		Owner:      owner,
		HopIndex:   0,
		Proof:      hopAgg,
		RangeProof: hopRange,
		Accounts:   accounts,
	})
	if !coreerrors.Is(err, coreerrors.ErrConservationViolation) {
		t.Fatalf("expected ErrConservationViolation for tampered amount, got %v", err)
	}
}

// TestE4RefundAfterTimeout drives initialize with no hops executed, then
// refund after the timeout, expecting 95% back to the owner.
func TestE4RefundAfterTimeout(t *testing.T) {
	e := newTestEngine(t)
	cfg := testConfig()
	cfg.FeeBps = 0

	var owner, seed [32]byte
	owner[0], seed[0] = 0x05, 0x06

	createdAt := int64(1_700_000_000)
	initializeTestTransfer(t, e, owner, seed, cfg, 1_000_000_000, createdAt)

	tooSoon := RefundArgs{Owner: owner, Now: createdAt + 10}
	if err := e.Refund(context.Background(), tooSoon); !coreerrors.Is(err, coreerrors.ErrRefundNotYetEligible) {
		t.Fatalf("expected ErrRefundNotYetEligible before timeout, got %v", err)
	}

	afterTimeout := createdAt + int64(RefundTimeout.Seconds()) + 1
	if err := e.Refund(context.Background(), RefundArgs{Owner: owner, Now: afterTimeout}); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	ownerAcct, ok, err := e.Store.Get(owner)
	if err != nil {
		t.Fatalf("Get owner: %v", err)
	}
	if !ok {
		t.Fatalf("expected owner account to exist after refund")
	}
	if ownerAcct.Lamports != 950_000_000 {
		t.Fatalf("owner balance = %d, want 950000000", ownerAcct.Lamports)
	}

	key := StateAccountKey(e.ProgramID, owner)
	if _, ok, _ := e.Store.Get(key); ok {
		t.Fatalf("expected transfer-state account to be deleted after refund")
	}
}

// TestE5BloomFallbackAcceptsDesignatedFakes is property P4/scenario E5:
// an arbitrary candidate at a filter-marked fake slot validates via the
// bloom path. It checks validation only and does not execute a hop.
func TestE5BloomFallbackAcceptsDesignatedFakes(t *testing.T) {
	e := newTestEngine(t)
	cfg := testConfig()

	var owner, seed [32]byte
	owner[0], seed[0] = 0x07, 0x08

	challenge, filter, _ := initializeTestTransfer(t, e, owner, seed, cfg, 1_000_000_000, 1_700_000_000)

	var fakeSplit uint8 = 255
	for split := 0; split < int(cfg.RealSplits)+int(cfg.FakeSplits); split++ {
		if bloom.Contains(filter, 0, uint8(split)) {
			fakeSplit = uint8(split)
			break
		}
	}
	if fakeSplit == 255 {
		t.Skip("no fake slot marked for this challenge/config; filter is probabilistic")
	}

	var arbitrary pda.Address
	arbitrary[0] = 0x99
	if err := pda.ValidateStealthPDA(e.ProgramID, seed, 0, fakeSplit, filter, arbitrary); err != nil {
		t.Fatalf("expected bloom-path acceptance for designated fake slot, got %v", err)
	}
	_ = challenge
}

// TestRefundNotEligibleImmediately exercises the RefundNotYetEligible
// guard in isolation from the timeout-success path above.
func TestRefundNotEligibleImmediately(t *testing.T) {
	e := newTestEngine(t)
	cfg := testConfig()

	var owner, seed [32]byte
	owner[0], seed[0] = 0x09, 0x0A
	now := time.Now().Unix()
	initializeTestTransfer(t, e, owner, seed, cfg, 1_000_000_000, now)

	err := e.Refund(context.Background(), RefundArgs{Owner: owner, Now: now})
	if !coreerrors.Is(err, coreerrors.ErrRefundNotYetEligible) {
		t.Fatalf("expected ErrRefundNotYetEligible, got %v", err)
	}
}
