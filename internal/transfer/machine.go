package transfer

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
	"github.com/rawblock/coinjoin-engine/internal/ledger"
	"github.com/rawblock/coinjoin-engine/internal/metrics"
	"github.com/rawblock/coinjoin-engine/internal/proof"
)

// RefundTimeout is the minimum elapsed time since CreatedAt before refund
// becomes eligible (§4.5's refund guard, §8's E4 scenario).
const RefundTimeout = 24 * time.Hour

// Engine drives the seven entry points of §6.1 against a ledger.Store.
// It holds no mutable state of its own beyond its collaborators: every
// mutation lives in the TransferState account the caller names.
type Engine struct {
	Store      *ledger.Store
	Verifier   proof.Verifier
	ProgramID  [32]byte
	Authority  [32]byte
	Governance []GovernanceAuthority
	// Treasury receives total_fees at finalize and the retained 5% at
	// refund: a real ledger account closure must send value somewhere
	// rather than let it vanish when the state account is deleted.
	Treasury [32]byte
}

// NewEngine constructs an Engine bound to a ledger store, a proof
// verifier, and this deployment's program id.
func NewEngine(store *ledger.Store, verifier proof.Verifier, programID [32]byte) *Engine {
	return &Engine{Store: store, Verifier: verifier, ProgramID: programID}
}

// StateAccountKey derives the transfer-state PDA from ("transfer",
// owner_pubkey), per §6.3. programID is accepted for call-site symmetry
// with pda.Derive but is not folded into the hash: every deployment has
// exactly one program id, so including it would only ever add a constant.
func StateAccountKey(programID, owner [32]byte) [32]byte {
	buf := make([]byte, 0, len("transfer")+32)
	buf = append(buf, "transfer"...)
	buf = append(buf, owner[:]...)
	digest := chainhash.DoubleHashB(buf)
	var key [32]byte
	copy(key[:], digest)
	return key
}

// InitializeArgs are the arguments to the initialize entry point.
type InitializeArgs struct {
	Owner                [32]byte
	Amount               uint64
	Seed                 [32]byte
	AggregateProof       proof.Blob
	RangeProof           proof.Blob
	Challenge            proof.Challenge
	Commitments          [8]proof.Commitment
	MerkleRoot           [32]byte
	Config               Config
	Recipient            [32]byte
	AdditionalRecipients []Recipient
	Now                  int64
}

// Initialize materializes a new Active TransferState, per the Uninit ->
// Active transition of §4.5. Re-entry is prevented by StateAccountKey
// being deterministic in owner: CreateAccount fails with
// ErrAlreadyInitialized while a prior transfer for this owner is still
// in flight.
func (e *Engine) Initialize(ctx context.Context, args InitializeArgs) error {
	if args.Amount == 0 {
		return coreerrors.ErrInvalidAmount
	}
	if args.Seed == ([32]byte{}) {
		return coreerrors.ErrInvalidSeed
	}
	if len(args.AdditionalRecipients) > MaxAdditionalRecipients {
		return coreerrors.ErrTooManyRecipients
	}
	if err := checkDistinctRecipients(args.Recipient, args.AdditionalRecipients); err != nil {
		return err
	}
	if err := args.Config.Validate(); err != nil {
		return err
	}

	budget := proof.NewCUBudget(int(args.Config.CUBudgetPerHop))
	publicInputs := proof.AggregatePublicInputs{}
	if err := e.Verifier.VerifyAggregate(ctx, budget, args.AggregateProof, args.Challenge, publicInputs); err != nil {
		return err
	}
	if err := e.Verifier.VerifyRange(ctx, budget, args.RangeProof, args.Commitments, args.Challenge); err != nil {
		return err
	}

	fee, reserve, err := feesFor(args.Amount, args.Config)
	if err != nil {
		return err
	}

	filterCfg := filterConfigFor(args.Config)
	filter := bloomGenerate(filterCfg, args.Challenge)

	st := &State{
		Owner:                args.Owner,
		Amount:               args.Amount,
		CurrentHop:           0,
		Status:               StatusActive,
		Seed:                 args.Seed,
		Challenge:            args.Challenge,
		Commitments:          args.Commitments,
		AggregateProof:       args.AggregateProof,
		RangeProof:           args.RangeProof,
		MerkleRoot:           args.MerkleRoot,
		FakeBloom:            filter,
		Config:               args.Config,
		BatchCount:           0,
		TotalFees:            fee,
		Reserve:              reserve,
		Recipient:            args.Recipient,
		AdditionalRecipients: args.AdditionalRecipients,
		Bump:                 stateBumpMarker,
		CreatedAt:            args.Now,
	}

	key := StateAccountKey(e.ProgramID, args.Owner)
	data, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	return e.Store.CreateAccount(key, e.ProgramID, args.Amount+ledger.RentExemptMinimum, data)
}

// ExecuteHopArgs are the arguments to the execute_hop entry point.
type ExecuteHopArgs struct {
	Owner      [32]byte
	HopIndex   uint8
	Proof      proof.Blob
	RangeProof proof.Blob
	Accounts   []SplitAccount
}

// ExecuteHop runs one hop: asserts Active and the expected hop index,
// verifies the per-hop aggregate proof, runs the split executor, and
// advances current_hop. Per §4.5, proof failures leave state unchanged.
func (e *Engine) ExecuteHop(ctx context.Context, args ExecuteHopArgs) error {
	start := time.Now()
	defer func() { metrics.ObserveHopDuration("execute_hop", time.Since(start)) }()

	key := StateAccountKey(e.ProgramID, args.Owner)
	lock := e.Store.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotActive
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return err
	}
	if st.Status != StatusActive {
		return coreerrors.ErrNotActive
	}
	if args.HopIndex != st.CurrentHop {
		return coreerrors.ErrWrongHop
	}
	if st.BatchCount != st.CurrentHop {
		// batch_count is redundant with current_hop by construction (§3);
		// divergence means the persisted state was tampered with between
		// calls, which this engine treats as a trapped conservation
		// failure rather than silently trusting either field.
		return coreerrors.ErrConservationViolation
	}
	if err := checkHopConservation(acct, &st); err != nil {
		return err
	}

	budget := proof.NewCUBudget(int(st.Config.CUBudgetPerHop))
	publicInputs := proof.AggregatePublicInputs{BloomFilter: st.FakeBloom}
	if err := e.Verifier.VerifyAggregate(ctx, budget, args.Proof, st.Challenge, publicInputs); err != nil {
		metrics.RecordProofVerification("aggregate", false)
		return err
	}
	metrics.RecordProofVerification("aggregate", true)
	if err := e.Verifier.VerifyRange(ctx, budget, args.RangeProof, st.Commitments, st.Challenge); err != nil {
		metrics.RecordProofVerification("range", false)
		return err
	}
	metrics.RecordProofVerification("range", true)
	metrics.SetComputeBudgetRemaining(uint32(budget.Remaining))

	if _, err := executeHopSplits(e.Store, e.ProgramID, &st, key, args.HopIndex, args.Accounts, nil); err != nil {
		return err
	}
	st.CurrentHop++
	st.BatchCount++

	return e.persist(key, &st)
}

// ExecuteBatchHopArgs are the arguments to the execute_batch_hop entry
// point: one proof and one account set per hop attempted.
type ExecuteBatchHopArgs struct {
	Owner    [32]byte
	Proofs   []proof.Blob
	Accounts [][]SplitAccount
}

// ExecuteBatchHop advances as many hops as the remaining compute budget
// admits, yielding (returning nil, not an error) on exhaustion so the
// caller may re-invoke, per §5.
func (e *Engine) ExecuteBatchHop(ctx context.Context, args ExecuteBatchHopArgs) (int, error) {
	if len(args.Proofs) != len(args.Accounts) {
		return 0, coreerrors.ErrBatchCountMismatch
	}

	key := StateAccountKey(e.ProgramID, args.Owner)
	lock := e.Store.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, coreerrors.ErrNotActive
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return 0, err
	}
	if st.Status != StatusActive {
		return 0, coreerrors.ErrNotActive
	}
	if err := checkHopConservation(acct, &st); err != nil {
		return 0, err
	}

	totalBudget := int(st.Config.CUBudgetPerHop) * len(args.Proofs)
	for i, p := range args.Proofs {
		if i >= len(args.Accounts) {
			break
		}
		budget := proof.NewCUBudget(int(st.Config.CUBudgetPerHop))
		publicInputs := proof.AggregatePublicInputs{BloomFilter: st.FakeBloom}
		if err := e.Verifier.VerifyAggregate(ctx, budget, p, st.Challenge, publicInputs); err != nil {
			return 0, err
		}
	}

	advanced, err := batchExecuteHops(e.Store, e.ProgramID, &st, key, args.Accounts, totalBudget)
	if err != nil {
		return advanced, err
	}

	if err := e.persist(key, &st); err != nil {
		return advanced, err
	}
	return advanced, nil
}

// FinalizeArgs are the arguments to the finalize entry point.
type FinalizeArgs struct {
	Owner           [32]byte
	Proof           proof.Blob
	MerkleLeaf      [32]byte
	MerklePath      [][32]byte
	MerkleDirections []bool
}

// Finalize verifies the closing aggregate and Merkle proofs, distributes
// value to recipients, and deletes the state account — realizing
// invariant 1 (Completed is never persisted) by never writing the
// Completed status at all.
func (e *Engine) Finalize(ctx context.Context, args FinalizeArgs) error {
	start := time.Now()
	defer func() { metrics.ObserveHopDuration("finalize", time.Since(start)) }()

	key := StateAccountKey(e.ProgramID, args.Owner)
	lock := e.Store.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotActive
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return err
	}
	if st.Status != StatusActive {
		return coreerrors.ErrNotActive
	}
	if st.CurrentHop != st.Config.NumHops {
		return coreerrors.ErrHopsIncomplete
	}

	budget := proof.NewCUBudget(int(st.Config.CUBudgetPerHop))
	publicInputs := proof.AggregatePublicInputs{BloomFilter: st.FakeBloom}
	if err := e.Verifier.VerifyAggregate(ctx, budget, args.Proof, st.Challenge, publicInputs); err != nil {
		metrics.RecordProofVerification("aggregate", false)
		return err
	}
	metrics.RecordProofVerification("aggregate", true)
	if err := e.Verifier.VerifyMerkle(ctx, budget, args.MerkleLeaf, st.MerkleRoot, args.MerklePath, args.MerkleDirections); err != nil {
		metrics.RecordProofVerification("merkle", false)
		return err
	}
	metrics.RecordProofVerification("merkle", true)

	// Reserve is held aside from amount at initialize and returned to the
	// recipient side here (§4.6); the hop-by-hop split transfers never
	// permanently drain the state account (they touch-and-recover, §4.4),
	// so payout is simply the full principal minus the one-time fee.
	payout := st.Amount - st.TotalFees
	recipients := append([]Recipient{{Address: st.Recipient}}, st.AdditionalRecipients...)
	amounts, err := splitRecipientPayout(payout, recipients)
	if err != nil {
		return err
	}
	if err := accountingCheckConservation(st.Amount, amounts, st.TotalFees); err != nil {
		return err
	}

	for i, r := range recipients {
		if err := e.Store.TransferLamports(key, r.Address, amounts[i]); err != nil {
			return err
		}
	}
	if st.TotalFees > 0 {
		if err := e.Store.TransferLamports(key, e.Treasury, st.TotalFees); err != nil {
			return err
		}
	}

	return e.Store.Delete(key)
}

// RefundArgs are the arguments to the refund entry point.
type RefundArgs struct {
	Owner [32]byte
	Now   int64
}

// Refund returns 95% of the principal net of fees (amount - total_fees)
// to owner and retains the other 5%,
// per §4.5/§4.6 and property P8, then deletes the account (invariant 2).
func (e *Engine) Refund(ctx context.Context, args RefundArgs) error {
	key := StateAccountKey(e.ProgramID, args.Owner)
	lock := e.Store.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotActive
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return err
	}
	if st.Status != StatusActive {
		return coreerrors.ErrNotActive
	}
	if args.Now-st.CreatedAt < int64(RefundTimeout.Seconds()) {
		return coreerrors.ErrRefundNotYetEligible
	}

	// reserve is carved out of amount at initialize, not held in addition
	// to it, so the refundable pool is the full principal less fees
	// already committed to being levied.
	refundable := st.Amount - st.TotalFees
	toOwner, retained := refundSplit(refundable)

	if err := e.Store.TransferLamports(key, args.Owner, toOwner); err != nil {
		return err
	}
	toTreasury := retained + st.TotalFees
	if toTreasury > 0 {
		if err := e.Store.TransferLamports(key, e.Treasury, toTreasury); err != nil {
			return err
		}
	}
	return e.Store.Delete(key)
}

// RevealFakeArgs are the arguments to the reveal_fake entry point.
type RevealFakeArgs struct {
	Owner   [32]byte
	Hop     uint8
	Split   uint8
	Witness [32]byte
}

// RevealFake repairs a malformed bloom entry once the caller proves
// (hop, split) was designated fake at initialize: no value moves, and a
// revealed slot's witness says nothing about any other slot's status
// (invariant 7).
func (e *Engine) RevealFake(ctx context.Context, args RevealFakeArgs) error {
	key := StateAccountKey(e.ProgramID, args.Owner)
	lock := e.Store.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotActive
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return err
	}
	if st.Status != StatusActive {
		return coreerrors.ErrNotActive
	}

	expected := witnessForFake(st.Seed, args.Hop, args.Split)
	if expected != args.Witness {
		return coreerrors.ErrInvalidStealthPDA
	}

	bloomSetFake(&st.FakeBloom, args.Hop, args.Split)
	return e.persist(key, &st)
}

// ConfigUpdateArgs are the arguments to the config_update entry point.
type ConfigUpdateArgs struct {
	Owner     [32]byte
	NewConfig Config
	Message   []byte
	AggSig    [96]byte
}

// ConfigUpdate applies a governance-signed parameter change to a transfer
// still in flight. The signature is verified against e.Governance's
// aggregate key set before any field is touched.
func (e *Engine) ConfigUpdate(ctx context.Context, args ConfigUpdateArgs) error {
	if !proof.VerifyGovernanceAggregate(e.Governance, args.Message, args.AggSig) {
		metrics.RecordProofVerification("governance", false)
		return coreerrors.ErrUnauthorizedSigner
	}
	metrics.RecordProofVerification("governance", true)
	if err := args.NewConfig.Validate(); err != nil {
		return err
	}

	key := StateAccountKey(e.ProgramID, args.Owner)
	lock := e.Store.Lock(key)
	lock.Lock()
	defer lock.Unlock()

	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotActive
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return err
	}
	if st.Status != StatusActive {
		return coreerrors.ErrNotActive
	}

	st.Config = args.NewConfig
	return e.persist(key, &st)
}

// PeekState returns a copy of owner's in-flight TransferState without
// locking for write, for callers (the audit log) that need amount/fee
// totals before a Finalize/Refund call deletes the account. It is not
// part of the seven entry points and makes no state transition.
func (e *Engine) PeekState(owner [32]byte) (State, bool, error) {
	key := StateAccountKey(e.ProgramID, owner)
	acct, ok, err := e.Store.Get(key)
	if err != nil || !ok {
		return State{}, ok, err
	}
	var st State
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

// persist re-serializes st and writes it back to key.
func (e *Engine) persist(key [32]byte, st *State) error {
	acct, ok, err := e.Store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrNotActive
	}
	data, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	acct.Data = data
	return e.Store.Put(acct)
}

func checkDistinctRecipients(primary [32]byte, additional []Recipient) error {
	seen := map[[32]byte]bool{primary: true}
	for _, r := range additional {
		if seen[r.Address] {
			return coreerrors.ErrDuplicateRecipient
		}
		seen[r.Address] = true
	}
	return nil
}
