package transfer

import (
	"github.com/rawblock/coinjoin-engine/internal/accel"
	"github.com/rawblock/coinjoin-engine/internal/accounting"
	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
	"github.com/rawblock/coinjoin-engine/internal/ledger"
	"github.com/rawblock/coinjoin-engine/internal/pda"
	"golang.org/x/crypto/blake2b"
)

// SplitAccount is one caller-supplied candidate address for a single
// (hop, split) slot, in ascending split-index order (§4.4's ordering
// guarantee).
type SplitAccount struct {
	Candidate pda.Address
}

// hopResult summarizes one hop's split processing for the caller —
// nothing here is secret; it only reports aggregate movement, never which
// individual slots were real or fake.
type hopResult struct {
	LamportsMoved uint64
	SplitsVisited int
}

// executeHopSplits runs §4.4 steps 3: derive, classify, move value, for
// every split in a single hop. accounts must be supplied in ascending
// split-index order and have exactly RealSplits+FakeSplits entries.
// derived, if non-nil, supplies precomputed addresses (from
// internal/accel's batch or cached derivation) so this hop does not pay
// for a second derivation pass on top of one already charged to the
// caller's compute budget; if nil, each slot is derived on the spot.
func executeHopSplits(store *ledger.Store, programID [32]byte, st *State, stateKey [32]byte, hop uint8, accounts []SplitAccount, derived []pda.Address) (hopResult, error) {
	numSplits := int(st.Config.RealSplits) + int(st.Config.FakeSplits)
	if len(accounts) != numSplits {
		return hopResult{}, coreerrors.ErrAccountListTooSmall
	}
	if derived != nil && len(derived) != numSplits {
		return hopResult{}, coreerrors.ErrAccountListTooSmall
	}

	remainingReal := 0
	for split := 0; split < numSplits; split++ {
		if pda.IsReal(st.FakeBloom, hop, uint8(split)) {
			remainingReal++
		}
	}
	var amounts []uint64
	if remainingReal > 0 {
		var err error
		amounts, err = accounting.SplitAmounts(hopBudget(st), remainingReal)
		if err != nil {
			return hopResult{}, err
		}
	}

	var result hopResult
	realIdx := 0
	for split := 0; split < numSplits; split++ {
		candidate := accounts[split].Candidate

		var err error
		if derived != nil {
			err = pda.ValidateDerived(derived[split], st.FakeBloom, hop, uint8(split), candidate)
		} else {
			err = pda.ValidateStealthPDA(programID, st.Seed, hop, uint8(split), st.FakeBloom, candidate)
		}
		if err != nil {
			return hopResult{}, err
		}

		isReal := pda.IsReal(st.FakeBloom, hop, uint8(split))
		destKey := addressKey(candidate)

		if isReal {
			amount := amounts[realIdx]
			realIdx++
			if err := touchAndRecover(store, stateKey, destKey, amount); err != nil {
				return hopResult{}, err
			}
			result.LamportsMoved += amount
		} else {
			if err := touchAndRecover(store, stateKey, destKey, ledger.RentExemptMinimum); err != nil {
				return hopResult{}, err
			}
		}
		result.SplitsVisited++
	}

	return result, nil
}

// checkHopConservation guards every hop-level entry point (E6): the
// transfer-state account's actual ledger balance must still equal
// st.Amount+RentExemptMinimum, since touch-and-recover never changes that
// account's net balance and fees are only ever debited at finalize/refund.
// If the persisted state's Amount field was tampered with independently of
// the account's real lamport balance — the only way CheckConservation's
// debited/credited/fee accounting could ever be fooled at this layer —
// this divergence catches it before a single split moves, not three calls
// later at finalize.
func checkHopConservation(acct ledger.Account, st *State) error {
	want := st.Amount + ledger.RentExemptMinimum
	if err := accounting.CheckConservation(acct.Lamports, []uint64{want}, 0); err != nil {
		return err
	}
	return nil
}

// hopBudget is the lamport amount available to distribute across this
// hop's real splits: the principal net of the one-time fee and the
// reserve (amount - total_fees - reserve). Touch-and-recover returns every
// split's lamports to the state account, so this figure only sizes the
// per-split amounts; the state balance itself stays at amount + rent
// exempt minimum until finalize or refund.
func hopBudget(st *State) uint64 {
	total := st.Amount - st.TotalFees - st.Reserve
	return total
}

// touchAndRecover funds destKey with amount, then immediately recovers it
// back to stateKey, leaving destKey at its prior balance (zero if it was
// newly touched) while stateKey's net balance is unchanged by this split.
// No visited PDA is left holding a rent-exempt balance after the hop. Real
// and fake slots get the same touch pattern, and the
// principal a real split momentarily carries is recovered into the
// transfer-state account just like a fake split's rent-exempt touch,
// staying conserved there until finalize pays it out to recipients.
func touchAndRecover(store *ledger.Store, stateKey, destKey [32]byte, amount uint64) error {
	if err := store.TransferLamports(stateKey, destKey, amount); err != nil {
		return err
	}
	return store.TransferLamports(destKey, stateKey, amount)
}

// addressKey reduces a derived/candidate pda.Address down to the ledger's
// native [32]byte account key (they are already the same width; this
// exists so callers never have to remember the two types are structurally
// identical but nominally distinct).
func addressKey(a pda.Address) [32]byte {
	return [32]byte(a)
}

// batchExecuteHops runs as many whole hops as the remaining compute
// budget admits, stopping (not erroring) on exhaustion per §5's "yields
// before exhaustion so the caller may re-invoke." accountsPerHop supplies
// one slice of SplitAccount per hop attempted, in hop order starting at
// st.CurrentHop.
func batchExecuteHops(store *ledger.Store, programID [32]byte, st *State, stateKey [32]byte, accountsPerHop [][]SplitAccount, budget int) (hopsAdvanced int, err error) {
	remaining := budget
	for _, accounts := range accountsPerHop {
		if st.CurrentHop >= st.Config.NumHops {
			break
		}
		cost := MinComputeUnitFloor
		if remaining < cost {
			break
		}

		derived := accel.BatchDerive(programID, st.Seed, st.CurrentHop, len(accounts))
		if _, err := executeHopSplits(store, programID, st, stateKey, st.CurrentHop, accounts, derived); err != nil {
			return hopsAdvanced, err
		}

		st.CurrentHop++
		st.BatchCount++
		remaining -= cost
		hopsAdvanced++
	}
	return hopsAdvanced, nil
}

// witnessForFake computes the reveal_fake commitment §4.5 fixes:
// blake2b_256(seed || "fake" || hop || split). Defined here (not
// internal/proof) because it binds to a transfer's own seed, not to the
// abstract proof-verifier contract.
func witnessForFake(seed [32]byte, hop, split uint8) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(seed[:])
	h.Write([]byte("fake"))
	h.Write([]byte{hop, split})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
