package ledger

import (
	"sync"

	coreerrors "github.com/rawblock/coinjoin-engine/internal/core/errors"
	"go.etcd.io/bbolt"
)

var accountsBucket = []byte("accounts")

// Store is the account database: a bbolt-backed key-value store keyed by
// 32-byte account address, plus a per-account mutex table that serializes
// concurrent entry-point calls against the same account. Real ledger
// runtimes guarantee a total order of instructions touching one account;
// Store reproduces that guarantee in-process so the core transfer engine
// never has to reason about concurrent mutation of a single account.
type Store struct {
	db    *bbolt.DB
	clock Clock

	locksMu sync.Mutex
	locks   map[[32]byte]*sync.Mutex
}

// Open opens (creating if necessary) a bbolt database at path and prepares
// the accounts bucket.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(accountsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:    db,
		clock: SystemClock{},
		locks: make(map[[32]byte]*sync.Mutex),
	}, nil
}

// Close releases the underlying bbolt database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the store's notion of "now", for tests that exercise
// time-gated refund eligibility.
func (s *Store) SetClock(c Clock) {
	s.clock = c
}

// Now returns the store's current time, per its Clock.
func (s *Store) Now() int64 {
	return s.clock.Now().Unix()
}

// Lock returns the mutex guarding key, creating it on first use. Callers
// serialize all reads and writes against one account by holding this lock
// for the duration of an entry point, modeling the host runtime's
// total-order-per-account guarantee.
func (s *Store) Lock(key [32]byte) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// Get fetches the account stored at key. Returns ok=false if no account
// exists there yet.
func (s *Store) Get(key [32]byte) (Account, bool, error) {
	var acct Account
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		v := b.Get(key[:])
		if v == nil {
			return nil
		}
		found = true
		acct = decodeAccount(key, v)
		return nil
	})
	if err != nil {
		return Account{}, false, err
	}
	return acct, found, nil
}

// Put writes acct, overwriting any existing account at the same key.
func (s *Store) Put(acct Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		return b.Put(acct.Key[:], acct.encode())
	})
}

// Delete removes the account at key entirely, together with any lamports
// it still holds; nothing is credited to another account. Finalize and
// Refund call it once a transfer reaches a terminal state.
func (s *Store) Delete(key [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		return b.Delete(key[:])
	})
}

// CreateAccount creates a new account at key with the given owner and
// initial lamport balance, failing if an account already exists there.
// The balance must clear RentExemptMinimum or the account would be
// immediately eligible for garbage collection by a real ledger runtime.
func (s *Store) CreateAccount(key, owner [32]byte, lamports uint64, data []byte) error {
	if lamports < RentExemptMinimum {
		return coreerrors.ErrRentExemptionBreach
	}
	_, exists, err := s.Get(key)
	if err != nil {
		return err
	}
	if exists {
		return coreerrors.ErrAlreadyInitialized
	}
	return s.Put(Account{Key: key, Owner: owner, Lamports: lamports, Data: data})
}

// TransferLamports moves amount lamports from the account at from to the
// account at to, failing (ErrInsufficientLamports) rather than leaving
// either account partially updated, and failing (ErrRentExemptionBreach)
// if the debit would leave from below the rent-exempt floor while it
// still holds data (a transfer-state account can never go rent-exempt-
// delinquent while still open; a stealth-split PDA with no data may be
// drained to zero as part of being closed).
func (s *Store) TransferLamports(from, to [32]byte, amount uint64) error {
	fromAcct, ok, err := s.Get(from)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ErrInsufficientLamports
	}
	if fromAcct.Lamports < amount {
		return coreerrors.ErrInsufficientLamports
	}
	remaining := fromAcct.Lamports - amount
	if len(fromAcct.Data) > 0 && remaining > 0 && remaining < RentExemptMinimum {
		return coreerrors.ErrRentExemptionBreach
	}

	toAcct, ok, err := s.Get(to)
	if err != nil {
		return err
	}
	if !ok {
		toAcct = Account{Key: to, Owner: from}
	}

	fromAcct.Lamports = remaining
	toAcct.Lamports += amount

	if err := s.Put(fromAcct); err != nil {
		return err
	}
	return s.Put(toAcct)
}
