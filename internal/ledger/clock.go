package ledger

import "time"

// Clock abstracts "now" so the refund-eligibility waiting period (§4.6,
// E5) can be tested without sleeping. The production implementation wraps
// time.Now(); tests substitute a FixedClock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock that always returns the same instant, for
// deterministic tests of time-gated behavior (refund eligibility).
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (f FixedClock) Now() time.Time { return f.At }
