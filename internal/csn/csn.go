// Package csn implements the change-sequence-number clock: the server-wide
// monotonic replication state (the "context CSN") that every committed
// write advances and every refresh reads a snapshot of.
package csn

import "sync"

// CSN is an opaque, lexicographically comparable version stamp. Two CSNs
// are totally ordered by byte comparison; the zero value sorts before
// every real CSN minted by a clock.
type CSN string

// Compare returns -1, 0, or 1 as c is less than, equal to, or greater than
// other, by byte comparison.
func (c CSN) Compare(other CSN) int {
	switch {
	case c < other:
		return -1
	case c > other:
		return 1
	default:
		return 0
	}
}

// Less reports whether c sorts strictly before other.
func (c CSN) Less(other CSN) bool { return c < other }

// Zero reports whether c is the empty CSN (no writes observed yet).
func (c CSN) Zero() bool { return c == "" }

// Clock holds the authoritative context CSN under a single mutex. All
// three operations run under the same lock; there is no separate read
// lock because reads are copies of a string header, not a data structure
// walk.
type Clock struct {
	mu  sync.Mutex
	ctx CSN
}

// NewClock returns a clock initialized to the given context CSN (typically
// loaded from the suffix entry's contextCSN attribute at startup).
func NewClock(initial CSN) *Clock {
	return &Clock{ctx: initial}
}

// Get returns a snapshot of the current context CSN.
func (c *Clock) Get() CSN {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// Advance sets the context CSN to max(current, next), enforcing
// monotonicity (invariants 1 and 2). It reports whether the context CSN
// actually moved forward.
func (c *Clock) Advance(next CSN) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next.Compare(c.ctx) <= 0 {
		return false
	}
	c.ctx = next
	return true
}

// Set forcibly assigns the context CSN, bypassing the monotonicity check.
// Used only when loading a persisted value at startup.
func (c *Clock) Set(csn CSN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = csn
}
