// Package basetracker detects when a persistent search's base entry has
// moved or been replaced out from under it, which invalidates the search
// (§4.4).
package basetracker

import (
	"context"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/store"
)

// Tracker caches one persistent search's resolved base entry identity.
// It is not safe for concurrent use; callers serialize access to it the
// same way they serialize access to the rest of the persistent-search
// record (via the search's own mutex).
type Tracker struct {
	baseNDN  string
	resolved bool
	entryID  uuid.UUID // identity of the entry currently at baseNDN
}

// New returns a Tracker for the given normalized base DN. It resolves
// nothing until the first call to Check.
func New(baseNDN string) *Tracker {
	return &Tracker{baseNDN: baseNDN}
}

// Check resolves the base entry on first call ("find-base") and on every
// subsequent call asserts it still resolves to the same entry identity.
// It returns a refresh-required error (via the errors package's
// RefreshRequired domain) if the base has moved, been renamed away, or
// been replaced by a different entry.
func (t *Tracker) Check(ctx context.Context, s store.Store) error {
	e, err := s.GetByNDN(ctx, t.baseNDN)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.RefreshRequired("persistent search base no longer exists: " + t.baseNDN)
		}
		return errors.Internal(err, "resolving persistent search base")
	}

	if !t.resolved {
		t.entryID = e.UUID
		t.resolved = true
		return nil
	}

	if e.UUID != t.entryID {
		return errors.RefreshRequired("persistent search base was replaced: " + t.baseNDN)
	}
	return nil
}

// Invalidate marks the tracker as unresolved so the next Check performs a
// fresh find-base. Called after a write to the base DN itself (the
// "wrote_base" flag in §4.5 step 2), since the base's identity may have
// changed even though the DN string did not.
func (t *Tracker) Invalidate() {
	t.resolved = false
}
