// Package store declares the contract the sync provider requires from the
// directory entry store. The store itself — on-disk format, indexing,
// ACL evaluation — is out of this module's scope; internal/entrystore
// provides one concrete (SQLite-backed) implementation of this interface
// for the reference cmd/syncprovd binary and for integration tests.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/scope"
)

// ErrNotFound is returned by the lookup methods when no entry matches.
var ErrNotFound = errors.New("store: entry not found")

// Entry is a directory entry as the sync provider needs to see it: enough
// to evaluate scope and filter, emit a sync-state control, and detect
// whether the entry named by a cookie's CSN still exists.
type Entry struct {
	DN    string
	NDN   string // normalized DN
	UUID  uuid.UUID
	CSN   csn.CSN // this entry's entryCSN, i.e. the CSN of its last write
	Attrs scope.Attrs
}

// Visitor is called once per matching entry during a Search. Returning an
// error aborts the scan and that error is propagated to the Search caller.
type Visitor func(*Entry) error

// Store is the contract the sync provider requires of the directory entry
// store it is embedded in.
type Store interface {
	// SuffixDN returns the normalized DN of the backend suffix entry that
	// carries the contextCSN operational attribute.
	SuffixDN() string

	// GetByNDN returns the entry at the given normalized DN, or
	// ErrNotFound.
	GetByNDN(ctx context.Context, ndn string) (*Entry, error)

	// GetByUUID returns the entry with the given UUID, or ErrNotFound.
	GetByUUID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ExistsWithCSNEqual reports whether any entry currently has
	// entryCSN == c (used by the refresh engine's CSN probe, §4.7 step 3b).
	ExistsWithCSNEqual(ctx context.Context, c csn.CSN) (bool, error)

	// ExistsWithCSNLessEqual reports whether any entry currently has
	// entryCSN <= c (the tolerant fallback probe, §4.7 step 3b).
	ExistsWithCSNLessEqual(ctx context.Context, c csn.CSN) (bool, error)

	// Search iterates every entry under base within scope s matching
	// filter f and with minCSN <= entryCSN <= maxCSN (the present-phase
	// scan's server-side bound, rewriting the original filter to
	// AND(entryCSN >= cookieCSN, original-filter) per §4.7 step 5),
	// calling visit for each in ascending entryCSN order. An empty bound
	// ("") means unbounded on that side.
	Search(ctx context.Context, base string, s scope.Scope, f scope.Filter, minCSN, maxCSN csn.CSN, visit Visitor) error

	// ContextCSN reads the persisted contextCSN operational attribute off
	// the suffix entry (used once, at provider startup).
	ContextCSN(ctx context.Context) (csn.CSN, error)

	// ReplaceContextCSN writes back the contextCSN operational attribute
	// on the suffix entry, bypassing any write hook registered on this
	// store so that the checkpoint write does not recurse into the sync
	// provider (§4.9).
	ReplaceContextCSN(ctx context.Context, c csn.CSN) error
}
