// Package matcher implements the event matcher: pre-write and post-write
// evaluation of a completed write against the live persistent-search set,
// classifying the event as add/modify/delete for each subscriber (§4.5).
package matcher

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/internal/subscriber"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/store"
)

// OpCookie is the per-write scratch record threaded from PreWrite to
// PostWrite (§3 "Operation cookie"). It lives only for the duration of
// one write.
type OpCookie struct {
	DN          string
	NDN         string
	UUID        uuid.UUID
	IsReference bool
	PreMatches  []*subscriber.Search
}

// Terminator is notified when a search must be torn down because its
// base was invalidated (§4.4's refresh-required signal). The provider
// supplies this to actually stop the drainer and unregister the search;
// the matcher itself only detects the condition.
type Terminator func(s *subscriber.Search, cause error)

// Matcher holds the registry of live persistent searches and evaluates
// writes against them.
type Matcher struct {
	mu       sync.RWMutex
	searches map[string]*subscriber.Search // keyed by RID

	terminate Terminator
}

// New returns an empty Matcher. terminate is called (synchronously, from
// within PreWrite/PostWrite) whenever a search's base has been
// invalidated.
func New(terminate Terminator) *Matcher {
	return &Matcher{searches: make(map[string]*subscriber.Search), terminate: terminate}
}

// Register adds s to the live set evaluated by every subsequent write.
func (m *Matcher) Register(s *subscriber.Search) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches[s.RID] = s
}

// Unregister removes s from the live set.
func (m *Matcher) Unregister(rid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.searches, rid)
}

// snapshot returns a stable slice of the currently registered searches,
// so a full PreWrite/PostWrite pass never holds the registry lock while
// calling into the store.
func (m *Matcher) snapshot() []*subscriber.Search {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*subscriber.Search, 0, len(m.searches))
	for _, s := range m.searches {
		out = append(out, s)
	}
	return out
}

// checkBase refreshes s's base tracker and, on invalidation, terminates
// the search and reports false (the caller should skip evaluating s
// further).
func (m *Matcher) checkBase(ctx context.Context, st store.Store, s *subscriber.Search) bool {
	s.Mu.Lock()
	if s.WroteBase {
		s.Tracker.Invalidate()
		s.WroteBase = false
	}
	err := s.Tracker.Check(ctx, st)
	s.Mu.Unlock()

	if err != nil {
		m.Unregister(s.RID)
		if m.terminate != nil {
			m.terminate(s, err)
		}
		return false
	}
	return true
}

func matches(s *subscriber.Search, ndn string, attrs scope.Attrs) bool {
	return scope.Matches(ndn, s.BaseNDN, s.Scope) && s.Filter.Matches(attrs)
}

// PreWrite is invoked before the store executes a non-Add write, with the
// entry's current (pre-write) attributes. It returns the op cookie
// carrying every search the entry currently matches, pinned (Ref'd) so
// they cannot be freed before PostWrite runs.
func (m *Matcher) PreWrite(ctx context.Context, st store.Store, dn, ndn string, id uuid.UUID, attrs scope.Attrs) *OpCookie {
	cookie := &OpCookie{DN: dn, NDN: ndn, UUID: id}
	for _, s := range m.snapshot() {
		if !m.checkBase(ctx, st, s) {
			continue
		}
		if matches(s, ndn, attrs) {
			s.Ref()
			cookie.PreMatches = append(cookie.PreMatches, s)
		}
	}
	return cookie
}

// PostWrite is invoked after the write commits. For Add, cookie is nil
// (PreWrite never ran) and isAdd is true; for Delete, attrs is the
// entry's last-known (pre-delete) attributes, since nothing can be
// re-fetched. newNDN is the post-write normalized DN (relevant for
// ModRDN; equal to ndn for every other op type).
//
// It returns, per matched search, the subscriber.Mode of the event to
// enqueue on that search — the caller (the write-path hook) is responsible for
// actually calling Search.Enqueue and kicking the drainer, since only it
// knows the write's final committed CSN.
func (m *Matcher) PostWrite(ctx context.Context, st store.Store, cookie *OpCookie, dn, ndn, newNDN string, id uuid.UUID, attrs scope.Attrs, isAdd, isDelete bool) map[*subscriber.Search]subscriber.Mode {
	results := make(map[*subscriber.Search]subscriber.Mode)

	if isDelete {
		if cookie == nil {
			return results
		}
		for _, s := range cookie.PreMatches {
			results[s] = subscriber.ModeDelete
			if s.Unref() {
				logger.MatcherWarnw("search released during delete post-write", "rid", s.RID)
			}
		}
		return results
	}

	searches := m.snapshot()
	if isAdd {
		// Add has no pre-write pass; evaluate fresh against every live search.
		for _, s := range searches {
			if !m.checkBase(ctx, st, s) {
				continue
			}
			if matches(s, newNDN, attrs) {
				results[s] = subscriber.ModeAdd
			}
		}
		return results
	}

	wasPre := make(map[*subscriber.Search]bool, len(cookie.PreMatches))
	for _, s := range cookie.PreMatches {
		wasPre[s] = true
	}

	for _, s := range searches {
		if dn == s.BaseNDN {
			s.Mu.Lock()
			s.WroteBase = true
			s.Mu.Unlock()
		}
		if !m.checkBase(ctx, st, s) {
			continue
		}

		pre := wasPre[s]
		if matches(s, newNDN, attrs) {
			if pre {
				results[s] = subscriber.ModeModify
			} else {
				results[s] = subscriber.ModeAdd
			}
		} else if pre {
			results[s] = subscriber.ModeDelete
		}
	}

	// Release the reference PreWrite pinned on every pre-matched search,
	// exactly once, whether or not it is still live.
	for _, s := range cookie.PreMatches {
		s.Unref()
	}

	return results
}
