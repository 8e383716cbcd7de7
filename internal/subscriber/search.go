// Package subscriber implements the persistent-search record, its
// pending-event queue, and the drainer that serializes queued events onto
// the wire (§3 "Persistent-search record", §4.6).
package subscriber

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/internal/basetracker"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/scope"
)

// Mode classifies a pending event.
type Mode int

const (
	ModeAdd Mode = iota
	ModeModify
	ModeDelete
)

// Event is one queued change for a single subscriber.
type Event struct {
	DN          string
	NDN         string
	UUID        uuid.UUID
	CSN         csn.CSN
	Mode        Mode
	IsReference bool
}

// Search is one live persistent search: the in-memory record a detached
// operation is reduced to (§4.8). Every field except the embedded mutex
// and refcount is protected by Mu; callers (matcher, drainer, refresh
// engine) must hold Mu while touching them.
type Search struct {
	Mu sync.Mutex

	RID        string
	BaseNDN    string
	Scope      scope.Scope
	Filter     scope.Filter
	FilterText string

	Tracker *basetracker.Tracker

	Refreshing      bool
	Detached        bool
	WroteBase       bool
	FindBasePending bool
	Abandoned       bool

	queue []Event

	refcount int32 // atomic; see Ref/Unref
}

// New returns a freshly registered, not-yet-refreshing Search.
func New(rid, baseNDN string, sc scope.Scope, f scope.Filter, filterText string) *Search {
	return &Search{
		RID:             rid,
		BaseNDN:         baseNDN,
		Scope:           sc,
		Filter:          f,
		FilterText:      filterText,
		Tracker:         basetracker.New(baseNDN),
		FindBasePending: true,
	}
}

// Ref increments the reference count. Both the matcher (while enqueueing)
// and the drainer (while running) hold a reference; the search is only
// reclaimed once the count returns to zero.
func (s *Search) Ref() { atomic.AddInt32(&s.refcount, 1) }

// Unref decrements the reference count and reports whether it reached
// zero, meaning the caller may now free the Search.
func (s *Search) Unref() bool {
	return atomic.AddInt32(&s.refcount, -1) == 0
}

// Enqueue appends an event to the pending queue, in commit order
// (Invariant 3: callers append in the order the write hook observed
// them). Returns true if the queue was empty before this call. The
// provider's write path ignores this result and kicks the drainer after
// every enqueue.
func (s *Search) Enqueue(e Event) (wasEmpty bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	wasEmpty = len(s.queue) == 0
	s.queue = append(s.queue, e)
	return wasEmpty
}

// Pop removes and returns the head event, or reports ok=false if the
// queue is empty.
func (s *Search) Pop() (ev Event, ok bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev = s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// QueueLen reports the number of pending events, for tests and metrics.
func (s *Search) QueueLen() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return len(s.queue)
}

// MarkAbandoned sets the abandon flag; the drainer and mod serializer
// both check this flag cooperatively rather than being interrupted.
func (s *Search) MarkAbandoned() {
	s.Mu.Lock()
	s.Abandoned = true
	s.Mu.Unlock()
}

// IsAbandoned reports the current abandon flag.
func (s *Search) IsAbandoned() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Abandoned
}
