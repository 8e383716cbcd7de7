// Package sessionlog implements the bounded in-memory FIFO of recent write
// records that lets the refresh engine serve a catch-up request without a
// full present-phase scan of the store.
package sessionlog

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/internal/csn"
)

// OpTag classifies the write that produced a session-log record.
type OpTag int

const (
	OpAdd OpTag = iota
	OpModify
	OpModRDN
	OpDelete
)

// Record is one entry in the session log.
type Record struct {
	UUID uuid.UUID
	CSN  csn.CSN
	Tag  OpTag
}

// Log is a capacity-bounded ring buffer of Records ordered by append time,
// with a tracked minimum CSN. Duplicate-UUID collapsing happens on replay,
// not on append — see ReplaySince.
//
// Capacity 0 disables the log entirely (config key "sessionlog" = 0):
// Append becomes a no-op and CanServe always reports false.
type Log struct {
	mu       sync.Mutex
	capacity int
	buf      []Record
	head     int // index of oldest record
	size     int
}

// New returns a Log with the given record capacity.
func New(capacity int) *Log {
	l := &Log{capacity: capacity}
	if capacity > 0 {
		l.buf = make([]Record, capacity)
	}
	return l
}

// Enabled reports whether this log has non-zero capacity.
func (l *Log) Enabled() bool { return l.capacity > 0 }

// Append always records a new entry at the tail, evicting the oldest
// record on overflow — it never merges into an existing slot for the same
// UUID. Collapsing repeated writes to the same entry into a single record
// is ReplaySince's job, scoped to the window it is asked to replay, per
// §4.2.
func (l *Log) Append(id uuid.UUID, c csn.CSN, tag OpTag) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tail := (l.head + l.size) % l.capacity
	if l.size == l.capacity {
		l.head = (l.head + 1) % l.capacity
		l.size--
	}
	l.buf[tail] = Record{UUID: id, CSN: c, Tag: tag}
	l.size++
}

// MinCSN returns the CSN of the oldest record currently held, or the zero
// CSN if the log is empty or disabled.
func (l *Log) MinCSN() csn.CSN {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return ""
	}
	return l.buf[l.head].CSN
}

// CanServe reports whether the log holds enough history to answer a
// refresh for a consumer last seen at oldCSN: it can if the log is
// enabled, non-empty, and oldCSN is not older than the log's min CSN.
func (l *Log) CanServe(oldCSN csn.CSN) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return false
	}
	return oldCSN.Compare(l.buf[l.head].CSN) >= 0
}

// ReplaySince partitions records with CSN in (oldCSN, ctxCSN] into deletes
// and candidates (adds/modifies/modrdns that the caller should re-probe
// against the store, since the log only records that *something* happened
// to that UUID, not its current visibility). Within that window, repeated
// records for the same UUID (e.g. "add then modify", "modify then
// delete") are collapsed to the single latest one before classifying —
// the duplicate-collapsing §4.2 describes. Deletes are returned first,
// matching §4.2's "placed front" ordering for the resulting ID-set.
func (l *Log) ReplaySince(oldCSN, ctxCSN csn.CSN) (deletes, candidates []uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	latest := make(map[uuid.UUID]Record)
	order := make([]uuid.UUID, 0, l.size)
	for i := 0; i < l.size; i++ {
		r := l.buf[(l.head+i)%l.capacity]
		if r.CSN.Compare(oldCSN) <= 0 || r.CSN.Compare(ctxCSN) > 0 {
			continue
		}
		if _, seen := latest[r.UUID]; !seen {
			order = append(order, r.UUID)
		}
		latest[r.UUID] = r // later records in scan order overwrite earlier ones
	}

	for _, id := range order {
		r := latest[id]
		if r.Tag == OpDelete {
			deletes = append(deletes, r.UUID)
		} else {
			candidates = append(candidates, r.UUID)
		}
	}
	return deletes, candidates
}
