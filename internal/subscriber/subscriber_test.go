package subscriber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/store"
)

func TestEnqueueOrderPreserved(t *testing.T) {
	s := New("001", "ou=a,dc=example,dc=com", scope.Subtree, scope.Present("objectClass"), "(objectClass=*)")
	id1, id2 := uuid.New(), uuid.New()
	wasEmpty1 := s.Enqueue(Event{UUID: id1, Mode: ModeAdd})
	wasEmpty2 := s.Enqueue(Event{UUID: id2, Mode: ModeModify})

	assert.True(t, wasEmpty1)
	assert.False(t, wasEmpty2)

	ev, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, id1, ev.UUID)

	ev, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, id2, ev.UUID)

	_, ok = s.Pop()
	assert.False(t, ok)
}

func TestRefUnref(t *testing.T) {
	s := New("001", "ou=a,dc=example,dc=com", scope.Subtree, scope.Present("objectClass"), "(objectClass=*)")
	s.Ref()
	s.Ref()
	assert.False(t, s.Unref())
	assert.True(t, s.Unref())
}

type fakeStore struct {
	store.Store
	entries map[string]*store.Entry // keyed by NDN
}

func (f *fakeStore) GetByNDN(ctx context.Context, ndn string) (*store.Entry, error) {
	e, ok := f.entries[ndn]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

type fakeConn struct {
	mu  sync.Mutex
	got []OutgoingEntry
}

func (f *fakeConn) SendEvent(ctx context.Context, e OutgoingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return nil
}

func (f *fakeConn) all() []OutgoingEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]OutgoingEntry, len(f.got))
	copy(out, f.got)
	return out
}

func TestDrainerDeliversQueuedEvents(t *testing.T) {
	s := New("001", "ou=a,dc=example,dc=com", scope.Subtree, scope.Present("objectClass"), "(objectClass=*)")
	id := uuid.New()
	ndn := "cn=x,ou=a,dc=example,dc=com"
	fs := &fakeStore{entries: map[string]*store.Entry{ndn: {UUID: id, NDN: ndn}}}
	conn := &fakeConn{}

	d := NewDrainer(s, fs, conn, func(c csn.CSN) []byte { return []byte(c) }, func() csn.CSN { return "c1" }, 50*time.Millisecond)
	d.Start()
	defer d.Stop()

	s.Enqueue(Event{UUID: id, NDN: ndn, Mode: ModeAdd})
	d.Kick()

	require.Eventually(t, func() bool { return len(conn.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, id, conn.all()[0].UUID)
}

func TestDrainerSkipsMissingEntryOnAdd(t *testing.T) {
	s := New("001", "ou=a,dc=example,dc=com", scope.Subtree, scope.Present("objectClass"), "(objectClass=*)")
	fs := &fakeStore{entries: map[string]*store.Entry{}}
	conn := &fakeConn{}

	d := NewDrainer(s, fs, conn, func(c csn.CSN) []byte { return []byte(c) }, func() csn.CSN { return "c1" }, 50*time.Millisecond)
	d.Start()
	defer d.Stop()

	s.Enqueue(Event{UUID: uuid.New(), NDN: "cn=missing,ou=a,dc=example,dc=com", Mode: ModeAdd})
	d.Kick()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, conn.all(), "missing entry on add/modify must be skipped, not errored")
}

func TestDrainerDeliversDeleteWithoutStoreLookup(t *testing.T) {
	s := New("001", "ou=a,dc=example,dc=com", scope.Subtree, scope.Present("objectClass"), "(objectClass=*)")
	fs := &fakeStore{entries: map[string]*store.Entry{}}
	conn := &fakeConn{}
	id := uuid.New()

	d := NewDrainer(s, fs, conn, func(c csn.CSN) []byte { return []byte(c) }, func() csn.CSN { return "c1" }, 50*time.Millisecond)
	d.Start()
	defer d.Stop()

	s.Enqueue(Event{UUID: id, NDN: "cn=x,ou=a,dc=example,dc=com", Mode: ModeDelete})
	d.Kick()

	require.Eventually(t, func() bool { return len(conn.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ModeDelete, conn.all()[0].Mode)
}

func TestDrainerAbandonedSearchDiscardsEvents(t *testing.T) {
	s := New("001", "ou=a,dc=example,dc=com", scope.Subtree, scope.Present("objectClass"), "(objectClass=*)")
	fs := &fakeStore{entries: map[string]*store.Entry{}}
	conn := &fakeConn{}

	d := NewDrainer(s, fs, conn, func(c csn.CSN) []byte { return []byte(c) }, func() csn.CSN { return "c1" }, 50*time.Millisecond)
	d.Start()
	defer d.Stop()

	s.MarkAbandoned()
	s.Enqueue(Event{UUID: uuid.New(), NDN: "cn=x,ou=a,dc=example,dc=com", Mode: ModeAdd})
	d.Kick()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, conn.all())
}
