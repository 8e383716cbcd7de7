package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/checkpoint"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/refresh"
	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/internal/subscriber"
	"github.com/dirsync/syncprov/protocol"
	"github.com/dirsync/syncprov/store"
)

// fakeStore is a minimal in-memory store.Store good enough to drive the
// provider end-to-end without a real database.
type fakeStore struct {
	mu       sync.Mutex
	suffix   string
	byNDN    map[string]*store.Entry
	byUUID   map[uuid.UUID]*store.Entry
	byCSN    map[csn.CSN]*store.Entry
	ctxCSN   csn.CSN
}

func newFakeStore(suffix string) *fakeStore {
	return &fakeStore{
		suffix: suffix,
		byNDN:  make(map[string]*store.Entry),
		byUUID: make(map[uuid.UUID]*store.Entry),
		byCSN:  make(map[csn.CSN]*store.Entry),
	}
}

func (s *fakeStore) SuffixDN() string { return s.suffix }

func (s *fakeStore) put(e *store.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.byNDN[e.NDN] = &cp
	s.byUUID[e.UUID] = &cp
	s.byCSN[e.CSN] = &cp
}

func (s *fakeStore) remove(ndn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byNDN[ndn]
	if !ok {
		return
	}
	delete(s.byNDN, ndn)
	delete(s.byUUID, e.UUID)
}

func (s *fakeStore) GetByNDN(ctx context.Context, ndn string) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byNDN[ndn]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) GetByUUID(ctx context.Context, id uuid.UUID) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byUUID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) ExistsWithCSNEqual(ctx context.Context, c csn.CSN) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byCSN[c]
	return ok, nil
}

func (s *fakeStore) ExistsWithCSNLessEqual(ctx context.Context, c csn.CSN) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for candidate := range s.byCSN {
		if candidate.Compare(c) <= 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Search(ctx context.Context, base string, sc scope.Scope, f scope.Filter, minCSN, maxCSN csn.CSN, visit store.Visitor) error {
	s.mu.Lock()
	var matched []*store.Entry
	for _, e := range s.byNDN {
		if !scope.Matches(e.NDN, base, sc) {
			continue
		}
		if !f.Matches(e.Attrs) {
			continue
		}
		if minCSN != "" && e.CSN.Compare(minCSN) < 0 {
			continue
		}
		if maxCSN != "" && e.CSN.Compare(maxCSN) > 0 {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	s.mu.Unlock()

	for _, e := range matched {
		if err := visit(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) ContextCSN(ctx context.Context) (csn.CSN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxCSN, nil
}

func (s *fakeStore) ReplaceContextCSN(ctx context.Context, c csn.CSN) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxCSN = c
	return nil
}

// fakeConn records everything sent to it, satisfying both refresh.Sink and
// subscriber.Conn.
type fakeConn struct {
	mu       sync.Mutex
	entries  []*store.Entry
	infos    []protocol.SyncInfoMessage
	dones    []protocol.SyncDoneControl
	outgoing []subscriber.OutgoingEntry
}

func (c *fakeConn) SendEntry(ctx context.Context, e *store.Entry, cookie []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *fakeConn) SendInfo(ctx context.Context, msg protocol.SyncInfoMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = append(c.infos, msg)
	return nil
}

func (c *fakeConn) SendDone(ctx context.Context, done protocol.SyncDoneControl) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dones = append(c.dones, done)
	return nil
}

// subscriber.Conn
func (c *fakeConn) SendEvent(ctx context.Context, e subscriber.OutgoingEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outgoing = append(c.outgoing, e)
	return nil
}

func newTestProvider(t *testing.T, st store.Store) *Provider {
	t.Helper()
	p, err := New(context.Background(), st, Config{
		ServerID:       1,
		SessionLogSize: 100,
		Checkpoint:     checkpoint.Thresholds{Ops: 1_000_000, Interval: time.Hour},
		CheckpointPoll: time.Hour,
		DrainerIdle:    20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func addEntry(t *testing.T, p *Provider, st *fakeStore, dn string, attrs scope.Attrs) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := p.CompleteWrite(context.Background(), WriteRequest{
		DN: dn, NDN: dn, UUID: id, OpType: OpAdd, PostAttrs: attrs,
		Commit: func(ctx context.Context, assigned csn.CSN) error {
			st.put(&store.Entry{DN: dn, NDN: dn, UUID: id, CSN: assigned, Attrs: attrs})
			return nil
		},
	})
	require.NoError(t, err)
	return id
}

// Scenario 1 (spec.md §8): a fresh refresh-only search with no cookie sees
// every current entry via the present-phase scan and terminates with a
// sync-done control.
func TestScenarioInitialRefreshOnly(t *testing.T) {
	st := newFakeStore("dc=example,dc=com")
	p := newTestProvider(t, st)

	addEntry(t, p, st, "cn=a,dc=example,dc=com", scope.Attrs{"objectclass": {"person"}})
	addEntry(t, p, st, "cn=b,dc=example,dc=com", scope.Attrs{"objectclass": {"person"}})

	conn := &fakeConn{}
	persist, err := p.BeginSearch(context.Background(), BeginSearchRequest{
		RID: "r1", Mode: protocol.ModeRefreshOnly,
		BaseNDN: "dc=example,dc=com", Scope: scope.Subtree, Filter: scope.Present("objectClass"),
		Conn: conn,
	})
	require.NoError(t, err)
	assert.False(t, persist)
	assert.Len(t, conn.entries, 2)
	require.Len(t, conn.dones, 1)
}

// Scenario 2: refresh-and-persist detaches, then a write matching scope
// is delivered to the subscriber's drainer.
func TestScenarioDetachThenLiveWrite(t *testing.T) {
	st := newFakeStore("dc=example,dc=com")
	p := newTestProvider(t, st)

	// The persistent search's base must resolve in the store for the
	// matcher's base tracker to pass on the first post-detach write.
	addEntry(t, p, st, "dc=example,dc=com", scope.Attrs{"objectclass": {"domain"}})

	conn := &fakeConn{}
	persist, err := p.BeginSearch(context.Background(), BeginSearchRequest{
		RID: "r2", Mode: protocol.ModeRefreshAndPersist,
		BaseNDN: "dc=example,dc=com", Scope: scope.Subtree, Filter: scope.Present("objectClass"),
		Conn: conn,
	})
	require.NoError(t, err)
	assert.True(t, persist)
	require.Len(t, conn.infos, 1)

	addEntry(t, p, st, "cn=new,dc=example,dc=com", scope.Attrs{"objectclass": {"person"}})

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.outgoing) == 1
	}, time.Second, 5*time.Millisecond)
}

// Scenario 3: a refresh-and-persist request whose cookie already equals
// the context CSN still detaches, with no entries streamed.
func TestScenarioAlreadyCurrentPersistStillDetaches(t *testing.T) {
	st := newFakeStore("dc=example,dc=com")
	p := newTestProvider(t, st)

	addEntry(t, p, st, "cn=a,dc=example,dc=com", scope.Attrs{"objectclass": {"person"}})
	current := p.SynthesizeSuffixRead()
	cookie, err := protocol.EncodeCookie("r3", current)
	require.NoError(t, err)

	conn := &fakeConn{}
	persist, err := p.BeginSearch(context.Background(), BeginSearchRequest{
		RID: "r3", Mode: protocol.ModeRefreshAndPersist, Cookie: cookie,
		BaseNDN: "dc=example,dc=com", Scope: scope.Subtree, Filter: scope.Present("objectClass"),
		Conn: conn,
	})
	require.NoError(t, err)
	assert.True(t, persist)
	assert.Empty(t, conn.entries)
	require.Len(t, conn.infos, 1)
}

// Scenario (Open Question resolution): a cookie naming a CSN newer than
// the context CSN is a protocol error, not a refresh-required signal.
func TestScenarioFutureCookieIsProtocolError(t *testing.T) {
	st := newFakeStore("dc=example,dc=com")
	p := newTestProvider(t, st)

	future, err := protocol.EncodeCookie("r4", "99999999999999.999999Z#ffffff#001#000000")
	require.NoError(t, err)

	conn := &fakeConn{}
	_, err = p.BeginSearch(context.Background(), BeginSearchRequest{
		RID: "r4", Mode: protocol.ModeRefreshOnly, Cookie: future,
		BaseNDN: "dc=example,dc=com", Scope: scope.Subtree, Filter: scope.Present("objectClass"),
		Conn: conn,
	})
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
}

// A modify that carries an entry out of the search's filter is delivered
// to a detached subscriber as a delete.
func TestScenarioModifyOutOfScopeDeliversDelete(t *testing.T) {
	st := newFakeStore("dc=example,dc=com")
	p := newTestProvider(t, st)

	addEntry(t, p, st, "ou=in,dc=example,dc=com", scope.Attrs{"objectclass": {"organizationalUnit"}})
	id := addEntry(t, p, st, "cn=a,ou=in,dc=example,dc=com", scope.Attrs{"objectclass": {"person"}, "ou": {"in"}})

	// Filtering on "ou" (rather than the ever-present objectClass) lets a
	// modify that changes that attribute's value carry the entry out of
	// the search's filter without moving its DN out of scope.
	conn := &fakeConn{}
	persist, err := p.BeginSearch(context.Background(), BeginSearchRequest{
		RID: "r5", Mode: protocol.ModeRefreshAndPersist,
		BaseNDN: "ou=in,dc=example,dc=com", Scope: scope.Subtree, Filter: scope.Equality("ou", "in"),
		Conn: conn,
	})
	require.NoError(t, err)
	require.True(t, persist)

	dn := "cn=a,ou=in,dc=example,dc=com"
	newAttrs := scope.Attrs{"objectclass": {"person"}, "ou": {"out"}}
	_, err = p.CompleteWrite(context.Background(), WriteRequest{
		DN: dn, NDN: dn, UUID: id, OpType: OpModify,
		PreAttrs:  scope.Attrs{"objectclass": {"person"}, "ou": {"in"}},
		PostAttrs: newAttrs,
		Commit: func(ctx context.Context, assigned csn.CSN) error {
			st.put(&store.Entry{DN: dn, NDN: dn, UUID: id, CSN: assigned, Attrs: newAttrs})
			return nil
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		if len(conn.outgoing) != 1 {
			return false
		}
		return conn.outgoing[0].Mode == subscriber.ModeDelete
	}, time.Second, 5*time.Millisecond)
}

// Abandoning a persistent search stops its drainer and further writes are
// no longer delivered.
func TestAbandonStopsDelivery(t *testing.T) {
	st := newFakeStore("dc=example,dc=com")
	p := newTestProvider(t, st)

	conn := &fakeConn{}
	_, err := p.BeginSearch(context.Background(), BeginSearchRequest{
		RID: "r6", Mode: protocol.ModeRefreshAndPersist,
		BaseNDN: "dc=example,dc=com", Scope: scope.Subtree, Filter: scope.Present("objectClass"),
		Conn: conn,
	})
	require.NoError(t, err)

	p.Abandon("r6")

	addEntry(t, p, st, "cn=new,dc=example,dc=com", scope.Attrs{"objectclass": {"person"}})

	time.Sleep(30 * time.Millisecond)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Empty(t, conn.outgoing)
}

var _ refresh.Sink = (*fakeConn)(nil)
var _ subscriber.Conn = (*fakeConn)(nil)
var _ Conn = (*fakeConn)(nil)
