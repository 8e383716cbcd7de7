// Package provider implements the sync-provider core: the write-path and
// search-path hooks that tie the CSN clock, session log, mod serializer,
// event matcher, per-subscriber queues, refresh engine, and checkpoint
// ticker into the engine described in the sync-provider overview.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/checkpoint"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/matcher"
	"github.com/dirsync/syncprov/internal/modserial"
	"github.com/dirsync/syncprov/internal/refresh"
	"github.com/dirsync/syncprov/internal/sessionlog"
	"github.com/dirsync/syncprov/internal/subscriber"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/protocol"
	"github.com/dirsync/syncprov/store"
)

// Config bundles the server id and the tunables the provider needs
// beyond the store it is constructed with.
type Config struct {
	ServerID       uint16
	SessionLogSize int
	Checkpoint     checkpoint.Thresholds
	CheckpointPoll time.Duration
	Refresh        refresh.Config
	DrainerIdle    time.Duration
}

// Provider is the sync-provider core. One Provider is created per
// directory-server suffix it is watching.
type Provider struct {
	st     store.Store
	clock  *csn.Clock
	minter *csn.Minter
	log    *sessionlog.Log
	mods   *modserial.Serializer
	match  *matcher.Matcher
	ticker *checkpoint.Ticker
	refCfg refresh.Config

	drainerIdle time.Duration

	searchesMu sync.Mutex
	searches   map[string]*liveSearch
}

type liveSearch struct {
	search  *subscriber.Search
	drainer *subscriber.Drainer
}

// New constructs a Provider, loading the current context CSN from st.
func New(ctx context.Context, st store.Store, cfg Config) (*Provider, error) {
	initial, err := st.ContextCSN(ctx)
	if err != nil {
		return nil, errors.Internal(err, "loading initial context CSN")
	}

	p := &Provider{
		st:          st,
		clock:       csn.NewClock(initial),
		minter:      csn.NewMinter(cfg.ServerID),
		log:         sessionlog.New(cfg.SessionLogSize),
		mods:        modserial.New(),
		refCfg:      cfg.Refresh,
		drainerIdle: cfg.DrainerIdle,
		searches:    make(map[string]*liveSearch),
	}
	p.match = matcher.New(p.terminateSearch)

	pollInterval := cfg.CheckpointPoll
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	p.ticker = checkpoint.New(p.clock, st, cfg.Checkpoint, pollInterval)
	p.ticker.Start()

	if p.drainerIdle <= 0 {
		p.drainerIdle = 2 * time.Second
	}

	return p, nil
}

// Close stops the checkpoint ticker (performing a final checkpoint) and
// every live drainer.
func (p *Provider) Close(ctx context.Context) {
	p.ticker.Stop(ctx)

	p.searchesMu.Lock()
	live := make([]*liveSearch, 0, len(p.searches))
	for _, ls := range p.searches {
		live = append(live, ls)
	}
	p.searches = make(map[string]*liveSearch)
	p.searchesMu.Unlock()

	for _, ls := range live {
		ls.drainer.Stop()
	}
}

// CompareContextCSN answers a compare operation against the suffix
// entry's contextCSN attribute synthetically from the in-memory clock,
// without touching the store (§4.10).
func (p *Provider) CompareContextCSN(target csn.CSN) bool {
	return p.clock.Get().Compare(target) == 0
}

// SynthesizeSuffixRead returns the context CSN to attach to a read of the
// suffix entry's operational attributes (§4.10).
func (p *Provider) SynthesizeSuffixRead() csn.CSN {
	return p.clock.Get()
}

// terminateSearch is the matcher's Terminator callback: it stops and
// unregisters a persistent search whose base was invalidated, logging
// the refresh-required cause.
func (p *Provider) terminateSearch(s *subscriber.Search, cause error) {
	logger.ProviderInfow("persistent search terminated", "rid", s.RID, "err", cause)
	p.searchesMu.Lock()
	ls, ok := p.searches[s.RID]
	delete(p.searches, s.RID)
	p.searchesMu.Unlock()
	if ok {
		ls.drainer.Stop()
	}
}

func (p *Provider) composeCookie(rid string) func(csn.CSN) []byte {
	return func(c csn.CSN) []byte {
		b, err := protocol.EncodeCookie(rid, c)
		if err != nil {
			logger.ProviderErrorw("failed to compose cookie", "rid", rid, "err", err)
			return nil
		}
		return b
	}
}
