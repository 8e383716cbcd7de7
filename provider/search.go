package provider

import (
	"context"

	"github.com/dirsync/syncprov/internal/refresh"
	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/internal/subscriber"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/protocol"
)

// Conn is what a caller driving the search-path hook must supply: the
// refresh engine streams through it during the refresh phase, and, if the
// request detaches, the drainer streams through it for as long as the
// persistent search lives.
type Conn interface {
	refresh.Sink
	subscriber.Conn
}

// BeginSearchRequest is the decoded sync control plus the search's
// base/scope/filter, as handed to the search-path hook.
type BeginSearchRequest struct {
	RID        string
	Mode       protocol.RequestMode
	Cookie     []byte
	ReloadHint bool

	BaseNDN    string
	Scope      scope.Scope
	Filter     scope.Filter
	FilterText string

	Conn Conn
}

// BeginSearch is the search-path hook (§2 "Search-path hook", §4.7,
// §4.8): it runs the refresh engine against req's cookie and scope, and,
// for a refresh-and-persist request that completed refresh cleanly,
// detaches into a live persistent search streaming future events.
//
// It reports whether the request is now a detached persistent search
// (true) or has fully terminated with a sync-done control already sent
// (false).
func (p *Provider) BeginSearch(ctx context.Context, req BeginSearchRequest) (bool, error) {
	engine := refresh.New(p.clock, p.log, p.st, p.refCfg)

	persist, err := engine.Run(ctx, refresh.Request{
		RID:        req.RID,
		Mode:       req.Mode,
		Cookie:     req.Cookie,
		ReloadHint: req.ReloadHint,
		BaseNDN:    req.BaseNDN,
		Scope:      req.Scope,
		Filter:     req.Filter,
	}, req.Conn)
	if err != nil {
		return false, err
	}
	if !persist {
		return false, nil
	}

	p.detach(req)
	return true, nil
}

// detach constructs the persistent-search record and its drainer and
// registers both with the matcher and the provider's live-search table
// (§4.8). From this point the search is evaluated on every write via
// Provider.CompleteWrite rather than by any code on this call stack.
func (p *Provider) detach(req BeginSearchRequest) {
	s := subscriber.New(req.RID, req.BaseNDN, req.Scope, req.Filter, req.FilterText)
	s.Mu.Lock()
	s.Detached = true
	s.Mu.Unlock()

	p.match.Register(s)

	d := subscriber.NewDrainer(s, p.st, req.Conn, p.composeCookie(req.RID), p.clock.Get, p.drainerIdle)
	d.Start()

	p.searchesMu.Lock()
	p.searches[req.RID] = &liveSearch{search: s, drainer: d}
	p.searchesMu.Unlock()

	logger.ProviderInfow("persistent search attached", "rid", req.RID, "base", req.BaseNDN)
}

// Abandon tears down a persistent search in response to an abandon
// request or a dropped connection (§3 "Abandoned"). It is idempotent:
// abandoning an unknown or already-torn-down RID is a no-op.
func (p *Provider) Abandon(rid string) {
	p.searchesMu.Lock()
	ls, ok := p.searches[rid]
	delete(p.searches, rid)
	p.searchesMu.Unlock()
	if !ok {
		return
	}

	ls.search.MarkAbandoned()
	p.match.Unregister(rid)
	ls.drainer.Stop()
}
