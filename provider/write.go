package provider

import (
	"context"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/matcher"
	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/internal/sessionlog"
	"github.com/dirsync/syncprov/internal/subscriber"
)

// OpType classifies a write for the purposes of the matcher and session
// log. It is the same enumeration the session log itself records
// against.
type OpType = sessionlog.OpTag

const (
	OpAdd    = sessionlog.OpAdd
	OpModify = sessionlog.OpModify
	OpModRDN = sessionlog.OpModRDN
	OpDelete = sessionlog.OpDelete
)

// WriteRequest describes one completed write to be run through the
// write-path hook. Commit is called with the CSN the hook has minted for
// this write and is expected to actually persist the change (via
// whatever store the caller is embedded against) before the hook
// advances the context CSN and notifies subscribers — this mirrors the
// source's ordering, where the provider's own store write happens inside
// the hook's critical section, but keeps the store write itself a
// caller-supplied closure since the store is out of this module's scope.
type WriteRequest struct {
	DN, NDN   string
	NewDN     string // non-empty only for ModRDN
	NewNDN    string // non-empty only for ModRDN
	UUID      uuid.UUID
	OpType    OpType
	PreAttrs  scope.Attrs // attributes before the write; used for matcher.PreWrite and, for Delete, as the only attributes ever available
	PostAttrs scope.Attrs // attributes after the write; nil for Delete
	Commit    func(ctx context.Context, assigned csn.CSN) error
}

// CompleteWrite is the write-path hook (§2 "Write-path hook", §4.9): it
// serializes the write against any other write to the same DN, mints and
// advances the context CSN, runs the event matcher, enqueues events on
// every matched subscriber, appends to the session log, and triggers a
// checkpoint if due.
func (p *Provider) CompleteWrite(ctx context.Context, req WriteRequest) (csn.CSN, error) {
	release, err := p.mods.Enter(ctx, req.NDN)
	if err != nil {
		return "", errors.Cancelled("write serialization wait was cancelled")
	}
	defer release()

	isAdd := req.OpType == OpAdd
	isDelete := req.OpType == OpDelete

	var cookie *matcher.OpCookie
	if !isAdd {
		cookie = p.match.PreWrite(ctx, p.st, req.DN, req.NDN, req.UUID, req.PreAttrs)
	}

	assigned := p.minter.Mint()
	if err := req.Commit(ctx, assigned); err != nil {
		if cookie != nil {
			for _, s := range cookie.PreMatches {
				s.Unref()
			}
		}
		return "", errors.Internal(err, "committing write")
	}

	p.clock.Advance(assigned)
	p.log.Append(req.UUID, assigned, req.OpType)

	newNDN := req.NDN
	if req.NewNDN != "" {
		newNDN = req.NewNDN
	}
	dnForEvent := req.DN
	if req.NewDN != "" {
		dnForEvent = req.NewDN
	}

	events := p.match.PostWrite(ctx, p.st, cookie, req.DN, req.NDN, newNDN, req.UUID, req.PostAttrs, isAdd, isDelete)
	for s, mode := range events {
		p.enqueueEvent(s, subscriber.Event{
			DN:   dnForEvent,
			NDN:  newNDN,
			UUID: req.UUID,
			CSN:  assigned,
			Mode: mode,
		})
	}

	p.ticker.NotifyWrite(ctx)
	return assigned, nil
}

func (p *Provider) enqueueEvent(s *subscriber.Search, ev subscriber.Event) {
	s.Enqueue(ev)

	p.searchesMu.Lock()
	ls, ok := p.searches[s.RID]
	p.searchesMu.Unlock()
	if ok {
		ls.drainer.Kick()
	}
}
