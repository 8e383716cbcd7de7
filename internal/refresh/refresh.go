// Package refresh implements the refresh engine: servicing initial and
// catch-up requests by CSN validity probe, session-log replay, or
// present-phase scan (§4.7).
package refresh

import (
	"context"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/internal/sessionlog"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/protocol"
	"github.com/dirsync/syncprov/store"
)

// Sink receives the output of a refresh: streamed entries, sync-info
// messages, and the terminating done control. The provider implements
// Sink over a real connection; tests use an in-process fake.
type Sink interface {
	SendEntry(ctx context.Context, e *store.Entry, cookie []byte) error
	SendInfo(ctx context.Context, msg protocol.SyncInfoMessage) error
	SendDone(ctx context.Context, done protocol.SyncDoneControl) error
}

// Config holds the two configuration keys (nopresent, reloadhint) and the
// ID-set batch size that govern refresh behavior.
type Config struct {
	NoPresent     bool // skip the present-phase scan entirely
	ReloadHint    bool // honor the request's reloadHint on a stale cookie
	IDSetBatchSize int
}

// Engine services refresh requests against one persistent search's
// base/scope/filter.
type Engine struct {
	clock *csn.Clock
	log   *sessionlog.Log
	st    store.Store
	cfg   Config
}

// New returns an Engine wired to the given clock, session log, and store.
func New(clock *csn.Clock, log *sessionlog.Log, st store.Store, cfg Config) *Engine {
	if cfg.IDSetBatchSize <= 0 {
		cfg.IDSetBatchSize = 128
	}
	return &Engine{clock: clock, log: log, st: st, cfg: cfg}
}

// Request is the decoded sync control plus the search parameters the
// refresh is scoped to.
type Request struct {
	RID        string
	Mode       protocol.RequestMode
	Cookie     []byte // raw, possibly absent (len 0)
	ReloadHint bool

	BaseNDN string
	Scope   scope.Scope
	Filter  scope.Filter
}

// Run executes the refresh algorithm of §4.7 and reports whether the
// caller should now transition to persist phase (true for
// refresh-and-persist; false for refresh-only, which always terminates
// here).
func (e *Engine) Run(ctx context.Context, req Request, sink Sink) (persist bool, err error) {
	snapshot := e.clock.Get()

	var haveCookie bool
	var cookieCSN csn.CSN
	if len(req.Cookie) > 0 {
		decoded, derr := protocol.DecodeCookie(req.Cookie)
		if derr != nil {
			return false, derr
		}
		haveCookie = true
		cookieCSN = decoded.CSN
		if cookieCSN.Compare(snapshot) > 0 {
			// Open question resolved: a cookie from the future is
			// malformed/adversarial, not an IO fault.
			return false, errors.Protocolf("cookie CSN %q is newer than context CSN %q", cookieCSN, snapshot)
		}
	}

	if haveCookie && req.Mode == protocol.ModeRefreshOnly && cookieCSN.Compare(snapshot) == 0 {
		doneCookie, encErr := protocol.EncodeCookie(req.RID, snapshot)
		if encErr != nil {
			return false, encErr
		}
		if err := sink.SendDone(ctx, protocol.SyncDoneControl{Cookie: doneCookie, RefreshDeletes: true}); err != nil {
			return false, err
		}
		return false, nil
	}

	doPresent := true

	if haveCookie {
		if e.log.Enabled() && e.log.CanServe(cookieCSN) {
			if err := e.replayFromLog(ctx, req.RID, cookieCSN, snapshot, sink); err != nil {
				return false, err
			}
			doPresent = false
		} else {
			ok, err := e.st.ExistsWithCSNEqual(ctx, cookieCSN)
			if err != nil {
				return false, errors.Internal(err, "probing entryCSN equality for refresh")
			}
			if !ok {
				ok, err = e.st.ExistsWithCSNLessEqual(ctx, cookieCSN)
				if err != nil {
					return false, errors.Internal(err, "probing entryCSN<= for refresh")
				}
			}
			if !ok {
				if !(e.cfg.ReloadHint && req.ReloadHint) {
					logger.RefreshWarnw("stale cookie cannot be served, refresh required",
						"rid", req.RID, "cookie_csn", cookieCSN)
					return false, errors.RefreshRequired("cookie CSN not found in store and session log cannot serve it")
				}
				logger.RefreshInfow("stale cookie honored via reloadHint, falling back to present-phase scan",
					"rid", req.RID, "cookie_csn", cookieCSN)
				// reloadHint honored: fall through to a full present-phase scan.
			}
		}
	}

	presentRan := doPresent
	if doPresent {
		// Step 3c: confirm which already-known entries are still present,
		// so the consumer can infer deletion of anything it knew about
		// that isn't confirmed here. This is the scan `nopresent` disables
		// — it only makes sense when there's a prior cookie to confirm
		// against.
		if haveCookie && !e.cfg.NoPresent {
			if err := e.presentConfirmScan(ctx, req, cookieCSN, sink); err != nil {
				return false, err
			}
		}
		// Steps 4-5: stream whatever is new or changed since the cookie.
		// This is the core refresh delivery mechanism and always runs
		// when the session log didn't already serve the catch-up —
		// nopresent does not gate it.
		if err := e.streamSinceCookie(ctx, req, cookieCSN, haveCookie, snapshot, sink); err != nil {
			return false, err
		}
	}

	doneCookie, err := protocol.EncodeCookie(req.RID, snapshot)
	if err != nil {
		return false, err
	}

	if req.Mode == protocol.ModeRefreshOnly {
		if err := sink.SendDone(ctx, protocol.SyncDoneControl{Cookie: doneCookie, RefreshDeletes: true}); err != nil {
			return false, err
		}
		return false, nil
	}

	var transition protocol.SyncInfoMessage
	if presentRan {
		transition = protocol.RefreshPresentMessage(doneCookie, true)
	} else {
		transition = protocol.RefreshDeleteMessage(doneCookie, true)
	}
	if err := sink.SendInfo(ctx, transition); err != nil {
		return false, err
	}
	return true, nil
}

// replayFromLog serves the catch-up window (oldCSN, ctxCSN] from the
// session log, probing each non-delete candidate against the store since
// the log only records that something happened, not current visibility.
func (e *Engine) replayFromLog(ctx context.Context, rid string, oldCSN, ctxCSN csn.CSN, sink Sink) error {
	deletes, candidates := e.log.ReplaySince(oldCSN, ctxCSN)

	var adds []*store.Entry
	for _, id := range candidates {
		entry, err := e.st.GetByUUID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				deletes = append(deletes, id)
				continue
			}
			return errors.Internal(err, "probing session-log candidate")
		}
		adds = append(adds, entry)
	}

	if len(deletes) > 0 {
		cookie, err := protocol.EncodeCookie(rid, ctxCSN)
		if err != nil {
			return err
		}
		if err := sink.SendInfo(ctx, protocol.SyncIDSetMessage(cookie, true, dedupeUUIDs(deletes))); err != nil {
			return err
		}
	}

	cookie, err := protocol.EncodeCookie(rid, ctxCSN)
	if err != nil {
		return err
	}
	for _, entry := range adds {
		if err := sink.SendEntry(ctx, entry, cookie); err != nil {
			return err
		}
	}
	return nil
}

// presentConfirmScan implements §4.7 step 3c: a filtered search over
// base/scope/filter for entries with entryCSN<=cookieCSN, confirming which
// entries the consumer already knows about are still present. Matched
// UUIDs are batched and emitted as ID-set info messages with
// refreshDeletes=false — absence from both this scan and the add stream
// lets the consumer infer a deletion it would otherwise never hear about,
// since the write that deleted the entry may have aged out of the session
// log before this refresh ever ran.
func (e *Engine) presentConfirmScan(ctx context.Context, req Request, cookieCSN csn.CSN, sink Sink) error {
	cookie, err := protocol.EncodeCookie(req.RID, cookieCSN)
	if err != nil {
		return err
	}

	batch := make([]uuid.UUID, 0, e.cfg.IDSetBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.SendInfo(ctx, protocol.SyncIDSetMessage(cookie, false, batch)); err != nil {
			return err
		}
		batch = make([]uuid.UUID, 0, e.cfg.IDSetBatchSize)
		return nil
	}

	err = e.st.Search(ctx, req.BaseNDN, req.Scope, req.Filter, "", cookieCSN, func(entry *store.Entry) error {
		batch = append(batch, entry.UUID)
		if len(batch) < e.cfg.IDSetBatchSize {
			return nil
		}
		return flush()
	})
	if err != nil {
		return err
	}
	return flush()
}

// streamSinceCookie performs the "what's new since the cookie" scan:
// entries in base/scope/filter with entryCSN in (cookieCSN, snapshot],
// each streamed individually with an add sync-state control (§4.7 steps
// 4-5). This is not batched — ID-set batching is for presentConfirmScan
// and the session-log deletes path only.
func (e *Engine) streamSinceCookie(ctx context.Context, req Request, cookieCSN csn.CSN, haveCookie bool, snapshot csn.CSN, sink Sink) error {
	cookie, err := protocol.EncodeCookie(req.RID, snapshot)
	if err != nil {
		return err
	}

	var minCSN csn.CSN
	if haveCookie {
		minCSN = cookieCSN
	}

	return e.st.Search(ctx, req.BaseNDN, req.Scope, req.Filter, minCSN, snapshot, func(entry *store.Entry) error {
		if entry.CSN.Compare(snapshot) > 0 {
			return nil // Invariant 4 safety net; store is expected to enforce this already.
		}
		if haveCookie && entry.CSN.Compare(cookieCSN) == 0 {
			return nil // already known to the consumer
		}
		return sink.SendEntry(ctx, entry, cookie)
	})
}

func dedupeUUIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
