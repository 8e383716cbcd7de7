package subscriber

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/store"
)

// OutgoingEntry is what the drainer hands to Conn for one queued event.
type OutgoingEntry struct {
	Event
	Cookie []byte // pre-composed sync-state cookie, ctxcsn at send time
	Attrs  map[string][]string
}

// Conn is the narrow sending interface the drainer needs; transport/wsserver
// implements it over a real connection, tests use an in-process fake.
type Conn interface {
	SendEvent(ctx context.Context, e OutgoingEntry) error
}

// ComposeCookie builds the per-message cookie octet string for a given
// context CSN snapshot. Supplied by the provider so the drainer does not
// need to import the csn clock directly.
type ComposeCookie func(c csn.CSN) []byte

// Drainer runs one Search's pending-event queue down to empty on a
// scheduled worker, re-arming itself at an idle interval so it can be
// reused for the next burst of events (§4.6). Modeled as a
// context-cancellable goroutine with a non-blocking "kick" channel,
// the same shape as a periodic ticker that can also be nudged early.
type Drainer struct {
	search        *Search
	st            store.Store
	conn          Conn
	composeCookie ComposeCookie
	currentCSN    func() csn.CSN

	idleInterval time.Duration
	limiter      *rate.Limiter

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDrainer returns a Drainer for search, not yet started. idleInterval
// bounds how often an empty drainer re-arms itself; it is also used as
// the rate.Limiter's minimum interval between idle re-arms so a burst of
// enqueue/drain/idle cycles cannot spin.
func NewDrainer(search *Search, st store.Store, conn Conn, compose ComposeCookie, currentCSN func() csn.CSN, idleInterval time.Duration) *Drainer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Drainer{
		search:        search,
		st:            st,
		conn:          conn,
		composeCookie: compose,
		currentCSN:    currentCSN,
		idleInterval:  idleInterval,
		limiter:       rate.NewLimiter(rate.Every(idleInterval), 1),
		kick:          make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the drainer's run loop.
func (d *Drainer) Start() {
	d.search.Ref()
	d.wg.Add(1)
	go d.run()
}

// Stop cancels the run loop and waits for it to exit.
func (d *Drainer) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Kick schedules an immediate drain run, if one is not already pending.
// Non-blocking: a Search with events already queued for drain does not
// need a second signal.
func (d *Drainer) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Drainer) run() {
	defer d.wg.Done()
	defer func() {
		if d.search.Unref() {
			logger.SubscriberInfow("persistent search released", "rid", d.search.RID)
		}
	}()

	idle := time.NewTicker(d.idleInterval)
	defer idle.Stop()

	for {
		d.drainAll()

		select {
		case <-d.ctx.Done():
			return
		case <-d.kick:
		case <-idle.C:
			if !d.limiter.Allow() {
				continue
			}
		}
	}
}

// drainAll pops and sends events until the queue is empty or the search
// is abandoned.
func (d *Drainer) drainAll() {
	for {
		if d.ctx.Err() != nil {
			return
		}
		ev, ok := d.search.Pop()
		if !ok {
			return
		}
		if d.search.IsAbandoned() {
			continue
		}
		d.sendOne(ev)
	}
}

func (d *Drainer) sendOne(ev Event) {
	out := OutgoingEntry{
		Event:  ev,
		Cookie: d.composeCookie(d.currentCSN()),
	}

	if ev.Mode != ModeDelete {
		e, err := d.st.GetByNDN(d.ctx, ev.NDN)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// A later delete event will reconcile; skip silently.
				return
			}
			logger.SubscriberWarnw("store error delivering event, skipping", "rid", d.search.RID, "err", err)
			return
		}
		out.Attrs = map[string][]string(e.Attrs)
	}

	if err := d.conn.SendEvent(d.ctx, out); err != nil {
		logger.SubscriberWarnw("failed to send event to subscriber", "rid", d.search.RID, "err", err)
	}
}
