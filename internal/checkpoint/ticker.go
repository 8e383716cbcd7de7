// Package checkpoint implements periodic write-back of the in-memory
// context CSN to durable storage (§4.9).
package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/store"
)

// Thresholds configures when a checkpoint fires: after at least Ops
// writes, or after at least Interval has elapsed since the last
// checkpoint — whichever comes first.
type Thresholds struct {
	Ops      int
	Interval time.Duration
}

// Ticker tracks ops-since-last-checkpoint and time-since-last-checkpoint
// and writes the context CSN back to the store when either threshold is
// crossed. Modeled directly on a periodic scheduled-task loop: a
// context-cancellable goroutine plus a time.Ticker, the same shape used
// elsewhere in this codebase for scheduled background work.
type Ticker struct {
	mu         sync.Mutex
	opsSince   int
	lastCheck  time.Time
	dirty      bool // explicit dirty bit; see design notes on the checkpoint counter
	thresholds Thresholds

	clock *csn.Clock
	st    store.Store
	now   func() time.Time

	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New returns a Ticker not yet started. pollInterval is how often the
// background loop wakes to check the time threshold; it should be small
// relative to thresholds.Interval.
func New(clock *csn.Clock, st store.Store, thresholds Thresholds, pollInterval time.Duration) *Ticker {
	return &Ticker{
		thresholds:   thresholds,
		clock:        clock,
		st:           st,
		now:          time.Now,
		pollInterval: pollInterval,
		lastCheck:    time.Now(),
	}
}

// MarkDirty records that the in-memory CSN differs from the last value
// durably written — e.g. loaded at startup and found stale. The next
// background pass will force a checkpoint regardless of the op/time
// thresholds.
func (t *Ticker) MarkDirty() {
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
}

// NotifyWrite is called once per committed write by the write-path hook.
// It increments the op counter and, if either threshold is crossed,
// performs a checkpoint synchronously on the caller's goroutine (matching
// the source's "check after every write" placement) rather than waiting
// for the next background tick.
func (t *Ticker) NotifyWrite(ctx context.Context) {
	t.mu.Lock()
	t.opsSince++
	due := t.dueLocked()
	t.mu.Unlock()

	if due {
		t.checkpoint(ctx)
	}
}

func (t *Ticker) dueLocked() bool {
	if t.dirty {
		return true
	}
	if t.thresholds.Ops > 0 && t.opsSince >= t.thresholds.Ops {
		return true
	}
	if t.thresholds.Interval > 0 && t.now().Sub(t.lastCheck) >= t.thresholds.Interval {
		return true
	}
	return false
}

// checkpoint writes the current context CSN back to the store, bypassing
// the write hook (the store's ReplaceContextCSN implementation is
// required to do this — see store.Store.ReplaceContextCSN). Failures are
// logged but non-fatal: the in-memory CSN remains authoritative and the
// next checkpoint attempt will retry implicitly.
func (t *Ticker) checkpoint(ctx context.Context) {
	current := t.clock.Get()
	if err := t.st.ReplaceContextCSN(ctx, current); err != nil {
		logger.CheckpointErrorw("checkpoint write-back failed, will retry later", "csn", current, "err", err)
		return
	}

	t.mu.Lock()
	t.opsSince = 0
	t.lastCheck = t.now()
	t.dirty = false
	t.mu.Unlock()

	logger.CheckpointInfow("checkpointed context CSN", "csn", current)
}

// Start launches the background time-threshold poller.
func (t *Ticker) Start() {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(1)
	go t.run()
}

// Stop cancels the background poller, performs a final checkpoint (the
// source checkpoints on close regardless of thresholds), and waits for
// the loop to exit.
func (t *Ticker) Stop(ctx context.Context) {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.checkpoint(ctx)
}

func (t *Ticker) run() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			due := t.dueLocked()
			t.mu.Unlock()
			if due {
				t.checkpoint(t.ctx)
			}
		}
	}
}
