// Package modserial implements the mod serializer: a keyed FIFO that
// forces writes to the same normalized DN to execute one at a time, so
// that CSN assignment and event emission for that DN are race-free.
package modserial

import (
	"context"
	"sync"
)

type ticket struct {
	ready chan struct{}
}

// fifo is the per-DN queue of pending operations. Its mutex is held
// briefly to mutate the waiter slice; it is never held across a wait.
type fifo struct {
	mu      sync.Mutex
	waiters []*ticket
}

// Serializer is the process-wide map from normalized DN to its FIFO.
// Lock ordering: acquire Serializer.mu, then the target fifo's mu, then
// release Serializer.mu — the fifo's mu is only ever held briefly to
// splice the waiter slice, matching the "mods_map → per-DN-FIFO →
// (release mods_map)" discipline.
type Serializer struct {
	mu     sync.Mutex
	queues map[string]*fifo
}

// New returns an empty Serializer.
func New() *Serializer {
	return &Serializer{queues: make(map[string]*fifo)}
}

// Enter blocks until the caller becomes the head of ndn's FIFO, i.e. the
// only goroutine allowed to perform the write to that DN. It returns a
// release function the caller must invoke exactly once, even on error
// paths that skip the write, to promote the next waiter (or erase the
// now-empty FIFO). If ctx is cancelled before this op reaches the head,
// Enter removes the waiter and returns ctx.Err(); release is nil in that
// case and must not be called.
func (s *Serializer) Enter(ctx context.Context, ndn string) (release func(), err error) {
	s.mu.Lock()
	q, ok := s.queues[ndn]
	if !ok {
		q = &fifo{}
		s.queues[ndn] = q
	}
	q.mu.Lock()
	s.mu.Unlock()

	t := &ticket{ready: make(chan struct{})}
	q.waiters = append(q.waiters, t)
	isHead := len(q.waiters) == 1
	q.mu.Unlock()

	if isHead {
		close(t.ready)
	}

	select {
	case <-t.ready:
		return func() { s.leave(ndn, q, t) }, nil
	case <-ctx.Done():
		s.abandon(ndn, q, t)
		return nil, ctx.Err()
	}
}

// leave pops t (the current head) from ndn's FIFO and wakes the next
// waiter, or erases the FIFO entirely if none remain.
func (s *Serializer) leave(ndn string, q *fifo, t *ticket) {
	q.mu.Lock()
	if len(q.waiters) > 0 && q.waiters[0] == t {
		q.waiters = q.waiters[1:]
	}
	var empty bool
	if len(q.waiters) == 0 {
		empty = true
	} else {
		next := q.waiters[0]
		select {
		case <-next.ready:
		default:
			close(next.ready)
		}
	}
	q.mu.Unlock()

	if empty {
		s.mu.Lock()
		q.mu.Lock()
		if len(q.waiters) == 0 && s.queues[ndn] == q {
			delete(s.queues, ndn)
		}
		q.mu.Unlock()
		s.mu.Unlock()
	}
}

// abandon removes a waiting (not-yet-head) ticket from the FIFO. If it
// had already become the head by the time the context was cancelled,
// this degrades to leave's promote-next behavior so the FIFO still
// makes progress.
func (s *Serializer) abandon(ndn string, q *fifo, t *ticket) {
	q.mu.Lock()
	for i, w := range q.waiters {
		if w == t {
			wasHead := i == 0
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			if wasHead && len(q.waiters) > 0 {
				next := q.waiters[0]
				select {
				case <-next.ready:
				default:
					close(next.ready)
				}
			}
			break
		}
	}
	empty := len(q.waiters) == 0
	q.mu.Unlock()

	if empty {
		s.mu.Lock()
		q.mu.Lock()
		if len(q.waiters) == 0 && s.queues[ndn] == q {
			delete(s.queues, ndn)
		}
		q.mu.Unlock()
		s.mu.Unlock()
	}
}
