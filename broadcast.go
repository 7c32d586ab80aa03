package mtapi

import (
	"context"
	"sync"
	"time"
)

// broadcaster is a select-friendly, repeatable wakeup signal: a condition
// variable expressed as a channel that gets closed-and-replaced on every
// Broadcast, so any number of concurrent waiters can select on Wait()
// alongside a timeout or cancellation without the limitations of
// sync.Cond (which has no timeout/ctx-aware Wait).
//
// Used by Action.Delete/Disable and Queue.Delete/Disable (SPEC_FULL §C.6:
// "the C source uses a condvar signalled from the task-completion path"
// rather than a busy poll).
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

// noTimeoutCtx is a shared background context for waits that are bounded
// only by an explicit timeout argument, never by cancellation.
var noTimeoutCtx = context.Background()

// Wait returns the current generation's wakeup channel; it closes the next
// time Broadcast is called.
func (b *broadcaster) Wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// Broadcast wakes every current waiter and starts a new generation.
func (b *broadcaster) Broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.ch)
	b.ch = make(chan struct{})
}

// waitUntil blocks until done() is true, timeout elapses, or ctx is
// cancelled — whichever comes first — re-checking done() each time b
// broadcasts. Per spec §5, "INFINITE and 0 (poll) are distinguished":
// timeout == 0 checks done() once and returns immediately without
// blocking; only a negative timeout waits indefinitely (bounded solely by
// ctx).
func (b *broadcaster) waitUntil(ctx context.Context, done func() bool, timeout time.Duration) bool {
	if done() {
		return true
	}
	if timeout == 0 {
		return false
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		wake := b.Wait()
		if done() {
			return true
		}
		select {
		case <-wake:
			if done() {
				return true
			}
		case <-deadline:
			return done()
		case <-ctx.Done():
			return done()
		}
	}
}
