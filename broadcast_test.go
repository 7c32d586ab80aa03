package mtapi

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterWaitUntilTimesOut(t *testing.T) {
	b := newBroadcaster()
	ok := b.waitUntil(context.Background(), func() bool { return false }, 10*time.Millisecond)
	require.False(t, ok)
}

func TestBroadcasterWaitUntilWakesOnBroadcast(t *testing.T) {
	b := newBroadcaster()
	var flag atomic.Bool
	go func() {
		time.Sleep(5 * time.Millisecond)
		flag.Store(true)
		b.Broadcast()
	}()
	ok := b.waitUntil(context.Background(), flag.Load, time.Second)
	require.True(t, ok)
}

func TestBroadcasterWakesMultipleWaiters(t *testing.T) {
	b := newBroadcaster()
	const n = 5
	woke := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			<-b.Wait()
			woke <- struct{}{}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	b.Broadcast()
	for i := 0; i < n; i++ {
		select {
		case <-woke:
		case <-time.After(time.Second):
			t.Fatal("not all waiters woke")
		}
	}
}

// TestBroadcasterWaitUntilZeroTimeoutPollsOnceAndReturns proves timeout==0
// means "check once, return immediately" (spec §5's INFINITE/0 distinction),
// not "block forever" — an unmet condition with timeout 0 must return
// false essentially instantly, never waiting on a broadcast that never
// comes.
func TestBroadcasterWaitUntilZeroTimeoutPollsOnceAndReturns(t *testing.T) {
	b := newBroadcaster()
	start := time.Now()
	ok := b.waitUntil(context.Background(), func() bool { return false }, 0)
	require.False(t, ok)
	require.Less(t, time.Since(start), 50*time.Millisecond, "timeout==0 must not block")
}

// TestBroadcasterWaitUntilNegativeTimeoutWaitsIndefinitely proves a
// negative timeout, not zero, is what means "wait forever" — bounded here
// only by the broadcast that eventually arrives.
func TestBroadcasterWaitUntilNegativeTimeoutWaitsIndefinitely(t *testing.T) {
	b := newBroadcaster()
	var flag atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		flag.Store(true)
		b.Broadcast()
	}()
	ok := b.waitUntil(context.Background(), flag.Load, -1)
	require.True(t, ok)
}

func TestBroadcasterWaitUntilRespectsContextCancel(t *testing.T) {
	b := newBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	// A negative timeout waits indefinitely, so only the cancelled ctx can
	// end this wait.
	ok := b.waitUntil(ctx, func() bool { return false }, -1)
	require.False(t, ok)
}
