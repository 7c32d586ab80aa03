package mtapi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestJobEntrySnapshotIsLockFreeUnderConcurrentAppend hammers append
// concurrently with snapshot; the race detector would catch snapshot
// reading torn state if it shared append's mutex incorrectly or if the
// published slice were ever mutated in place after Store.
func TestJobEntrySnapshotIsLockFreeUnderConcurrentAppend(t *testing.T) {
	j := &jobEntry{}
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				j.append(Handle{Index: uint32(base*perWriter + i)})
			}
		}(w)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				_ = j.snapshot()
			}
		}
	}()

	wg.Wait()
	close(stop)

	require.Len(t, j.snapshot(), writers*perWriter)
}

func TestJobEntryRemoveSwapLast(t *testing.T) {
	j := &jobEntry{}
	h1, h2, h3 := Handle{Index: 1}, Handle{Index: 2}, Handle{Index: 3}
	j.append(h1)
	j.append(h2)
	j.append(h3)

	j.removeSwapLast(h2)
	got := j.snapshot()
	require.Len(t, got, 2)
	require.ElementsMatch(t, []Handle{h1, h3}, got)
}
