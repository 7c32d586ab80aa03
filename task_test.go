package mtapi

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskMultipleInstances(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.CreateJob(1))

	var seen int32
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		require.Less(t, ctx.InstanceNumber(), ctx.NumInstances())
		atomic.AddInt32(&seen, 1)
	})
	require.NoError(t, err)

	task, err := n.StartTask(1, nil, nil, NoneHandle, WithInstances(5))
	require.NoError(t, err)
	_, err = task.Wait(2 * time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 5, atomic.LoadInt32(&seen))
}

func TestTaskCancelBeforeRunning(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(1))
	require.NoError(t, n.CreateJob(1))

	block := make(chan struct{})
	ran := make(chan struct{}, 1)
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		<-block
		ran <- struct{}{}
	})
	require.NoError(t, err)

	// occupy the single worker so the second task stays in PreFinal.
	blocker, err := n.StartTask(1, nil, nil, NoneHandle)
	require.NoError(t, err)

	task, err := n.StartTask(1, nil, nil, NoneHandle)
	require.NoError(t, err)
	require.NoError(t, task.Cancel())

	state, err := task.State()
	require.NoError(t, err)
	require.Equal(t, TaskCancelled, state)

	close(block)
	_, err = blocker.Wait(time.Second)
	require.NoError(t, err)

	select {
	case <-ran:
		t.Fatal("cancelled task's action body ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTaskCancelWhileRunningSetsCooperativeIntent(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.CreateJob(1))

	started := make(chan struct{})
	observed := make(chan bool, 1)
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		close(started)
		for i := 0; i < 200; i++ {
			if ctx.IsCancelled() {
				observed <- true
				return
			}
			time.Sleep(time.Millisecond)
		}
		observed <- false
	})
	require.NoError(t, err)

	task, err := n.StartTask(1, nil, nil, NoneHandle)
	require.NoError(t, err)
	<-started
	require.NoError(t, task.Cancel())

	require.True(t, <-observed)
	_, err = task.Wait(time.Second)
	require.NoError(t, err)
}

func TestDetachedTaskReclaimsSlotImmediately(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.CreateJob(1))
	done := make(chan struct{})
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		close(done)
	})
	require.NoError(t, err)

	task, err := n.StartTask(1, nil, nil, NoneHandle, WithDetached())
	require.NoError(t, err)
	<-done
	require.Eventually(t, func() bool {
		_, err := task.resolve()
		return err != nil
	}, time.Second, time.Millisecond)
}

// TestTaskWaitReclaimsSlot proves a non-detached, ungrouped task's slot is
// freed once Wait — its sole observer — has returned, not leaked forever.
func TestTaskWaitReclaimsSlot(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.CreateJob(1))
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {})
	require.NoError(t, err)

	task, err := n.StartTask(1, nil, nil, NoneHandle)
	require.NoError(t, err)
	_, err = task.Wait(time.Second)
	require.NoError(t, err)

	_, err = task.resolve()
	require.Error(t, err, "task slot must be reclaimed once its sole observer (Wait) has returned")

	// A second Wait on an already-reclaimed handle must fail cleanly, not
	// panic or resolve a reused slot.
	_, err = task.Wait(time.Second)
	require.ErrorIs(t, err, ErrTaskInvalid)
}

// TestTaskWaitZeroTimeoutPollsOnceOnUnfinishedTask proves Wait(0) on a task
// that hasn't reached a terminal state returns ErrTimeout immediately
// instead of hanging — spec §5's INFINITE/0 distinction applies to Wait the
// same as it does to the broadcaster it's built on.
func TestTaskWaitZeroTimeoutPollsOnceOnUnfinishedTask(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(1))
	require.NoError(t, n.CreateJob(1))

	release := make(chan struct{})
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		<-release
	})
	require.NoError(t, err)
	defer close(release)

	task, err := n.StartTask(1, nil, nil, NoneHandle)
	require.NoError(t, err)

	start := time.Now()
	_, err = task.Wait(0)
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 50*time.Millisecond, "Wait(0) must not block")
}

func TestStartTaskRejectsUnknownJob(t *testing.T) {
	n := newTestNode(t)
	_, err := n.StartTask(999999, nil, nil, NoneHandle)
	require.ErrorIs(t, err, ErrJobInvalid)
}
