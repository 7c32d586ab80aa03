package mtapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestGroupWaitAllTenTasks covers the literal scenario: ten tasks started
// against one group, joined with WaitAll.
func TestGroupWaitAllTenTasks(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(4))
	require.NoError(t, n.CreateJob(1))
	// gate holds every task back until NumTasks has been read, since the
	// group's count drops as soon as a member completes.
	gate := make(chan struct{})
	gateOpen := false
	t.Cleanup(func() {
		if !gateOpen {
			close(gate)
		}
	})
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		<-gate
		result[0] = args[0] * 2
	})
	require.NoError(t, err)

	g, err := n.CreateGroup()
	require.NoError(t, err)

	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		results[i] = make([]byte, 1)
		args := []byte{byte(i)}
		_, err := g.StartTask(1, args, results[i])
		require.NoError(t, err)
	}

	n10, err := g.NumTasks()
	require.NoError(t, err)
	require.Equal(t, 10, n10)
	close(gate)
	gateOpen = true

	require.NoError(t, g.WaitAll(2*time.Second))

	for i := 0; i < 10; i++ {
		require.Equal(t, byte(i*2), results[i][0])
	}
	n0, err := g.NumTasks()
	require.NoError(t, err)
	require.Equal(t, 0, n0)
}

func TestGroupWaitAllReturnsFirstError(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(2))
	require.NoError(t, n.CreateJob(1))
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		if args[0] == 1 {
			_ = ctx.SetStatus(ErrActionFailed)
		}
	})
	require.NoError(t, err)

	g, err := n.CreateGroup()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := g.StartTask(1, []byte{byte(i)}, nil)
		require.NoError(t, err)
	}

	err = g.WaitAll(2 * time.Second)
	require.ErrorIs(t, err, ErrActionFailed)
}

func TestGroupWaitAny(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(4))
	require.NoError(t, n.CreateJob(1))
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {})
	require.NoError(t, err)

	g, err := n.CreateGroup()
	require.NoError(t, err)
	want := make(map[Handle]bool)
	for i := 0; i < 3; i++ {
		task, err := g.StartTask(1, nil, nil)
		require.NoError(t, err)
		want[task.Handle()] = true
	}

	for i := 0; i < 3; i++ {
		task, err := g.WaitAny(2 * time.Second)
		require.NoError(t, err)
		require.True(t, want[task.Handle()])
		delete(want, task.Handle())
	}
	require.Empty(t, want)
}

// TestGroupWaitAllReclaimsMemberSlots proves every member task's slot is
// freed once WaitAll has drained it, not leaked forever.
func TestGroupWaitAllReclaimsMemberSlots(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(4))
	require.NoError(t, n.CreateJob(1))
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {})
	require.NoError(t, err)

	g, err := n.CreateGroup()
	require.NoError(t, err)
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i], err = g.StartTask(1, nil, nil)
		require.NoError(t, err)
	}
	require.NoError(t, g.WaitAll(2*time.Second))

	for _, task := range tasks {
		_, err := task.resolve()
		require.Error(t, err, "group member slot must be reclaimed on WaitAll drain")
	}
}

// TestGroupWaitAnyReclaimsMemberSlot proves the member task WaitAny returns
// has its slot reclaimed immediately, as its sole observer.
func TestGroupWaitAnyReclaimsMemberSlot(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(2))
	require.NoError(t, n.CreateJob(1))
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {})
	require.NoError(t, err)

	g, err := n.CreateGroup()
	require.NoError(t, err)
	_, err = g.StartTask(1, nil, nil)
	require.NoError(t, err)

	done, err := g.WaitAny(2 * time.Second)
	require.NoError(t, err)
	_, err = done.resolve()
	require.Error(t, err, "WaitAny's returned task slot must be reclaimed")
}

// TestRecursiveChildTasksDoNotStarve covers the literal scenario: an
// action body that starts and waits on its own child tasks must not
// deadlock the worker pool, even with a worker count of 1.
func TestRecursiveChildTasksDoNotStarve(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(1))
	const jobID = 1
	require.NoError(t, n.CreateJob(jobID))

	_, err := n.CreateAction(jobID, func(args, result []byte, _ any, ctx *Context) {
		depth := args[0]
		if depth == 0 {
			result[0] = 1
			return
		}
		g, err := n.CreateGroup()
		require.NoError(t, err)
		childResult := make([]byte, 1)
		_, err = g.StartTask(jobID, []byte{depth - 1}, childResult)
		require.NoError(t, err)
		require.NoError(t, g.WaitAll(2*time.Second))
		result[0] = childResult[0] + 1
	})
	require.NoError(t, err)

	result := make([]byte, 1)
	task, err := n.StartTask(jobID, []byte{3}, result)
	require.NoError(t, err)
	_, err = task.Wait(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(4), result[0])
}
