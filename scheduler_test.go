package mtapi

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerWorkStealingAcrossWorkers(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(4))
	require.NoError(t, n.CreateJob(1))

	coresUsed := make(chan int, 20)
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		coresUsed <- ctx.CoreNumber()
		time.Sleep(time.Millisecond)
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := n.StartTask(1, nil, nil, NoneHandle)
		require.NoError(t, err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 20; i++ {
		select {
		case c := <-coresUsed:
			seen[c] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks to run")
		}
	}
	require.Greater(t, len(seen), 1, "expected more than one worker to service the 20 tasks")
}

func TestStolenTaskRespectsAffinity(t *testing.T) {
	n := newTestNode(t, WithCoreAffinity(0, 1, 2, 3))
	require.NoError(t, n.CreateJob(1))

	cores := make(chan int, 10)
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		cores <- ctx.CoreNumber()
	}, WithActionAffinity(0))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := n.StartTask(1, nil, nil, NoneHandle)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		select {
		case c := <-cores:
			require.Equal(t, 0, c)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}
}

// TestMultiInstanceTaskSpansWorkers proves a single multi-instance task's
// instances are contributions from potentially different workers, not a
// loop run entirely by whichever worker first claims the task: every
// instance blocks until all four workers have simultaneously picked one up,
// which is only reachable if distinct workers are each running a distinct
// instance concurrently rather than one worker looping through them alone.
func TestMultiInstanceTaskSpansWorkers(t *testing.T) {
	n := newTestNode(t, WithWorkerCount(4))
	require.NoError(t, n.CreateJob(1))

	const instances = 4
	coresUsed := make(chan int, instances)
	var barrier sync.WaitGroup
	barrier.Add(instances)
	_, err := n.CreateAction(1, func(args, result []byte, _ any, ctx *Context) {
		coresUsed <- ctx.CoreNumber()
		barrier.Done()
		barrier.Wait() // only returns once all `instances` run concurrently
	})
	require.NoError(t, err)

	task, err := n.StartTask(1, nil, nil, NoneHandle, WithInstances(instances))
	require.NoError(t, err)

	_, err = task.Wait(2 * time.Second)
	require.NoError(t, err, "instances never ran concurrently across workers — a single worker is serializing them")

	seen := make(map[int]bool)
	for i := 0; i < instances; i++ {
		seen[<-coresUsed] = true
	}
	require.Greater(t, len(seen), 1, "expected more than one worker core to contribute an instance")
}

func TestCurrentGoroutineIDDistinguishesGoroutines(t *testing.T) {
	id1 := currentGoroutineID()
	idCh := make(chan uint64)
	go func() { idCh <- currentGoroutineID() }()
	id2 := <-idCh
	require.NotEqual(t, id1, id2)
	require.NotZero(t, id1)
}
