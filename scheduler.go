package mtapi

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siemens/embb-sub002/internal/ringqueue"
)

// scheduler runs the fixed worker pool (spec §4.10): a global priority-
// queue set plus one local ring per worker, serviced by goroutines joined
// through an errgroup — the same fan-out/join idiom eventloop/loop.go uses
// for its single background goroutine, generalized here to N workers
// because spec §4.10 calls for a genuine worker pool rather than a single
// loop thread.
type scheduler struct {
	node *Node

	global []*ringqueue.Queue // one ring per priority level, highest first
	local  []*ringqueue.Queue // one ring per worker, for work-stealing

	workers []*worker

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	wake *broadcaster

	registryMu sync.Mutex
	registry   map[uint64]*worker
}

type worker struct {
	id       int
	core     int // core number; -1 for a worker beyond the configured affinity set
	sched    *scheduler
	goroutin uint64
}

func newScheduler(n *Node, workerCount int, cores []int, priorities int) *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &scheduler{
		node:     n,
		global:   make([]*ringqueue.Queue, priorities),
		local:    make([]*ringqueue.Queue, workerCount),
		ctx:      ctx,
		cancel:   cancel,
		wake:     newBroadcaster(),
		registry: make(map[uint64]*worker),
	}
	for i := range s.global {
		s.global[i] = ringqueue.New(64)
	}
	for i := range s.local {
		s.local[i] = ringqueue.New(32)
	}
	s.workers = make([]*worker, workerCount)
	for i := 0; i < workerCount; i++ {
		core := i // no affinity set: worker i stands for core i
		if len(cores) > 0 {
			core = -1
			if i < len(cores) {
				core = cores[i]
			}
		}
		s.workers[i] = &worker{id: i, core: core, sched: s}
	}
	return s
}

// start launches one goroutine per worker, joined via errgroup — mirroring
// the monorepo's use of golang.org/x/sync/errgroup for fan-out/join
// elsewhere in the module, generalized from a single background goroutine
// to a genuine pool.
func (s *scheduler) start() {
	eg, ctx := errgroup.WithContext(s.ctx)
	s.eg = eg
	s.ctx = ctx
	for _, w := range s.workers {
		w := w
		eg.Go(func() error {
			w.run(ctx)
			return nil
		})
	}
}

func (s *scheduler) stop() {
	s.cancel()
	if s.eg != nil {
		_ = s.eg.Wait()
	}
}

// submit enqueues a ready task handle at the given priority and wakes a
// worker. priority is clamped into range.
func (s *scheduler) submit(h Handle, priority int) {
	if priority < 0 {
		priority = 0
	}
	if priority >= len(s.global) {
		priority = len(s.global) - 1
	}
	s.global[priority].Push(uint64(h.Index)<<32 | uint64(h.Tag))
	s.wake.Broadcast()
}

func decodeHandle(v uint64) Handle {
	return Handle{Index: uint32(v >> 32), Tag: uint32(v)}
}

// pickTask pops the next ready task this worker should run: its own local
// ring first, then the global priority rings from highest priority down,
// then steals from a peer's local ring. Every ring is filtered by the
// target action's affinity (spec §4.10): a task whose affinity excludes
// this worker's core is left at the head of its ring for another worker.
func (s *scheduler) pickTask(w *worker) (Handle, bool) {
	if v, ok := s.local[w.id].Pop(); ok {
		return decodeHandle(v), true
	}
	for _, q := range s.global {
		if v, ok := q.PopIf(func(v uint64) bool {
			return s.node.handleMatchesAffinity(decodeHandle(v), w.core)
		}); ok {
			return decodeHandle(v), true
		}
	}
	for i, peer := range s.local {
		if i == w.id {
			continue
		}
		if v, ok := peer.PopIf(func(v uint64) bool {
			return s.node.handleMatchesAffinity(decodeHandle(v), w.core)
		}); ok {
			return decodeHandle(v), true
		}
	}
	return Handle{}, false
}

func (w *worker) run(ctx context.Context) {
	w.goroutin = currentGoroutineID()
	w.sched.registerWorker(w)
	defer w.sched.unregisterWorker(w)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		h, ok := w.sched.pickTask(w)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.sched.wake.Wait():
				continue
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}
		w.execute(h)
	}
}

// execute claims exactly one instance of the task referenced by h and runs
// it on this worker (spec §3/§4.10/§9: a multi-instance task's invocations
// are contributions from different workers, not a single worker's local
// loop). Before running its instance, execute re-publishes h if unclaimed
// instances remain, so a peer worker can claim the next one while this one
// runs; once the last instance lands, finishInstance finalizes the task.
// A local action's instance finishes synchronously, right here;
// a plugin action's finishes later, from whatever goroutine the plugin
// uses to signal completion (see runInstance).
func (w *worker) execute(h Handle) {
	slot, ok := w.sched.node.tasks.Resolve(h)
	if !ok {
		return
	}
	if !slot.state.TryTransition(uint64(TaskPreFinal), uint64(TaskRunning)) {
		// already cancelled, or this is a peer worker claiming this same
		// task's next instance while it's already Running
		if TaskState(slot.state.Load()) != TaskRunning {
			return
		}
	}

	action, ok := w.sched.node.actions.Resolve(slot.action)
	if !ok {
		w.sched.node.completeTask(slot, ErrActionInvalid)
		return
	}

	instance := int(slot.currentInstance.Add(1)) - 1
	if instance >= slot.numInstances {
		// every instance has already been claimed by a peer worker
		return
	}
	if instance+1 < slot.numInstances {
		w.sched.submit(slot.self, slot.priority)
	}
	w.runInstance(slot, action, instance)
}

// finishInstance accounts for one completed instance; once instancesTodo
// reaches zero, it finalizes the task exactly once.
func (w *worker) finishInstance(slot *taskSlot) {
	if slot.instancesTodo.Add(-1) == 0 {
		w.sched.node.completeTask(slot, slot.Status())
	}
}

// runInstance dispatches one instance to its action. A local action runs
// to completion inline and finishes the instance before returning. A
// plugin action's on_start is only expected to kick the work off (spec
// §4.5: "the plugin is expected to eventually drive the task to a
// terminal state using the scheduler's completion callback") — it must
// not block this worker goroutine, so finishInstance is invoked later via
// the complete callback instead of inline.
func (w *worker) runInstance(slot *taskSlot, action *actionSlot, instance int) {
	ctx := &Context{
		instanceNum:  instance,
		numInstances: slot.numInstances,
		coreNumber:   w.core,
		task:         slot,
		owner:        currentGoroutineID(),
	}

	switch action.kind {
	case actionKindLocal:
		action.fn(slot.args, slot.result, action.nodeLocalData, ctx)
		ctx.done.Store(true)
		w.finishInstance(slot)
	case actionKindPlugin:
		var once sync.Once
		complete := func(status Status) {
			once.Do(func() {
				ctx.done.Store(true)
				if status != nil {
					slot.recordStatus(status)
				}
				w.finishInstance(slot)
			})
		}
		if err := action.plug.OnStart(slot.self, ctx, complete); err != nil {
			complete(err)
		}
	}
}

// currentWorker returns the *worker whose goroutine is calling, or nil if
// called from a goroutine that isn't one of the scheduler's own workers.
func (s *scheduler) currentWorker() *worker {
	id := currentGoroutineID()
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	return s.registry[id]
}

func (s *scheduler) registerWorker(w *worker) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	s.registry[w.goroutin] = w
}

func (s *scheduler) unregisterWorker(w *worker) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	delete(s.registry, w.goroutin)
}

// cooperativeWaitFor drives this worker's own pick_task loop while waiting
// for done to become true, instead of blocking the OS thread — this is
// what lets recursive parallelism (an action body that starts and waits on
// child tasks) avoid starving the worker pool (spec §5). Per spec §5,
// timeout == 0 means "poll once and return immediately"; only a negative
// timeout waits indefinitely.
func (w *worker) cooperativeWaitFor(done func() bool, timeout time.Duration) bool {
	if done() {
		return true
	}
	if timeout == 0 {
		return false
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for !done() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		if h, ok := w.sched.pickTask(w); ok {
			w.execute(h)
			continue
		}
		runtime.Gosched()
	}
	return true
}

// currentGoroutineID extracts the calling goroutine's runtime ID by
// parsing its stack trace header. The pack's own goroutineid submodule
// ships no implementation to ground this on (an empty go.mod with no
// source files), so this falls back to the standard technique used across
// the Go ecosystem for goroutine-keyed lookups; see DESIGN.md.
func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}
