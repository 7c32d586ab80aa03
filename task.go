package mtapi

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ActionFunc is the local-action function signature (spec §4.4),
// generalized from the C signature
// fn(args_ptr, args_size, result_ptr, result_size, node_local_ptr, node_local_size, task_ctx)
// into Go slices plus an opaque node-local value.
type ActionFunc func(args []byte, result []byte, nodeLocalData any, ctx *Context)

// taskSlot is the pool-resident state backing a Task handle (spec §3).
type taskSlot struct {
	self Handle

	job    Handle
	action Handle
	group  Handle
	queue  Handle

	args   []byte
	result []byte

	numInstances int
	priority     int
	detached     bool
	label        string

	state           *atomicState // TaskState
	currentInstance atomic.Int64
	instancesTodo   atomic.Int64
	cancelRequested atomic.Bool
	reclaimed       atomic.Bool // guards against double-Deallocate, see Node.reclaimTask

	statusMu sync.RWMutex
	status   Status

	done      *broadcaster
	node      *Node
	createdAt time.Time
}

func (t *taskSlot) recordStatus(s Status) {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	// First recorded status wins; an action racing multiple instances to
	// set a status should not have a later success silently overwrite an
	// earlier failure.
	if t.status == nil {
		t.status = s
	}
}

func (t *taskSlot) Status() Status {
	t.statusMu.RLock()
	defer t.statusMu.RUnlock()
	return t.status
}

// Task is a handle-based reference to a started task, returned by
// Node.StartTask / Group.StartTask / Queue.Enqueue.
type Task struct {
	node   *Node
	handle Handle
}

// Handle returns the underlying pool handle.
func (t Task) Handle() Handle { return t.handle }

func (t Task) resolve() (*taskSlot, error) {
	slot, ok := t.node.tasks.Resolve(t.handle)
	if !ok {
		return nil, ErrTaskInvalid
	}
	return slot, nil
}

// StartTask starts a task against jobID (spec §4.6): resolves the job,
// selects a compatible enabled action, allocates a task slot, links it to
// group (or NoneHandle), and publishes it to the scheduler's ready set.
func (n *Node) StartTask(jobID uint32, args, result []byte, group Handle, opts ...TaskOption) (Task, error) {
	cfg, err := resolveTaskOptions(opts)
	if err != nil {
		return Task{}, err
	}

	entry, err := n.jobs.Get(jobID, n.domainID)
	if err != nil {
		return Task{}, err
	}

	actionHandle, err := n.pickAction(entry)
	if err != nil {
		return Task{}, err
	}

	handle, _, err := n.allocateTask(jobID, actionHandle, args, result, group, NoneHandle, cfg)
	if err != nil {
		return Task{}, err
	}

	if group.IsValid() {
		if g, ok := n.groups.Resolve(group); ok {
			g.addTask(handle)
		}
	}
	if a, ok := n.actions.Resolve(actionHandle); ok {
		a.numTasks.Add(1)
		a.trackTask(handle)
	}

	n.submitTask(handle)
	return Task{node: n, handle: handle}, nil
}

// allocateTask reserves a task slot in the Created state (spec §3), without
// publishing it to the scheduler — used directly by StartTask, and by
// Queue.Enqueue, which defers the PreFinal transition/scheduler submission
// until the queue's ordering discipline admits the task.
func (n *Node) allocateTask(jobID uint32, action Handle, args, result []byte, group, queue Handle, cfg *taskConfig) (Handle, *taskSlot, error) {
	handle, slot, ok := n.tasks.Allocate()
	if !ok {
		return Handle{}, nil, ErrTaskLimit
	}
	*slot = taskSlot{
		self:         handle,
		job:          Handle{Index: jobID},
		action:       action,
		group:        group,
		queue:        queue,
		args:         args,
		result:       result,
		numInstances: cfg.numInstances,
		priority:     cfg.priority,
		detached:     cfg.detached,
		label:        cfg.label,
		state:        newAtomicState(uint64(TaskCreated)),
		done:         newBroadcaster(),
		node:         n,
		createdAt:    time.Now(),
	}
	slot.currentInstance.Store(0)
	slot.instancesTodo.Store(int64(cfg.numInstances))
	return handle, slot, nil
}

// submitTask transitions a Created task to PreFinal and publishes it to the
// scheduler's ready set.
func (n *Node) submitTask(h Handle) {
	slot, ok := n.tasks.Resolve(h)
	if !ok {
		return
	}
	slot.state.TryTransition(uint64(TaskCreated), uint64(TaskPreFinal))
	n.scheduler.submit(h, slot.priority)
}

// pickAction selects an enabled action from entry's list via round-robin,
// per spec §4.3's "selection policy: round-robin over compatible actions".
// Affinity compatibility with a specific worker core is enforced later, at
// dequeue/steal time (spec §4.10); Start only filters on enabled.
func (n *Node) pickAction(entry *jobEntry) (Handle, error) {
	candidates := entry.snapshot()
	if len(candidates) == 0 {
		return Handle{}, ErrJobInvalid
	}
	start := entry.nextRR()
	for i := 0; i < len(candidates); i++ {
		idx := (start + i) % len(candidates)
		h := candidates[idx]
		a, ok := n.actions.Resolve(h)
		if !ok {
			continue
		}
		if a.enabled.Load() == 1 {
			return h, nil
		}
	}
	return Handle{}, ErrActionDisabled
}

// Wait blocks until the task reaches a terminal state, returning its
// recorded status (defaulting to nil/SUCCESS), or ErrTimeout if timeout
// elapses first. Called from a worker goroutine, Wait cooperatively drives
// the scheduler (spec §5's "cooperative loop") instead of blocking the
// worker outright; called from any other goroutine, it blocks on a
// broadcast channel.
//
// Once the task is observed terminal, Wait is this handle's sole observer
// (a grouped task's observer is instead its group's WaitAll/WaitAny — see
// Node.completeTask), so it reclaims the task slot: per spec §3's
// Ownership summary, the handle is no longer valid once Wait has returned.
func (t Task) Wait(timeout time.Duration) (Status, error) {
	slot, err := t.resolve()
	if err != nil {
		return nil, err
	}

	isTerminal := func() bool {
		return TaskState(slot.state.Load()).IsTerminal()
	}

	finish := func() Status {
		status := slot.Status()
		if !slot.group.IsValid() {
			t.node.reclaimTask(slot)
		}
		return status
	}

	if isTerminal() {
		return finish(), nil
	}

	if w := t.node.scheduler.currentWorker(); w != nil {
		if !w.cooperativeWaitFor(isTerminal, timeout) {
			return nil, ErrTimeout
		}
		return finish(), nil
	}

	ctx := context.Background()
	if !slot.done.waitUntil(ctx, isTerminal, timeout) {
		return nil, ErrTimeout
	}
	if !isTerminal() {
		return nil, ErrTimeout
	}
	return finish(), nil
}

// Cancel attempts to move the task from Created or PreFinal directly to
// Cancelled (Created covers a task still parked in an ordered queue's
// backlog, never yet published to the scheduler); if it is already
// Running, it instead records a cooperative cancellation intent
// observable via Context.IsCancelled (spec §4.6).
func (t Task) Cancel() error {
	slot, err := t.resolve()
	if err != nil {
		return err
	}
	if slot.state.TransitionAny([]uint64{uint64(TaskCreated), uint64(TaskPreFinal)}, uint64(TaskCancelled)) {
		t.node.completeTask(slot, ErrActionCancelled)
		return nil
	}
	slot.cancelRequested.Store(true)
	return nil
}

// State returns the task's current state.
func (t Task) State() (TaskState, error) {
	slot, err := t.resolve()
	if err != nil {
		return 0, err
	}
	return TaskState(slot.state.Load()), nil
}
