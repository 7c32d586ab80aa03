package mtapi

import (
	"sync"
	"sync/atomic"
	"time"
)

// queueSlot is the pool-resident state backing a Queue handle (spec §4.7),
// grounded on original_source/mtapi_cpp/include/embb/mtapi/queue.h (the
// ordered/unordered distinction, disable/retain-on-disable flag) and on
// the teacher's atomicState CAS discipline for the enabled/disabled/
// deleted lifecycle shared with actionSlot.
type queueSlot struct {
	self  Handle
	jobID uint32

	ordered         bool
	retainOnDisable bool
	priority        int

	enabled *atomicState // reuses the action{Enabled,Disabled,Deleted} constants

	mu      sync.Mutex
	current Handle // valid iff an ordered queue has a task currently in flight
	waiting []queueRequest

	numTasks atomic.Int64
	done     *broadcaster

	node *Node
}

type queueRequest struct {
	handle Handle
}

// Queue is a handle-based reference to a task queue.
type Queue struct {
	node   *Node
	handle Handle
}

// Handle returns the underlying pool handle.
func (q Queue) Handle() Handle { return q.handle }

func (q Queue) resolve() (*queueSlot, error) {
	slot, ok := q.node.queues.Resolve(q.handle)
	if !ok {
		return nil, ErrQueueInvalid
	}
	return slot, nil
}

// CreateQueue allocates a queue bound to jobID (spec §4.7): tasks enqueued
// through it implement jobID, optionally serialized (ordered) so that at
// most one is in flight at a time.
func (n *Node) CreateQueue(jobID uint32, opts ...QueueOption) (Queue, error) {
	cfg, err := resolveQueueOptions(opts)
	if err != nil {
		return Queue{}, err
	}
	if _, err := n.jobs.Get(jobID, n.domainID); err != nil {
		return Queue{}, err
	}

	handle, slot, ok := n.queues.Allocate()
	if !ok {
		return Queue{}, ErrQueueLimit
	}

	initial := actionDisabled
	if cfg.initialEnabled {
		initial = actionEnabled
	}
	*slot = queueSlot{
		self:            handle,
		jobID:           jobID,
		ordered:         cfg.ordered,
		retainOnDisable: cfg.retainOnDisable,
		priority:        cfg.priority,
		enabled:         newAtomicState(initial),
		current:         NoneHandle,
		done:            newBroadcaster(),
		node:            n,
	}
	return Queue{node: n, handle: handle}, nil
}

// Enqueue submits a task to the queue (spec §4.7). The task is created
// immediately (Created state, so Wait() is always valid on the returned
// Task), but — for an ordered queue with one already in flight — is only
// published to the scheduler once its predecessor completes.
func (q Queue) Enqueue(args, result []byte, opts ...TaskOption) (Task, error) {
	slot, err := q.resolve()
	if err != nil {
		return Task{}, err
	}
	switch slot.enabled.Load() {
	case actionDeleted:
		return Task{}, ErrQueueDeleted
	case actionDisabled:
		return Task{}, ErrQueueDisabled
	}

	// A queue's default priority applies unless the caller's own
	// WithPriority option (applied afterwards) overrides it.
	opts = append([]TaskOption{WithPriority(slot.priority)}, opts...)
	cfg, err := resolveTaskOptions(opts)
	if err != nil {
		return Task{}, err
	}

	entry, err := q.node.jobs.Get(slot.jobID, q.node.domainID)
	if err != nil {
		return Task{}, err
	}
	actionHandle, err := q.node.pickAction(entry)
	if err != nil {
		return Task{}, err
	}

	handle, _, err := q.node.allocateTask(slot.jobID, actionHandle, args, result, NoneHandle, slot.self, cfg)
	if err != nil {
		return Task{}, err
	}
	if a, ok := q.node.actions.Resolve(actionHandle); ok {
		a.numTasks.Add(1)
		a.trackTask(handle)
	}
	slot.numTasks.Add(1)

	slot.mu.Lock()
	if slot.ordered && slot.current.IsValid() {
		slot.waiting = append(slot.waiting, queueRequest{handle: handle})
		slot.mu.Unlock()
	} else {
		slot.current = handle
		slot.mu.Unlock()
		q.node.submitTask(handle)
	}

	return Task{node: q.node, handle: handle}, nil
}

// onTaskDone is invoked by Node.completeTask for every task linked to this
// queue. For the task the queue currently considers in flight, it admits
// the next waiting request (ordered queues only); a backlog task that was
// instead cancelled before ever being submitted (h != slot.current) only
// needs its count decremented, since it never occupied the in-flight slot.
func (slot *queueSlot) onTaskDone(h Handle) {
	var next Handle
	var hasNext bool

	slot.mu.Lock()
	if slot.ordered && h == slot.current {
		if len(slot.waiting) > 0 {
			next = slot.waiting[0].handle
			slot.waiting = slot.waiting[1:]
			hasNext = true
			slot.current = next
		} else {
			slot.current = NoneHandle
		}
	}
	slot.mu.Unlock()

	if hasNext {
		slot.node.submitTask(next)
	}

	if slot.numTasks.Add(-1) == 0 {
		slot.done.Broadcast()
	}
}

// Enable re-admits the queue to accepting new Enqueue calls.
func (q Queue) Enable() error {
	slot, err := q.resolve()
	if err != nil {
		return err
	}
	if !slot.enabled.TryTransition(actionDisabled, actionEnabled) && slot.enabled.Load() == actionDeleted {
		return ErrQueueDeleted
	}
	return nil
}

// Disable stops the queue from accepting new Enqueue calls. If
// WithRetainOnDisable was set, tasks already waiting in an ordered queue's
// backlog are kept and go on being admitted one at a time as their
// predecessors complete, even while the queue is disabled; they are not
// held back until Enable, and they stay in TaskCreated until admitted.
// Otherwise they are removed from the backlog and cancelled. Blocks (up to
// timeout) until every task of the queue has reached a terminal state.
func (q Queue) Disable(timeout time.Duration) error {
	slot, err := q.resolve()
	if err != nil {
		return err
	}
	if !slot.enabled.TryTransition(actionEnabled, actionDisabled) && slot.enabled.Load() == actionDeleted {
		return ErrQueueDeleted
	}
	if !slot.retainOnDisable {
		slot.mu.Lock()
		backlog := slot.waiting
		slot.waiting = nil
		slot.mu.Unlock()
		for _, r := range backlog {
			_ = Task{node: q.node, handle: r.handle}.Cancel()
		}
	}
	if !slot.done.waitUntil(noTimeoutCtx, func() bool { return slot.numTasks.Load() == 0 }, timeout) {
		return ErrTimeout
	}
	return nil
}

// Delete marks the queue deleted and waits (up to timeout) for it to
// drain, as Disable does, then releases its pool slot.
func (q Queue) Delete(timeout time.Duration) error {
	slot, err := q.resolve()
	if err != nil {
		return err
	}
	slot.enabled.Store(actionDeleted)
	slot.mu.Lock()
	backlog := slot.waiting
	slot.waiting = nil
	slot.mu.Unlock()
	for _, r := range backlog {
		_ = Task{node: q.node, handle: r.handle}.Cancel()
	}
	if !slot.done.waitUntil(noTimeoutCtx, func() bool { return slot.numTasks.Load() == 0 }, timeout) {
		return ErrTimeout
	}
	q.node.queues.Deallocate(q.handle)
	return nil
}
