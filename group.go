package mtapi

import (
	"sync"
	"time"

	"github.com/siemens/embb-sub002/internal/ringqueue"
)

// groupSlot is the pool-resident state backing a Group handle (spec §4.8),
// grounded on original_source/mtapi_cpp/include/embb/mtapi/group.h's
// wait_any/wait_all join semantics, re-expressed around a completion FIFO
// (internal/ringqueue) instead of the C++ implementation's array scan.
type groupSlot struct {
	self Handle

	mu      sync.Mutex
	pending map[Handle]struct{}

	completed *ringqueue.Queue // FIFO of (index<<32|tag) for tasks not yet drained by Wait*
	done      *broadcaster

	statusMu  sync.Mutex
	lastError Status
}

func newGroupSlot(self Handle) *groupSlot {
	return &groupSlot{
		pending:   make(map[Handle]struct{}),
		completed: ringqueue.New(16),
		done:      newBroadcaster(),
	}
}

func (g *groupSlot) addTask(h Handle) {
	g.mu.Lock()
	g.pending[h] = struct{}{}
	g.mu.Unlock()
}

// NumTasks reports the number of tasks started against this group that
// have not yet reached a terminal state (SPEC_FULL §C.4).
func (g *groupSlot) NumTasks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// onTaskDone records h's status and publishes it to the completion FIFO
// before dropping it from pending, so a WaitAll that sees NumTasks reach
// zero also sees every member's status and completion entry.
func (g *groupSlot) onTaskDone(h Handle, state TaskState, status Status) {
	if state != TaskCompleted {
		g.statusMu.Lock()
		if g.lastError == nil {
			if status != nil {
				g.lastError = status
			} else {
				g.lastError = ErrActionCancelled
			}
		}
		g.statusMu.Unlock()
	}

	g.completed.Push(uint64(h.Index)<<32 | uint64(h.Tag))

	g.mu.Lock()
	delete(g.pending, h)
	g.mu.Unlock()
	g.done.Broadcast()
}

// Group is a handle-based reference to a task group.
type Group struct {
	node   *Node
	handle Handle
}

// Handle returns the underlying pool handle.
func (g Group) Handle() Handle { return g.handle }

func (g Group) resolve() (*groupSlot, error) {
	slot, ok := g.node.groups.Resolve(g.handle)
	if !ok {
		return nil, ErrGroupInvalid
	}
	return slot, nil
}

// CreateGroup allocates a new, empty group (spec §4.8).
func (n *Node) CreateGroup(opts ...GroupOption) (Group, error) {
	handle, slot, ok := n.groups.Allocate()
	if !ok {
		return Group{}, ErrGroupLimit
	}
	*slot = *newGroupSlot(handle)
	slot.self = handle
	return Group{node: n, handle: handle}, nil
}

// StartTask starts a task against jobID as a member of this group (spec
// §4.8); equivalent to Node.StartTask with the group handle supplied.
func (g Group) StartTask(jobID uint32, args, result []byte, opts ...TaskOption) (Task, error) {
	return g.node.StartTask(jobID, args, result, g.handle, opts...)
}

// NumTasks reports the number of member tasks that have not yet reached a
// terminal state (SPEC_FULL §C.4).
func (g Group) NumTasks() (int, error) {
	slot, err := g.resolve()
	if err != nil {
		return 0, err
	}
	return slot.NumTasks(), nil
}

func popTaskFromCompletion(slot *groupSlot) (Handle, bool) {
	v, ok := slot.completed.Pop()
	if !ok {
		return Handle{}, false
	}
	return decodeHandle(v), true
}

// WaitAny blocks until any one member task completes, returning it. If
// called from a worker goroutine executing another task (recursive
// parallelism), the wait cooperatively drives the scheduler instead of
// blocking the OS thread (spec §5). The returned Task's underlying handle
// is this group's observation of it: per spec §3's Ownership summary, the
// group has now observed the task, so its slot is reclaimed immediately —
// the returned Task's Handle() remains comparable, but Resolve-backed
// operations on it (another Wait, Cancel, ...) are no longer valid.
func (g Group) WaitAny(timeout time.Duration) (Task, error) {
	slot, err := g.resolve()
	if err != nil {
		return Task{}, err
	}
	ready := func() bool { return slot.completed.Len() > 0 }

	if !ready() {
		if w := g.node.scheduler.currentWorker(); w != nil {
			if !w.cooperativeWaitFor(ready, timeout) {
				return Task{}, ErrTimeout
			}
		} else if !slot.done.waitUntil(noTimeoutCtx, ready, timeout) {
			return Task{}, ErrTimeout
		}
	}
	h, ok := popTaskFromCompletion(slot)
	if !ok {
		return Task{}, ErrTimeout
	}
	if tslot, ok := g.node.tasks.Resolve(h); ok {
		g.node.reclaimTask(tslot)
	}
	return Task{node: g.node, handle: h}, nil
}

// WaitAll blocks until every member task has completed (spec §4.8). It
// returns the first non-success status observed among member tasks, or nil
// if all completed successfully.
func (g Group) WaitAll(timeout time.Duration) error {
	slot, err := g.resolve()
	if err != nil {
		return err
	}
	done := func() bool { return slot.NumTasks() == 0 }

	for !done() {
		if w := g.node.scheduler.currentWorker(); w != nil {
			if !w.cooperativeWaitFor(done, timeout) {
				return ErrTimeout
			}
		} else if !slot.done.waitUntil(noTimeoutCtx, done, timeout) {
			return ErrTimeout
		}
	}
	// Drain the completion FIFO, reclaiming each member task's slot as its
	// last observer (spec §3's Ownership summary — see scenario 2 in spec
	// §8: "observing group after return: handle is no longer valid"), so
	// the completion FIFO is empty again afterwards. The first recorded
	// error is kept, so a later WaitAll on the same group returns it again.
	for _, v := range slot.completed.Drain() {
		if tslot, ok := g.node.tasks.Resolve(decodeHandle(v)); ok {
			g.node.reclaimTask(tslot)
		}
	}

	slot.statusMu.Lock()
	defer slot.statusMu.Unlock()
	return slot.lastError
}
