package mtapi

import (
	"runtime"
	"sync"
	"time"
)

const version = "1.0.0-go"

const (
	nodeUninitialized uint64 = 0
	nodeRunning       uint64 = 1
	nodeFinalized     uint64 = 2
)

// Node is the per-process MTAPI runtime instance (spec §4.11): owner of
// every pool (jobs, actions, tasks, groups, queues) and the worker
// scheduler. Grounded on eventloop.Loop's New/Run/Shutdown lifecycle
// (eventloop/loop.go), generalized from a single event loop to a
// multi-worker task-parallel runtime.
type Node struct {
	domainID uint32
	nodeID   uint32
	cfg      *nodeConfig

	jobs    *jobTable
	actions *Pool[actionSlot]
	tasks   *Pool[taskSlot]
	groups  *Pool[groupSlot]
	queues  *Pool[queueSlot]

	scheduler *scheduler
	metrics   *TaskMetrics
	attrs     *attributeBag

	state *atomicState
}

// GetAttribute reads a node attribute (spec §4.2/§4.11) into data, whose
// length must match the attribute's static size.
func (n *Node) GetAttribute(id AttrID, data []byte) error {
	return n.attrs.Get(id, data)
}

// node is the process-wide singleton handle (spec §4.11: "a process has at
// most one initialized node").
var node struct {
	mu sync.RWMutex
	n  *Node
}

// Initialize creates and starts the process-wide Node (spec §4.11). It is
// an error to call Initialize twice without an intervening Finalize.
func Initialize(domainID, nodeID uint32, opts ...NodeOption) (*Node, error) {
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.n != nil {
		return nil, ErrNodeAlreadyInitialized
	}

	cfg, err := resolveNodeOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.maxWorkers == 0 {
		if len(cfg.coreAffinity) > 0 {
			cfg.maxWorkers = len(cfg.coreAffinity)
		} else {
			cfg.maxWorkers = runtime.NumCPU()
		}
	}
	if cfg.reuseMainGR && cfg.maxWorkers > 1 {
		cfg.maxWorkers--
	}

	n := &Node{
		domainID: domainID,
		nodeID:   nodeID,
		cfg:      cfg,
		jobs:     newJobTable(domainID, cfg.maxTasks),
		actions:  NewPool[actionSlot](cfg.maxActions),
		tasks:    NewPool[taskSlot](cfg.maxTasks),
		groups:   NewPool[groupSlot](cfg.maxGroups),
		queues:   NewPool[queueSlot](cfg.maxQueues),
		metrics:  newTaskMetrics(),
		state:    newAtomicState(nodeRunning),
	}
	n.attrs = newNodeAttributeBag(cfg)
	n.scheduler = newScheduler(n, cfg.maxWorkers, cfg.coreAffinity, cfg.maxPriorities)
	n.scheduler.start()

	logger().Info().
		Uint32("domain", domainID).
		Uint32("node", nodeID).
		Int("workers", cfg.maxWorkers).
		Msg("mtapi node initialized")

	node.n = n
	return n, nil
}

// Finalize stops the scheduler and releases the singleton Node.
func Finalize() error {
	node.mu.Lock()
	defer node.mu.Unlock()
	if node.n == nil {
		return ErrNodeNotInitialized
	}
	if !node.n.state.TryTransition(nodeRunning, nodeFinalized) {
		return ErrNodeNotInitialized
	}
	node.n.scheduler.stop()
	logger().Info().Uint32("domain", node.n.domainID).Uint32("node", node.n.nodeID).Msg("mtapi node finalized")
	node.n = nil
	return nil
}

// CurrentNode returns the process-wide initialized Node, or
// ErrNodeNotInitialized.
func CurrentNode() (*Node, error) {
	node.mu.RLock()
	defer node.mu.RUnlock()
	if node.n == nil {
		return nil, ErrNodeNotInitialized
	}
	return node.n, nil
}

// CoreCount reports the number of worker cores this node was configured
// with (SPEC_FULL §C.2).
func (n *Node) CoreCount() int {
	return len(n.scheduler.workers)
}

// Version reports the module's implementation version string (SPEC_FULL
// §C.2), analogous to the C API's MTAPI_VERSION macro.
func (n *Node) Version() string {
	return version
}

// DomainID returns the domain this node belongs to.
func (n *Node) DomainID() uint32 { return n.domainID }

// NodeID returns this node's id within its domain.
func (n *Node) NodeID() uint32 { return n.nodeID }

// Metrics returns the node's task-latency tracker (SPEC_FULL §A).
func (n *Node) Metrics() *TaskMetrics { return n.metrics }

// QueueDepth reports the scheduler's current combined ready-task count
// across all priority and per-worker rings (SPEC_FULL §A).
func (n *Node) QueueDepth() int { return n.scheduler.QueueDepth() }

// CreateJob associates no state by itself (spec §4.3: a job is just a slot
// for actions to register against); it exists for symmetry and validates
// jobID against the configured limit.
func (n *Node) CreateJob(jobID uint32) error {
	_, err := n.jobs.Get(jobID, n.domainID)
	return err
}

// handleMatchesAffinity reports whether the task at h may run on the given
// worker core (spec §4.10). core < 0 means "unspecified", which always
// matches (used for non-worker dequeues that don't carry affinity context).
func (n *Node) handleMatchesAffinity(h Handle, core int) bool {
	slot, ok := n.tasks.Resolve(h)
	if !ok {
		return false
	}
	a, ok := n.actions.Resolve(slot.action)
	if !ok {
		return false
	}
	if core < 0 {
		return true
	}
	return a.affinityAllows(core)
}

// completeTask transitions slot to its terminal state, releases the
// owning action's in-flight counter, notifies any group/queue it is linked
// to, and wakes Wait()ers. Called exactly once per task, from whichever
// worker runs its last remaining instance (or from Cancel, for tasks
// cancelled before they ever ran).
//
// Storage is freed here only for detached tasks (spec: "finalized by the
// runtime ... with no observer required"). A non-detached task's slot
// stays allocated until its last observer — a direct Task.Wait, or the
// owning group's WaitAll/WaitAny drain — calls reclaimTask (spec §3's
// Ownership summary: "the task's storage is freed only after the task
// reaches terminal state and all waiters have observed it").
func (n *Node) completeTask(slot *taskSlot, status Status) {
	final := TaskCompleted
	switch {
	case status == ErrActionCancelled:
		final = TaskCancelled
	case status != nil:
		final = TaskError
	}
	if !TaskState(slot.state.Load()).IsTerminal() {
		slot.state.TransitionAny([]uint64{uint64(TaskRunning), uint64(TaskPreFinal)}, uint64(final))
	}
	slot.recordStatus(status)
	n.metrics.record(time.Since(slot.createdAt))

	if a, ok := n.actions.Resolve(slot.action); ok {
		a.releaseInstance(slot.self)
	}
	if slot.group.IsValid() {
		if g, ok := n.groups.Resolve(slot.group); ok {
			g.onTaskDone(slot.self, TaskState(slot.state.Load()), slot.Status())
		}
	}
	if slot.queue.IsValid() {
		if q, ok := n.queues.Resolve(slot.queue); ok {
			q.onTaskDone(slot.self)
		}
	}
	slot.done.Broadcast()

	if slot.detached {
		n.reclaimTask(slot)
	}
}

// reclaimTask deallocates slot's task handle exactly once, idempotent
// against being called from more than one observer (e.g. a direct Wait
// racing a group drain on a task that was never actually grouped).
func (n *Node) reclaimTask(slot *taskSlot) {
	if slot.reclaimed.CompareAndSwap(false, true) {
		n.tasks.Deallocate(slot.self)
	}
}
