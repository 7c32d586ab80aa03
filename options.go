package mtapi

// Functional-options pattern, lifted directly from eventloop/options.go
// (LoopOption / loopOptionImpl / resolveLoopOptions), generalized to the
// four entity kinds that take construction-time options in this package.

// ---- Node options ----

type nodeConfig struct {
	domainID      uint32
	nodeID        uint32
	maxTasks      int
	maxActions    int
	maxGroups     int
	maxQueues     int
	maxPriorities int
	maxWorkers    int
	coreAffinity  []int
	reuseMainGR   bool
	queueLenLimit int
}

// NodeOption configures Node.Initialize.
type NodeOption interface {
	applyNode(*nodeConfig) error
}

type nodeOptionFunc func(*nodeConfig) error

func (f nodeOptionFunc) applyNode(c *nodeConfig) error { return f(c) }

// defaults recovered from the original embb node defaults (SPEC_FULL §C.1).
const (
	defaultMaxTasks      = 1024
	defaultMaxActions    = 64
	defaultMaxGroups     = 256
	defaultMaxQueues     = 64
	defaultMaxPriorities = 4
	defaultQueueLenLimit = 1024
)

func resolveNodeOptions(opts []NodeOption) (*nodeConfig, error) {
	cfg := &nodeConfig{
		maxTasks:      defaultMaxTasks,
		maxActions:    defaultMaxActions,
		maxGroups:     defaultMaxGroups,
		maxQueues:     defaultMaxQueues,
		maxPriorities: defaultMaxPriorities,
		maxWorkers:    0, // resolved to NumCPU if unset, see node.go
		queueLenLimit: defaultQueueLenLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // skip nil options, as resolveLoopOptions does
		}
		if err := opt.applyNode(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.maxTasks <= 0 || cfg.maxActions <= 0 || cfg.maxGroups <= 0 ||
		cfg.maxQueues <= 0 || cfg.maxPriorities <= 0 {
		return nil, ErrParameter
	}
	return cfg, nil
}

// WithMaxTasks sets the fixed task-pool capacity (also the size of the job
// table). A non-positive value is rejected with ErrParameter rather than
// clamped; no upper bound is checked.
func WithMaxTasks(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.maxTasks = n
		return nil
	})
}

// WithMaxActions sets the fixed action-pool capacity.
func WithMaxActions(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.maxActions = n
		return nil
	})
}

// WithMaxGroups sets the fixed group-pool capacity.
func WithMaxGroups(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.maxGroups = n
		return nil
	})
}

// WithMaxQueues sets the fixed queue-pool capacity.
func WithMaxQueues(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.maxQueues = n
		return nil
	})
}

// WithMaxPriorities sets the number of priority classes served by the
// scheduler's priority-queue set (spec §4.9).
func WithMaxPriorities(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.maxPriorities = n
		return nil
	})
}

// WithCoreAffinity pins the worker pool to the given core numbers. Worker
// count is derived from len(cores) (spec §4.10), minus one if
// WithReuseMainThread is also set.
func WithCoreAffinity(cores ...int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if len(cores) == 0 {
			return ErrParameter
		}
		c.coreAffinity = append([]int(nil), cores...)
		return nil
	})
}

// WithWorkerCount sets the worker pool size directly. It takes precedence
// over the count derived from WithCoreAffinity; workers beyond the given
// cores get core number -1.
func WithWorkerCount(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.maxWorkers = n
		return nil
	})
}

// WithReuseMainThread reserves one fewer worker goroutine, matching spec
// §4.10's "max_workers = |core_affinity| (or 1 less when the main thread
// is to be reused)".
func WithReuseMainThread(enabled bool) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		c.reuseMainGR = enabled
		return nil
	})
}

// WithQueueLengthLimit records a per-queue pending-FIFO length limit in the
// node configuration. Queue.Enqueue does not check it: a queue's backlog
// grows without bound.
func WithQueueLengthLimit(n int) NodeOption {
	return nodeOptionFunc(func(c *nodeConfig) error {
		if n <= 0 {
			return ErrParameter
		}
		c.queueLenLimit = n
		return nil
	})
}

// ---- Action options ----

type actionConfig struct {
	affinity       []int // empty means "any worker"
	global         bool
	domainShared   bool
	nodeLocalData  any
	nodeLocalSize  int
	initialEnabled bool
}

// ActionOption configures Action creation.
type ActionOption interface {
	applyAction(*actionConfig) error
}

type actionOptionFunc func(*actionConfig) error

func (f actionOptionFunc) applyAction(c *actionConfig) error { return f(c) }

func resolveActionOptions(opts []ActionOption) (*actionConfig, error) {
	cfg := &actionConfig{initialEnabled: true}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyAction(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithActionAffinity restricts which worker core numbers may execute the
// action. An empty set (the zero value) means "any worker may run it";
// explicitly passing no cores to WithActionAffinity is a PARAMETER error
// per spec §4.4 ("PARAMETER if affinity is the empty set").
func WithActionAffinity(cores ...int) ActionOption {
	return actionOptionFunc(func(c *actionConfig) error {
		if len(cores) == 0 {
			return ErrParameter
		}
		c.affinity = append([]int(nil), cores...)
		return nil
	})
}

// WithNodeLocalData attaches opaque node-local data to the action, passed
// through to the action function on every invocation.
func WithNodeLocalData(data any, size int) ActionOption {
	return actionOptionFunc(func(c *actionConfig) error {
		c.nodeLocalData = data
		c.nodeLocalSize = size
		return nil
	})
}

// WithActionGlobal marks the action as globally visible (spec §3's
// "global" flag).
func WithActionGlobal(enabled bool) ActionOption {
	return actionOptionFunc(func(c *actionConfig) error {
		c.global = enabled
		return nil
	})
}

// WithActionDomainShared marks the action as shared across the domain.
func WithActionDomainShared(enabled bool) ActionOption {
	return actionOptionFunc(func(c *actionConfig) error {
		c.domainShared = enabled
		return nil
	})
}

// WithActionInitiallyDisabled creates the action in the disabled state.
func WithActionInitiallyDisabled() ActionOption {
	return actionOptionFunc(func(c *actionConfig) error {
		c.initialEnabled = false
		return nil
	})
}

// ---- Task options ----

type taskConfig struct {
	numInstances int
	priority     int
	detached     bool
	label        string
}

// TaskOption configures Task.Start.
type TaskOption interface {
	applyTask(*taskConfig) error
}

type taskOptionFunc func(*taskConfig) error

func (f taskOptionFunc) applyTask(c *taskConfig) error { return f(c) }

func resolveTaskOptions(opts []TaskOption) (*taskConfig, error) {
	cfg := &taskConfig{numInstances: 1, priority: 0}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyTask(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.numInstances < 1 {
		return nil, ErrParameter
	}
	return cfg, nil
}

// WithInstances sets the number of concurrent instances (spec §3: "1..N,
// the action body runs N times concurrently with distinct instance_num
// values").
func WithInstances(n int) TaskOption {
	return taskOptionFunc(func(c *taskConfig) error {
		if n < 1 {
			return ErrParameter
		}
		c.numInstances = n
		return nil
	})
}

// WithPriority sets the task's priority class; 0 is served first. A
// negative value is rejected with ErrParameter; a value at or above the
// node's priority count is clamped to the last class when submitted.
func WithPriority(p int) TaskOption {
	return taskOptionFunc(func(c *taskConfig) error {
		if p < 0 {
			return ErrParameter
		}
		c.priority = p
		return nil
	})
}

// WithDetached marks the task as detached: the runtime reclaims its slot
// immediately on reaching a terminal state, with no observer required
// (spec §4.6).
func WithDetached() TaskOption {
	return taskOptionFunc(func(c *taskConfig) error {
		c.detached = true
		return nil
	})
}

// WithLabel attaches a human-readable debug label (SPEC_FULL §C.3). The
// label is stored on the task only; nothing in this package logs or reads
// it, and it never affects scheduling.
func WithLabel(label string) TaskOption {
	return taskOptionFunc(func(c *taskConfig) error {
		c.label = label
		return nil
	})
}

// ---- Queue options ----

type queueConfig struct {
	ordered         bool
	retainOnDisable bool
	priority        int
	initialEnabled  bool
}

// QueueOption configures Queue creation.
type QueueOption interface {
	applyQueue(*queueConfig) error
}

type queueOptionFunc func(*queueConfig) error

func (f queueOptionFunc) applyQueue(c *queueConfig) error { return f(c) }

func resolveQueueOptions(opts []QueueOption) (*queueConfig, error) {
	cfg := &queueConfig{ordered: true, initialEnabled: true}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyQueue(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithOrdered controls whether the queue serializes its tasks (spec §4.7).
// Defaults to true.
func WithOrdered(ordered bool) QueueOption {
	return queueOptionFunc(func(c *queueConfig) error {
		c.ordered = ordered
		return nil
	})
}

// WithRetainOnDisable controls whether tasks waiting in an ordered queue's
// backlog are kept (rather than cancelled) when the queue is disabled; see
// Queue.Disable. Tasks already running are never cancelled by Disable.
func WithRetainOnDisable(retain bool) QueueOption {
	return queueOptionFunc(func(c *queueConfig) error {
		c.retainOnDisable = retain
		return nil
	})
}

// WithQueuePriority sets the default priority applied to tasks enqueued
// without an explicit one (SPEC_FULL §C.5).
func WithQueuePriority(p int) QueueOption {
	return queueOptionFunc(func(c *queueConfig) error {
		if p < 0 {
			return ErrParameter
		}
		c.priority = p
		return nil
	})
}

// WithQueueInitiallyDisabled creates the queue in the disabled state.
func WithQueueInitiallyDisabled() QueueOption {
	return queueOptionFunc(func(c *queueConfig) error {
		c.initialEnabled = false
		return nil
	})
}

// ---- Group options (reserved for symmetry / future attributes) ----

type groupConfig struct{}

// GroupOption configures Group creation.
type GroupOption interface {
	applyGroup(*groupConfig) error
}
