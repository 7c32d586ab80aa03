package mtapi

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// actionKind distinguishes a local Go-function action from a plugin action
// (spec §4.5: plugin actions carry start/cancel/finalize callbacks instead
// of a single synchronous function).
type actionKind uint8

const (
	actionKindLocal actionKind = iota
	actionKindPlugin
)

// actionSlot is the pool-resident state backing an Action handle.
//
// Grounded on original_source/mtapi_c/src/embb_mtapi_action_t.c (the action
// struct's job_id, enabled flag, affinity mask, num_tasks counter) and on
// eventloop/state.go's atomic CAS pattern for the enabled/disabled/deleted
// transitions.
type actionSlot struct {
	self Handle
	job  Handle

	kind actionKind
	fn   ActionFunc
	plug Plugin

	affinity     []int // empty means "any worker"
	global       bool
	domainShared bool

	nodeLocalData any
	nodeLocalSize int

	enabled  *atomicState // 0 disabled, 1 enabled, 2 deleted
	numTasks atomic.Int64
	done     *broadcaster
	attrs    *attributeBag

	liveMu sync.Mutex
	live   map[Handle]struct{} // tasks bound to this action not yet terminal
}

// GetAttribute reads an action attribute (spec §4.2/§4.4) into data, whose
// length must match the attribute's static size.
func (a Action) GetAttribute(id AttrID, data []byte) error {
	slot, err := a.resolve()
	if err != nil {
		return err
	}
	return slot.attrs.Get(id, data)
}

// SetAttribute writes one of the action's user-defined attribute slots
// (AttrActionUser0..AttrActionUser3); the built-in read-only attributes
// reject writes with ErrAttrReadonly.
func (a Action) SetAttribute(id AttrID, data []byte) error {
	slot, err := a.resolve()
	if err != nil {
		return err
	}
	return slot.attrs.Set(id, data)
}

const (
	actionDisabled uint64 = 0
	actionEnabled  uint64 = 1
	actionDeleted  uint64 = 2
)

// affinityAllows reports whether the given worker core number is permitted
// to run this action (spec §4.4).
func (a *actionSlot) affinityAllows(core int) bool {
	if len(a.affinity) == 0 {
		return true
	}
	for _, c := range a.affinity {
		if c == core {
			return true
		}
	}
	return false
}

// Action is a handle-based reference to a created action.
type Action struct {
	node   *Node
	handle Handle
}

func (a Action) resolve() (*actionSlot, error) {
	slot, ok := a.node.actions.Resolve(a.handle)
	if !ok {
		return nil, ErrActionInvalid
	}
	return slot, nil
}

// Handle returns the underlying pool handle.
func (a Action) Handle() Handle { return a.handle }

// CreateAction registers a local action implementing jobID (spec §4.4).
// A job may have multiple actions registered against it (e.g. a CPU
// implementation and a plugin-backed one); StartTask round-robins across
// the enabled ones.
func (n *Node) CreateAction(jobID uint32, fn ActionFunc, opts ...ActionOption) (Action, error) {
	if fn == nil {
		return Action{}, ErrParameter
	}
	return n.createAction(jobID, actionKindLocal, fn, nil, opts...)
}

// CreateWithPlugin registers a plugin-backed action implementing jobID
// (spec §4.5).
func (n *Node) CreateWithPlugin(jobID uint32, plug Plugin, opts ...ActionOption) (Action, error) {
	if plug == nil {
		return Action{}, ErrParameter
	}
	return n.createAction(jobID, actionKindPlugin, nil, plug, opts...)
}

func (n *Node) createAction(jobID uint32, kind actionKind, fn ActionFunc, plug Plugin, opts ...ActionOption) (Action, error) {
	cfg, err := resolveActionOptions(opts)
	if err != nil {
		return Action{}, err
	}
	entry, err := n.jobs.Get(jobID, n.domainID)
	if err != nil {
		return Action{}, err
	}

	for _, h := range entry.snapshot() {
		existing, ok := n.actions.Resolve(h)
		if !ok {
			continue
		}
		if reflect.DeepEqual(existing.nodeLocalData, cfg.nodeLocalData) {
			return Action{}, ErrActionExists
		}
	}

	handle, slot, ok := n.actions.Allocate()
	if !ok {
		return Action{}, ErrActionLimit
	}

	initial := actionDisabled
	if cfg.initialEnabled {
		initial = actionEnabled
	}

	*slot = actionSlot{
		self:          handle,
		job:           Handle{Index: jobID},
		kind:          kind,
		fn:            fn,
		plug:          plug,
		affinity:      cfg.affinity,
		global:        cfg.global,
		domainShared:  cfg.domainShared,
		nodeLocalData: cfg.nodeLocalData,
		nodeLocalSize: cfg.nodeLocalSize,
		enabled:       newAtomicState(initial),
		done:          newBroadcaster(),
		attrs:         newActionAttributeBag(cfg),
	}

	entry.append(handle)
	return Action{node: n, handle: handle}, nil
}

// Enable re-admits a previously disabled action to selection (spec §4.4).
func (a Action) Enable() error {
	slot, err := a.resolve()
	if err != nil {
		return err
	}
	if !slot.enabled.TryTransition(actionDisabled, actionEnabled) {
		if slot.enabled.Load() == actionDeleted {
			return ErrActionDeleted
		}
		// already enabled: idempotent no-op
	}
	return nil
}

// Disable stops the action from being selected for new tasks and waits (up
// to timeout) for in-flight tasks bound to it to finish, per spec §4.4's
// "disable blocks new selection; in-flight tasks run to completion".
// timeout == 0 polls once and returns immediately; a negative timeout
// waits indefinitely (spec §5).
func (a Action) Disable(timeout time.Duration) error {
	slot, err := a.resolve()
	if err != nil {
		return err
	}
	if !slot.enabled.TryTransition(actionEnabled, actionDisabled) {
		if slot.enabled.Load() == actionDeleted {
			return ErrActionDeleted
		}
	}
	ok := slot.done.waitUntil(noTimeoutCtx, func() bool { return slot.numTasks.Load() == 0 }, timeout)
	if !ok {
		return ErrTimeout
	}
	return nil
}

// Delete marks the action deleted (permanently excluded from selection),
// actively cancels every task still bound to it (spec §4.4: "cancels every
// task whose action handle matches"), then waits for in-flight tasks to
// drain and removes it from its job's action list. timeout == 0 polls once
// and returns immediately; a negative timeout waits indefinitely (spec
// §5). Without the active-cancel step, a task sitting in a disabled
// queue's backlog (bound to this action but never yet submitted to the
// scheduler) would never reach a terminal state and Delete would hang or
// time out waiting on num_tasks forever.
func (a Action) Delete(timeout time.Duration) error {
	slot, err := a.resolve()
	if err != nil {
		return err
	}
	slot.enabled.Store(actionDeleted)

	slot.liveMu.Lock()
	live := make([]Handle, 0, len(slot.live))
	for h := range slot.live {
		live = append(live, h)
	}
	slot.liveMu.Unlock()
	for _, h := range live {
		_ = Task{node: a.node, handle: h}.Cancel()
	}

	ok := slot.done.waitUntil(noTimeoutCtx, func() bool { return slot.numTasks.Load() == 0 }, timeout)
	if !ok {
		return ErrTimeout
	}
	if entry, ferr := a.node.jobs.Get(slot.job.Index, a.node.domainID); ferr == nil {
		entry.removeSwapLast(a.handle)
	}
	if slot.kind == actionKindPlugin && slot.plug != nil {
		if ferr := slot.plug.OnFinalize(a.handle); ferr != nil {
			// Plugin finalization errors are surfaced as warnings only
			// (spec §7), never as a Delete failure.
			logger().Warn().Err(ferr).Msg("plugin action finalize failed")
		}
	}
	a.node.actions.Deallocate(a.handle)
	return nil
}

// trackTask registers h as bound to this action while it's outstanding, so
// Delete can actively cancel it later even if it's still sitting in a
// queue's backlog rather than the scheduler's ready set.
func (a *actionSlot) trackTask(h Handle) {
	a.liveMu.Lock()
	if a.live == nil {
		a.live = make(map[Handle]struct{})
	}
	a.live[h] = struct{}{}
	a.liveMu.Unlock()
}

// releaseInstance decrements the action's in-flight task count, stops
// tracking h, and wakes any Disable/Delete waiter once the count reaches
// zero.
func (a *actionSlot) releaseInstance(h Handle) {
	a.liveMu.Lock()
	delete(a.live, h)
	a.liveMu.Unlock()
	if a.numTasks.Add(-1) == 0 {
		a.done.Broadcast()
	}
}
