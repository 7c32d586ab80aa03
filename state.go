package mtapi

import "sync/atomic"

// atomicState is a lock-free CAS state machine, generalized from
// eventloop.FastState (eventloop/state.go) to carry an arbitrary integer
// state enum rather than one hardcoded LoopState. It backs Task.state,
// Action's enabled flag, Queue's enabled flag, and Node's running flag.
//
// Discipline carried over from the teacher: use TryTransition (CAS) for
// states reachable from more than one predecessor, and Store only for
// genuinely irreversible terminal states. Calling Store for a
// CAS-reachable state is a bug — it discards the compare.
type atomicState struct {
	_ [64]byte // cache-line padding, as in eventloop.FastState
	v atomic.Uint64
	_ [56]byte
}

func newAtomicState(initial uint64) *atomicState {
	s := &atomicState{}
	s.v.Store(initial)
	return s
}

// Load returns the current state.
func (s *atomicState) Load() uint64 {
	return s.v.Load()
}

// Store unconditionally sets the state. Reserved for irreversible
// transitions only.
func (s *atomicState) Store(v uint64) {
	s.v.Store(v)
}

// TryTransition attempts an atomic from->to transition, returning whether
// it succeeded.
func (s *atomicState) TryTransition(from, to uint64) bool {
	return s.v.CompareAndSwap(from, to)
}

// TransitionAny attempts to move from any of validFrom to to, trying each
// candidate in order until one CAS succeeds.
func (s *atomicState) TransitionAny(validFrom []uint64, to uint64) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(from, to) {
			return true
		}
	}
	return false
}

// TaskState is the task lifecycle state machine from spec §3.
type TaskState uint32

const (
	// TaskCreated is the initial state, before Start has enqueued it.
	TaskCreated TaskState = iota
	// TaskPreFinal is the ready-to-run state after Start, before a worker
	// has dequeued it.
	TaskPreFinal
	// TaskRunning is set once a worker has dequeued the task and begun
	// invoking its action.
	TaskRunning
	// TaskRetained names the state of a task held in a disabled,
	// retain-flagged queue. No code path in this package sets it: backlog
	// tasks of such a queue stay TaskCreated until admitted.
	TaskRetained
	// TaskCompleted is a terminal state: the action ran to completion.
	TaskCompleted
	// TaskCancelled is a terminal state: the task was cancelled before
	// (or cooperatively during) execution.
	TaskCancelled
	// TaskError is a terminal state: the action recorded a non-success
	// status, or a scheduler-level failure occurred (the task's action
	// could no longer be resolved when a worker dequeued it). Tasks
	// cancelled by an action or queue Delete end in TaskCancelled instead.
	TaskError
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "Created"
	case TaskPreFinal:
		return "PreFinal"
	case TaskRunning:
		return "Running"
	case TaskRetained:
		return "Retained"
	case TaskCompleted:
		return "Completed"
	case TaskCancelled:
		return "Cancelled"
	case TaskError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the three terminal states.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled || s == TaskError
}
