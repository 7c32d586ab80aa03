package mtapi

import "errors"

// Standard errors, mirroring eventloop's top-of-file sentinel var pattern
// (see eventloop/loop.go). Every public operation returns one of these (or
// nil) by value; nothing in this package panics across the API boundary.
var (
	// ErrNodeNotInitialized is returned when an operation requires an
	// initialized Node but none exists.
	ErrNodeNotInitialized = errors.New("mtapi: node not initialized")

	// ErrNodeAlreadyInitialized is returned by Initialize when a Node
	// already exists.
	ErrNodeAlreadyInitialized = errors.New("mtapi: node already initialized")

	// ErrNodeInitFailed is returned by Initialize when pool/scheduler
	// construction fails partway through.
	ErrNodeInitFailed = errors.New("mtapi: node initialization failed")

	// ErrParameter is returned when an argument is out of range.
	ErrParameter = errors.New("mtapi: invalid parameter")

	// ErrAttrNum is returned by SetAttribute/GetAttribute for an unknown
	// attribute id.
	ErrAttrNum = errors.New("mtapi: unknown attribute id")

	// ErrAttrSize is returned when the supplied buffer size does not match
	// the attribute's static size.
	ErrAttrSize = errors.New("mtapi: attribute size mismatch")

	// ErrAttrReadonly is returned by SetAttribute for an immutable
	// attribute.
	ErrAttrReadonly = errors.New("mtapi: attribute is read-only")

	// ErrJobInvalid is returned when a job id is out of range or has no
	// actions registered.
	ErrJobInvalid = errors.New("mtapi: invalid job")

	// ErrActionInvalid is returned for a stale or out-of-range action
	// handle.
	ErrActionInvalid = errors.New("mtapi: invalid action handle")

	// ErrActionExists is returned by Action creation when the
	// (job, node-local-data) combination is already registered.
	ErrActionExists = errors.New("mtapi: action already exists")

	// ErrActionLimit is returned when the action pool is exhausted.
	ErrActionLimit = errors.New("mtapi: action pool exhausted")

	// ErrActionDisabled is returned when starting a task against a
	// disabled action.
	ErrActionDisabled = errors.New("mtapi: action disabled")

	// ErrActionDeleted is returned by Action.Enable/Disable once Delete has
	// marked the action deleted (while Delete waits, or after it timed
	// out). Tasks still bound to a deleted action are cancelled and report
	// ErrActionCancelled.
	ErrActionDeleted = errors.New("mtapi: action deleted")

	// ErrActionFailed is the status an action body records via
	// Context.SetStatus to indicate failure.
	ErrActionFailed = errors.New("mtapi: action failed")

	// ErrActionCancelled is the status Task.Cancel records on a task
	// cancelled before it ran. A running task is only flagged (see
	// Context.IsCancelled); its action body may record this status itself
	// via Context.SetStatus.
	ErrActionCancelled = errors.New("mtapi: action cancelled")

	// ErrTaskInvalid is returned for a stale or out-of-range task handle.
	ErrTaskInvalid = errors.New("mtapi: invalid task handle")

	// ErrTaskLimit is returned when the task pool is exhausted.
	ErrTaskLimit = errors.New("mtapi: task pool exhausted")

	// ErrGroupInvalid is returned for a stale or out-of-range group
	// handle.
	ErrGroupInvalid = errors.New("mtapi: invalid group handle")

	// ErrGroupLimit is returned when the group pool is exhausted.
	ErrGroupLimit = errors.New("mtapi: group pool exhausted")

	// ErrQueueInvalid is returned for a stale or out-of-range queue
	// handle.
	ErrQueueInvalid = errors.New("mtapi: invalid queue handle")

	// ErrQueueLimit is returned when the queue pool is exhausted.
	ErrQueueLimit = errors.New("mtapi: queue pool exhausted")

	// ErrQueueDisabled is returned by Enqueue on a disabled queue.
	ErrQueueDisabled = errors.New("mtapi: queue disabled")

	// ErrQueueDeleted is returned by Queue.Enqueue/Enable/Disable once
	// Delete has marked the queue deleted but its slot is not yet released
	// (while Delete waits, or after it timed out). Backlog tasks dropped by
	// Delete are cancelled and report ErrActionCancelled.
	ErrQueueDeleted = errors.New("mtapi: queue deleted")

	// ErrContextInvalid is returned when a Context method is called after
	// its owning instance has completed.
	ErrContextInvalid = errors.New("mtapi: invalid task context")

	// ErrContextOutOfContext is returned when a Context setter is called
	// from a goroutine other than the one executing the instance.
	ErrContextOutOfContext = errors.New("mtapi: task context used outside owning goroutine")

	// ErrArgSize is a status an action body may record when the argument
	// buffer size does not match its expectation.
	ErrArgSize = errors.New("mtapi: argument buffer size mismatch")

	// ErrResultSize is a status an action body may record when the result
	// buffer size does not match its expectation.
	ErrResultSize = errors.New("mtapi: result buffer size mismatch")

	// ErrTimeout is returned when a bounded wait expires before its
	// condition is satisfied.
	ErrTimeout = errors.New("mtapi: operation timed out")

	// ErrUnknown is a catch-all for conditions with no more specific
	// status.
	ErrUnknown = errors.New("mtapi: unknown error")
)

// Status is the stable external vocabulary from spec §6/§7: a value
// returned from Wait/WaitAll identifying how a task or group concluded.
// SUCCESS is the nil error.
type Status = error
