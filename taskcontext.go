package mtapi

import "sync/atomic"

// Context is exposed to action bodies (spec §4.4/§6), carrying per-
// invocation identity and a setter for the task's recorded status.
//
// Grounded on original_source/mtapi_c/src/embb_mtapi_task_context_t.c: the
// C task context exposes the same fields (instance number, total
// instances, core number, task state) plus a status setter, here
// expressed as methods on a Go struct instead of a C struct + accessor
// functions.
type Context struct {
	instanceNum  int
	numInstances int
	coreNumber   int
	task         *taskSlot
	owner        uint64 // goroutine-ish owner token, see ErrContextOutOfContext
	done         atomic.Bool
}

// InstanceNumber returns this invocation's instance number, in
// [0, NumInstances()).
func (c *Context) InstanceNumber() int {
	return c.instanceNum
}

// NumInstances returns the task's total instance count.
func (c *Context) NumInstances() int {
	return c.numInstances
}

// CoreNumber returns the core number of the worker currently executing
// this instance.
func (c *Context) CoreNumber() int {
	return c.coreNumber
}

// Args returns the task's argument buffer, as originally supplied to
// StartTask/Enqueue. A plugin action's OnStart uses this the same way a
// local ActionFunc uses its args parameter directly.
func (c *Context) Args() []byte {
	return c.task.args
}

// Result returns the task's result buffer, for a plugin action's OnStart
// to populate the same way a local ActionFunc writes into its result
// parameter directly.
func (c *Context) Result() []byte {
	return c.task.result
}

// TaskState returns the owning task's current state.
func (c *Context) TaskState() TaskState {
	return TaskState(c.task.state.Load())
}

// SetStatus records an error code on the owning task, to be returned to
// waiters once the task reaches a terminal state (spec §4.4: "a setter to
// record an error code into the task"). Calling SetStatus after the
// context's instance has finished executing returns ErrContextInvalid.
//
// SetStatus must be called from the goroutine that owns this Context — the
// one that received it as the ActionFunc/OnStart argument — never from some
// other goroutine reaching into a captured Context after the fact (spec
// §4.4: the status setter operates "in the context of" the instance, not on
// it from the outside). Calling it from any other goroutine returns
// ErrContextOutOfContext instead of mutating the task.
func (c *Context) SetStatus(status Status) error {
	if c.done.Load() {
		return ErrContextInvalid
	}
	if currentGoroutineID() != c.owner {
		return ErrContextOutOfContext
	}
	c.task.recordStatus(status)
	return nil
}

// IsCancelled reports whether the owning task has a pending cancellation
// intent (spec §4.6: "the runtime sets a 'cancelled' intent observable by
// the action via task_ctx.state"). Action bodies are expected to check
// this cooperatively and exit early.
func (c *Context) IsCancelled() bool {
	return c.task.cancelRequested.Load()
}
