// Package mtapi implements the task-scheduling core of a multicore
// task-parallel runtime: a domain-local Node that schedules fine-grained
// Tasks onto a bounded pool of worker goroutines (optionally pinned to
// specific cores) and routes them to Actions — local functions, or plugin
// actions driven by external callbacks.
//
// # Architecture
//
// A client initializes a Node, creates Actions bound to Jobs, then starts
// Tasks — directly, through a Queue, or into a Group. The scheduler's
// workers dequeue ready tasks and invoke the target action; results are
// copied into the caller's result buffer and waiters are released.
//
// The core is organized around a handful of entities, each with a
// fixed-capacity pool and a tag-versioned Handle:
//
//   - Node: the process-local singleton owning every pool, the job table,
//     and the worker scheduler.
//   - Action: a registered callable implementing a Job; local or plugin.
//   - Job: a routing record mapping a job id to the actions implementing it.
//   - Task: the unit of work; carries argument/result buffers, a state
//     machine, and optional Group/Queue linkage.
//   - Group: a completion-join facility (WaitAny/WaitAll).
//   - Queue: an ordered or unordered stream of tasks sharing a job.
//
// See SPEC_FULL.md in the repository root for the full design rationale.
package mtapi
