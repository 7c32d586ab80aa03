package mtapi

import (
	"sync"
	"sync/atomic"
)

// jobEntry is the per-job routing record from spec §4.3: a mutable list of
// actions implementing the job, mutated only by action create/delete.
//
// Writes are serialized by a short-held mutex that builds a new slice and
// publishes it with a single atomic.Pointer store; reads are a plain
// Load(), with no lock and no per-call copy, matching spec §5: "Job
// action-list: writes ... serialized ... by a short-held lock; reads are
// lock-free via snapshot." The published slice is never mutated in place
// after Store, so a snapshot can be handed to callers directly.
type jobEntry struct {
	mu      sync.Mutex // serializes append/removeSwapLast
	actions atomic.Pointer[[]Handle]
	rr      uint64
}

func (j *jobEntry) snapshot() []Handle {
	p := j.actions.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (j *jobEntry) append(h Handle) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cur := j.snapshot()
	next := make([]Handle, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = h
	j.actions.Store(&next)
}

// nextRR returns the next round-robin start index, advancing the
// per-job counter (spec §4.3 action-selection policy).
func (j *jobEntry) nextRR() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := j.rr
	j.rr++
	if v > 1<<40 { // keep it from growing unbounded across a long-lived job
		j.rr = 0
	}
	return int(v)
}

// removeSwapLast removes h from the action list using swap-with-last, per
// spec §4.3 ("delete removes-by-swap-with-last").
func (j *jobEntry) removeSwapLast(h Handle) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cur := j.snapshot()
	for i, a := range cur {
		if a == h {
			next := make([]Handle, len(cur))
			copy(next, cur)
			last := len(next) - 1
			next[i] = next[last]
			next = next[:last]
			j.actions.Store(&next)
			return
		}
	}
}

// jobTable is the per-domain job id -> action list mapping, fixed-size per
// spec §4.3 ("job_id < max_jobs").
type jobTable struct {
	domainID uint32
	entries  []*jobEntry // index == job id
}

func newJobTable(domainID uint32, maxJobs int) *jobTable {
	t := &jobTable{domainID: domainID, entries: make([]*jobEntry, maxJobs)}
	for i := range t.entries {
		t.entries[i] = &jobEntry{}
	}
	return t
}

// Get validates jobID and returns its entry. A job is valid (spec §3) iff
// job_id < max_jobs; non-empty is required only for Start, not for Get
// itself (Get is also used internally by action_create/delete, which must
// be able to add the first action to an otherwise-empty job).
func (t *jobTable) Get(jobID uint32, domainID uint32) (*jobEntry, error) {
	if domainID != t.domainID {
		return nil, ErrJobInvalid
	}
	if int(jobID) >= len(t.entries) {
		return nil, ErrJobInvalid
	}
	return t.entries[jobID], nil
}
