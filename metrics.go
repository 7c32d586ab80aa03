package mtapi

import (
	"sync"
	"time"

	"golang.org/x/exp/constraints"
)

// pSquareQuantile is a streaming quantile estimator (Jain & Chlamtac,
// 1985), ported from eventloop/psquare.go and reused verbatim for task
// turnaround-latency tracking (SPEC_FULL §A: metrics/observability is
// carried as ambient infrastructure regardless of the spec's functional
// Non-goals).
type pSquareQuantile struct {
	p  float64
	q  [5]float64
	n  [5]int
	np [5]float64
	dn [5]float64

	initialized bool
	count       int
	initBuffer  [5]float64
}

func newPSquareQuantile(p float64) *pSquareQuantile {
	p = clampPercentile(p)
	return &pSquareQuantile{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

func (ps *pSquareQuantile) Update(x float64) {
	ps.count++
	if ps.count <= 5 {
		ps.initBuffer[ps.count-1] = x
		if ps.count == 5 {
			ps.initialize()
		}
		return
	}

	var k int
	switch {
	case x < ps.q[0]:
		ps.q[0] = x
		k = 0
	case x >= ps.q[4]:
		ps.q[4] = x
		k = 3
	default:
		for i := 0; i < 4; i++ {
			if x < ps.q[i+1] {
				k = i
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1.0
			if d < 0 {
				sign = -1.0
			}
			qNew := ps.parabolic(i, sign)
			if ps.q[i-1] < qNew && qNew < ps.q[i+1] {
				ps.q[i] = qNew
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += int(sign)
		}
	}
}

func (ps *pSquareQuantile) parabolic(i int, d float64) float64 {
	return ps.q[i] + d/float64(ps.n[i+1]-ps.n[i-1])*
		(float64(ps.n[i]-ps.n[i-1]+int(d))*(ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])+
			float64(ps.n[i+1]-ps.n[i]-int(d))*(ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1]))
}

func (ps *pSquareQuantile) linear(i int, d float64) float64 {
	return ps.q[i] + d*(ps.q[i+int(d)]-ps.q[i])/float64(ps.n[i+int(d)]-ps.n[i])
}

func (ps *pSquareQuantile) initialize() {
	buf := ps.initBuffer
	for i := 0; i < 5; i++ {
		for j := i + 1; j < 5; j++ {
			if buf[j] < buf[i] {
				buf[i], buf[j] = buf[j], buf[i]
			}
		}
	}
	ps.q = buf
	for i := 0; i < 5; i++ {
		ps.n[i] = i
		ps.np[i] = float64(i)
	}
	ps.initialized = true
}

// Value returns the current quantile estimate.
func (ps *pSquareQuantile) Value() time.Duration {
	if ps.count == 0 {
		return 0
	}
	if !ps.initialized {
		buf := ps.initBuffer[:ps.count]
		// simple insertion sort; count <= 5 here
		for i := 1; i < len(buf); i++ {
			for j := i; j > 0 && buf[j] < buf[j-1]; j-- {
				buf[j], buf[j-1] = buf[j-1], buf[j]
			}
		}
		idx := int(ps.p * float64(len(buf)-1))
		return time.Duration(buf[idx])
	}
	return time.Duration(ps.q[2])
}

// TaskMetrics tracks task turnaround latency distribution (enqueue to
// terminal state), grounded on eventloop/metrics.go's LatencyMetrics.
type TaskMetrics struct {
	mu  sync.Mutex
	p50 *pSquareQuantile
	p99 *pSquareQuantile
	n   int64
}

func newTaskMetrics() *TaskMetrics {
	return &TaskMetrics{p50: newPSquareQuantile(0.50), p99: newPSquareQuantile(0.99)}
}

func (m *TaskMetrics) record(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	m.p50.Update(float64(d))
	m.p99.Update(float64(d))
}

// Snapshot returns the current observation count and latency percentiles.
func (m *TaskMetrics) Snapshot() (count int64, p50, p99 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n, m.p50.Value(), m.p99.Value()
}

// QueueDepth reports the number of ready (not yet dequeued) tasks sitting
// in a priority-queue set's rings, generalized from eventloop/metrics.go's
// QueueMetrics gauge.
func (s *scheduler) QueueDepth() int {
	total := 0
	for _, q := range s.global {
		total += q.Len()
	}
	for _, q := range s.local {
		total += q.Len()
	}
	return total
}

// clampPercentile keeps a requested percentile argument within [0,1],
// generic over any floating-point type a caller might pass.
func clampPercentile[T constraints.Float](p T) T {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
