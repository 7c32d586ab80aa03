package ringqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := New(4)
	for i := uint64(0); i < 20; i++ {
		q.Push(i)
	}
	require.Equal(t, 20, q.Len())
	for i := uint64(0); i < 20; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.True(t, q.IsEmpty())
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestQueueGrowWraps(t *testing.T) {
	q := New(2) // rounded up to the minimum capacity of 8
	for i := uint64(0); i < 7; i++ {
		q.Push(i)
	}
	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(0), v)
	q.Push(7)
	q.Push(8) // wraps to index 0
	q.Push(9) // 8 values pending: grows to 16
	var got []uint64
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestQueuePopIf(t *testing.T) {
	q := New(4)
	q.Push(10)
	q.Push(20)

	_, ok := q.PopIf(func(v uint64) bool { return v == 99 })
	require.False(t, ok)
	require.Equal(t, 2, q.Len())

	v, ok := q.PopIf(func(v uint64) bool { return v == 10 })
	require.True(t, ok)
	require.Equal(t, uint64(10), v)
	require.Equal(t, 1, q.Len())
}

func TestQueueDrain(t *testing.T) {
	q := New(4)
	for i := uint64(0); i < 5; i++ {
		q.Push(i)
	}
	got := q.Drain()
	require.Equal(t, []uint64{0, 1, 2, 3, 4}, got)
	require.True(t, q.IsEmpty())
	require.Nil(t, q.Drain())
}
