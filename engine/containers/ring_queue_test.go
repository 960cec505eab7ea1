package containers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3, false)
	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, want := range []int{1, 2, 3} {
		got, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueGrowKeepsOrder(t *testing.T) {
	rq := NewRingQueue[string](2, true)
	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	_, _ = rq.Dequeue()
	require.NoError(t, rq.Enqueue("c"))
	require.NoError(t, rq.Enqueue("d"))
	assert.False(t, rq.IsFull())
	assert.Equal(t, []string{"b", "c", "d"}, rq.Drain())
	assert.True(t, rq.IsEmpty())
}

func TestRingQueueConcurrentEnqueue(t *testing.T) {
	rq := NewRingQueue[int](4, true)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = rq.Enqueue(i*100 + j)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, rq.Drain(), 800)
}
