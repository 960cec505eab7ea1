package systems

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystem(t *testing.T) {
	_, err := NewJobSystem(0, 16)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(2, -1)
	assert.ErrorIs(t, err, ErrNegativeChunkSize)

	js, err := NewJobSystem(3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, js.Workers())
}

func TestParallelForVisitsEveryIndexOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 64, 1000} {
		js, err := NewJobSystem(4, 7)
		require.NoError(t, err)

		visits := make([]atomic.Int32, n)
		err = js.ParallelFor(context.Background(), n, func(_ context.Context, lo, hi int) error {
			for i := lo; i < hi; i++ {
				visits[i].Add(1)
			}
			return nil
		})
		require.NoError(t, err)
		for i := range visits {
			require.Equal(t, int32(1), visits[i].Load(), "n=%d index %d", n, i)
		}
	}
}

func TestParallelForReturnsFirstError(t *testing.T) {
	js, err := NewJobSystem(2, 1)
	require.NoError(t, err)
	boom := errors.New("boom")

	err = js.ParallelFor(context.Background(), 100, func(_ context.Context, lo, _ int) error {
		if lo == 10 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestParallelForHonoursCancelledContext(t *testing.T) {
	js, err := NewJobSystem(2, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err = js.ParallelFor(ctx, 50, func(context.Context, int, int) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}
