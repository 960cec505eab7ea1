package systems

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

/**
 * @brief Runs data-parallel loops on a bounded number of goroutines.
 * Every call joins before returning.
 */
type JobSystem struct {
	numWorkers int
	chunkSize  int
}

var ErrNoWorkers = fmt.Errorf("attempting to create job system with less than 1 worker")
var ErrNegativeChunkSize = fmt.Errorf("attempting to create job system with a negative chunk size")

const defaultChunkSize = 256

func NewJobSystem(numWorkers int, chunkSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if chunkSize < 0 {
		return nil, ErrNegativeChunkSize
	}
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	return &JobSystem{
		numWorkers: numWorkers,
		chunkSize:  chunkSize,
	}, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Calls fn over [0, n) split into chunks, at most Workers() at a time.
 * The first error cancels the remaining chunks and is returned.
 * @param fn Receives a half-open index range [lo, hi).
 */
func (js *JobSystem) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	// a single chunk runs on the caller
	if n <= js.chunkSize || js.numWorkers == 1 {
		return fn(ctx, 0, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(js.numWorkers)
	for lo := 0; lo < n; lo += js.chunkSize {
		hi := min(lo+js.chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, lo, hi)
		})
	}
	return g.Wait()
}
