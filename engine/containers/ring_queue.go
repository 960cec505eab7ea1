package containers

import (
	"errors"
	"sync"
)

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// RingQueue is a FIFO over a circular buffer. A growable queue doubles its
// capacity instead of failing when full. All methods are safe for concurrent use.
type RingQueue[T any] struct {
	mu         sync.Mutex
	data       []T
	readIndex  int
	writeIndex int
	count      int
	growable   bool
}

// Create a new RingQueue with the given capacity.
func NewRingQueue[T any](size int, growable bool) *RingQueue[T] {
	if size < 1 {
		size = 1
	}
	return &RingQueue[T]{
		data:     make([]T, size),
		growable: growable,
	}
}

// Enqueue adds an element to the queue
func (rq *RingQueue[T]) Enqueue(value T) error {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.count == len(rq.data) {
		if !rq.growable {
			return ErrQueueFull
		}
		rq.grow()
	}

	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % len(rq.data)
	rq.count++
	return nil
}

// Dequeue removes and returns the front element in the queue
func (rq *RingQueue[T]) Dequeue() (T, error) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	var zero T
	if rq.count == 0 {
		return zero, ErrQueueEmpty
	}

	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % len(rq.data)
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it
func (rq *RingQueue[T]) Peek() (T, error) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.count == 0 {
		var zero T
		return zero, ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

// Drain removes every queued element and returns them in FIFO order.
func (rq *RingQueue[T]) Drain() []T {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	out := make([]T, 0, rq.count)
	var zero T
	for rq.count > 0 {
		out = append(out, rq.data[rq.readIndex])
		rq.data[rq.readIndex] = zero
		rq.readIndex = (rq.readIndex + 1) % len(rq.data)
		rq.count--
	}
	return out
}

func (rq *RingQueue[T]) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.count
}

// IsEmpty checks if the queue is empty
func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.Len() == 0
}

// IsFull checks if the queue is full. A growable queue is never full.
func (rq *RingQueue[T]) IsFull() bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return !rq.growable && rq.count == len(rq.data)
}

func (rq *RingQueue[T]) grow() {
	next := make([]T, len(rq.data)*2)
	for i := 0; i < rq.count; i++ {
		next[i] = rq.data[(rq.readIndex+i)%len(rq.data)]
	}
	rq.data = next
	rq.readIndex = 0
	rq.writeIndex = rq.count
}
