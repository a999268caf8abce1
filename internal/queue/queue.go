package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueEmpty is returned by Peek on an empty queue
	ErrQueueEmpty = errors.New("queue is empty")
)

// Queue is a thread-safe bounded FIFO. One producer appends at the tail and
// one consumer removes from the head; Enqueue applies backpressure when the
// queue is full.
type Queue[T any] struct {
	items   []T
	maxSize int

	// Synchronization
	mu      sync.Mutex
	notFull *sync.Cond

	// State
	closed bool
	stats  Stats
}

// Stats tracks queue metrics.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalCleared  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// New creates a queue holding at most maxSize items. A non-positive maxSize
// defaults to 32.
func New[T any](maxSize int) *Queue[T] {
	if maxSize <= 0 {
		maxSize = 32
	}
	q := &Queue[T]{
		items:   make([]T, 0, maxSize),
		maxSize: maxSize,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item, waiting for space while the queue is full. It returns
// ctx.Err() if the context ends first.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	if err := q.WaitForSpace(ctx); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// With a single producer the space found above is still there.
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.maxSize {
		return ErrQueueFull
	}

	q.push(item)
	return nil
}

// TryEnqueue appends item without waiting.
func (q *Queue[T]) TryEnqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.maxSize {
		return ErrQueueFull
	}

	q.push(item)
	return nil
}

func (q *Queue[T]) push(item T) {
	q.items = append(q.items, item)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
}

// TryDequeue removes and returns the head item. ok is false when the queue
// is empty or closed.
func (q *Queue[T]) TryDequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		return item, false
	}

	item = q.items[0]
	var zero T
	q.items[0] = zero // release the reference
	q.items = q.items[1:]

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()

	// Signal that queue has space
	q.notFull.Signal()

	return item, true
}

// Peek returns the head item without removing it.
func (q *Queue[T]) Peek() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed {
		return zero, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return zero, ErrQueueEmpty
	}
	return q.items[0], nil
}

// Size returns the current number of items in the queue.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Clear removes all items and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	clear(q.items)
	q.items = q.items[:0]
	q.stats.TotalCleared += int64(n)

	// Signal that queue has space
	q.notFull.Broadcast()

	return n
}

// GetStats returns current queue statistics.
func (q *Queue[T]) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	return stats
}

// Close shuts the queue down and wakes any waiting producer.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	q.items = nil

	// Wake up any waiting goroutines
	q.notFull.Broadcast()

	return nil
}

// WaitForSpace blocks until there is space in the queue or the context is cancelled.
func (q *Queue[T]) WaitForSpace(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.items) < q.maxSize {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	// Use a channel to handle context cancellation properly
	done := make(chan error, 1)
	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		for {
			if q.closed {
				done <- ErrQueueClosed
				return
			}
			if len(q.items) < q.maxSize {
				done <- nil
				return
			}
			if ctx.Err() != nil {
				done <- ctx.Err()
				return
			}
			q.notFull.Wait()
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Wake up the waiting goroutine to avoid leak
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
		return ctx.Err()
	}
}
