// Package queue buffers accepted records on their way to the ranking store.
//
// The queue is bounded and never blocks producers: a full queue is reported
// as ErrFull so the caller can surface backpressure.
package queue

import (
	"context"
	"sync"

	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds rec or returns ErrFull or ErrClosed.
	Enqueue(ctx context.Context, rec model.Record) error
	// Dequeue returns the channel consumers read from. It is closed by Close
	// once drained.
	Dequeue() <-chan model.Record
	Len() int
	Cap() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan model.Record
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.records = make(chan model.Record, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds rec without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, rec model.Record) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.records <- rec:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.records))
		return nil
	default:
		metrics.RecordQueueEnqueueError("full")
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the buffer.
func (q *InMemoryQueue) Dequeue() <-chan model.Record {
	return q.records
}

// Len returns the number of buffered records.
func (q *InMemoryQueue) Len() int {
	n := len(q.records)
	metrics.UpdateQueueSize(n)
	return n
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops intake. Buffered records remain readable until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
