// Package queue holds submitted actions until a worker picks them up.
package queue

import (
	"context"
	"sync"

	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an action. It fails with ErrFull or ErrClosed instead of
	// blocking.
	Enqueue(ctx context.Context, a model.Action) error

	// Dequeue returns a channel that receives actions as they become
	// available. It is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Action

	// Len returns the number of queued actions.
	Len(ctx context.Context) int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting actions.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	actions  chan model.Action
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.actions = make(chan model.Action, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds an action to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, a model.Action) error { //nolint:gocritic // hugeParam: actions travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}

	select {
	case q.actions <- a:
		metrics.RecordActionEnqueued(string(a.Platform), string(a.Type))
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
}

// Dequeue returns a channel that receives actions as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Action {
	out := make(chan model.Action)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-q.actions:
				if !ok {
					return
				}
				q.updateGauges()
				select {
				case out <- a:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of queued actions.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.updateGauges()
	return len(q.actions)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting actions. Queued actions can still be dequeued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.actions)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.actions)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
