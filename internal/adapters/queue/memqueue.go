package queue

import (
	"context"
	"sync"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// ErrQueueClosed is returned by Take once the queue is closed and drained.
var ErrQueueClosed = ports.ErrQueueClosed

// MemQueue is a bounded in-memory queue that preserves FIFO ordering.
// Offer never blocks the producer; overflow is resolved by policy.
type MemQueue struct {
	mu      sync.Mutex
	data    []domain.SeismicEvent
	cap     int
	policy  string
	dropped uint64
	closed  bool

	// ready holds at most one token and is signalled on every successful Offer.
	ready chan struct{}
}

func NewMemQueue(capacity int, onFull string) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	if onFull != ports.DropOldest {
		onFull = ports.DropNewest
	}
	return &MemQueue{
		data:   make([]domain.SeismicEvent, 0, capacity),
		cap:    capacity,
		policy: onFull,
		ready:  make(chan struct{}, 1),
	}
}

func (q *MemQueue) Offer(evt domain.SeismicEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	accepted := true
	if len(q.data) >= q.cap {
		q.dropped++
		if q.policy == ports.DropNewest {
			q.mu.Unlock()
			return false
		}
		q.data = append(q.data[:0], q.data[1:]...)
		accepted = false
	}
	q.data = append(q.data, evt)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return accepted
}

func (q *MemQueue) Take(ctx context.Context) (domain.SeismicEvent, error) {
	for {
		q.mu.Lock()
		if len(q.data) > 0 {
			evt := q.data[0]
			q.data = append(q.data[:0], q.data[1:]...)
			more := len(q.data) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return evt, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.SeismicEvent{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return domain.SeismicEvent{}, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Dropped reports how many events were discarded due to overflow.
func (q *MemQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes blocked consumers; buffered events can still be taken.
func (q *MemQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

var _ ports.EventQueue = (*MemQueue)(nil)
