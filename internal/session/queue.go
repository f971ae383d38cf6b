package session

import (
	"context"
	"sync"

	"genpanel/internal/domain"
)

// Queue is an unbounded ordered FIFO of session events. Push never blocks,
// so a slow consumer can never stall the generation worker; Pop blocks until
// an event arrives, the queue closes, or the context is done.
type Queue struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	notify chan struct{}
}

// NewQueue constructs an empty open queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an event. Pushing to a closed queue is a no-op.
func (q *Queue) Push(ev domain.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event. The second return is false when
// the queue has been closed and drained, or the context is done.
func (q *Queue) Pop(ctx context.Context) (domain.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.Event{}, false
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return domain.Event{}, false
		}
	}
}

// Close marks the queue closed. Buffered events remain poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Hub fans session events out to any number of subscriber queues. Each
// subscriber gets every event published after it subscribed, in publish
// order.
type Hub struct {
	mu   sync.Mutex
	subs map[*Queue]struct{}
}

// NewHub constructs a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Queue]struct{})}
}

// Subscribe registers a new queue. The caller must invoke the returned
// cancel function when done; it closes the queue and detaches it.
func (h *Hub) Subscribe() (*Queue, func()) {
	q := NewQueue()
	h.mu.Lock()
	h.subs[q] = struct{}{}
	h.mu.Unlock()
	return q, func() {
		h.mu.Lock()
		delete(h.subs, q)
		h.mu.Unlock()
		q.Close()
	}
}

// Publish delivers an event to every current subscriber.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	for q := range h.subs {
		q.Push(ev)
	}
	h.mu.Unlock()
}
