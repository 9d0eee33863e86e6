package server

import (
	"sync"

	"qmaze/server/fastview"

	"github.com/google/uuid"
	channerics "github.com/niceyeti/channerics/channels"
)

// hub fans ele-updates out to every connected client. Each subscriber holds at most
// the latest undelivered batch; a slow subscriber loses intermediate batches instead of
// blocking the others. New subscribers start with the most recent batch.
type hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]chan []fastview.EleUpdate
	last        []fastview.EleUpdate
	closed      bool
}

func newHub() *hub {
	return &hub{
		subscribers: map[uuid.UUID]chan []fastview.EleUpdate{},
	}
}

// run publishes @updates until it is closed or @done fires, then closes every subscription.
func (h *hub) run(done <-chan struct{}, updates <-chan []fastview.EleUpdate) {
	for batch := range channerics.OrDone(done, updates) {
		h.publish(batch)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub)
		delete(h.subscribers, id)
	}
}

func (h *hub) publish(batch []fastview.EleUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = batch
	for _, sub := range h.subscribers {
		offer(sub, batch)
	}
}

// subscribe returns a new subscription and its id. The channel is closed when the hub stops.
func (h *hub) subscribe() (uuid.UUID, <-chan []fastview.EleUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	sub := make(chan []fastview.EleUpdate, 1)
	if h.last != nil {
		sub <- h.last
	}
	if h.closed {
		close(sub)
		return id, sub
	}
	h.subscribers[id] = sub
	return id, sub
}

func (h *hub) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub)
		delete(h.subscribers, id)
	}
}

// numSubscribers is the count of open subscriptions.
func (h *hub) numSubscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// offer replaces any undelivered batch in @sub with @batch, without blocking.
func offer(sub chan []fastview.EleUpdate, batch []fastview.EleUpdate) {
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- batch:
	default:
	}
}
