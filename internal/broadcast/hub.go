package broadcast

import (
	"context"
	"sync"
)

// Hub fans events out to in-process subscribers and forwards every event to
// any attached bridges (e.g. redis). A subscriber with a full buffer misses
// the event rather than stalling the queue.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]string // channel filter; "" receives everything
	bridges []Publisher
	closed  bool
}

func NewHub(bridges ...Publisher) *Hub {
	return &Hub{subs: map[chan Event]string{}, bridges: bridges}
}

// Subscribe registers a listener for one channel ("" for all). The returned
// cancel func must be called to release the subscription.
func (h *Hub) Subscribe(channel string) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = channel
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (h *Hub) Publish(ctx context.Context, ev Event) {
	h.mu.RLock()
	for ch, filter := range h.subs {
		if filter != "" && filter != ev.Channel {
			continue
		}
		select {
		case ch <- ev:
		default: // drop for laggards
		}
	}
	bridges := h.bridges
	h.mu.RUnlock()
	for _, b := range bridges {
		b.Publish(ctx, ev)
	}
}

// Close drops all subscribers. Pending Publish calls finish first.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
