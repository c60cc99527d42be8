package session

import (
	"sync"

	"github.com/havenstack/widgetd/internal/shared/types"
)

// subscriberBuffer absorbs bursts of token-chunk snapshots. A consumer
// that cannot keep up loses intermediate frames, never the lock.
const subscriberBuffer = 64

// Hub fans widget snapshots out to stream subscribers. The store's
// notifier publishes into it after every mutation.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan types.WidgetSnapshot]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan types.WidgetSnapshot]struct{})}
}

// Subscribe registers a consumer. The returned cancel func is
// idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan types.WidgetSnapshot, func()) {
	ch := make(chan types.WidgetSnapshot, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber. Slow subscribers
// drop frames rather than stalling the store.
func (h *Hub) Publish(snap types.WidgetSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close terminates all subscriptions. Further Subscribe calls return a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
