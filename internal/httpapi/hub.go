package httpapi

import (
	"sync"

	"github.com/collabdocs/trackd/internal/track"
)

// Hub fans save notifications out to event feed subscribers. Publishing
// never blocks; a subscriber that stops draining loses events.
type Hub struct {
	mu   sync.Mutex
	subs map[chan track.Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan track.Notification]struct{}{}}
}

func (h *Hub) Publish(n track.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *Hub) Subscribe() (<-chan track.Notification, func()) {
	ch := make(chan track.Notification, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}
