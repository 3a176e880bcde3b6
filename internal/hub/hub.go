// Package hub fans published snapshots out to live subscribers.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

const subscriberBuffer = 16

// Hub broadcasts every snapshot of one polling loop to its subscribers.
// Subscribers that fall a full buffer behind are disconnected rather than
// allowed to stall the loop.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]chan *domain.Snapshot
	seq    atomic.Int64
	logger *slog.Logger
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[int64]chan *domain.Snapshot),
		logger: logger,
	}
}

// Subscribe registers a subscriber and returns its id and channel. The
// channel is closed by Unsubscribe or when the subscriber lags.
func (h *Hub) Subscribe() (int64, <-chan *domain.Snapshot) {
	id := h.seq.Add(1)
	ch := make(chan *domain.Snapshot, subscriberBuffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish implements engine.Publisher. It never blocks.
func (h *Hub) Publish(_ context.Context, snap *domain.Snapshot) error {
	var lagging []int64

	h.mu.RLock()
	for id, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			lagging = append(lagging, id)
		}
	}
	h.mu.RUnlock()

	if len(lagging) == 0 {
		return nil
	}
	h.mu.Lock()
	for _, id := range lagging {
		if ch, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
			h.logger.Warn("disconnected lagging snapshot subscriber", slog.Int64("subscriber", id))
		}
	}
	h.mu.Unlock()
	return nil
}

// Close disconnects every subscriber. The hub stays usable afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}
