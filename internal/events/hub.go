// Package events streams ledger activity to connected clients over WebSocket.
package events

import (
	"log/slog"
	"sync"

	"github.com/ashureev/promptboost/internal/domain"
)

const (
	subscriberBuffer = 32
	// historySize events per user are replayed to new subscribers.
	historySize = 16
	// maxHistoryUsers bounds the replay map; an arbitrary user is evicted past it.
	maxHistoryUsers = 1024
)

// Subscriber receives events for one user.
type Subscriber struct {
	id     uint64
	userID string
	C      chan domain.LedgerEvent
}

// Hub fans ledger events out to subscribers keyed by user id.
type Hub struct {
	mu      sync.RWMutex
	active  map[string]map[uint64]*Subscriber
	history map[string]*ring
	nextID  uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active:  make(map[string]map[uint64]*Subscriber),
		history: make(map[string]*ring),
	}
}

// Subscribe registers a subscriber for userID.
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub, _ := h.SubscribeWithHistory(userID)
	return sub
}

// SubscribeWithHistory registers a subscriber and returns the user's recent
// events, oldest first. No event is both in the history and delivered on C.
func (h *Hub) SubscribeWithHistory(userID string) (*Subscriber, []domain.LedgerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var recent []domain.LedgerEvent
	if r, ok := h.history[userID]; ok {
		recent = r.snapshot()
	}

	h.nextID++
	sub := &Subscriber{id: h.nextID, userID: userID, C: make(chan domain.LedgerEvent, subscriberBuffer)}
	if _, ok := h.active[userID]; !ok {
		h.active[userID] = make(map[uint64]*Subscriber)
	}
	h.active[userID][sub.id] = sub
	slog.Debug("Event subscriber registered", "user_id", userID, "subscriber", sub.id, "replay", len(recent))
	return sub, recent
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.active[sub.userID]
	if !ok {
		return
	}
	if _, exists := subs[sub.id]; !exists {
		return
	}
	delete(subs, sub.id)
	close(sub.C)
	if len(subs) == 0 {
		delete(h.active, sub.userID)
	}
	slog.Debug("Event subscriber unregistered", "user_id", sub.userID, "subscriber", sub.id)
}

// Publish delivers ev to every subscriber of userID. Slow subscribers miss
// events rather than block the request path.
func (h *Hub) Publish(userID string, ev domain.LedgerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.history[userID]
	if !ok {
		if len(h.history) >= maxHistoryUsers {
			for evict := range h.history {
				delete(h.history, evict)
				break
			}
		}
		r = newRing(historySize)
		h.history[userID] = r
	}
	r.push(ev)

	for _, sub := range h.active[userID] {
		select {
		case sub.C <- ev:
		default:
			slog.Warn("Dropping ledger event for slow subscriber", "user_id", userID, "subscriber", sub.id)
		}
	}
}

// Count returns the number of subscribers for userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}
