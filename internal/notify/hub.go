// Package notify fans committed ledger events out to live subscribers.
package notify

import (
	"sync"

	"bingo_bot/internal/metrics"
	"bingo_bot/internal/model"
	"bingo_bot/pkg/logger"

	"go.uber.org/zap"
)

const subscriberBuffer = 16

// Hub delivers each event to the subscribers of the affected user. Publish
// never blocks; a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[int64]map[uint64]chan model.LedgerEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[uint64]chan model.LedgerEvent)}
}

// Subscribe returns a channel of events for userID and a cancel func that
// closes it.
func (h *Hub) Subscribe(userID int64) (<-chan model.LedgerEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan model.LedgerEvent, subscriberBuffer)

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan model.LedgerEvent)
	}
	h.subs[userID][id] = ch
	metrics.ActiveSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
			metrics.ActiveSubscribers.Dec()
		})
	}
}

func (h *Hub) Publish(event model.LedgerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[event.UserTelegramID] {
		select {
		case ch <- event:
		default:
			logger.Logger().Warn("dropping ledger event for slow subscriber",
				zap.Int64("telegram_id", event.UserTelegramID),
				zap.String("type", string(event.Type)))
		}
	}
}

// Subscribers reports how many live subscriptions userID has.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
