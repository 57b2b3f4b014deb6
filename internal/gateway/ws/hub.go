// Package ws pushes task and system events to dashboard clients over
// WebSocket, replacing client-side polling of the task and status endpoints.
package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to dashboard clients.
const (
	EventTaskUpdated  = "task.updated"
	EventTaskCreated  = "task.created"
	EventSystemStatus = "system.status"
	EventAgentStatus  = "agent.status"
)

// Event is one push message. Payload must be JSON-marshalable.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// subscriberBuffer bounds the per-client queue. A client that cannot keep up
// loses events rather than blocking the publisher.
const subscriberBuffer = 64

type subscriber struct {
	userID uuid.UUID
	ch     chan Event
}

// Hub fans events out to connected dashboard clients. Safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	now         func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		now:         time.Now,
	}
}

// Publish sends the event to every subscriber. Slow subscribers are skipped.
func (h *Hub) Publish(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, At: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) subscribe(userID uuid.UUID) *subscriber {
	sub := &subscriber{userID: userID, ch: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}
