package ws

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHubPublishFanOut(t *testing.T) {
	hub := NewHub()
	a := hub.subscribe(uuid.New())
	b := hub.subscribe(uuid.New())
	defer hub.unsubscribe(a)
	defer hub.unsubscribe(b)

	hub.Publish(EventTaskUpdated, map[string]string{"id": "t1"})

	for _, sub := range []*subscriber{a, b} {
		select {
		case ev := <-sub.ch:
			if ev.Type != EventTaskUpdated {
				t.Errorf("event type = %q, want %q", ev.Type, EventTaskUpdated)
			}
			if ev.At.IsZero() {
				t.Error("event timestamp not set")
			}
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	sub := hub.subscribe(uuid.New())
	defer hub.unsubscribe(sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(EventSystemStatus, i)
	}

	if got := len(sub.ch); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.subscribe(uuid.New())
	hub.unsubscribe(sub)

	hub.Publish(EventAgentStatus, nil)

	if len(sub.ch) != 0 {
		t.Error("unsubscribed client received event")
	}
	if hub.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", hub.Subscribers())
	}
}

func TestHubTimestampsUTC(t *testing.T) {
	hub := NewHub()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	hub.now = func() time.Time { return fixed }

	sub := hub.subscribe(uuid.New())
	defer hub.unsubscribe(sub)

	hub.Publish(EventTaskCreated, nil)
	ev := <-sub.ch
	if ev.At.Location() != time.UTC {
		t.Errorf("event timestamp zone = %v, want UTC", ev.At.Location())
	}
}
