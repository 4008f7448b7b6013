package notify

import (
	"testing"

	"github.com/google/uuid"
)

type stubSubscriber struct {
	id     string
	ok     bool
	pushed []Payload
}

func (s *stubSubscriber) ID() string { return s.id }
func (s *stubSubscriber) Push(p Payload) bool {
	s.pushed = append(s.pushed, p)
	return s.ok
}

func TestPushOrderUpdateDeliversToRegisteredSubscribers(t *testing.T) {
	hub := New()
	orderID := uuid.New()
	sub := &stubSubscriber{id: "conn-1", ok: true}
	hub.Register(orderID, sub)

	hub.PushOrderUpdate(orderID, "processing", nil)

	if len(sub.pushed) != 1 {
		t.Fatalf("expected 1 push, got %d", len(sub.pushed))
	}
	if sub.pushed[0].Status != "processing" {
		t.Fatalf("expected status processing, got %s", sub.pushed[0].Status)
	}
	if hub.SubscriberCount(orderID) != 1 {
		t.Fatalf("expected subscriber to remain registered after successful push")
	}
}

func TestPushOrderUpdateEvictsFailingSubscriber(t *testing.T) {
	hub := New()
	orderID := uuid.New()
	sub := &stubSubscriber{id: "conn-1", ok: false}
	hub.Register(orderID, sub)

	hub.PushOrderUpdate(orderID, "failed", nil)

	if hub.SubscriberCount(orderID) != 0 {
		t.Fatal("expected failing subscriber to be evicted")
	}
}

func TestRemoveAllBySubscriberClearsEveryOrder(t *testing.T) {
	hub := New()
	orderA, orderB := uuid.New(), uuid.New()
	sub := &stubSubscriber{id: "conn-1", ok: true}
	hub.Register(orderA, sub)
	hub.Register(orderB, sub)

	hub.RemoveAllBySubscriber("conn-1")

	if hub.SubscriberCount(orderA) != 0 || hub.SubscriberCount(orderB) != 0 {
		t.Fatal("expected subscriber removed from all orders")
	}
}
