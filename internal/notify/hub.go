// Package notify implements the notification hub (spec §4.7): a
// registry mapping orders to their live WebSocket subscribers, with
// non-blocking push delivery and automatic eviction of subscribers a
// push fails to reach.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swaprouter/engine/internal/observability"
)

// Payload is the envelope pushed to subscribers on an order update.
type Payload struct {
	Type      string    `json:"type"`
	OrderID   uuid.UUID `json:"orderId"`
	Status    string    `json:"status,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber receives pushes for the orders it registered interest in.
// Push must not block; it reports whether delivery succeeded, and a
// false return evicts the subscriber from every order it was
// registered against.
type Subscriber interface {
	ID() string
	Push(Payload) bool
}

// Hub coordinates order-scoped subscriptions and delivery.
type Hub struct {
	mu           sync.RWMutex
	byOrder      map[uuid.UUID]map[string]Subscriber
	bySubscriber map[string]map[uuid.UUID]struct{}
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{
		byOrder:      make(map[uuid.UUID]map[string]Subscriber),
		bySubscriber: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Register subscribes sub to updates for orderID.
func (h *Hub) Register(orderID uuid.UUID, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.byOrder[orderID]
	if !ok {
		subs = make(map[string]Subscriber)
		h.byOrder[orderID] = subs
	}
	subs[sub.ID()] = sub

	orders, ok := h.bySubscriber[sub.ID()]
	if !ok {
		orders = make(map[uuid.UUID]struct{})
		h.bySubscriber[sub.ID()] = orders
	}
	orders[orderID] = struct{}{}
}

// Unregister removes a single subscriber from a single order's
// subscriber set.
func (h *Hub) Unregister(orderID uuid.UUID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(orderID, subscriberID)
}

// RemoveAllBySubscriber drops subscriberID from every order it was
// registered against, typically called on WebSocket disconnect.
func (h *Hub) RemoveAllBySubscriber(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	orders := h.bySubscriber[subscriberID]
	for orderID := range orders {
		h.removeLocked(orderID, subscriberID)
	}
	delete(h.bySubscriber, subscriberID)
}

func (h *Hub) removeLocked(orderID uuid.UUID, subscriberID string) {
	if subs, ok := h.byOrder[orderID]; ok {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(h.byOrder, orderID)
		}
	}
	if orders, ok := h.bySubscriber[subscriberID]; ok {
		delete(orders, orderID)
		if len(orders) == 0 {
			delete(h.bySubscriber, subscriberID)
		}
	}
}

// PushOrderUpdate delivers a status payload to every subscriber of
// orderID. Delivery is best-effort and non-blocking: a subscriber
// whose Push returns false is evicted from the hub entirely.
func (h *Hub) PushOrderUpdate(orderID uuid.UUID, status string, data any) {
	payload := Payload{
		Type:      "status",
		OrderID:   orderID,
		Status:    status,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.byOrder[orderID]))
	for _, sub := range h.byOrder[orderID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Push(payload) {
			observability.Log().Debug("notify: evicting unresponsive subscriber",
				observability.Field{Key: "subscriber_id", Value: sub.ID()},
				observability.Field{Key: "order_id", Value: orderID.String()},
			)
			h.RemoveAllBySubscriber(sub.ID())
		}
	}
}

// SubscriberCount reports how many subscribers are registered for
// orderID, mainly for tests and diagnostics.
func (h *Hub) SubscriberCount(orderID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byOrder[orderID])
}
