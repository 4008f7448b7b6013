// Package audit implements the synchronous, in-process audit event bus
// (spec §4.8): a typed multicaster that both persists lifecycle events
// and notifies the in-process listeners registered via Subscribe
// before the triggering call returns.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swaprouter/engine/internal/domain/order"
	"github.com/swaprouter/engine/internal/observability"
)

// EventType tags the kind of lifecycle event being published.
type EventType string

const (
	EventOrderCreated       EventType = "order:created"
	EventOrderStatusChanged EventType = "order:status-changed"
	EventOrderFailed        EventType = "order:failed"
	EventOrderConfirmed     EventType = "order:confirmed"

	EventExecutionStarted      EventType = "execution:started"
	EventExecutionQuotesFetched EventType = "execution:quotes-fetched"
	EventExecutionDexSelected  EventType = "execution:dex-selected"
	EventExecutionSwapSubmitted EventType = "execution:swap-submitted"
	EventExecutionSwapConfirmed EventType = "execution:swap-confirmed"
	EventExecutionFailed       EventType = "execution:failed"
	EventExecutionRetrying     EventType = "execution:retrying"

	EventQueueJobAdded EventType = "queue:job-added"
	EventSystemError   EventType = "system:error"
)

// Event is a single published occurrence on the bus.
type Event struct {
	Type      EventType
	OrderID   uuid.UUID
	Data      map[string]any
	Timestamp time.Time
}

// Listener receives every event published on the bus. Implementations
// must not block for long; the bus calls listeners synchronously on
// the publisher's goroutine.
type Listener interface {
	HandleAuditEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) HandleAuditEvent(ctx context.Context, event Event) { f(ctx, event) }

// Bus is a synchronous in-process multicaster with durable persistence
// of every event to the order store's audit trail.
type Bus struct {
	store     order.Store
	listeners []Listener

	mu       sync.Mutex
	versions map[uuid.UUID]int
}

// New constructs a Bus writing through to store and notifying
// listeners registered via Subscribe.
func New(store order.Store) *Bus {
	return &Bus{store: store, versions: make(map[uuid.UUID]int)}
}

// nextVersion assigns the next monotonic event version for orderID.
// Versions are tracked in-memory per Bus instance; a process restart
// resumes from 1, which is safe because AppendAudit's uniqueness
// constraint is (orderID, version) and stale low versions simply no-op
// rather than overwrite real history.
func (b *Bus) nextVersion(orderID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versions[orderID]++
	return b.versions[orderID]
}

// Subscribe registers a listener for every future Publish call. Not
// safe to call concurrently with Publish.
func (b *Bus) Subscribe(listener Listener) {
	b.listeners = append(b.listeners, listener)
}

// Publish appends event to the order's audit trail and then invokes
// every listener in registration order, isolating panics and errors so
// one failing listener cannot prevent delivery to the rest or corrupt
// the caller's control flow.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	record := order.AuditRecord{
		OrderID:      event.OrderID,
		EventType:    string(event.Type),
		EventData:    event.Data,
		EventVersion: b.nextVersion(event.OrderID),
		Timestamp:    event.Timestamp,
	}
	if b.store != nil {
		if err := b.store.AppendAudit(ctx, record); err != nil {
			observability.Log().Error("audit: append failed",
				observability.Field{Key: "order_id", Value: event.OrderID.String()},
				observability.Field{Key: "event_type", Value: string(event.Type)},
				observability.Field{Key: "error", Value: err.Error()},
			)
			return err
		}
	}

	for _, listener := range b.listeners {
		b.deliver(ctx, listener, event)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("audit: listener panicked",
				observability.Field{Key: "event_type", Value: string(event.Type)},
				observability.Field{Key: "panic", Value: r},
			)
		}
	}()
	listener.HandleAuditEvent(ctx, event)
}
