// Package order defines the order lifecycle entity, its status state
// machine, and the persistence contract over orders and their audit
// trail.
package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. The persisted enum
// (pending, processing, completed, failed, cancelled) is narrower than
// the set of statuses the orchestrator transitions through in memory
// (routing, submitted) — see Status.Persisted.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusRouting    Status = "routing"
	StatusSubmitted  Status = "submitted"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Persisted reports whether s is a member of the SQL CHECK-constrained
// enum. routing/submitted are in-memory progress states only (spec §9
// open question, resolved in DESIGN.md): they are emitted to the audit
// log and pushed to subscribers but never written to orders.status.
func (s Status) Persisted() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a transition from s to next is legal.
//
//   - pending → processing → routing → submitted → completed (happy path)
//   - any non-terminal state → pending (retry) or failed (terminal failure)
//   - cancelled is reachable only from non-terminal, non-completed states
//   - terminal states (completed, failed, cancelled) accept no further transitions
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusPending, StatusFailed:
		return true
	case StatusCancelled:
		return s != StatusCompleted
	case StatusProcessing:
		return s == StatusPending
	case StatusRouting:
		return s == StatusProcessing
	case StatusSubmitted:
		return s == StatusRouting
	case StatusCompleted:
		return s == StatusSubmitted
	default:
		return false
	}
}

// Order is the central entity: a user's request to swap tokenIn for
// tokenOut, and its execution lifecycle.
type Order struct {
	ID                uuid.UUID
	TokenIn           string
	TokenOut          string
	Amount            decimal.Decimal
	Status            Status
	SlippageTolerance decimal.Decimal
	MaxRetries        int
	RetryCount        int
	SelectedVenue     string
	ExecutedPrice     decimal.Decimal
	TransactionHash   string
	ErrorMessage      string
	ConfirmedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultSlippageTolerance is applied when a create request omits it.
var DefaultSlippageTolerance = decimal.NewFromFloat(0.5)

// DefaultMaxRetries is applied when a create request omits it.
const DefaultMaxRetries = 3

// CreateInput carries the fields a caller may set when creating an order.
type CreateInput struct {
	TokenIn           string
	TokenOut          string
	Amount            decimal.Decimal
	SlippageTolerance *decimal.Decimal
	MaxRetries        *int
}

// Update carries a partial set of fields to apply atomically to an
// existing order. Nil/zero-value pointers are left unchanged.
type Update struct {
	Status          *Status
	RetryCount      *int
	SelectedVenue   *string
	ExecutedPrice   *decimal.Decimal
	TransactionHash *string
	ErrorMessage    *string
	ConfirmedAt     *time.Time
}

// AuditRecord is an immutable, append-only lifecycle event for an order.
type AuditRecord struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	EventType    string
	EventData    map[string]any
	EventVersion int
	Timestamp    time.Time
	Metadata     map[string]any
}

// Query scopes findAll/count lookups over orders.
type Query struct {
	Status      *Status
	TokenIn     string
	TokenOut    string
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Store defines the persistence contract over orders and their audit
// trail (spec §4.1).
type Store interface {
	// Create assigns an identifier, status pending, retryCount=0, and
	// persists the order.
	Create(ctx context.Context, input CreateInput) (*Order, error)
	// FindByID returns the order or an ErrNotFound error.
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// Update atomically applies a partial update under a consistent
	// snapshot (read-modify-write) and bumps UpdatedAt. Returns an
	// ErrNotFound error if the order is absent.
	Update(ctx context.Context, id uuid.UUID, partial Update) (*Order, error)
	// UpdateStatus is a convenience wrapper around Update that enforces
	// Status.CanTransition, returning ErrIllegalTransition otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (*Order, error)
	// Delete hard-deletes an order. Permitted only when status is
	// pending; whether a job was ever enqueued for it is not checked.
	Delete(ctx context.Context, id uuid.UUID) error
	// Count returns the number of orders matching the query's filters.
	Count(ctx context.Context, query Query) (int, error)
	// FindAll returns orders matching the query's filters, paginated.
	FindAll(ctx context.Context, query Query) ([]*Order, error)
	// AppendAudit appends an audit record. Idempotent by
	// (OrderID, EventVersion): a duplicate write is a silent no-op.
	AppendAudit(ctx context.Context, record AuditRecord) error
	// ListAudit returns the audit trail for an order, strictly ordered
	// by (Timestamp asc, EventVersion asc).
	ListAudit(ctx context.Context, orderID uuid.UUID) ([]AuditRecord, error)
}
