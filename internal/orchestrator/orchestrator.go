// Package orchestrator implements the execution orchestrator (spec
// §4.6): the per-job state machine that drives one order from pending
// through quote aggregation, venue dispatch, and finalization, while
// reporting progress through the audit bus and the notification hub.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swaprouter/engine/errs"
	"github.com/swaprouter/engine/internal/audit"
	"github.com/swaprouter/engine/internal/domain/order"
	"github.com/swaprouter/engine/internal/notify"
	"github.com/swaprouter/engine/internal/observability"
	"github.com/swaprouter/engine/internal/venue"
)

// SwapDeadline bounds a single executeSwap call (spec §5).
const SwapDeadline = 10 * time.Second

// Orchestrator drives a single leased job through the order lifecycle.
// It holds no per-job state; Execute is safe to call concurrently for
// distinct orders (the worker pool is responsible for never running
// two workers against the same orderId at once).
type Orchestrator struct {
	store      order.Store
	aggregator *venue.Aggregator
	registry   *venue.Registry
	bus        *audit.Bus
	hub        *notify.Hub
	wallet     string
}

// New constructs an Orchestrator.
func New(store order.Store, registry *venue.Registry, aggregator *venue.Aggregator, bus *audit.Bus, hub *notify.Hub, wallet string) *Orchestrator {
	return &Orchestrator{store: store, aggregator: aggregator, registry: registry, bus: bus, hub: hub, wallet: wallet}
}

// Outcome reports what Execute decided, so the worker pool knows
// whether to Ack or Nack the job.
type Outcome struct {
	Ack    bool
	Retry  bool
	Reason error
}

// Execute runs the full state machine for orderID (spec §4.6 steps 1-7).
func (o *Orchestrator) Execute(ctx context.Context, orderID uuid.UUID) Outcome {
	ord, err := o.store.FindByID(ctx, orderID)
	if err != nil {
		if isCanonical(err, errs.CanonicalOrderNotFound) {
			return Outcome{Ack: true, Reason: err}
		}
		return Outcome{Ack: false, Retry: true, Reason: err}
	}

	if ord.Status.Terminal() {
		// Idempotent re-delivery (spec §8 law): no state change, no events, no swap.
		return Outcome{Ack: true}
	}

	if !ord.Amount.IsPositive() {
		return o.finalizeTerminalFailure(ctx, orderID, ord, errs.New("orchestrator", errs.CodeValidation,
			errs.WithMessage("amount must be positive"), errs.WithCanonicalCode(errs.CanonicalInvalid)))
	}

	ord, err = o.transition(ctx, orderID, order.StatusProcessing)
	if err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}
	o.publish(ctx, audit.EventExecutionStarted, orderID, nil)
	o.push(orderID, "processing", map[string]any{"progress": 10})

	set := o.aggregator.GetAllQuotes(ctx, ord.TokenIn, ord.TokenOut, ord.Amount, ord.SlippageTolerance)
	o.publish(ctx, audit.EventExecutionQuotesFetched, orderID, map[string]any{
		"quoteCount": len(set.Quotes),
		"errors":     errorStrings(set.Errors),
	})

	best, ranked, err := venue.GetBestQuote(set)
	if err != nil {
		return o.finalizeAttempt(ctx, orderID, err)
	}

	if _, err = o.transitionInMemory(ctx, orderID, order.StatusProcessing, order.StatusRouting); err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}
	o.publish(ctx, audit.EventExecutionDexSelected, orderID, map[string]any{
		"venue":          best.VenueName,
		"amountOut":      best.AmountOut.String(),
		"candidateCount": len(ranked),
	})
	o.push(orderID, "routing", map[string]any{"venue": best.VenueName, "progress": 50})

	if _, err = o.transitionInMemory(ctx, orderID, order.StatusRouting, order.StatusSubmitted); err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}
	o.publish(ctx, audit.EventExecutionSwapSubmitted, orderID, map[string]any{"venue": best.VenueName})

	adapter := o.findAdapter(best.VenueName)
	if adapter == nil {
		return o.finalizeAttempt(ctx, orderID, errs.New("orchestrator", errs.CodeUnavailable,
			errs.WithMessage("selected venue is no longer registered"),
			errs.WithCanonicalCode(errs.CanonicalVenueUnavailable)))
	}

	swapCtx, cancel := context.WithTimeout(ctx, SwapDeadline)
	result, err := adapter.ExecuteSwap(swapCtx, best, o.wallet)
	cancel()
	if err != nil {
		return o.finalizeAttempt(ctx, orderID, err)
	}

	return o.finalizeSuccess(ctx, orderID, result)
}

func (o *Orchestrator) finalizeSuccess(ctx context.Context, orderID uuid.UUID, result venue.SwapResult) Outcome {
	now := time.Now().UTC()
	status := order.StatusCompleted
	venueName := result.VenueName
	price := result.ExecutionPrice
	txHash := result.Signature
	_, err := o.store.Update(ctx, orderID, order.Update{
		Status:          &status,
		SelectedVenue:   &venueName,
		ExecutedPrice:   &price,
		TransactionHash: &txHash,
		ConfirmedAt:     &now,
	})
	if err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}

	o.publish(ctx, audit.EventExecutionSwapConfirmed, orderID, map[string]any{
		"venue":     venueName,
		"amountOut": result.AmountOut.String(),
		"signature": txHash,
	})
	o.publish(ctx, audit.EventOrderConfirmed, orderID, map[string]any{"transactionHash": txHash})
	o.push(orderID, "completed", map[string]any{"transactionHash": txHash, "progress": 100})

	return Outcome{Ack: true}
}

// finalizeAttempt implements step 7: decide retry vs terminal failure
// for a failed attempt (quote failure or swap failure).
func (o *Orchestrator) finalizeAttempt(ctx context.Context, orderID uuid.UUID, cause error) Outcome {
	current, err := o.store.FindByID(ctx, orderID)
	if err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}
	if current.Status.Terminal() {
		return Outcome{Ack: true}
	}

	if !errs.IsRetriable(cause) {
		return o.finalizeTerminalFailure(ctx, orderID, current, cause)
	}

	if current.RetryCount >= current.MaxRetries {
		return o.finalizeTerminalFailure(ctx, orderID, current, cause)
	}

	nextRetry := current.RetryCount + 1
	status := order.StatusPending
	message := formatAttemptError(cause)
	_, err = o.store.Update(ctx, orderID, order.Update{
		Status:       &status,
		RetryCount:   &nextRetry,
		ErrorMessage: &message,
	})
	if err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}

	o.publish(ctx, audit.EventExecutionRetrying, orderID, map[string]any{
		"retryCount": nextRetry,
		"error":      message,
	})
	attemptsLeft := current.MaxRetries - nextRetry
	o.push(orderID, "failed", map[string]any{"attemptsLeft": attemptsLeft, "retrying": true})

	return Outcome{Ack: false, Retry: true, Reason: cause}
}

func (o *Orchestrator) finalizeTerminalFailure(ctx context.Context, orderID uuid.UUID, current *order.Order, cause error) Outcome {
	status := order.StatusFailed
	message := formatTerminalError(current, cause)
	_, err := o.store.Update(ctx, orderID, order.Update{
		Status:       &status,
		ErrorMessage: &message,
	})
	if err != nil {
		return Outcome{Ack: false, Retry: true, Reason: err}
	}

	o.publish(ctx, audit.EventOrderFailed, orderID, map[string]any{"error": message})
	o.push(orderID, "failed", map[string]any{"error": message, "terminal": true})

	return Outcome{Ack: true, Reason: cause}
}

func (o *Orchestrator) transition(ctx context.Context, orderID uuid.UUID, next order.Status) (*order.Order, error) {
	if !next.Persisted() {
		return o.transitionInMemory(ctx, orderID, "", next)
	}
	return o.store.UpdateStatus(ctx, orderID, next)
}

// transitionInMemory emits the status-changed event for an in-memory
// progress state (routing/submitted) without writing to orders.status
// (spec §9 open question resolution). orders.status stays processing
// while the order passes through these states, so legality is checked
// from from, the in-memory state the caller last moved to; an empty
// from, or a terminal persisted status (e.g. a concurrent cancel), is
// checked from the persisted status instead.
func (o *Orchestrator) transitionInMemory(ctx context.Context, orderID uuid.UUID, from, next order.Status) (*order.Order, error) {
	ord, err := o.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if from == "" || ord.Status.Terminal() {
		from = ord.Status
	}
	if !from.CanTransition(next) {
		return nil, order.ErrIllegalTransition(from, next)
	}
	o.publish(ctx, audit.EventOrderStatusChanged, orderID, map[string]any{"status": string(next)})
	return ord, nil
}

func isCanonical(err error, code errs.CanonicalCode) bool {
	e, ok := err.(*errs.E)
	return ok && e.Canonical == code
}

func (o *Orchestrator) findAdapter(name string) venue.Adapter {
	for _, a := range o.registry.All() {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType audit.EventType, orderID uuid.UUID, data map[string]any) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, audit.Event{Type: eventType, OrderID: orderID, Data: data}); err != nil {
		observability.Log().Error("orchestrator: audit publish failed",
			observability.Field{Key: "order_id", Value: orderID.String()},
			observability.Field{Key: "event_type", Value: string(eventType)},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}

// push delivers a best-effort notification. Per spec §4.6, delivery
// failures are logged and never fail the pipeline; notify.Hub already
// treats Push as non-blocking, so this is a thin, panic-safe wrapper.
func (o *Orchestrator) push(orderID uuid.UUID, status string, data map[string]any) {
	if o.hub == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("orchestrator: push panicked",
				observability.Field{Key: "order_id", Value: orderID.String()},
				observability.Field{Key: "panic", Value: r},
			)
		}
	}()
	o.hub.PushOrderUpdate(orderID, status, data)
}

func errorStrings(errors map[string]error) map[string]string {
	out := make(map[string]string, len(errors))
	for venueName, err := range errors {
		out[venueName] = err.Error()
	}
	return out
}

func formatAttemptError(cause error) string {
	return fmt.Sprintf("attempt failed: %v", cause)
}

func formatTerminalError(current *order.Order, cause error) string {
	if !errs.IsRetriable(cause) {
		return fmt.Sprintf("terminal failure: %v", cause)
	}
	return fmt.Sprintf("max retries (%d) exhausted: %v", current.MaxRetries, cause)
}
