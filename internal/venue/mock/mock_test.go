package mock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/errs"
)

func TestDisabledAdapterReturnsUnavailable(t *testing.T) {
	a := New("meteora", Behavior{})
	a.SetEnabled(false)
	_, err := a.GetQuote(context.Background(), "SOL", "USDC", decimal.NewFromInt(1), decimal.NewFromFloat(0.5))
	if err == nil {
		t.Fatal("expected error for disabled adapter")
	}
	var e *errs.E
	if !asE(err, &e) || e.Canonical != errs.CanonicalVenueUnavailable {
		t.Fatalf("expected CanonicalVenueUnavailable, got %v", err)
	}
}

func TestGetQuoteAppliesSlippageToMinimumAmountOut(t *testing.T) {
	a := New("meteora", Behavior{BasePrice: decimal.NewFromInt(100)})
	quote, err := a.GetQuote(context.Background(), "SOL", "USDC", decimal.NewFromInt(1), decimal.NewFromFloat(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.MinimumAmountOut.GreaterThan(quote.AmountOut) {
		t.Fatalf("expected minimumAmountOut <= amountOut, got %s > %s", quote.MinimumAmountOut, quote.AmountOut)
	}
}

func TestExecuteSwapFailsBelowMinimumAmountOut(t *testing.T) {
	a := New("meteora", Behavior{})
	quote, err := a.GetQuote(context.Background(), "SOL", "USDC", decimal.NewFromInt(1), decimal.NewFromFloat(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	quote.MinimumAmountOut = quote.AmountOut.Mul(decimal.NewFromInt(2))
	_, err = a.ExecuteSwap(context.Background(), quote, "wallet")
	if err == nil {
		t.Fatal("expected slippage exceeded error")
	}
	var e *errs.E
	if !asE(err, &e) || e.Canonical != errs.CanonicalSlippageExceeded {
		t.Fatalf("expected CanonicalSlippageExceeded, got %v", err)
	}
}

func asE(err error, target **errs.E) bool {
	e, ok := err.(*errs.E)
	if !ok {
		return false
	}
	*target = e
	return true
}
