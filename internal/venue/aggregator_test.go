package venue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/errs"
)

type stubAdapter struct {
	name    string
	enabled bool
	quote   Quote
	err     error
	delay   time.Duration
}

func (s *stubAdapter) Name() string  { return s.name }
func (s *stubAdapter) Enabled() bool { return s.enabled }
func (s *stubAdapter) GetQuote(ctx context.Context, _, _ string, _, _ decimal.Decimal) (Quote, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Quote{}, s.err
	}
	return s.quote, nil
}
func (s *stubAdapter) ExecuteSwap(context.Context, Quote, string) (SwapResult, error) {
	return SwapResult{}, nil
}
func (s *stubAdapter) GetTransactionStatus(context.Context, string) (SwapStatus, error) {
	return SwapStatusCompleted, nil
}
func (s *stubAdapter) HealthCheck(context.Context) bool { return s.enabled }
func (s *stubAdapter) SupportedPairs(context.Context) []Pair { return nil }

func TestAggregatorIsolatesPerAdapterFailures(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{name: "meteora", enabled: true, quote: Quote{VenueName: "meteora", AmountOut: decimal.NewFromFloat(96.2)}})
	reg.Register(&stubAdapter{name: "raydium", enabled: true, err: errs.New("venue.raydium", errs.CodeUnavailable, errs.WithCanonicalCode(errs.CanonicalVenueUnavailable))})

	agg := NewAggregator(reg, time.Second)
	set := agg.GetAllQuotes(context.Background(), "SOL", "USDC", decimal.NewFromInt(1), decimal.NewFromFloat(1))

	if len(set.Quotes) != 1 {
		t.Fatalf("expected 1 successful quote, got %d", len(set.Quotes))
	}
	if _, ok := set.Errors["raydium"]; !ok {
		t.Fatalf("expected raydium error to be recorded, got %v", set.Errors)
	}
}

func TestGetBestQuoteRanksByAmountOutThenFeeThenName(t *testing.T) {
	set := QuoteSet{Quotes: []Quote{
		{VenueName: "raydium", AmountOut: decimal.NewFromFloat(95.5), EstimatedFee: decimal.NewFromFloat(0.1)},
		{VenueName: "meteora", AmountOut: decimal.NewFromFloat(96.2), EstimatedFee: decimal.NewFromFloat(0.2)},
	}}
	best, ranked, err := GetBestQuote(set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.VenueName != "meteora" {
		t.Fatalf("expected meteora to win on amountOut, got %s", best.VenueName)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked quotes, got %d", len(ranked))
	}
}

func TestGetBestQuoteFailsWhenEmpty(t *testing.T) {
	if _, _, err := GetBestQuote(QuoteSet{}); err == nil {
		t.Fatal("expected error for empty quote set")
	} else if !errs.IsRetriable(err) {
		t.Fatal("expected NoQuotesAvailable to be classified retriable")
	}
}

func TestAggregatorRespectsPerAdapterDeadline(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubAdapter{name: "slow", enabled: true, delay: 50 * time.Millisecond})
	agg := NewAggregator(reg, 10*time.Millisecond)

	start := time.Now()
	set := agg.GetAllQuotes(context.Background(), "SOL", "USDC", decimal.NewFromInt(1), decimal.NewFromFloat(1))
	if time.Since(start) > 40*time.Millisecond {
		t.Fatalf("expected per-adapter deadline to bound fan-out duration")
	}
	if len(set.Quotes) != 0 {
		t.Fatalf("expected timed-out adapter to produce no quote")
	}
}
