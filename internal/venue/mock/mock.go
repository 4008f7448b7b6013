// Package mock provides synthetic DEX adapters used in place of real
// on-chain venues. Each simulates quote pricing, latency, transient
// failures, and swap confirmation without any network calls.
package mock

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/errs"
	"github.com/swaprouter/engine/internal/venue"
)

const (
	defaultLatencyMin     = 5 * time.Millisecond
	defaultLatencyMax     = 35 * time.Millisecond
	defaultTransientError = 0.0
	defaultPriceImpact    = 0.001
)

// Behavior tunes the synthetic failure and latency injection an adapter
// applies to every call, mirroring the venue-behavior knobs a real
// adapter's circuit breaker would expose.
type Behavior struct {
	LatencyMin     time.Duration
	LatencyMax     time.Duration
	TransientError float64
	BasePrice      decimal.Decimal
	FeeRate        decimal.Decimal
}

func (b Behavior) withDefaults() Behavior {
	if b.LatencyMin <= 0 {
		b.LatencyMin = defaultLatencyMin
	}
	if b.LatencyMax <= 0 || b.LatencyMax < b.LatencyMin {
		b.LatencyMax = defaultLatencyMax
	}
	if b.BasePrice.IsZero() {
		b.BasePrice = decimal.NewFromInt(1)
	}
	if b.FeeRate.IsZero() {
		b.FeeRate = decimal.NewFromFloat(0.003)
	}
	return b
}

// Adapter is a synthetic venue.Adapter. It holds no network state; every
// call is pure computation plus a simulated latency/error injection.
type Adapter struct {
	name     string
	behavior Behavior

	mu      sync.RWMutex
	enabled bool
}

// New constructs a mock adapter named name, enabled by default.
func New(name string, behavior Behavior) *Adapter {
	return &Adapter{name: name, behavior: behavior.withDefaults(), enabled: true}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetEnabled lets tests and operators toggle a venue off, simulating a
// disabled/maintenance venue without removing it from the registry.
func (a *Adapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

func (a *Adapter) simulateLatency(ctx context.Context) error {
	jitter := a.behavior.LatencyMax - a.behavior.LatencyMin
	delay := a.behavior.LatencyMin
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(jitter)))
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippageTolerance decimal.Decimal) (venue.Quote, error) {
	if !a.Enabled() {
		return venue.Quote{}, errs.New("venue."+a.name, errs.CodeUnavailable,
			errs.WithMessage(a.name+" is disabled"),
			errs.WithCanonicalCode(errs.CanonicalVenueUnavailable),
		)
	}
	if err := a.simulateLatency(ctx); err != nil {
		return venue.Quote{}, errs.New("venue."+a.name, errs.CodeUnavailable,
			errs.WithMessage("quote request timed out"),
			errs.WithCause(err),
			errs.WithCanonicalCode(errs.CanonicalTimeout),
		)
	}
	if a.behavior.TransientError > 0 && rand.Float64() < a.behavior.TransientError {
		return venue.Quote{}, errs.New("venue."+a.name, errs.CodeBadRequest,
			errs.WithMessage(a.name+" returned a protocol error"),
			errs.WithCanonicalCode(errs.CanonicalProtocolError),
		)
	}

	price := a.behavior.BasePrice.Mul(decimal.NewFromFloat(1 - defaultPriceImpact*rand.Float64()))
	amountOut := amountIn.Mul(price)
	fee := amountOut.Mul(a.behavior.FeeRate)
	amountOut = amountOut.Sub(fee)
	minOut := amountOut.Mul(decimal.NewFromInt(100).Sub(slippageTolerance).Div(decimal.NewFromInt(100)))

	return venue.Quote{
		VenueName:        a.name,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		PricePerToken:    price,
		PriceImpact:      decimal.NewFromFloat(defaultPriceImpact),
		MinimumAmountOut: minOut,
		EstimatedFee:     fee,
		Route:            tokenIn + "->" + tokenOut,
		Timestamp:        time.Now().UTC(),
		ExpiresInSeconds: 10,
	}, nil
}

func (a *Adapter) ExecuteSwap(ctx context.Context, quote venue.Quote, wallet string) (venue.SwapResult, error) {
	if !a.Enabled() {
		return venue.SwapResult{}, errs.New("venue."+a.name, errs.CodeUnavailable,
			errs.WithMessage(a.name+" is disabled"),
			errs.WithCanonicalCode(errs.CanonicalVenueUnavailable),
		)
	}
	if err := a.simulateLatency(ctx); err != nil {
		return venue.SwapResult{}, errs.New("venue."+a.name, errs.CodeUnavailable,
			errs.WithMessage("swap submission timed out"),
			errs.WithCause(err),
			errs.WithCanonicalCode(errs.CanonicalTimeout),
		)
	}
	if a.behavior.TransientError > 0 && rand.Float64() < a.behavior.TransientError {
		return venue.SwapResult{}, errs.New("venue."+a.name, errs.CodeBadRequest,
			errs.WithMessage(a.name+" rejected the swap"),
			errs.WithCanonicalCode(errs.CanonicalProtocolError),
		)
	}

	actualOut := quote.AmountOut.Mul(decimal.NewFromFloat(1 - defaultPriceImpact*rand.Float64()))
	if actualOut.LessThan(quote.MinimumAmountOut) {
		return venue.SwapResult{}, errs.New("venue."+a.name, errs.CodeBadRequest,
			errs.WithMessage("actual amount out fell below minimum"),
			errs.WithVenueField("amountOut", actualOut.String()),
			errs.WithVenueField("minimumAmountOut", quote.MinimumAmountOut.String()),
			errs.WithCanonicalCode(errs.CanonicalSlippageExceeded),
		)
	}

	return venue.SwapResult{
		Signature:      uuid.NewString(),
		VenueName:      a.name,
		AmountOut:      actualOut,
		ExecutionPrice: quote.PricePerToken,
		ExecutedAt:     time.Now().UTC(),
		Status:         venue.SwapStatusCompleted,
	}, nil
}

func (a *Adapter) GetTransactionStatus(context.Context, string) (venue.SwapStatus, error) {
	return venue.SwapStatusCompleted, nil
}

func (a *Adapter) HealthCheck(context.Context) bool {
	return a.Enabled()
}

func (a *Adapter) SupportedPairs(context.Context) []venue.Pair {
	return []venue.Pair{
		{TokenIn: "SOL", TokenOut: "USDC"},
		{TokenIn: "USDC", TokenOut: "SOL"},
	}
}
