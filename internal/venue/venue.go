// Package venue defines the uniform contract over a decentralized
// exchange adapter and the registry/aggregator that fans quote and swap
// requests out across all enabled adapters in parallel.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Pair identifies a tradable token pair on a venue.
type Pair struct {
	TokenIn  string
	TokenOut string
}

// Quote is a venue's non-binding offer for a swap at a moment in time.
// Quotes are ephemeral and are never persisted.
type Quote struct {
	VenueName        string
	AmountIn         decimal.Decimal
	AmountOut        decimal.Decimal
	PricePerToken    decimal.Decimal
	PriceImpact      decimal.Decimal
	MinimumAmountOut decimal.Decimal
	EstimatedFee     decimal.Decimal
	Route            string
	Timestamp        time.Time
	ExpiresInSeconds int
}

// SwapStatus is the lifecycle state of a submitted swap transaction.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusCompleted SwapStatus = "completed"
	SwapStatusFailed    SwapStatus = "failed"
)

// SwapResult is the outcome of a submitted swap.
type SwapResult struct {
	Signature      string
	VenueName      string
	AmountOut      decimal.Decimal
	ExecutionPrice decimal.Decimal
	ExecutedAt     time.Time
	Status         SwapStatus
}

// Adapter is the uniform contract over one DEX venue. The orchestrator
// treats every adapter as opaque behind this interface.
type Adapter interface {
	// Name is the adapter's stable identifier (e.g. "meteora").
	Name() string
	// Enabled reports whether this adapter currently participates in
	// quote fan-out and selection.
	Enabled() bool
	// GetQuote fails with a CanonicalVenueUnavailable error when
	// disabled, CanonicalTimeout when the venue exceeds its deadline,
	// and CanonicalProtocolError for any other adapter-side failure.
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippageTolerance decimal.Decimal) (Quote, error)
	// ExecuteSwap fails with CanonicalSlippageExceeded when the actual
	// amount out falls below quote.MinimumAmountOut, with
	// CanonicalVenueUnavailable when disabled, and
	// CanonicalProtocolError for any other failure.
	ExecuteSwap(ctx context.Context, quote Quote, wallet string) (SwapResult, error)
	GetTransactionStatus(ctx context.Context, signature string) (SwapStatus, error)
	HealthCheck(ctx context.Context) bool
	SupportedPairs(ctx context.Context) []Pair
}
