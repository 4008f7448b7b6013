package venue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/swaprouter/engine/errs"
	"github.com/swaprouter/engine/internal/observability"
)

// DefaultQuoteTimeout is the wall-clock deadline applied to each
// adapter's GetQuote call during fan-out (spec §4.3).
const DefaultQuoteTimeout = 5 * time.Second

// Registry holds the set of known venue adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces an adapter by name.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Enabled returns every registered adapter with Enabled() == true, in a
// deterministic order by name.
func (r *Registry) Enabled() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if a.Enabled() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// All returns every registered adapter regardless of its enabled flag,
// in a deterministic order by name.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Aggregator fans quote requests out across every enabled adapter in
// parallel and ranks the results.
type Aggregator struct {
	registry     *Registry
	quoteTimeout time.Duration
}

// NewAggregator constructs an Aggregator over registry with the given
// per-adapter quote deadline (DefaultQuoteTimeout if zero).
func NewAggregator(registry *Registry, quoteTimeout time.Duration) *Aggregator {
	if quoteTimeout <= 0 {
		quoteTimeout = DefaultQuoteTimeout
	}
	return &Aggregator{registry: registry, quoteTimeout: quoteTimeout}
}

// QuoteSet is the result of a parallel quote fan-out: the successful
// quotes plus a per-adapter error map for the ones that failed. One
// adapter's failure never aborts the others.
type QuoteSet struct {
	Quotes []Quote
	Errors map[string]error
	Health map[string]bool
}

// GetAllQuotes issues GetQuote concurrently to every enabled adapter,
// each bounded by the aggregator's quote deadline.
func (a *Aggregator) GetAllQuotes(ctx context.Context, tokenIn, tokenOut string, amountIn, slippageTolerance decimal.Decimal) QuoteSet {
	adapters := a.registry.Enabled()
	set := QuoteSet{
		Errors: make(map[string]error, len(adapters)),
		Health: make(map[string]bool, len(adapters)),
	}
	if len(adapters) == 0 {
		return set
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(len(adapters))
	for _, adapter := range adapters {
		adapter := adapter
		p.Go(func() {
			quoteCtx, cancel := context.WithTimeout(ctx, a.quoteTimeout)
			defer cancel()

			healthy := adapter.HealthCheck(quoteCtx)
			quote, err := adapter.GetQuote(quoteCtx, tokenIn, tokenOut, amountIn, slippageTolerance)

			mu.Lock()
			defer mu.Unlock()
			set.Health[adapter.Name()] = healthy
			if err != nil {
				set.Errors[adapter.Name()] = err
				return
			}
			set.Quotes = append(set.Quotes, quote)
		})
	}
	p.Wait()

	sort.Slice(set.Quotes, func(i, j int) bool { return set.Quotes[i].VenueName < set.Quotes[j].VenueName })
	return set
}

// GetBestQuote ranks quotes by amountOut descending, estimatedFee
// ascending, venueName ascending, and returns the winner plus the full
// ranked list. Fails with CanonicalNoQuotesAvailable if set is empty,
// carrying the per-adapter errors (ordered by venue name) as its cause.
func GetBestQuote(set QuoteSet) (Quote, []Quote, error) {
	if len(set.Quotes) == 0 {
		names := make([]string, 0, len(set.Errors))
		for name := range set.Errors {
			names = append(names, name)
		}
		sort.Strings(names)
		venueErrs := make([]error, 0, len(names))
		for _, name := range names {
			venueErrs = append(venueErrs, set.Errors[name])
		}
		return Quote{}, nil, errs.New("venue.aggregator", errs.CodeUnavailable,
			errs.WithMessage("no quotes available from any venue"),
			errs.WithCause(observability.AggregateErrors("venue quote fan-out", venueErrs)),
			errs.WithCanonicalCode(errs.CanonicalNoQuotesAvailable),
		)
	}
	ranked := make([]Quote, len(set.Quotes))
	copy(ranked, set.Quotes)
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].AmountOut.Equal(ranked[j].AmountOut) {
			return ranked[i].AmountOut.GreaterThan(ranked[j].AmountOut)
		}
		if !ranked[i].EstimatedFee.Equal(ranked[j].EstimatedFee) {
			return ranked[i].EstimatedFee.LessThan(ranked[j].EstimatedFee)
		}
		return ranked[i].VenueName < ranked[j].VenueName
	})
	return ranked[0], ranked, nil
}
