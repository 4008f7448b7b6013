package mock

import "github.com/shopspring/decimal"

// DefaultVenues returns the two reference DEX adapters wired into the
// engine out of the box.
func DefaultVenues() []*Adapter {
	return []*Adapter{
		New("meteora", Behavior{
			BasePrice: decimal.NewFromFloat(96.2),
			FeeRate:   decimal.NewFromFloat(0.0025),
		}),
		New("raydium", Behavior{
			BasePrice: decimal.NewFromFloat(95.5),
			FeeRate:   decimal.NewFromFloat(0.003),
		}),
	}
}
