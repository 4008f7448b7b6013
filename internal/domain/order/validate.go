package order

import (
	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/errs"
)

var (
	maxSlippage = decimal.NewFromInt(100)
	minRetries  = 0
	maxRetries  = 10
)

// ValidateCreate checks a CreateInput against the spec's creation
// invariants and returns a *errs.E with CodeValidation on the first
// violation found.
func ValidateCreate(input CreateInput) *errs.E {
	if input.TokenIn == "" || input.TokenOut == "" {
		return errs.New("order", errs.CodeValidation, errs.WithMessage("tokenIn and tokenOut must be non-empty"))
	}
	if input.TokenIn == input.TokenOut {
		return errs.New("order", errs.CodeValidation, errs.WithMessage("tokenIn and tokenOut must differ"))
	}
	if !input.Amount.IsPositive() {
		return errs.New("order", errs.CodeValidation, errs.WithMessage("amount must be greater than zero"))
	}
	if input.SlippageTolerance != nil {
		if input.SlippageTolerance.IsNegative() || input.SlippageTolerance.GreaterThan(maxSlippage) {
			return errs.New("order", errs.CodeValidation, errs.WithMessage("slippageTolerance must be between 0 and 100"))
		}
	}
	if input.MaxRetries != nil {
		if *input.MaxRetries < minRetries || *input.MaxRetries > maxRetries {
			return errs.New("order", errs.CodeValidation, errs.WithMessage("maxRetries must be between 0 and 10"))
		}
	}
	return nil
}

// WithDefaults fills slippageTolerance and maxRetries with their
// defaults when the caller omitted them.
func (in CreateInput) WithDefaults() CreateInput {
	out := in
	if out.SlippageTolerance == nil {
		tolerance := DefaultSlippageTolerance
		out.SlippageTolerance = &tolerance
	}
	if out.MaxRetries == nil {
		retries := DefaultMaxRetries
		out.MaxRetries = &retries
	}
	return out
}
