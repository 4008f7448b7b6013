package order

import "github.com/swaprouter/engine/errs"

// ErrNotFound is returned by Store implementations when the referenced
// order does not exist.
func ErrNotFound(id string) *errs.E {
	return errs.New("order", errs.CodeNotFound,
		errs.WithMessage("order not found"),
		errs.WithVenueField("orderId", id),
		errs.WithCanonicalCode(errs.CanonicalOrderNotFound),
	)
}

// ErrIllegalTransition is returned when UpdateStatus is asked to move
// an order to a status not reachable from its current one (spec §4.1:
// "MUST reject forbidden transitions").
func ErrIllegalTransition(from, to Status) *errs.E {
	return errs.New("order", errs.CodeConflict,
		errs.WithMessage("illegal status transition"),
		errs.WithVenueField("from", string(from)),
		errs.WithVenueField("to", string(to)),
		errs.WithCanonicalCode(errs.CanonicalTerminalState),
	)
}

// ErrDeleteNotAllowed is returned when Delete is called on an order
// that is not pending.
func ErrDeleteNotAllowed(id string) *errs.E {
	return errs.New("order", errs.CodeConflict,
		errs.WithMessage("order can only be deleted while pending"),
		errs.WithVenueField("orderId", id),
	)
}
