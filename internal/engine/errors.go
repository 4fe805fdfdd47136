package engine

import "errors"

// Engine errors are local and recoverable: a rejected operation leaves
// the book untouched and the engine keeps running.
var (
	// ErrInvalidOrder rejects a non-positive price or quantity before
	// any matching is attempted.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrDuplicateOrderID rejects an order whose id collides with an
	// order currently resting in the book. The engine never generates
	// ids itself; a collision is a caller contract violation.
	ErrDuplicateOrderID = errors.New("duplicate order id")

	// ErrOrderNotFound is returned by cancel when the id is not resting
	// (already filled, already cancelled, or never existed).
	ErrOrderNotFound = errors.New("order not found")
)
