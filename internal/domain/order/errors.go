package order

import (
	"fmt"
)

// Sentinel errors for request validation.
var (
	ErrEmptyLines = fmt.Errorf("order lines required")
	ErrNotOwner   = fmt.Errorf("order not found")
)

// ValidationError indicates a malformed request, rejected before any lookup.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NotFoundError indicates a referenced product or cart row that is absent or
// not owned by the caller. Ref is the reference exactly as submitted.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reference %s not found", e.Ref)
}

// InvalidQuantityError indicates a line with a negative quantity.
type InvalidQuantityError struct {
	Ref string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for %s", e.Ref)
}

// InsufficientStockError is the pre-check failure: the non-authoritative
// stock snapshot cannot cover the requested quantity. No transaction was
// opened and nothing was written.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// StockRaceError is the authoritative failure: the guarded decrement inside
// the order transaction matched no row because a concurrent order consumed
// the stock first. It is only ever returned after a completed rollback, and
// is kept distinct from InsufficientStockError so callers can surface a
// "just sold out" signal.
type StockRaceError struct {
	ProductID string
}

func (e *StockRaceError) Error() string {
	return fmt.Sprintf("product %s sold out during checkout", e.ProductID)
}
