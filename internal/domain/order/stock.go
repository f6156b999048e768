package order

import (
	"github.com/Dripzoid/checkout-engine/internal/domain/product"
)

// CheckStock validates a resolved line against a product snapshot. It is the
// cheap, non-authoritative pre-check: the snapshot may be stale by the time
// the order transaction runs, which is why the guarded decrement inside the
// transaction re-verifies the same condition atomically.
func CheckStock(p *product.Product, line ResolvedLine) error {
	if p.Available(line.Quantity) {
		return nil
	}
	return &InsufficientStockError{ProductID: p.ID}
}
