package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
//
// Stock is nil when the product has unlimited availability; a non-nil value
// is the remaining sellable quantity. Stock and Sold are owned by the
// catalog collaborator — the checkout engine only mutates them through the
// guarded decrement in the order store.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock *int64
	Sold  int64
	Image string
}

// Available reports whether qty units can be satisfied by the current stock
// snapshot. Nil stock means unlimited and always passes.
func (p *Product) Available(qty int) bool {
	return p.Stock == nil || *p.Stock >= int64(qty)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
