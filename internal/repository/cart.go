package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dripzoid/checkout-engine/internal/domain/cart"
)

const (
	getCartRowSQL = `SELECT id, user_id, product_id, quantity, variant
		FROM cart_items WHERE id = $1 AND user_id = $2`

	getCartRowByProductSQL = `SELECT id, user_id, product_id, quantity, variant
		FROM cart_items WHERE product_id = $1 AND user_id = $2
		ORDER BY id LIMIT 1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL. All lookups are
// user-scoped in SQL so a foreign row is indistinguishable from a missing one.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetRow returns the cart row with the given id when owned by userID.
func (r *CartRepository) GetRow(ctx context.Context, id, userID string) (*cart.Row, error) {
	rows, err := r.pool.Query(ctx, getCartRowSQL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart row %q: %w", id, err)
	}
	return collectCartRow(rows, id)
}

// GetRowByProduct returns the user's cart row referencing productID.
func (r *CartRepository) GetRowByProduct(ctx context.Context, productID, userID string) (*cart.Row, error) {
	rows, err := r.pool.Query(ctx, getCartRowByProductSQL, productID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart row for product %q: %w", productID, err)
	}
	return collectCartRow(rows, productID)
}

func collectCartRow(rows pgx.Rows, ref string) (*cart.Row, error) {
	row, err := pgx.CollectExactlyOneRow(rows, scanCartRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("scanning cart row %q: %w", ref, err)
	}
	return &row, nil
}

func scanCartRow(row pgx.CollectableRow) (cart.Row, error) {
	var c cart.Row
	err := row.Scan(&c.ID, &c.UserID, &c.ProductID, &c.Quantity, &c.Variant)
	return c, err
}
