package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dripzoid/checkout-engine/internal/domain/order"
	"github.com/Dripzoid/checkout-engine/internal/domain/product"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, shipping_address, payment_method, payment_details, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	productPriceSQL = `SELECT price FROM products WHERE id = $1`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)`

	// The WHERE clause is the authoritative stock check: it re-verifies
	// availability at write time, so two transactions can never jointly
	// drive stock negative. NULL stock stays NULL (unlimited).
	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, sold = sold + $2
		WHERE id = $1 AND (stock IS NULL OR stock >= $2)`

	setOrderTotalSQL = `UPDATE orders SET total_amount = $2 WHERE id = $1`

	deleteCartRowSQL = `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`

	getOrderSQL = `SELECT id, user_id, shipping_address, payment_method, payment_details, total_amount, status, created_at
		FROM orders WHERE id = $1 AND user_id = $2`

	listOrdersSQL = `SELECT id, user_id, shipping_address, payment_method, payment_details, total_amount, status, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	listItemsSQL = `SELECT oi.order_id, oi.product_id, oi.quantity, oi.price, p.name, p.image
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 ORDER BY oi.id`
)

// listItemsConcurrency caps the fan-out when attaching items to a list of
// orders so one request cannot monopolize the pool.
const listItemsConcurrency = 4

var (
	_ order.TxStore = (*OrderStore)(nil)
	_ order.Queries = (*OrderStore)(nil)
)

// OrderStore implements the transactional checkout store and the read-only
// order queries backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
	lg   *zap.Logger
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool, lg *zap.Logger) *OrderStore {
	return &OrderStore{pool: pool, lg: lg}
}

// Checkout runs fn inside a single database transaction. A nil return
// commits; any error rolls back every write. A rollback that itself fails
// leaves the database state unknown, so it is logged as a critical
// inconsistency risk — it is never reported as success.
func (s *OrderStore) Checkout(ctx context.Context, fn func(tx order.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin checkout transaction")
	}

	if err := fn(&checkoutTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.lg.Error("checkout rollback failed, storage may be inconsistent",
				zap.NamedError("rollback_error", rbErr),
				zap.NamedError("cause", err),
			)
			return errors.Wrap(rbErr, "rollback checkout transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit checkout transaction")
	}
	return nil
}

// checkoutTx adapts a pgx transaction to the order.Tx write set.
type checkoutTx struct {
	tx pgx.Tx
}

func (t *checkoutTx) InsertOrder(ctx context.Context, o *order.Order) error {
	shipping := o.ShippingAddress
	if len(shipping) == 0 {
		shipping = []byte("{}")
	}
	payment := o.PaymentDetails
	if len(payment) == 0 {
		payment = []byte("{}")
	}

	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, shipping, o.PaymentMethod, payment, o.TotalAmount, o.Status,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	return nil
}

func (t *checkoutTx) ProductPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := t.tx.QueryRow(ctx, productPriceSQL, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, product.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("reading price of %q: %w", productID, err)
	}
	return price, nil
}

func (t *checkoutTx) InsertItem(ctx context.Context, it order.Item) error {
	_, err := t.tx.Exec(ctx, insertItemSQL, it.OrderID, it.ProductID, it.Quantity, it.Price)
	if err != nil {
		return fmt.Errorf("inserting item %q of order %q: %w", it.ProductID, it.OrderID, err)
	}
	return nil
}

func (t *checkoutTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *checkoutTx) SetTotal(ctx context.Context, orderID string, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, setOrderTotalSQL, orderID, total)
	if err != nil {
		return fmt.Errorf("setting total of order %q: %w", orderID, err)
	}
	return nil
}

func (t *checkoutTx) DeleteCartRow(ctx context.Context, rowID, userID string) error {
	_, err := t.tx.Exec(ctx, deleteCartRowSQL, rowID, userID)
	if err != nil {
		return fmt.Errorf("deleting cart row %q: %w", rowID, err)
	}
	return nil
}

// GetOrder returns one order with its items, only when owned by userID.
func (s *OrderStore) GetOrder(ctx context.Context, orderID, userID string) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotOwner
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o.Items, err = s.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns the user's orders newest-first. Items are attached via
// a bounded fan-out, one query per order.
func (s *OrderStore) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}

	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listItemsConcurrency)
	for i := range list {
		g.Go(func() error {
			items, err := s.orderItems(gctx, list[i].ID)
			if err != nil {
				return err
			}
			list[i].Items = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *OrderStore) orderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := s.pool.Query(ctx, listItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanItem)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.ShippingAddress, &o.PaymentMethod,
		&o.PaymentDetails, &o.TotalAmount, &o.Status, &o.CreatedAt,
	)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.Price, &it.ProductName, &it.ProductImage)
	return it, err
}
