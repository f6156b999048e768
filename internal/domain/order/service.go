package order

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Dripzoid/checkout-engine/internal/domain/product"
)

// PlaceOrderRequest holds the input for placing an order. DeclaredTotal is
// the client's own computation and is informational only — the persisted
// total always comes from catalog prices read inside the transaction.
type PlaceOrderRequest struct {
	UserID          string
	Mode            Mode
	Lines           []LineRef
	ShippingAddress json.RawMessage
	PaymentMethod   string
	PaymentDetails  json.RawMessage
	DeclaredTotal   decimal.Decimal
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	OrderID string
}

// Service is the order transaction coordinator. It is the only writer of
// orders, order items, product stock counters, and cart rows as a group.
type Service struct {
	products product.Repository
	resolver *Resolver
	store    TxStore
	lg       *zap.Logger
}

// NewService creates the coordinator with the required collaborators.
func NewService(
	products product.Repository,
	resolver *Resolver,
	store TxStore,
	lg *zap.Logger,
) *Service {
	return &Service{
		products: products,
		resolver: resolver,
		store:    store,
		lg:       lg,
	}
}

// PlaceOrder turns a checkout request into a durable order.
//
// Every resolved line is pre-validated against current stock snapshots
// before any transaction opens, so validation failures have zero side
// effects. The transaction then inserts the order, and per line captures the
// catalog price, inserts the item, and applies the guarded stock decrement;
// a decrement that matches no row means a concurrent order won the stock and
// the whole transaction rolls back, earlier lines included. In cart mode the
// consumed cart rows are deleted inside the same transaction, making cleanup
// atomic with order creation. There is no retry: a lost race is terminal.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.UserID == "" {
		return nil, &ValidationError{Reason: "user id required"}
	}
	if req.Mode != ModeDirect && req.Mode != ModeCart {
		return nil, &ValidationError{Reason: "mode must be direct or cart"}
	}

	lines, err := s.resolver.Resolve(ctx, req.UserID, req.Mode, req.Lines)
	if err != nil {
		return nil, err
	}

	if err := s.precheck(ctx, lines); err != nil {
		return nil, err
	}

	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentDetails:  req.PaymentDetails,
		Status:          StatusPending,
	}

	var total decimal.Decimal
	err = s.store.Checkout(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		// Lines commit strictly in resolved order; no reordering.
		for _, line := range lines {
			price, err := tx.ProductPrice(ctx, line.ProductID)
			if err != nil {
				return errors.Wrapf(err, "read price of %s", line.ProductID)
			}

			if err := tx.InsertItem(ctx, Item{
				OrderID:   o.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     price,
			}); err != nil {
				return errors.Wrapf(err, "insert item %s", line.ProductID)
			}

			ok, err := tx.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return errors.Wrapf(err, "decrement stock of %s", line.ProductID)
			}
			if !ok {
				return &StockRaceError{ProductID: line.ProductID}
			}

			total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		if err := tx.SetTotal(ctx, o.ID, total.Round(2)); err != nil {
			return errors.Wrap(err, "set order total")
		}

		if req.Mode == ModeCart {
			for _, line := range lines {
				if line.CartRowID == "" {
					continue
				}
				if err := tx.DeleteCartRow(ctx, line.CartRowID, req.UserID); err != nil {
					return errors.Wrapf(err, "delete cart row %s", line.CartRowID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !req.DeclaredTotal.IsZero() && !req.DeclaredTotal.Equal(total.Round(2)) {
		s.lg.Warn("client-declared total disagrees with computed total",
			zap.String("order_id", o.ID),
			zap.String("declared", req.DeclaredTotal.String()),
			zap.String("computed", total.Round(2).String()),
		)
	}

	return &PlaceOrderResult{OrderID: o.ID}, nil
}

// precheck batch-fetches the referenced products and validates each line
// against the current stock snapshot. Lines referencing the same product are
// checked independently — duplicates are not merged.
func (s *Service) precheck(ctx context.Context, lines []ResolvedLine) error {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return &NotFoundError{Ref: line.ProductID}
		}
		if err := CheckStock(p, line); err != nil {
			return err
		}
	}
	return nil
}
