package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/Dripzoid/checkout-engine/internal/domain/cart"
)

// Resolver normalizes heterogeneous request lines into canonical
// ResolvedLines. It performs reads only.
type Resolver struct {
	carts cart.Store
}

// NewResolver creates a Resolver backed by the given cart store.
func NewResolver(carts cart.Store) *Resolver {
	return &Resolver{carts: carts}
}

// Resolve maps every input reference to exactly one ResolvedLine, in input
// order. Duplicate product references are preserved, not merged. A reference
// that cannot be resolved fails the whole call — lines are never silently
// dropped.
func (r *Resolver) Resolve(ctx context.Context, userID string, mode Mode, refs []LineRef) ([]ResolvedLine, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyLines
	}

	lines := make([]ResolvedLine, 0, len(refs))
	for _, ref := range refs {
		if ref.Ref == "" {
			return nil, &ValidationError{Reason: "line reference required"}
		}
		if ref.Quantity < 0 {
			return nil, &InvalidQuantityError{Ref: ref.Ref}
		}

		line, err := r.resolveOne(ctx, userID, mode, ref)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (r *Resolver) resolveOne(ctx context.Context, userID string, mode Mode, ref LineRef) (ResolvedLine, error) {
	if mode == ModeDirect {
		// Direct mode references products only; cart row tags are invalid.
		if ref.Kind == RefCartRow {
			return ResolvedLine{}, &ValidationError{Reason: "cart row references are not allowed in direct mode"}
		}
		return ResolvedLine{
			ProductID: ref.Ref,
			Quantity:  defaultQuantity(ref.Quantity, 0),
		}, nil
	}

	row, err := r.findCartRow(ctx, userID, ref)
	if err != nil {
		return ResolvedLine{}, err
	}
	return ResolvedLine{
		ProductID: row.ProductID,
		Quantity:  defaultQuantity(ref.Quantity, row.Quantity),
		CartRowID: row.ID,
	}, nil
}

// findCartRow locates the user's cart row for a reference. Tagged references
// hit exactly one table. The untagged legacy form probes the cart row id
// first and falls back to a product id lookup, kept for compatibility with
// clients that predate tagged references.
func (r *Resolver) findCartRow(ctx context.Context, userID string, ref LineRef) (*cart.Row, error) {
	switch ref.Kind {
	case RefCartRow:
		row, err := r.carts.GetRow(ctx, ref.Ref, userID)
		return row, r.mapLookupErr(err, ref.Ref)
	case RefProduct:
		row, err := r.carts.GetRowByProduct(ctx, ref.Ref, userID)
		return row, r.mapLookupErr(err, ref.Ref)
	default:
		row, err := r.carts.GetRow(ctx, ref.Ref, userID)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, cart.ErrNotFound) {
			return nil, errors.Wrapf(err, "resolve %s", ref.Ref)
		}
		row, err = r.carts.GetRowByProduct(ctx, ref.Ref, userID)
		return row, r.mapLookupErr(err, ref.Ref)
	}
}

func (r *Resolver) mapLookupErr(err error, ref string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cart.ErrNotFound) {
		return &NotFoundError{Ref: ref}
	}
	return errors.Wrapf(err, "resolve %s", ref)
}

// defaultQuantity applies the override chain: explicit request quantity,
// then the cart row's stored quantity, then 1.
func defaultQuantity(requested, stored int) int {
	if requested > 0 {
		return requested
	}
	if stored > 0 {
		return stored
	}
	return 1
}
