package cart

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a cart row does not exist or is not owned by
// the requesting user. Ownership and absence are deliberately
// indistinguishable to the caller.
var ErrNotFound = errors.New("cart row not found")

// Row is a single saved cart entry. Rows are created and edited by the cart
// collaborator; the checkout engine reads them during line resolution and
// deletes them inside a committed order transaction, nothing else.
type Row struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	Variant   json.RawMessage
}

// Store defines the user-scoped read operations the checkout engine needs.
type Store interface {
	// GetRow returns the row with the given id, but only when it belongs
	// to userID.
	GetRow(ctx context.Context, id, userID string) (*Row, error)
	// GetRowByProduct returns the user's cart row referencing productID.
	GetRowByProduct(ctx context.Context, productID, userID string) (*Row, error)
}
