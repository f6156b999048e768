package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the order lifecycle states. The checkout engine only
// ever writes StatusPending; later transitions belong to fulfilment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Order is a placed customer order. ShippingAddress and PaymentDetails are
// opaque snapshots stored exactly as received; the engine never inspects
// them.
type Order struct {
	ID              string
	UserID          string
	ShippingAddress json.RawMessage
	PaymentMethod   string
	PaymentDetails  json.RawMessage
	TotalAmount     decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	Items           []Item
}

// Item is a single order line. Price is the server-side catalog price
// captured inside the order transaction, never the client-declared one.
// ProductName and ProductImage are populated by the query service only.
type Item struct {
	OrderID      string
	ProductID    string
	Quantity     int
	Price        decimal.Decimal
	ProductName  string
	ProductImage string
}

// Mode selects how line references in a request are interpreted.
type Mode string

const (
	// ModeDirect treats every reference as a product id.
	ModeDirect Mode = "direct"
	// ModeCart resolves references against the user's saved cart rows.
	ModeCart Mode = "cart"
)

// RefKind tags a line reference. RefAuto keeps the legacy untagged
// behaviour: in cart mode the reference is probed first as a cart row id,
// then as a product id.
type RefKind string

const (
	RefAuto    RefKind = ""
	RefCartRow RefKind = "cartItem"
	RefProduct RefKind = "product"
)

// LineRef is one raw line of an incoming request. Quantity zero means the
// client did not specify one.
type LineRef struct {
	Kind     RefKind
	Ref      string
	Quantity int
}

// ResolvedLine is the canonical order line after resolution. CartRowID is
// empty in direct mode.
type ResolvedLine struct {
	ProductID string
	Quantity  int
	CartRowID string
}

// Tx is the set of writes available inside one checkout transaction. All
// methods act within the same storage transaction; any error aborts it.
type Tx interface {
	InsertOrder(ctx context.Context, o *Order) error
	// ProductPrice re-reads the authoritative catalog price for a product.
	ProductPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	InsertItem(ctx context.Context, it Item) error
	// DecrementStock applies the guarded conditional update
	// (stock IS NULL OR stock >= qty). It reports false when the guard
	// matched no row, i.e. the authoritative check lost a race.
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	SetTotal(ctx context.Context, orderID string, total decimal.Decimal) error
	DeleteCartRow(ctx context.Context, rowID, userID string) error
}

// TxStore runs fn inside a single storage transaction. A nil return from fn
// commits; any error rolls back every write fn performed. Implementations
// must escalate a failed rollback rather than swallow it.
type TxStore interface {
	Checkout(ctx context.Context, fn func(tx Tx) error) error
}

// Queries defines the read-only retrieval operations of the query service.
type Queries interface {
	// GetOrder returns one order with its items, only when owned by userID.
	GetOrder(ctx context.Context, orderID, userID string) (*Order, error)
	// ListOrders returns the user's orders newest-first with items attached.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
}
