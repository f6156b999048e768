package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dripzoid/checkout-engine/internal/domain/cart"
	"github.com/Dripzoid/checkout-engine/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	seen := make(map[string]bool)
	for _, id := range ids {
		if p, ok := m.byID[id]; ok && !seen[id] {
			out = append(out, *p)
			seen[id] = true
		}
	}
	return out, nil
}

type mockCartStore struct {
	rows []cart.Row
}

func (m *mockCartStore) GetRow(_ context.Context, id, userID string) (*cart.Row, error) {
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, cart.ErrNotFound
}

func (m *mockCartStore) GetRowByProduct(_ context.Context, productID, userID string) (*cart.Row, error) {
	for i := range m.rows {
		if m.rows[i].ProductID == productID && m.rows[i].UserID == userID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, cart.ErrNotFound
}

// mockTxStore simulates the transactional checkout store: writes accumulate
// in a pending transcript that is published only on commit.
type mockTxStore struct {
	prices map[string]decimal.Decimal
	stock  map[string]*int64 // missing key means unlimited
	raceOn map[string]bool   // force the guarded decrement to lose

	beginCount int
	committed  bool
	rolledBack bool

	orders    []Order
	items     []Item
	deleted   []string
	lastTotal decimal.Decimal
}

func (m *mockTxStore) Checkout(_ context.Context, fn func(tx Tx) error) error {
	m.beginCount++
	pending := &mockTx{store: m}
	if err := fn(pending); err != nil {
		m.rolledBack = true
		return err
	}
	m.committed = true
	m.orders = append(m.orders, pending.orders...)
	m.items = append(m.items, pending.items...)
	m.deleted = append(m.deleted, pending.deleted...)
	m.lastTotal = pending.total
	for id, qty := range pending.decrements {
		if s, ok := m.stock[id]; ok && s != nil {
			next := *s - int64(qty)
			m.stock[id] = &next
		}
	}
	return nil
}

type mockTx struct {
	store *mockTxStore

	orders     []Order
	items      []Item
	deleted    []string
	decrements map[string]int
	total      decimal.Decimal
}

func (t *mockTx) InsertOrder(_ context.Context, o *Order) error {
	t.orders = append(t.orders, *o)
	return nil
}

func (t *mockTx) ProductPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	price, ok := t.store.prices[productID]
	if !ok {
		return decimal.Zero, product.ErrNotFound
	}
	return price, nil
}

func (t *mockTx) InsertItem(_ context.Context, it Item) error {
	t.items = append(t.items, it)
	return nil
}

func (t *mockTx) DecrementStock(_ context.Context, productID string, qty int) (bool, error) {
	if t.store.raceOn[productID] {
		return false, nil
	}
	if t.decrements == nil {
		t.decrements = make(map[string]int)
	}
	s, limited := t.store.stock[productID]
	if limited && s != nil && *s-int64(t.decrements[productID])-int64(qty) < 0 {
		return false, nil
	}
	t.decrements[productID] += qty
	return true, nil
}

func (t *mockTx) SetTotal(_ context.Context, _ string, total decimal.Decimal) error {
	t.total = total
	return nil
}

func (t *mockTx) DeleteCartRow(_ context.Context, rowID, _ string) error {
	t.deleted = append(t.deleted, rowID)
	return nil
}

// --- Helpers ---

func intPtr(v int64) *int64 { return &v }

func newTestProduct(id string, price string, stock *int64) *product.Product {
	return &product.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
		Stock: stock,
		Image: id + ".jpg",
	}
}

func newFixture(products ...*product.Product) (*mockProductRepo, *mockCartStore, *mockTxStore) {
	repo := &mockProductRepo{byID: make(map[string]*product.Product)}
	store := &mockTxStore{
		prices: make(map[string]decimal.Decimal),
		stock:  make(map[string]*int64),
		raceOn: make(map[string]bool),
	}
	for _, p := range products {
		repo.byID[p.ID] = p
		store.prices[p.ID] = p.Price
		if p.Stock != nil {
			v := *p.Stock
			store.stock[p.ID] = &v
		}
	}
	return repo, &mockCartStore{}, store
}

func newTestService(repo *mockProductRepo, carts *mockCartStore, store *mockTxStore) *Service {
	return NewService(repo, NewResolver(carts), store, zap.NewNop())
}

// --- Tests ---

func TestPlaceOrder_EmptyLines(t *testing.T) {
	svc := newTestService(newFixture())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
	})
	require.ErrorIs(t, err, ErrEmptyLines)
}

func TestPlaceOrder_InvalidMode(t *testing.T) {
	svc := newTestService(newFixture())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   Mode("bulk"),
		Lines:  []LineRef{{Ref: "p1", Quantity: 1}},
	})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestPlaceOrder_MissingUser(t *testing.T) {
	svc := newTestService(newFixture())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Mode:  ModeDirect,
		Lines: []LineRef{{Ref: "p1", Quantity: 1}},
	})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestPlaceOrder_DirectSuccess(t *testing.T) {
	repo, carts, store := newFixture(
		newTestProduct("p1", "10.00", intPtr(5)),
		newTestProduct("p2", "20.00", intPtr(5)),
	)
	svc := newTestService(repo, carts, store)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines: []LineRef{
			{Ref: "p1", Quantity: 2},
			{Ref: "p2", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.True(t, store.committed)

	require.Len(t, store.items, 2)
	assert.Equal(t, "p1", store.items[0].ProductID)
	assert.Equal(t, "p2", store.items[1].ProductID)
	assert.True(t, decimal.RequireFromString("40.00").Equal(store.lastTotal))

	require.NotNil(t, store.stock["p1"])
	assert.EqualValues(t, 3, *store.stock["p1"])
}

func TestPlaceOrder_PriceCapturedFromCatalog(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", nil))
	svc := newTestService(repo, carts, store)

	// Declared total is informational only; the item carries the catalog price.
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "u1",
		Mode:          ModeDirect,
		Lines:         []LineRef{{Ref: "p1", Quantity: 1}},
		DeclaredTotal: decimal.RequireFromString("0.01"),
	})

	require.NoError(t, err)
	require.Len(t, store.items, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(store.items[0].Price))
	assert.True(t, decimal.RequireFromString("10.00").Equal(store.lastTotal))
}

func TestPlaceOrder_PrecheckNotFound_NoTransaction(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(5)))
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines: []LineRef{
			{Ref: "p1", Quantity: 1},
			{Ref: "missing", Quantity: 1},
		},
	})

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "missing", nfErr.Ref)

	// The first valid line must not leave any trace either.
	assert.Zero(t, store.beginCount)
	assert.Empty(t, store.items)
	assert.EqualValues(t, 5, *store.stock["p1"])
}

func TestPlaceOrder_PrecheckInsufficientStock_NoTransaction(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(1)))
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines:  []LineRef{{Ref: "p1", Quantity: 2}},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p1", stockErr.ProductID)
	assert.Zero(t, store.beginCount)
}

func TestPlaceOrder_RaceAbortsWholeOrder(t *testing.T) {
	repo, carts, store := newFixture(
		newTestProduct("p1", "10.00", intPtr(5)),
		newTestProduct("p2", "20.00", intPtr(5)),
	)
	// Snapshot says p2 is available, but the guarded decrement loses.
	store.raceOn["p2"] = true
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines: []LineRef{
			{Ref: "p1", Quantity: 1},
			{Ref: "p2", Quantity: 1},
		},
	})

	var raceErr *StockRaceError
	require.ErrorAs(t, err, &raceErr)
	assert.Equal(t, "p2", raceErr.ProductID)

	// Full rollback: the earlier p1 line is gone too.
	assert.True(t, store.rolledBack)
	assert.False(t, store.committed)
	assert.Empty(t, store.items)
	assert.EqualValues(t, 5, *store.stock["p1"])
}

func TestPlaceOrder_CartModeDeletesConsumedRows(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(5)))
	carts.rows = []cart.Row{
		{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 2},
	}
	svc := newTestService(repo, carts, store)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeCart,
		Lines:  []LineRef{{Kind: RefCartRow, Ref: "c1"}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, []string{"c1"}, store.deleted)

	require.Len(t, store.items, 1)
	assert.Equal(t, 2, store.items[0].Quantity)
}

func TestPlaceOrder_CartModeQuantityOverride(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(5)))
	carts.rows = []cart.Row{
		{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 1},
	}
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeCart,
		Lines:  []LineRef{{Kind: RefCartRow, Ref: "c1", Quantity: 3}},
	})

	require.NoError(t, err)
	require.Len(t, store.items, 1)
	assert.Equal(t, 3, store.items[0].Quantity)
}

func TestPlaceOrder_CartModeForeignRow(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(5)))
	carts.rows = []cart.Row{
		{ID: "c1", UserID: "someone-else", ProductID: "p1", Quantity: 1},
	}
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeCart,
		Lines:  []LineRef{{Kind: RefCartRow, Ref: "c1"}},
	})

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Zero(t, store.beginCount)
	assert.Empty(t, store.deleted)
}

func TestPlaceOrder_DirectModeNeverTouchesCart(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(5)))
	carts.rows = []cart.Row{
		{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 1},
	}
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines:  []LineRef{{Ref: "p1", Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Empty(t, store.deleted)
}

func TestPlaceOrder_UnlimitedStock(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "1.00", nil))
	svc := newTestService(repo, carts, store)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines:  []LineRef{{Ref: "p1", Quantity: 1000}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(store.lastTotal))
}

func TestPlaceOrder_DuplicateLinesNotMerged(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(10)))
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines: []LineRef{
			{Ref: "p1", Quantity: 2},
			{Ref: "p1", Quantity: 3},
		},
	})

	require.NoError(t, err)
	require.Len(t, store.items, 2)
	assert.Equal(t, 2, store.items[0].Quantity)
	assert.Equal(t, 3, store.items[1].Quantity)
	assert.EqualValues(t, 5, *store.stock["p1"])
}

func TestPlaceOrder_RepeatedRequestsAreNotIdempotent(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", intPtr(10)))
	svc := newTestService(repo, carts, store)

	req := PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines:  []LineRef{{Ref: "p1", Quantity: 1}},
	}

	first, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	// Each call creates a distinct order; dedup is the caller's concern.
	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Len(t, store.orders, 2)
	assert.EqualValues(t, 8, *store.stock["p1"])
}

func TestPlaceOrder_ProductRepoError(t *testing.T) {
	repo, carts, store := newFixture(newTestProduct("p1", "10.00", nil))
	repo.getErr = errors.New("db down")
	svc := newTestService(repo, carts, store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u1",
		Mode:   ModeDirect,
		Lines:  []LineRef{{Ref: "p1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
	assert.Zero(t, store.beginCount)
}
