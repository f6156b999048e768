package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Dripzoid/checkout-engine/internal/domain/order"
)

// orderLineJSON is one request line. Exactly one of ProductID, CartItemID,
// or Ref should be set: the first two are the tagged forms, Ref is the
// legacy untagged form that the resolver probes against both tables.
type orderLineJSON struct {
	ProductID  string `json:"productId,omitempty"`
	CartItemID string `json:"cartItemId,omitempty"`
	Ref        string `json:"ref,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
}

type placeOrderJSON struct {
	Mode            string          `json:"mode"`
	Items           []orderLineJSON `json:"items"`
	ShippingAddress json.RawMessage `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentDetails  json.RawMessage `json:"paymentDetails"`
	Total           float64         `json:"total,omitempty"`
}

type placeOrderResponseJSON struct {
	OrderID string `json:"orderId"`
}

type errorJSON struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

type orderItemJSON struct {
	ProductID    string  `json:"productId"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
	ProductName  string  `json:"productName,omitempty"`
	ProductImage string  `json:"productImage,omitempty"`
}

type orderJSON struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	TotalAmount     float64         `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingAddress json.RawMessage `json:"shippingAddress"`
	CreatedAt       string          `json:"createdAt"`
	Items           []orderItemJSON `json:"items"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "missing caller identity")
		return
	}

	var req placeOrderJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "", "malformed request body")
		return
	}

	lines := make([]order.LineRef, len(req.Items))
	for i, item := range req.Items {
		lines[i] = toLineRef(item)
	}

	result, err := h.placer.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:          userID,
		Mode:            order.Mode(req.Mode),
		Lines:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentDetails:  req.PaymentDetails,
		DeclaredTotal:   decimal.NewFromFloat(req.Total),
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeOrderResponseJSON{OrderID: result.OrderID})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "missing caller identity")
		return
	}

	o, err := h.queries.GetOrder(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "missing caller identity")
		return
	}

	list, err := h.queries.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	out := make([]orderJSON, len(list))
	for i := range list {
		out[i] = toOrderJSON(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// toLineRef maps the wire line to a domain reference. Tagged fields win over
// the legacy Ref field.
func toLineRef(item orderLineJSON) order.LineRef {
	switch {
	case item.ProductID != "":
		return order.LineRef{Kind: order.RefProduct, Ref: item.ProductID, Quantity: item.Quantity}
	case item.CartItemID != "":
		return order.LineRef{Kind: order.RefCartRow, Ref: item.CartItemID, Quantity: item.Quantity}
	default:
		return order.LineRef{Kind: order.RefAuto, Ref: item.Ref, Quantity: item.Quantity}
	}
}

func toOrderJSON(o *order.Order) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemJSON{
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			Price:        it.Price.InexactFloat64(),
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
		}
	}
	return orderJSON{
		ID:              o.ID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount.InexactFloat64(),
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
		Items:           items,
	}
}

// writeOrderError maps domain errors to structured wire errors. Each error
// carries a machine-readable kind and, when applicable, the offending
// reference so the caller can drop that line and resubmit.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr   *order.ValidationError
		qtyErr   *order.InvalidQuantityError
		nfErr    *order.NotFoundError
		stockErr *order.InsufficientStockError
		raceErr  *order.StockRaceError
	)

	switch {
	case errors.Is(err, order.ErrEmptyLines):
		writeError(w, http.StatusBadRequest, "validation", "", err.Error())
	case errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, "validation", "", valErr.Reason)
	case errors.As(err, &qtyErr):
		writeError(w, http.StatusBadRequest, "validation", qtyErr.Ref, qtyErr.Error())
	case errors.As(err, &nfErr):
		writeError(w, http.StatusNotFound, "not_found", nfErr.Ref, nfErr.Error())
	case errors.Is(err, order.ErrNotOwner):
		writeError(w, http.StatusNotFound, "not_found", "", err.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, "insufficient_stock", stockErr.ProductID, stockErr.Error())
	case errors.As(err, &raceErr):
		writeError(w, http.StatusConflict, "insufficient_stock_race", raceErr.ProductID, raceErr.Error())
	default:
		zctx.From(r.Context()).Error("order request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage", "", "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, kind, ref, message string) {
	writeJSON(w, code, errorJSON{
		Code:    code,
		Kind:    kind,
		Ref:     ref,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
