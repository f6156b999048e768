// Package handler is the thin JSON transport adapter in front of the
// checkout engine. Routing, TLS, and authentication live in the upstream
// gateway; this package only decodes requests, extracts the already-verified
// caller identity, and maps domain errors to wire errors.
package handler

import (
	"context"
	"net/http"

	"github.com/Dripzoid/checkout-engine/internal/domain/order"
)

// OrderPlacer is the write side of the engine consumed by the handler.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

// Handler serves the order endpoints.
type Handler struct {
	placer  OrderPlacer
	queries order.Queries
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(placer OrderPlacer, queries order.Queries) *Handler {
	return &Handler{
		placer:  placer,
		queries: queries,
	}
}

// Register mounts the order routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
}
