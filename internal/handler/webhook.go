package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/geo-pricing/internal/domain/cart"
)

// CartUpdate reprices every line item of an inbound cart. Per-item failures
// are reported inside the cart and never fail the request.
func (h *Handler) CartUpdate(w http.ResponseWriter, r *http.Request) {
	var c cart.Cart
	if !readRequestFunc(w, r, func(d *jx.Decoder) error { return decodeCart(d, &c) }) {
		return
	}

	res := h.carts.Reprice(r.Context(), c)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartResult(e, res) })
}

// ProductUpdate acknowledges a product webhook.
func (h *Handler) ProductUpdate(w http.ResponseWriter, r *http.Request) {
	h.ack(w, r, "Product updated")
}

// OrderCreate acknowledges an order webhook.
func (h *Handler) OrderCreate(w http.ResponseWriter, r *http.Request) {
	h.ack(w, r, "Order created with dynamic pricing")
}

func (h *Handler) ack(w http.ResponseWriter, r *http.Request, msg string) {
	var req webhookReq
	if !readRequest(w, r, &req) {
		return
	}
	zctx.From(r.Context()).Info(msg, zap.String("id", req.ID))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMessage(e, "") })
}
