// Package handler implements the HTTP API of the pricing service.
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/geo-pricing/internal/domain/cart"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// Handler serves the pricing API, the admin rule endpoints and the
// storefront webhooks.
type Handler struct {
	pricing *pricing.Service
	carts   *cart.Service
}

// NewHandler constructs a Handler.
func NewHandler(pricingSvc *pricing.Service, carts *cart.Service) *Handler {
	return &Handler{
		pricing: pricingSvc,
		carts:   carts,
	}
}

// Register adds all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/calculate-price", h.CalculatePrice)
	mux.HandleFunc("POST /api/pricing-rules", h.SetPricingRules)
	mux.HandleFunc("GET /api/pricing-rules", h.ListPricingRules)
	mux.HandleFunc("POST /api/ip-multipliers", h.SetMultiplier)
	mux.HandleFunc("GET /api/ip-multipliers", h.ListMultipliers)
	mux.HandleFunc("POST /webhooks/cart/update", h.CartUpdate)
	mux.HandleFunc("POST /webhooks/products/update", h.ProductUpdate)
	mux.HandleFunc("POST /webhooks/orders/create", h.OrderCreate)
}

// decoder is implemented by request wire types.
type decoder interface {
	Decode(d *jx.Decoder) error
}

// readRequest decodes the body of r into v, writing a 400 response and
// returning false on failure.
func readRequest(w http.ResponseWriter, r *http.Request, v decoder) bool {
	return readRequestFunc(w, r, v.Decode)
}

func readRequestFunc(w http.ResponseWriter, r *http.Request, decode func(d *jx.Decoder) error) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return false
	}
	if err := decode(jx.DecodeBytes(body)); err != nil {
		zctx.From(r.Context()).Debug("Malformed request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "malformed JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeError(e, message) })
}

// writePricingError maps domain errors to HTTP responses. Unexpected errors
// are logged and reported without detail.
func writePricingError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapPricingError(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, message)
}

func mapPricingError(err error) (int, string) {
	var ve *pricing.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}

	var re *pricing.ResolveError
	if errors.As(err, &re) {
		return http.StatusUnprocessableEntity, re.Error()
	}

	switch {
	case errors.Is(err, pricing.ErrRuleNotFound),
		errors.Is(err, pricing.ErrCountryNotSupported),
		errors.Is(err, pricing.ErrTierNotFound):
		return http.StatusUnprocessableEntity, err.Error()
	}

	return http.StatusInternalServerError, "internal server error"
}
