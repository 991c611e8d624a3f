package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
	"github.com/xenking/geo-pricing/pkg/httpmiddleware"
)

// CalculatePrice prices one item for the requesting customer. An empty
// customerIP falls back to the address of the client itself.
func (h *Handler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	var req calculatePriceReq
	if !readRequest(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := strings.TrimSpace(req.CustomerIP)
	if ip == "" {
		ip = httpmiddleware.ClientIP(r)
	}

	q, err := h.pricing.Quote(r.Context(), pricing.QuoteRequest{
		ProductID:       req.ProductID,
		VariantID:       req.VariantID,
		SizeTier:        req.SizeTier,
		DeliveryCountry: req.DeliveryCountry,
		CustomerIP:      ip,
		LocalAvailable:  req.LocalAvailable,
	})
	if err != nil {
		writePricingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// SetPricingRules replaces the price table of one product for one country.
func (h *Handler) SetPricingRules(w http.ResponseWriter, r *http.Request) {
	var req pricingRulesReq
	if !readRequest(w, r, &req) {
		return
	}
	if !req.hasRules {
		writeError(w, http.StatusBadRequest, "rules is required")
		return
	}

	if err := h.pricing.ReplaceCountryRules(r.Context(), req.ProductID, req.Country, req.Rules); err != nil {
		writePricingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMessage(e, "Pricing rules updated successfully")
	})
}

// ListPricingRules returns every stored price table.
func (h *Handler) ListPricingRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.pricing.ListRules(r.Context())
	if err != nil {
		writePricingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRuleList(e, rules) })
}

// SetMultiplier stores the multiplier rule for one customer country.
func (h *Handler) SetMultiplier(w http.ResponseWriter, r *http.Request) {
	var req multiplierReq
	if !readRequest(w, r, &req) {
		return
	}
	if !req.Value.Valid {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	err := h.pricing.SetMultiplier(r.Context(), pricing.MultiplierRule{
		Country:  req.Country,
		Type:     pricing.MultiplierType(req.MultiplierType),
		Value:    req.Value.Decimal,
		Rounding: pricing.RoundingPolicy(req.RoundingRule),
	})
	if err != nil {
		writePricingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMessage(e, "IP multiplier set successfully")
	})
}

// ListMultipliers returns every stored multiplier rule.
func (h *Handler) ListMultipliers(w http.ResponseWriter, r *http.Request) {
	rules, err := h.pricing.ListMultipliers(r.Context())
	if err != nil {
		writePricingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMultiplierList(e, rules) })
}
