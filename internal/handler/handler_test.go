package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/geo-pricing/internal/domain/cart"
	"github.com/xenking/geo-pricing/internal/domain/location"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
	"github.com/xenking/geo-pricing/internal/storage/memory"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	provider, err := location.NewStaticProvider(location.DemoLocations)
	require.NoError(t, err)

	svc, err := pricing.NewService(
		memory.NewRuleStore(),
		memory.NewMultiplierStore(),
		location.NewResolver(provider, location.NewMemoryCache(0, 0), 0),
		pricing.NewStaticCatalog("standard", nil),
		nil,
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.ReplaceCountryRules(ctx, "product_123", "ES", pricing.CountryPricing{
		HasLocalWarehouse: true,
		Sizes: map[string]pricing.TierPrices{
			"standard": {
				Local:   decimal.NewNullDecimal(decimal.RequireFromString("49.90")),
				Central: decimal.NewNullDecimal(decimal.RequireFromString("54.90")),
			},
		},
	}))
	require.NoError(t, svc.SetMultiplier(ctx, pricing.MultiplierRule{
		Country:  "US",
		Type:     pricing.MultiplierPercentage,
		Value:    decimal.NewFromInt(20),
		Rounding: pricing.RoundNearest90,
	}))

	mux := http.NewServeMux()
	NewHandler(svc, cart.NewService(svc, nil, 2)).Register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

// field extracts a top-level or dotted nested field as raw JSON.
func field(t *testing.T, body []byte, path string) string {
	t.Helper()
	parts := strings.Split(path, ".")
	raw := jx.Raw(body)
	for _, p := range parts {
		var next jx.Raw
		err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != p {
				return d.Skip()
			}
			v, err := d.Raw()
			next = append(jx.Raw(nil), v...)
			return err
		})
		require.NoError(t, err)
		require.NotNil(t, next, "field %q missing in %s", path, body)
		raw = next
	}
	return string(raw)
}

func TestCalculatePrice(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/calculate-price",
		`{"productId":"product_123","variantId":"v1","deliveryCountry":"ES","customerIP":"1.1.1.1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.Bytes()
	assert.Equal(t, "true", field(t, body, "success"))
	assert.Equal(t, "49.90", field(t, body, "price.basePrice"))
	assert.Equal(t, "59.90", field(t, body, "price.finalPrice"))
	assert.Equal(t, `"US"`, field(t, body, "price.customerCountry"))
	assert.Equal(t, `"EUR"`, field(t, body, "currency"))
	assert.Equal(t, `"local"`, field(t, body, "warehouse"))
	assert.Equal(t, `"nearest_90"`, field(t, body, "appliedMultiplier.roundingRule"))
}

func TestCalculatePrice_UnknownIPNoMultiplier(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/calculate-price",
		`{"productId":"product_123","deliveryCountry":"es","customerIP":"9.9.9.9","localAvailable":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.Bytes()
	assert.Equal(t, "54.90", field(t, body, "price.finalPrice"))
	assert.Equal(t, `"central"`, field(t, body, "warehouse"))
	assert.Equal(t, "null", field(t, body, "appliedMultiplier"))
	assert.Equal(t, `"UNKNOWN"`, field(t, body, "price.customerCountry"))
}

func TestCalculatePrice_Errors(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{
			name:   "malformed",
			body:   `{"productId":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing product",
			body:   `{"deliveryCountry":"ES"}`,
			status: http.StatusBadRequest,
			errMsg: "productId is required",
		},
		{
			name:   "unknown product",
			body:   `{"productId":"nope","deliveryCountry":"ES"}`,
			status: http.StatusUnprocessableEntity,
			errMsg: "product pricing not found: nope",
		},
		{
			name:   "unsupported country",
			body:   `{"productId":"product_123","deliveryCountry":"IT"}`,
			status: http.StatusUnprocessableEntity,
			errMsg: "pricing not available for country: IT",
		},
		{
			name:   "missing tier",
			body:   `{"productId":"product_123","deliveryCountry":"ES","sizeTier":"xl"}`,
			status: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, "/api/calculate-price", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, "false", field(t, w.Body.Bytes(), "success"))
			if tt.errMsg != "" {
				assert.Equal(t, `"`+tt.errMsg+`"`, field(t, w.Body.Bytes(), "error"))
			}
		})
	}
}

func TestPricingRules_SetAndList(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/pricing-rules", `{
		"country": "FR",
		"productId": "product_123",
		"rules": {
			"hasLocalWarehouse": false,
			"sizes": {"standard": {"centralWarehouse": 59.90}}
		}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `"Pricing rules updated successfully"`, field(t, w.Body.Bytes(), "message"))

	w = do(t, mux, http.MethodGet, "/api/pricing-rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"country":"FR"`)
	assert.Contains(t, w.Body.String(), `"centralWarehouse":59.90`)

	w = do(t, mux, http.MethodPost, "/api/calculate-price",
		`{"productId":"product_123","deliveryCountry":"FR","customerIP":"3.3.3.3"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "59.90", field(t, w.Body.Bytes(), "price.finalPrice"))
}

func TestPricingRules_Invalid(t *testing.T) {
	mux := newTestMux(t)

	for name, body := range map[string]string{
		"missing rules":   `{"country":"FR","productId":"p"}`,
		"no central":      `{"country":"FR","productId":"p","rules":{"hasLocalWarehouse":false,"sizes":{"standard":{"localWarehouse":1}}}}`,
		"negative price":  `{"country":"FR","productId":"p","rules":{"sizes":{"standard":{"centralWarehouse":-1}}}}`,
		"no sizes":        `{"country":"FR","productId":"p","rules":{"hasLocalWarehouse":true}}`,
		"price not a num": `{"country":"FR","productId":"p","rules":{"sizes":{"standard":{"centralWarehouse":"x"}}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, "/api/pricing-rules", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestMultipliers_SetAndList(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/ip-multipliers",
		`{"country":"uk","multiplierType":"fixed","value":5,"roundingRule":"nearest_99"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, mux, http.MethodGet, "/api/ip-multipliers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"country":"UK","type":"fixed","value":5,"roundingRule":"nearest_99"}`)

	// 54.90 + 5 = 59.90 -> 59.99.
	w = do(t, mux, http.MethodPost, "/api/calculate-price",
		`{"productId":"product_123","deliveryCountry":"ES","customerIP":"2.2.2.2","localAvailable":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "59.99", field(t, w.Body.Bytes(), "price.finalPrice"))
}

func TestMultipliers_Invalid(t *testing.T) {
	mux := newTestMux(t)

	for name, body := range map[string]string{
		"unknown type":     `{"country":"US","multiplierType":"ratio","value":5}`,
		"unknown rounding": `{"country":"US","multiplierType":"fixed","value":5,"roundingRule":"nearest_50"}`,
		"missing value":    `{"country":"US","multiplierType":"fixed"}`,
		"missing country":  `{"multiplierType":"fixed","value":1}`,
		"below -100%":      `{"country":"US","multiplierType":"percentage","value":-100}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, "/api/ip-multipliers", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCartUpdate(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/webhooks/cart/update", `{
		"token": "cart-1",
		"customer_ip": "1.1.1.1",
		"shipping_address": {"country": "Spain", "city": "Madrid"},
		"line_items": [
			{"product_id": "product_123", "quantity": 2, "title": "Poster", "price": "10.00"},
			{"product_id": 42, "price": 7.5, "properties": {"gift":true}}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.String()
	assert.Equal(t, `"cart-1"`, field(t, w.Body.Bytes(), "token"))
	assert.Equal(t, "false", field(t, w.Body.Bytes(), "pricing_applied"))
	assert.Contains(t, body, `{"product_id":"product_123","quantity":2,"title":"Poster","price":59.90,"original_price":49.90,"applied_discount":0.00,"warehouse":"local"}`)
	assert.Contains(t, body, `{"product_id":42,"properties":{"gift":true},"price":7.50,"pricing_error":"product pricing not found: 42"}`)
	assert.NotEmpty(t, field(t, w.Body.Bytes(), "timestamp"))
}

func TestCartUpdate_Malformed(t *testing.T) {
	mux := newTestMux(t)
	w := do(t, mux, http.MethodPost, "/webhooks/cart/update", `{"line_items": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcks(t *testing.T) {
	mux := newTestMux(t)

	for _, path := range []string{"/webhooks/products/update", "/webhooks/orders/create"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, path, `{"id": 123456, "title": "x"}`)
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"success":true}`, w.Body.String())
		})
	}
}

func TestMapPricingError(t *testing.T) {
	status, msg := mapPricingError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", msg)

	status, _ = mapPricingError(&pricing.ResolveError{Err: pricing.ErrTierNotFound})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}
