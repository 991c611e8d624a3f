package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/geo-pricing/internal/domain/location"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
	"github.com/xenking/geo-pricing/internal/storage/memory"
)

func newService(t *testing.T) *pricing.Service {
	t.Helper()
	svc, err := pricing.NewService(
		memory.NewRuleStore(),
		memory.NewMultiplierStore(),
		nil,
		pricing.NewStaticCatalog("standard", nil),
		nil,
	)
	require.NoError(t, err)
	return svc
}

func TestDefault_Apply(t *testing.T) {
	f, err := Default()
	require.NoError(t, err)
	require.Len(t, f.Rules, 3)
	require.Len(t, f.Multipliers, 2)

	svc := newService(t)
	ctx := context.Background()
	require.NoError(t, f.Apply(ctx, svc))

	rules, err := svc.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "DE", rules[0].Country)

	// US customer, Spain delivery: 49.90 * 1.2 = 59.88 -> 59.90.
	res, err := svc.Price(ctx, pricing.ItemRequest{
		ProductID:       "product_123",
		DeliveryCountry: "ES",
		CustomerCountry: "US",
	})
	require.NoError(t, err)
	assert.Equal(t, "59.90", res.FinalPrice.StringFixed(2))
	assert.Equal(t, pricing.WarehouseLocal, res.Warehouse)

	// France has no local warehouse.
	res, err = svc.Price(ctx, pricing.ItemRequest{
		ProductID:       "product_123",
		DeliveryCountry: "FR",
		CustomerCountry: location.UnknownCountry,
	})
	require.NoError(t, err)
	assert.Equal(t, "59.90", res.FinalPrice.StringFixed(2))
	assert.Equal(t, pricing.WarehouseCentral, res.Warehouse)
	assert.Nil(t, res.Multiplier)
}

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(`
rules:
  - product_id: p1
    country: it
    sizes:
      small: {central: "10.5"}
variants:
  v1: small
`))
	require.NoError(t, err)
	require.Len(t, f.Rules, 1)
	assert.Equal(t, "small", f.Variants["v1"])

	cp, err := f.Rules[0].countryPricing()
	require.NoError(t, err)
	assert.False(t, cp.Sizes["small"].Local.Valid)
	assert.True(t, cp.Sizes["small"].Central.Decimal.Equal(decimal.RequireFromString("10.5")))
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Rules)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("rulez: []\n"))
	require.Error(t, err)
}

func TestApply_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "bad price",
			doc: `
rules:
  - product_id: p1
    country: ES
    sizes:
      standard: {central: "abc"}`,
		},
		{
			name: "negative price",
			doc: `
rules:
  - product_id: p1
    country: ES
    sizes:
      standard: {central: "-1"}`,
		},
		{
			name: "bad rounding",
			doc: `
multipliers:
  - country: US
    type: percentage
    value: "10"
    rounding: nearest_50`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(tt.doc))
			require.NoError(t, err)
			require.Error(t, f.Apply(context.Background(), newService(t)))
		})
	}
}
