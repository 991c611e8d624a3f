package pricing

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestValidateCountryPricing(t *testing.T) {
	tests := []struct {
		name    string
		product string
		country string
		rules   CountryPricing
		field   string
	}{
		{
			name:    "local table with one price per tier",
			product: "p1", country: "ES",
			rules: CountryPricing{HasLocalWarehouse: true, Sizes: map[string]TierPrices{
				"standard": {Local: price("10")},
				"premium":  {Central: price("20")},
			}},
		},
		{
			name:    "central only table",
			product: "p1", country: "FR",
			rules: CountryPricing{Sizes: map[string]TierPrices{"standard": {Central: price("0")}}},
		},
		{
			name:    "empty product",
			product: " ", country: "ES",
			rules: CountryPricing{Sizes: map[string]TierPrices{"standard": {Central: price("1")}}},
			field: "productId",
		},
		{
			name:    "empty country",
			product: "p1",
			rules:   CountryPricing{Sizes: map[string]TierPrices{"standard": {Central: price("1")}}},
			field:   "country",
		},
		{
			name:    "no tiers",
			product: "p1", country: "ES",
			field: "rules.sizes",
		},
		{
			name:    "blank tier name",
			product: "p1", country: "ES",
			rules: CountryPricing{Sizes: map[string]TierPrices{"": {Central: price("1")}}},
			field: "rules.sizes",
		},
		{
			name:    "local tier without prices",
			product: "p1", country: "ES",
			rules: CountryPricing{HasLocalWarehouse: true, Sizes: map[string]TierPrices{"standard": {}}},
			field: "rules.sizes.standard",
		},
		{
			name:    "central table with local price only",
			product: "p1", country: "DE",
			rules: CountryPricing{Sizes: map[string]TierPrices{"standard": {Local: price("5")}}},
			field: "rules.sizes.standard.centralWarehouse",
		},
		{
			name:    "negative local price",
			product: "p1", country: "ES",
			rules: CountryPricing{HasLocalWarehouse: true, Sizes: map[string]TierPrices{
				"standard": {Local: price("-1"), Central: price("5")},
			}},
			field: "rules.sizes.standard.localWarehouse",
		},
		{
			name:    "sub-cent central price",
			product: "p1", country: "ES",
			rules: CountryPricing{Sizes: map[string]TierPrices{"standard": {Central: price("49.995")}}},
			field: "rules.sizes.standard.centralWarehouse",
		},
		{
			name:    "trailing zeros are whole cents",
			product: "p1", country: "ES",
			rules: CountryPricing{Sizes: map[string]TierPrices{"standard": {Central: price("49.900")}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCountryPricing(tt.product, tt.country, tt.rules)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrInvalidRules)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidateMultiplier(t *testing.T) {
	valid := MultiplierRule{Country: "US", Type: MultiplierPercentage, Value: d("20"), Rounding: RoundNearest99}
	require.NoError(t, ValidateMultiplier(valid))

	noRounding := valid
	noRounding.Rounding = ""
	require.NoError(t, ValidateMultiplier(noRounding))

	fixedNegative := MultiplierRule{Country: "UK", Type: MultiplierFixed, Value: d("-500")}
	require.NoError(t, ValidateMultiplier(fixedNegative))

	tests := []struct {
		name  string
		mut   func(*MultiplierRule)
		field string
	}{
		{"empty country", func(r *MultiplierRule) { r.Country = "" }, "country"},
		{"unknown type", func(r *MultiplierRule) { r.Type = "ratio" }, "multiplierType"},
		{"percentage at -100", func(r *MultiplierRule) { r.Value = d("-100") }, "value"},
		{"unknown rounding", func(r *MultiplierRule) { r.Rounding = "nearest_50" }, "roundingRule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mut(&rule)
			err := ValidateMultiplier(rule)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrInvalidMultiplier)
		})
	}
}

func TestIsValidation(t *testing.T) {
	assert.False(t, IsValidation(nil))
	assert.False(t, IsValidation(ErrRuleNotFound))
	assert.True(t, IsValidation(errors.Wrap(invalidRules("x", "bad"), "wrapped")))
}
