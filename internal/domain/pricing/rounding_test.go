package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundingPolicy_Round(t *testing.T) {
	tests := []struct {
		name   string
		policy RoundingPolicy
		in     string
		want   string
	}{
		{"nearest_90 whole", RoundNearest90, "120", "120.90"},
		{"nearest_90 keeps integer part", RoundNearest90, "120.99", "120.90"},
		{"nearest_95", RoundNearest95, "64.08", "64.95"},
		{"nearest_99", RoundNearest99, "59.90", "59.99"},
		{"nearest_99 small", RoundNearest99, "0.42", "0.99"},
		{"standard half up", RoundStandard, "10.005", "10.01"},
		{"standard down", RoundStandard, "10.004", "10.00"},
		{"standard exact", RoundStandard, "64.08", "64.08"},
		{"unknown behaves as standard", RoundingPolicy("bogus"), "1.235", "1.24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Round(d(tt.in))
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParseRoundingPolicy(t *testing.T) {
	for _, s := range []string{"nearest_90", "nearest_95", "nearest_99", "standard"} {
		p, ok := ParseRoundingPolicy(s)
		assert.True(t, ok, s)
		assert.Equal(t, RoundingPolicy(s), p)
	}

	p, ok := ParseRoundingPolicy("")
	assert.True(t, ok)
	assert.Equal(t, RoundStandard, p)

	_, ok = ParseRoundingPolicy("nearest_50")
	assert.False(t, ok)
}

func TestMultiplierRule_Apply(t *testing.T) {
	base := d("100")

	pct := MultiplierRule{Type: MultiplierPercentage, Value: d("20")}
	assert.True(t, pct.Apply(base).Equal(d("120")))

	discount := MultiplierRule{Type: MultiplierPercentage, Value: d("-15")}
	assert.True(t, discount.Apply(base).Equal(d("85")))

	fixed := MultiplierRule{Type: MultiplierFixed, Value: d("5")}
	assert.True(t, fixed.Apply(d("54.90")).Equal(d("59.90")))

	unknown := MultiplierRule{Type: "ratio", Value: d("2")}
	assert.True(t, unknown.Apply(base).Equal(base))
}
