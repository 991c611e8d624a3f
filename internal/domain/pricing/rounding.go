package pricing

import (
	"github.com/shopspring/decimal"
)

// RoundingPolicy normalizes the ending of an adjusted price.
type RoundingPolicy string

const (
	// RoundNearest90 keeps the integer part and ends the price in .90.
	RoundNearest90 RoundingPolicy = "nearest_90"
	// RoundNearest95 keeps the integer part and ends the price in .95.
	RoundNearest95 RoundingPolicy = "nearest_95"
	// RoundNearest99 keeps the integer part and ends the price in .99.
	RoundNearest99 RoundingPolicy = "nearest_99"
	// RoundStandard rounds half-up to two decimal places.
	RoundStandard RoundingPolicy = "standard"
)

var endings = map[RoundingPolicy]decimal.Decimal{
	RoundNearest90: decimal.RequireFromString("0.90"),
	RoundNearest95: decimal.RequireFromString("0.95"),
	RoundNearest99: decimal.RequireFromString("0.99"),
}

// ParseRoundingPolicy maps a wire value to a policy. The empty string selects
// RoundStandard.
func ParseRoundingPolicy(s string) (RoundingPolicy, bool) {
	switch p := RoundingPolicy(s); p {
	case RoundNearest90, RoundNearest95, RoundNearest99, RoundStandard:
		return p, true
	case "":
		return RoundStandard, true
	default:
		return "", false
	}
}

// Round applies the policy to price. Ending policies use the integer part of
// price itself, so callers must pass the adjusted price.
func (p RoundingPolicy) Round(price decimal.Decimal) decimal.Decimal {
	if ending, ok := endings[p]; ok {
		return price.Floor().Add(ending)
	}
	// decimal rounds half away from zero, which is half-up for prices.
	return price.Round(2)
}
