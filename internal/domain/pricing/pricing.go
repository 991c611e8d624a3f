package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Warehouse identifies the shipping origin a price was taken from.
type Warehouse string

const (
	// WarehouseLocal is a warehouse inside the delivery country.
	WarehouseLocal Warehouse = "local"
	// WarehouseCentral is the shared central warehouse.
	WarehouseCentral Warehouse = "central"
)

// MultiplierType enumerates the supported customer-country adjustments.
type MultiplierType string

const (
	// MultiplierPercentage scales the base price by value percent.
	MultiplierPercentage MultiplierType = "percentage"
	// MultiplierFixed adds value to the base price.
	MultiplierFixed MultiplierType = "fixed"
)

// DefaultCurrency is used when the resolver is not configured otherwise.
const DefaultCurrency = "EUR"

var (
	// ErrRuleNotFound is returned when a product has no pricing entry at all.
	ErrRuleNotFound = errors.New("product pricing not found")
	// ErrCountryNotSupported is returned when a product is known but has no
	// pricing for the requested delivery country.
	ErrCountryNotSupported = errors.New("pricing not available for country")
	// ErrTierNotFound is returned when a supported country has no price cell
	// for the requested size tier and warehouse.
	ErrTierNotFound = errors.New("size tier not priced")
	// ErrInvalidRules is returned when a country pricing payload is malformed.
	ErrInvalidRules = errors.New("invalid pricing rules")
	// ErrInvalidMultiplier is returned when a multiplier rule is malformed.
	ErrInvalidMultiplier = errors.New("invalid multiplier")
)

// TierPrices holds the per-warehouse price cell of a single size tier.
type TierPrices struct {
	Local   decimal.NullDecimal
	Central decimal.NullDecimal
}

// CountryPricing is the price table of one product for one delivery country.
type CountryPricing struct {
	HasLocalWarehouse bool
	Sizes             map[string]TierPrices
}

// Clone returns a deep copy so stores never share the Sizes map with callers.
func (c CountryPricing) Clone() CountryPricing {
	out := CountryPricing{HasLocalWarehouse: c.HasLocalWarehouse}
	if c.Sizes != nil {
		out.Sizes = make(map[string]TierPrices, len(c.Sizes))
		for tier, p := range c.Sizes {
			out.Sizes[tier] = p
		}
	}
	return out
}

// ProductCountryPricing is a CountryPricing together with its key, used for
// listings.
type ProductCountryPricing struct {
	ProductID string
	Country   string
	CountryPricing
}

// MultiplierRule adjusts prices for customers located in Country.
type MultiplierRule struct {
	Country  string
	Type     MultiplierType
	Value    decimal.Decimal
	Rounding RoundingPolicy
}

// Apply returns the adjusted, not yet rounded, price.
func (m MultiplierRule) Apply(base decimal.Decimal) decimal.Decimal {
	switch m.Type {
	case MultiplierPercentage:
		factor := decimal.NewFromInt(1).Add(m.Value.Div(decimal.NewFromInt(100)))
		return base.Mul(factor)
	case MultiplierFixed:
		return base.Add(m.Value)
	default:
		return base
	}
}

// PriceResult is the outcome of a single price resolution.
type PriceResult struct {
	BasePrice       decimal.Decimal
	FinalPrice      decimal.Decimal
	Currency        string
	Warehouse       Warehouse
	SizeTier        string
	Multiplier      *MultiplierRule
	DeliveryCountry string
	CustomerCountry string
}

// RuleStore provides access to product price tables.
//
// CountryPricing returns ErrRuleNotFound for unknown products and
// ErrCountryNotSupported for known products without the country.
type RuleStore interface {
	CountryPricing(ctx context.Context, productID, country string) (CountryPricing, error)
	ReplaceCountryRules(ctx context.Context, productID, country string, rules CountryPricing) error
	ListRules(ctx context.Context) ([]ProductCountryPricing, error)
}

// MultiplierStore provides access to customer-country multiplier rules.
//
// Multiplier reports ok=false when no rule exists for the country.
type MultiplierStore interface {
	Multiplier(ctx context.Context, country string) (rule MultiplierRule, ok bool, err error)
	SetMultiplier(ctx context.Context, rule MultiplierRule) error
	ListMultipliers(ctx context.Context) ([]MultiplierRule, error)
}
