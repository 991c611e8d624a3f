package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Request holds the inputs of a single price resolution. SizeTier comes from
// the catalog and LocalAvailable from the stock signal; the resolver derives
// neither.
type Request struct {
	ProductID       string
	VariantID       string
	SizeTier        string
	DeliveryCountry string
	CustomerCountry string
	LocalAvailable  bool
}

// ResolveError wraps one of ErrRuleNotFound, ErrCountryNotSupported or
// ErrTierNotFound with the key that failed.
type ResolveError struct {
	ProductID string
	Country   string
	SizeTier  string
	Err       error
}

func (e *ResolveError) Error() string {
	switch {
	case errors.Is(e.Err, ErrRuleNotFound):
		return fmt.Sprintf("%s: %s", e.Err, e.ProductID)
	case errors.Is(e.Err, ErrCountryNotSupported):
		return fmt.Sprintf("%s: %s", e.Err, e.Country)
	default:
		return fmt.Sprintf("%s: %s/%s tier %q", e.Err, e.ProductID, e.Country, e.SizeTier)
	}
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Resolver computes final prices from the rule and multiplier stores.
// It keeps no state of its own.
type Resolver struct {
	rules       RuleStore
	multipliers MultiplierStore
	currency    string
}

// NewResolver creates a Resolver reading from the given stores. An empty
// currency selects DefaultCurrency.
func NewResolver(rules RuleStore, multipliers MultiplierStore, currency string) *Resolver {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Resolver{
		rules:       rules,
		multipliers: multipliers,
		currency:    currency,
	}
}

// Resolve looks up the base price for the delivery country, selects the
// warehouse, applies the customer-country multiplier and rounds.
func (r *Resolver) Resolve(ctx context.Context, req Request) (PriceResult, error) {
	cp, err := r.rules.CountryPricing(ctx, req.ProductID, req.DeliveryCountry)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) || errors.Is(err, ErrCountryNotSupported) {
			return PriceResult{}, &ResolveError{
				ProductID: req.ProductID,
				Country:   req.DeliveryCountry,
				SizeTier:  req.SizeTier,
				Err:       rootCause(err),
			}
		}
		return PriceResult{}, errors.Wrap(err, "get country pricing")
	}

	tierMissing := &ResolveError{
		ProductID: req.ProductID,
		Country:   req.DeliveryCountry,
		SizeTier:  req.SizeTier,
		Err:       ErrTierNotFound,
	}

	prices, ok := cp.Sizes[req.SizeTier]
	if !ok {
		return PriceResult{}, tierMissing
	}

	warehouse := WarehouseCentral
	base := prices.Central
	if cp.HasLocalWarehouse && req.LocalAvailable && prices.Local.Valid {
		warehouse = WarehouseLocal
		base = prices.Local
	}
	if !base.Valid {
		return PriceResult{}, tierMissing
	}

	result := PriceResult{
		BasePrice:       base.Decimal,
		FinalPrice:      base.Decimal,
		Currency:        r.currency,
		Warehouse:       warehouse,
		SizeTier:        req.SizeTier,
		DeliveryCountry: req.DeliveryCountry,
		CustomerCountry: req.CustomerCountry,
	}

	rule, found, err := r.multipliers.Multiplier(ctx, req.CustomerCountry)
	if err != nil {
		return PriceResult{}, errors.Wrap(err, "get multiplier")
	}
	if found {
		// A large negative fixed adjustment never yields a negative price.
		result.FinalPrice = decimal.Max(rule.Rounding.Round(rule.Apply(base.Decimal)), decimal.Zero)
		result.Multiplier = &rule
	}

	return result, nil
}

// rootCause returns the resolution sentinel err wraps, so a store may add
// its own context without leaking it into ResolveError messages.
func rootCause(err error) error {
	for _, sentinel := range []error{ErrRuleNotFound, ErrCountryNotSupported} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}
