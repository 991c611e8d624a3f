package pricing

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var minPercentage = decimal.NewFromInt(-100)

// ValidationError describes why a rules or multiplier payload was rejected.
type ValidationError struct {
	Field  string
	Reason string
	kind   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidRules or ErrInvalidMultiplier.
func (e *ValidationError) Unwrap() error { return e.kind }

func invalidRules(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), kind: ErrInvalidRules}
}

func invalidMultiplier(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), kind: ErrInvalidMultiplier}
}

// ValidateCountryPricing rejects tables that could not be resolved: tiers
// without any usable warehouse price, negative prices and fractions of a cent.
func ValidateCountryPricing(productID, country string, rules CountryPricing) error {
	if strings.TrimSpace(productID) == "" {
		return invalidRules("productId", "must not be empty")
	}
	if strings.TrimSpace(country) == "" {
		return invalidRules("country", "must not be empty")
	}
	if len(rules.Sizes) == 0 {
		return invalidRules("rules.sizes", "at least one size tier is required")
	}

	for tier, p := range rules.Sizes {
		field := "rules.sizes." + tier
		if strings.TrimSpace(tier) == "" {
			return invalidRules("rules.sizes", "size tier name must not be empty")
		}
		if err := validatePrice(field+".localWarehouse", p.Local); err != nil {
			return err
		}
		if err := validatePrice(field+".centralWarehouse", p.Central); err != nil {
			return err
		}
		if rules.HasLocalWarehouse {
			if !p.Local.Valid && !p.Central.Valid {
				return invalidRules(field, "localWarehouse or centralWarehouse is required")
			}
			continue
		}
		if !p.Central.Valid {
			return invalidRules(field+".centralWarehouse", "required when hasLocalWarehouse is false")
		}
	}
	return nil
}

// validatePrice accepts absent prices and non-negative amounts in whole
// cents, which every store keeps exactly.
func validatePrice(field string, p decimal.NullDecimal) error {
	if !p.Valid {
		return nil
	}
	if p.Decimal.IsNegative() {
		return invalidRules(field, "must not be negative")
	}
	if !p.Decimal.Equal(p.Decimal.Round(2)) {
		return invalidRules(field, "must have at most two decimal places")
	}
	return nil
}

// ValidateMultiplier checks the rule type, rounding policy and value range.
func ValidateMultiplier(rule MultiplierRule) error {
	if strings.TrimSpace(rule.Country) == "" {
		return invalidMultiplier("country", "must not be empty")
	}
	switch rule.Type {
	case MultiplierPercentage:
		if rule.Value.LessThanOrEqual(minPercentage) {
			return invalidMultiplier("value", "percentage must be greater than -100")
		}
	case MultiplierFixed:
	default:
		return invalidMultiplier("multiplierType", "unknown type %q", rule.Type)
	}
	if _, ok := ParseRoundingPolicy(string(rule.Rounding)); !ok {
		return invalidMultiplier("roundingRule", "unknown rounding rule %q", rule.Rounding)
	}
	return nil
}

// IsValidation reports whether err was produced by payload validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
