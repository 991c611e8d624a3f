// Package seed loads price tables and multipliers from YAML.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

//go:embed default.yaml
var defaultSeed []byte

// File is the YAML document layout.
type File struct {
	Rules       []Rule       `yaml:"rules"`
	Multipliers []Multiplier `yaml:"multipliers"`
	// Variants maps variant IDs to size tiers.
	Variants map[string]string `yaml:"variants"`
}

// Rule is the price table of one product for one delivery country.
type Rule struct {
	ProductID         string          `yaml:"product_id"`
	Country           string          `yaml:"country"`
	HasLocalWarehouse bool            `yaml:"has_local_warehouse"`
	Sizes             map[string]Cell `yaml:"sizes"`
}

// Cell holds decimal strings; an absent price means the warehouse does not
// stock the tier.
type Cell struct {
	Local   string `yaml:"local"`
	Central string `yaml:"central"`
}

// Multiplier is a customer-country adjustment.
type Multiplier struct {
	Country  string `yaml:"country"`
	Type     string `yaml:"type"`
	Value    string `yaml:"value"`
	Rounding string `yaml:"rounding"`
}

// Target receives seeded data. *pricing.Service implements it.
type Target interface {
	ReplaceCountryRules(ctx context.Context, productID, country string, rules pricing.CountryPricing) error
	SetMultiplier(ctx context.Context, rule pricing.MultiplierRule) error
}

// Default returns the built-in sample data.
func Default() (*File, error) {
	return Parse(bytes.NewReader(defaultSeed))
}

// Load reads a seed file from path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed")
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, errors.Wrap(err, "decode seed")
	}
	return &f, nil
}

// Apply writes every rule and multiplier into t. It stops at the first
// invalid entry.
func (f *File) Apply(ctx context.Context, t Target) error {
	for i, r := range f.Rules {
		cp, err := r.countryPricing()
		if err != nil {
			return errors.Wrapf(err, "rule %d (%s/%s)", i, r.ProductID, r.Country)
		}
		if err := t.ReplaceCountryRules(ctx, r.ProductID, r.Country, cp); err != nil {
			return errors.Wrapf(err, "rule %d (%s/%s)", i, r.ProductID, r.Country)
		}
	}
	for i, m := range f.Multipliers {
		value, err := decimal.NewFromString(m.Value)
		if err != nil {
			return errors.Wrapf(err, "multiplier %d (%s): value", i, m.Country)
		}
		rule := pricing.MultiplierRule{
			Country:  m.Country,
			Type:     pricing.MultiplierType(m.Type),
			Value:    value,
			Rounding: pricing.RoundingPolicy(m.Rounding),
		}
		if err := t.SetMultiplier(ctx, rule); err != nil {
			return errors.Wrapf(err, "multiplier %d (%s)", i, m.Country)
		}
	}
	return nil
}

func (r Rule) countryPricing() (pricing.CountryPricing, error) {
	cp := pricing.CountryPricing{
		HasLocalWarehouse: r.HasLocalWarehouse,
		Sizes:             make(map[string]pricing.TierPrices, len(r.Sizes)),
	}
	for tier, c := range r.Sizes {
		local, err := parsePrice(c.Local)
		if err != nil {
			return cp, errors.Wrapf(err, "tier %q local", tier)
		}
		central, err := parsePrice(c.Central)
		if err != nil {
			return cp, errors.Wrapf(err, "tier %q central", tier)
		}
		cp.Sizes[tier] = pricing.TierPrices{Local: local, Central: central}
	}
	return cp, nil
}

func parsePrice(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
