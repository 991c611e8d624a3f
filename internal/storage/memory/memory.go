// Package memory implements the pricing stores in process memory.
//
// Every write replaces the whole value stored under its key while holding
// the store lock, so readers observe either the old or the new value.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

var (
	_ pricing.RuleStore       = (*RuleStore)(nil)
	_ pricing.MultiplierStore = (*MultiplierStore)(nil)
)

// RuleStore keeps product price tables keyed by product and country.
type RuleStore struct {
	mu       sync.RWMutex
	products map[string]map[string]pricing.CountryPricing
}

// NewRuleStore returns an empty RuleStore.
func NewRuleStore() *RuleStore {
	return &RuleStore{products: make(map[string]map[string]pricing.CountryPricing)}
}

// CountryPricing implements pricing.RuleStore.
func (s *RuleStore) CountryPricing(_ context.Context, productID, country string) (pricing.CountryPricing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	countries, ok := s.products[productID]
	if !ok {
		return pricing.CountryPricing{}, pricing.ErrRuleNotFound
	}
	cp, ok := countries[country]
	if !ok {
		return pricing.CountryPricing{}, pricing.ErrCountryNotSupported
	}
	return cp.Clone(), nil
}

// ReplaceCountryRules implements pricing.RuleStore.
func (s *RuleStore) ReplaceCountryRules(_ context.Context, productID, country string, rules pricing.CountryPricing) error {
	stored := rules.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	countries, ok := s.products[productID]
	if !ok {
		countries = make(map[string]pricing.CountryPricing)
		s.products[productID] = countries
	}
	countries[country] = stored
	return nil
}

// ListRules implements pricing.RuleStore. Entries are ordered by product
// and country.
func (s *RuleStore) ListRules(_ context.Context) ([]pricing.ProductCountryPricing, error) {
	s.mu.RLock()
	out := make([]pricing.ProductCountryPricing, 0, len(s.products))
	for productID, countries := range s.products {
		for country, cp := range countries {
			out = append(out, pricing.ProductCountryPricing{
				ProductID:      productID,
				Country:        country,
				CountryPricing: cp.Clone(),
			})
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Country < out[j].Country
	})
	return out, nil
}

// MultiplierStore keeps one multiplier rule per customer country.
type MultiplierStore struct {
	mu    sync.RWMutex
	rules map[string]pricing.MultiplierRule
}

// NewMultiplierStore returns an empty MultiplierStore.
func NewMultiplierStore() *MultiplierStore {
	return &MultiplierStore{rules: make(map[string]pricing.MultiplierRule)}
}

// Multiplier implements pricing.MultiplierStore.
func (s *MultiplierStore) Multiplier(_ context.Context, country string) (pricing.MultiplierRule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[country]
	return rule, ok, nil
}

// SetMultiplier implements pricing.MultiplierStore.
func (s *MultiplierStore) SetMultiplier(_ context.Context, rule pricing.MultiplierRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[rule.Country] = rule
	return nil
}

// ListMultipliers implements pricing.MultiplierStore. Rules are ordered by
// country.
func (s *MultiplierStore) ListMultipliers(_ context.Context) ([]pricing.MultiplierRule, error) {
	s.mu.RLock()
	out := make([]pricing.MultiplierRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out, nil
}
