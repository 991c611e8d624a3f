package pricing

import (
	"context"
	"sync"
)

// Catalog maps product variants to size tiers.
type Catalog interface {
	SizeTier(ctx context.Context, productID, variantID string) (string, error)
}

// Availability reports whether the local warehouse of a delivery country can
// ship a variant.
type Availability interface {
	LocalAvailable(ctx context.Context, productID, variantID, country string) (bool, error)
}

// AlwaysAvailable treats every local warehouse as stocked.
type AlwaysAvailable struct{}

// LocalAvailable implements Availability.
func (AlwaysAvailable) LocalAvailable(context.Context, string, string, string) (bool, error) {
	return true, nil
}

// StaticCatalog resolves tiers from a variant table and falls back to a
// configured default tier. With an empty default, unknown variants are
// reported as ErrTierNotFound.
type StaticCatalog struct {
	defaultTier string

	mu       sync.RWMutex
	variants map[string]string
}

// NewStaticCatalog creates a catalog with the given fallback tier.
func NewStaticCatalog(defaultTier string, variants map[string]string) *StaticCatalog {
	c := &StaticCatalog{
		defaultTier: defaultTier,
		variants:    make(map[string]string, len(variants)),
	}
	for v, tier := range variants {
		c.variants[v] = tier
	}
	return c
}

// SetVariantTier assigns tier to variantID.
func (c *StaticCatalog) SetVariantTier(variantID, tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variants[variantID] = tier
}

// SizeTier implements Catalog.
func (c *StaticCatalog) SizeTier(_ context.Context, productID, variantID string) (string, error) {
	c.mu.RLock()
	tier, ok := c.variants[variantID]
	c.mu.RUnlock()
	if ok {
		return tier, nil
	}
	if c.defaultTier != "" {
		return c.defaultTier, nil
	}
	return "", &ResolveError{ProductID: productID, SizeTier: variantID, Err: ErrTierNotFound}
}
