package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

var _ pricing.RuleStore = (*RuleStore)(nil)

// RuleStore implements pricing.RuleStore. A country table is written in one
// transaction, so readers never see a partially replaced set of tiers.
type RuleStore struct {
	pool *pgxpool.Pool
}

// NewRuleStore returns a RuleStore that uses the given pool.
func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

const selectCountryPricing = `
SELECT cp.has_local_warehouse, tp.size_tier, tp.local_price, tp.central_price
FROM country_pricing cp
LEFT JOIN tier_prices tp ON tp.product_id = cp.product_id AND tp.country = cp.country
WHERE cp.product_id = $1 AND cp.country = $2`

// CountryPricing implements pricing.RuleStore.
func (s *RuleStore) CountryPricing(ctx context.Context, productID, country string) (pricing.CountryPricing, error) {
	var (
		out   pricing.CountryPricing
		found bool
	)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectCountryPricing, productID, country)
		if err != nil {
			return errors.Wrap(err, "query country pricing")
		}
		out, found, err = collectCountryPricing(rows)
		if err != nil {
			return err
		}
		if found {
			return nil
		}

		var productKnown bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM country_pricing WHERE product_id = $1)`, productID,
		).Scan(&productKnown); err != nil {
			return errors.Wrap(err, "check product")
		}
		if !productKnown {
			return pricing.ErrRuleNotFound
		}
		return pricing.ErrCountryNotSupported
	})
	if err != nil {
		return pricing.CountryPricing{}, err
	}
	return out, nil
}

func collectCountryPricing(rows pgx.Rows) (pricing.CountryPricing, bool, error) {
	defer rows.Close()

	out := pricing.CountryPricing{Sizes: make(map[string]pricing.TierPrices)}
	found := false
	for rows.Next() {
		var (
			hasLocal bool
			tier     *string
			local    decimal.NullDecimal
			central  decimal.NullDecimal
		)
		if err := rows.Scan(&hasLocal, &tier, &local, &central); err != nil {
			return out, false, errors.Wrap(err, "scan country pricing")
		}
		found = true
		out.HasLocalWarehouse = hasLocal
		if tier != nil {
			out.Sizes[*tier] = pricing.TierPrices{Local: local, Central: central}
		}
	}
	if err := rows.Err(); err != nil {
		return out, false, errors.Wrap(err, "iterate country pricing")
	}
	return out, found, nil
}

// ReplaceCountryRules implements pricing.RuleStore.
func (s *RuleStore) ReplaceCountryRules(ctx context.Context, productID, country string, rules pricing.CountryPricing) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO country_pricing (product_id, country, has_local_warehouse, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (product_id, country)
DO UPDATE SET has_local_warehouse = EXCLUDED.has_local_warehouse, updated_at = now()`,
			productID, country, rules.HasLocalWarehouse,
		); err != nil {
			return errors.Wrap(err, "upsert country pricing")
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM tier_prices WHERE product_id = $1 AND country = $2`, productID, country,
		); err != nil {
			return errors.Wrap(err, "clear tier prices")
		}

		batch := &pgx.Batch{}
		for tier, p := range rules.Sizes {
			batch.Queue(`
INSERT INTO tier_prices (product_id, country, size_tier, local_price, central_price)
VALUES ($1, $2, $3, $4, $5)`,
				productID, country, tier, p.Local, p.Central,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert tier prices")
		}
		return nil
	})
}

// ListRules implements pricing.RuleStore.
func (s *RuleStore) ListRules(ctx context.Context) ([]pricing.ProductCountryPricing, error) {
	rows, err := s.pool.Query(ctx, `
SELECT cp.product_id, cp.country, cp.has_local_warehouse, tp.size_tier, tp.local_price, tp.central_price
FROM country_pricing cp
LEFT JOIN tier_prices tp ON tp.product_id = cp.product_id AND tp.country = cp.country
ORDER BY cp.product_id, cp.country, tp.size_tier`)
	if err != nil {
		return nil, errors.Wrap(err, "query rules")
	}
	defer rows.Close()

	var out []pricing.ProductCountryPricing
	for rows.Next() {
		var (
			productID, country string
			hasLocal           bool
			tier               *string
			local, central     decimal.NullDecimal
		)
		if err := rows.Scan(&productID, &country, &hasLocal, &tier, &local, &central); err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}

		// Rows arrive grouped by key; start a new entry when the key changes.
		n := len(out)
		if n == 0 || out[n-1].ProductID != productID || out[n-1].Country != country {
			out = append(out, pricing.ProductCountryPricing{
				ProductID: productID,
				Country:   country,
				CountryPricing: pricing.CountryPricing{
					HasLocalWarehouse: hasLocal,
					Sizes:             make(map[string]pricing.TierPrices),
				},
			})
			n++
		}
		if tier != nil {
			out[n-1].Sizes[*tier] = pricing.TierPrices{Local: local, Central: central}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rules")
	}
	return out, nil
}
