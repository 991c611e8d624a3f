package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

var _ pricing.MultiplierStore = (*MultiplierStore)(nil)

// MultiplierStore implements pricing.MultiplierStore backed by PostgreSQL.
type MultiplierStore struct {
	pool *pgxpool.Pool
}

// NewMultiplierStore returns a MultiplierStore that uses the given pool.
func NewMultiplierStore(pool *pgxpool.Pool) *MultiplierStore {
	return &MultiplierStore{pool: pool}
}

// Multiplier implements pricing.MultiplierStore.
func (s *MultiplierStore) Multiplier(ctx context.Context, country string) (pricing.MultiplierRule, bool, error) {
	rule := pricing.MultiplierRule{Country: country}
	var typ, rounding string
	err := s.pool.QueryRow(ctx,
		`SELECT multiplier_type, value, rounding FROM ip_multipliers WHERE country = $1`, country,
	).Scan(&typ, &rule.Value, &rounding)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.MultiplierRule{}, false, nil
		}
		return pricing.MultiplierRule{}, false, errors.Wrapf(err, "get multiplier %q", country)
	}
	rule.Type = pricing.MultiplierType(typ)
	rule.Rounding = pricing.RoundingPolicy(rounding)
	return rule, true, nil
}

// SetMultiplier implements pricing.MultiplierStore with a single-row upsert.
func (s *MultiplierStore) SetMultiplier(ctx context.Context, rule pricing.MultiplierRule) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ip_multipliers (country, multiplier_type, value, rounding, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (country) DO UPDATE SET
    multiplier_type = EXCLUDED.multiplier_type,
    value = EXCLUDED.value,
    rounding = EXCLUDED.rounding,
    updated_at = now()`,
		rule.Country, string(rule.Type), rule.Value, string(rule.Rounding),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert multiplier %q", rule.Country)
	}
	return nil
}

// ListMultipliers implements pricing.MultiplierStore.
func (s *MultiplierStore) ListMultipliers(ctx context.Context) ([]pricing.MultiplierRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT country, multiplier_type, value, rounding FROM ip_multipliers ORDER BY country`)
	if err != nil {
		return nil, errors.Wrap(err, "query multipliers")
	}
	defer rows.Close()

	var out []pricing.MultiplierRule
	for rows.Next() {
		var (
			r             pricing.MultiplierRule
			typ, rounding string
		)
		if err := rows.Scan(&r.Country, &typ, &r.Value, &rounding); err != nil {
			return nil, errors.Wrap(err, "scan multiplier")
		}
		r.Type = pricing.MultiplierType(typ)
		r.Rounding = pricing.RoundingPolicy(rounding)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate multipliers")
	}
	return out, nil
}
