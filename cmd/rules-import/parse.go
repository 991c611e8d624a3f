package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

// columns is the required CSV header.
var columns = []string{"product_id", "country", "has_local_warehouse", "size_tier", "local_price", "central_price"}

// ruleKey identifies one country table.
type ruleKey struct {
	productID string
	country   string
}

// table accumulates the rows of one country table.
type table struct {
	pricing.CountryPricing
	// origin is the file:line that first declared the table.
	origin string
}

// parseFile reads a CSV file, gunzipping it when the name ends in .gz.
func parseFile(ctx context.Context, path string) (map[ruleKey]*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	tables, err := parseCSV(ctx, path, r)
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// parseCSV groups rows into country tables. Each row prices one size tier;
// an empty price cell means the warehouse does not stock the tier.
func parseCSV(ctx context.Context, name string, r io.Reader) (map[ruleKey]*table, error) {
	cr := csv.NewReader(r)
	// The header fixes the field count of every row.
	cr.FieldsPerRecord = 0
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read header", name)
	}
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}
	if !slices.Equal(header, columns) {
		return nil, errors.Errorf("%s: header must be %s", name, strings.Join(columns, ","))
	}

	tables := make(map[ruleKey]*table)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s", name)
		}
		line, _ := cr.FieldPos(0)
		origin := name + ":" + strconv.Itoa(line)

		if err := addRow(tables, rec, origin); err != nil {
			return nil, errors.Wrap(err, origin)
		}
	}
	return tables, nil
}

func addRow(tables map[ruleKey]*table, rec []string, origin string) error {
	key := ruleKey{
		productID: strings.TrimSpace(rec[0]),
		country:   strings.ToUpper(strings.TrimSpace(rec[1])),
	}
	hasLocal, err := strconv.ParseBool(strings.TrimSpace(rec[2]))
	if err != nil {
		return errors.Wrap(err, "has_local_warehouse")
	}
	tier := strings.TrimSpace(rec[3])
	local, err := parsePrice(rec[4])
	if err != nil {
		return errors.Wrap(err, "local_price")
	}
	central, err := parsePrice(rec[5])
	if err != nil {
		return errors.Wrap(err, "central_price")
	}

	t, ok := tables[key]
	if !ok {
		t = &table{
			CountryPricing: pricing.CountryPricing{
				HasLocalWarehouse: hasLocal,
				Sizes:             make(map[string]pricing.TierPrices),
			},
			origin: origin,
		}
		tables[key] = t
	}
	if t.HasLocalWarehouse != hasLocal {
		return errors.Errorf("has_local_warehouse conflicts with %s", t.origin)
	}
	if _, dup := t.Sizes[tier]; dup {
		return errors.Errorf("duplicate size tier %q for %s/%s", tier, key.productID, key.country)
	}
	t.Sizes[tier] = pricing.TierPrices{Local: local, Central: central}
	return nil
}

func parsePrice(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// merge folds src into dst. A table may be split across files, but its
// warehouse flag and tiers must not conflict.
func merge(dst, src map[ruleKey]*table) error {
	for key, t := range src {
		have, ok := dst[key]
		if !ok {
			dst[key] = t
			continue
		}
		if have.HasLocalWarehouse != t.HasLocalWarehouse {
			return errors.Errorf("%s: has_local_warehouse conflicts with %s", t.origin, have.origin)
		}
		for tier, p := range t.Sizes {
			if _, dup := have.Sizes[tier]; dup {
				return errors.Errorf("%s: duplicate size tier %q, first declared near %s", t.origin, tier, have.origin)
			}
			have.Sizes[tier] = p
		}
	}
	return nil
}
