// Package geoip provides location.Provider implementations backed by a local
// MaxMind database or a remote lookup API.
package geoip

import (
	"context"
	"net"

	"github.com/go-faster/errors"
	"github.com/oschwald/geoip2-golang"

	"github.com/xenking/geo-pricing/internal/domain/location"
)

var _ location.Provider = (*MaxMind)(nil)

// MaxMind looks addresses up in a GeoLite2/GeoIP2 City database.
type MaxMind struct {
	db *geoip2.Reader
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open maxmind db %q", path)
	}
	return &MaxMind{db: db}, nil
}

// Close releases the database.
func (m *MaxMind) Close() error {
	return m.db.Close()
}

// Lookup implements location.Provider.
func (m *MaxMind) Lookup(_ context.Context, ip string) (location.Location, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return location.Location{}, errors.Errorf("invalid ip %q", ip)
	}

	rec, err := m.db.City(addr)
	if err != nil {
		return location.Location{}, errors.Wrap(err, "maxmind lookup")
	}
	if rec.Country.IsoCode == "" {
		return location.Location{}, location.ErrNotFound
	}

	loc := location.Location{
		Country:   countryCode(rec.Country.IsoCode),
		City:      rec.City.Names["en"],
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].Names["en"]
	}
	return loc, nil
}

// countryCode maps ISO 3166 codes to the codes used by pricing rules, which
// name the United Kingdom "UK".
func countryCode(iso string) string {
	if iso == "GB" {
		return "UK"
	}
	return iso
}
