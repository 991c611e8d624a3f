// Package location turns client IP addresses into a best-effort customer
// location. Lookups never fail towards callers: any provider error degrades
// to Unknown.
package location

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// UnknownCountry is the country code reported when an IP cannot be located.
const UnknownCountry = "UNKNOWN"

// ErrNotFound is returned by providers that have no data for an address.
var ErrNotFound = errors.New("location not found")

// Location is the result of an IP lookup.
type Location struct {
	Country   string
	City      string
	Region    string
	Latitude  float64
	Longitude float64
}

// Unknown is the deterministic fallback location.
var Unknown = Location{Country: UnknownCountry, City: "Unknown"}

// IsUnknown reports whether l is the degraded fallback.
func (l Location) IsUnknown() bool {
	return l.Country == "" || l.Country == UnknownCountry
}

// Provider performs a single uncached lookup. Implementations may fail.
type Provider interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, ip string) (Location, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, ip string) (Location, error) {
	return f(ctx, ip)
}

// Encode writes l as a JSON object.
func (l Location) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("country")
	e.Str(l.Country)
	e.FieldStart("city")
	e.Str(l.City)
	if l.Region != "" {
		e.FieldStart("region")
		e.Str(l.Region)
	}
	if l.Latitude != 0 || l.Longitude != 0 {
		e.FieldStart("latitude")
		e.Float64(l.Latitude)
		e.FieldStart("longitude")
		e.Float64(l.Longitude)
	}
	e.ObjEnd()
}

// Decode reads l from a JSON object written by Encode.
func (l *Location) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "country":
			l.Country, err = d.Str()
		case "city":
			l.City, err = d.Str()
		case "region":
			l.Region, err = d.Str()
		case "latitude":
			l.Latitude, err = d.Float64()
		case "longitude":
			l.Longitude, err = d.Float64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}
