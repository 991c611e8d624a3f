package location

import (
	"context"
	"net/netip"

	"github.com/go-faster/errors"
)

// DemoLocations is the fixed lookup table used by the static provider when
// no other source is configured.
var DemoLocations = map[string]Location{
	"1.1.1.1": {Country: "US", City: "New York"},
	"2.2.2.2": {Country: "UK", City: "London"},
	"3.3.3.3": {Country: "ES", City: "Madrid"},
	"4.4.4.4": {Country: "FR", City: "Paris"},
	"5.5.5.5": {Country: "DE", City: "Berlin"},
}

// StaticProvider answers lookups from a fixed table. Unlisted addresses
// return ErrNotFound.
type StaticProvider struct {
	table map[netip.Addr]Location
}

// NewStaticProvider builds a provider from an IP string keyed table.
func NewStaticProvider(table map[string]Location) (*StaticProvider, error) {
	p := &StaticProvider{table: make(map[netip.Addr]Location, len(table))}
	for ip, loc := range table {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %q", ip)
		}
		p.table[addr.Unmap()] = loc
	}
	return p, nil
}

// Lookup implements Provider.
func (p *StaticProvider) Lookup(_ context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, errors.Wrapf(err, "parse ip %q", ip)
	}
	loc, ok := p.table[addr.Unmap()]
	if !ok {
		return Location{}, errors.Wrapf(ErrNotFound, "ip %s", ip)
	}
	return loc, nil
}
