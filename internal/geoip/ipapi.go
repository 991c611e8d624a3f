package geoip

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/geo-pricing/internal/domain/location"
)

// maxBody caps the lookup response size.
const maxBody = 64 << 10

var _ location.Provider = (*IPAPI)(nil)

// IPAPI queries an ipapi.co compatible endpoint: GET {base}/{ip}/json/.
type IPAPI struct {
	base   string
	client *http.Client
}

// NewIPAPI creates a provider for the API at baseURL. A nil client selects an
// otelhttp-instrumented default; request deadlines come from the context.
func NewIPAPI(baseURL string, client *http.Client) *IPAPI {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &IPAPI{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
	}
}

// Lookup implements location.Provider.
func (p *IPAPI) Lookup(ctx context.Context, ip string) (location.Location, error) {
	u := p.base + "/" + url.PathEscape(ip) + "/json/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return location.Location{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return location.Location{}, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return location.Location{}, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return location.Location{}, errors.Wrap(err, "read body")
	}

	var r ipapiResponse
	if err := r.Decode(jx.DecodeBytes(body)); err != nil {
		return location.Location{}, errors.Wrap(err, "decode response")
	}
	if r.Error {
		return location.Location{}, errors.Errorf("lookup rejected: %s", r.Reason)
	}
	if r.CountryCode == "" {
		return location.Location{}, location.ErrNotFound
	}

	return location.Location{
		Country:   countryCode(r.CountryCode),
		City:      r.City,
		Region:    r.Region,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

type ipapiResponse struct {
	CountryCode string
	City        string
	Region      string
	Latitude    float64
	Longitude   float64
	Error       bool
	Reason      string
}

func (r *ipapiResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "country_code":
			r.CountryCode, err = optString(d)
		case "city":
			r.City, err = optString(d)
		case "region":
			r.Region, err = optString(d)
		case "latitude":
			r.Latitude, err = optFloat(d)
		case "longitude":
			r.Longitude, err = optFloat(d)
		case "error":
			r.Error, err = d.Bool()
		case "reason":
			r.Reason, err = optString(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func optFloat(d *jx.Decoder) (float64, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Float64()
}
