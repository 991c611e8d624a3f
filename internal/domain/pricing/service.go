package pricing

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/geo-pricing/internal/domain/location"
)

const instrumentationName = "github.com/xenking/geo-pricing/internal/domain/pricing"

// Locator resolves customer IPs. It must not fail; see location.Resolver.
type Locator interface {
	Locate(ctx context.Context, ip string) location.Location
}

// ItemRequest describes one priced item once the customer country is known.
// Empty SizeTier asks the catalog; nil LocalAvailable asks the stock signal.
type ItemRequest struct {
	ProductID       string
	VariantID       string
	SizeTier        string
	DeliveryCountry string
	CustomerCountry string
	LocalAvailable  *bool
}

// QuoteRequest is a price request identified by the customer's IP.
type QuoteRequest struct {
	ProductID       string
	VariantID       string
	SizeTier        string
	DeliveryCountry string
	CustomerIP      string
	LocalAvailable  *bool
}

// Quote is a PriceResult together with the customer location it used.
type Quote struct {
	PriceResult
	Location location.Location
}

// Option configures a Service.
type Option func(*Service)

// WithCurrency sets the currency reported in results.
func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service wires the resolver to its collaborators: location, catalog and
// stock. It is also the validated entry point for rule mutations.
type Service struct {
	rules       RuleStore
	multipliers MultiplierStore
	resolver    *Resolver
	locator     Locator
	catalog     Catalog
	stock       Availability

	currency       string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	resolutions    metric.Int64Counter
}

// NewService creates a pricing Service.
func NewService(
	rules RuleStore,
	multipliers MultiplierStore,
	locator Locator,
	catalog Catalog,
	stock Availability,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		rules:       rules,
		multipliers: multipliers,
		locator:     locator,
		catalog:     catalog,
		stock:       stock,
	}
	for _, o := range opts {
		o(s)
	}
	if s.stock == nil {
		s.stock = AlwaysAvailable{}
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	s.resolver = NewResolver(rules, multipliers, s.currency)
	s.tracer = s.tracerProvider.Tracer(instrumentationName)

	counter, err := s.meterProvider.Meter(instrumentationName).Int64Counter("pricing.resolutions",
		metric.WithDescription("Price resolutions by outcome and warehouse"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create resolutions counter")
	}
	s.resolutions = counter

	return s, nil
}

// Quote locates the customer by IP and prices the item.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "pricing.Quote")
	defer span.End()

	loc := s.locator.Locate(ctx, req.CustomerIP)
	span.SetAttributes(attribute.String("pricing.customer_country", loc.Country))

	res, err := s.Price(ctx, ItemRequest{
		ProductID:       req.ProductID,
		VariantID:       req.VariantID,
		SizeTier:        req.SizeTier,
		DeliveryCountry: req.DeliveryCountry,
		CustomerCountry: loc.Country,
		LocalAvailable:  req.LocalAvailable,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Quote{PriceResult: res, Location: loc}, nil
}

// Locate exposes the customer locator so callers pricing several items can
// resolve the customer once.
func (s *Service) Locate(ctx context.Context, ip string) location.Location {
	return s.locator.Locate(ctx, ip)
}

// Price resolves a single item for an already located customer.
func (s *Service) Price(ctx context.Context, req ItemRequest) (PriceResult, error) {
	deliveryCountry := normalizeCountry(req.DeliveryCountry)

	tier := strings.TrimSpace(req.SizeTier)
	if tier == "" {
		t, err := s.catalog.SizeTier(ctx, req.ProductID, req.VariantID)
		if err != nil {
			s.record(ctx, err, "")
			return PriceResult{}, errors.Wrap(err, "resolve size tier")
		}
		tier = t
	}

	localAvailable := true
	if req.LocalAvailable != nil {
		localAvailable = *req.LocalAvailable
	} else {
		ok, err := s.stock.LocalAvailable(ctx, req.ProductID, req.VariantID, deliveryCountry)
		if err != nil {
			// Unknown stock ships from the central warehouse.
			zctx.From(ctx).Warn("Local availability check failed",
				zap.String("product_id", req.ProductID),
				zap.String("country", deliveryCountry),
				zap.Error(err),
			)
			ok = false
		}
		localAvailable = ok
	}

	res, err := s.resolver.Resolve(ctx, Request{
		ProductID:       req.ProductID,
		VariantID:       req.VariantID,
		SizeTier:        tier,
		DeliveryCountry: deliveryCountry,
		CustomerCountry: normalizeCountry(req.CustomerCountry),
		LocalAvailable:  localAvailable,
	})
	s.record(ctx, err, res.Warehouse)
	if err != nil {
		return PriceResult{}, err
	}
	return res, nil
}

// ReplaceCountryRules validates and stores the pricing of one product for
// one delivery country.
func (s *Service) ReplaceCountryRules(ctx context.Context, productID, country string, rules CountryPricing) error {
	country = normalizeCountry(country)
	productID = strings.TrimSpace(productID)
	if err := ValidateCountryPricing(productID, country, rules); err != nil {
		return err
	}
	if err := s.rules.ReplaceCountryRules(ctx, productID, country, rules.Clone()); err != nil {
		return errors.Wrap(err, "replace country rules")
	}
	return nil
}

// SetMultiplier validates and stores rule, replacing any rule for its country.
func (s *Service) SetMultiplier(ctx context.Context, rule MultiplierRule) error {
	rule.Country = normalizeCountry(rule.Country)
	if err := ValidateMultiplier(rule); err != nil {
		return err
	}
	rule.Rounding, _ = ParseRoundingPolicy(string(rule.Rounding))
	if err := s.multipliers.SetMultiplier(ctx, rule); err != nil {
		return errors.Wrap(err, "set multiplier")
	}
	return nil
}

// ListRules returns every stored product/country price table.
func (s *Service) ListRules(ctx context.Context) ([]ProductCountryPricing, error) {
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	return rules, nil
}

// ListMultipliers returns every stored multiplier rule.
func (s *Service) ListMultipliers(ctx context.Context) ([]MultiplierRule, error) {
	rules, err := s.multipliers.ListMultipliers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list multipliers")
	}
	return rules, nil
}

func (s *Service) record(ctx context.Context, err error, warehouse Warehouse) {
	s.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
		attribute.String("warehouse", string(warehouse)),
	))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRuleNotFound):
		return "rule_not_found"
	case errors.Is(err, ErrCountryNotSupported):
		return "country_not_supported"
	case errors.Is(err, ErrTierNotFound):
		return "tier_not_found"
	default:
		return "error"
	}
}

// normalizeCountry upper-cases country codes so "es" and "ES" share rules.
func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
