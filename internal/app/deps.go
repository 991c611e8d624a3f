package app

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/geo-pricing/internal/domain/cart"
	"github.com/xenking/geo-pricing/internal/domain/location"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
	"github.com/xenking/geo-pricing/internal/events"
	"github.com/xenking/geo-pricing/internal/geoip"
	"github.com/xenking/geo-pricing/internal/seed"
	"github.com/xenking/geo-pricing/internal/storage/memory"
	"github.com/xenking/geo-pricing/internal/storage/postgres"
	"github.com/xenking/geo-pricing/internal/storage/redis"
	"github.com/xenking/geo-pricing/pkg/health"
)

// services is the wired domain layer.
type services struct {
	pricing *pricing.Service
	carts   *cart.Service
	health  *health.Health

	closers []func()
}

// Close releases external connections in reverse order of creation.
func (s *services) Close() {
	for _, c := range slices.Backward(s.closers) {
		c()
	}
	s.closers = nil
}

func (s *services) onClose(f func()) {
	s.closers = append(s.closers, f)
}

// newServices creates stores, the location resolver, the event publisher and
// the domain services, and seeds the stores. tp and mp may be nil to use the
// global providers.
func newServices(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (_ *services, rerr error) {
	s := &services{health: health.New()}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	s.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	s.health.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	rules, multipliers, err := s.newStores(ctx, lg, cfg)
	if err != nil {
		return nil, err
	}

	locator, err := s.newLocator(ctx, lg, tp, mp, cfg.Location)
	if err != nil {
		return nil, err
	}

	catalog := pricing.NewStaticCatalog(cfg.DefaultSizeTier, nil)
	opts := []pricing.Option{pricing.WithCurrency(cfg.Currency)}
	if tp != nil {
		opts = append(opts, pricing.WithTracerProvider(tp))
	}
	if mp != nil {
		opts = append(opts, pricing.WithMeterProvider(mp))
	}
	pricingSvc, err := pricing.NewService(rules, multipliers, locator, catalog, pricing.AlwaysAvailable{}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create pricing service")
	}
	s.pricing = pricingSvc

	if err := s.seed(ctx, lg, cfg, catalog); err != nil {
		return nil, err
	}

	var publisher cart.Publisher = cart.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		p := events.NewPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Timeout)
		s.onClose(func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		})
		publisher = p
		lg.Info("Publishing cart events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	s.carts = cart.NewService(pricingSvc, publisher, cfg.Webhook.Concurrency)

	return s, nil
}

func (s *services) newStores(ctx context.Context, lg *zap.Logger, cfg *Config) (pricing.RuleStore, pricing.MultiplierStore, error) {
	if cfg.DatabaseURL == "" {
		lg.Info("Using in-memory stores")
		return memory.NewRuleStore(), memory.NewMultiplierStore(), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	s.onClose(pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	s.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pingPool(pool)))

	lg.Info("Using PostgreSQL stores")
	return postgres.NewRuleStore(pool), postgres.NewMultiplierStore(pool), nil
}

func pingPool(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func (s *services) newLocator(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg LocationConfig,
) (*location.Resolver, error) {
	var provider location.Provider
	switch cfg.Provider {
	case ProviderMaxMind:
		mm, err := geoip.OpenMaxMind(cfg.MaxMindDB)
		if err != nil {
			return nil, err
		}
		s.onClose(func() { _ = mm.Close() })
		provider = mm
	case ProviderIPAPI:
		var transportOpts []otelhttp.Option
		if tp != nil {
			transportOpts = append(transportOpts, otelhttp.WithTracerProvider(tp))
		}
		if mp != nil {
			transportOpts = append(transportOpts, otelhttp.WithMeterProvider(mp))
		}
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport, transportOpts...)}
		provider = geoip.NewIPAPI(cfg.APIURL, client)
	default:
		static, err := location.NewStaticProvider(location.DemoLocations)
		if err != nil {
			return nil, errors.Wrap(err, "create static provider")
		}
		provider = static
	}

	var cache location.Cache = location.NewMemoryCache(cfg.CacheTTL, cfg.CacheSize)
	if cfg.RedisAddr != "" {
		client, err := redis.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		s.onClose(func() { _ = client.Close() })
		s.health.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		cache = redis.NewLocationCache(client, cfg.CacheTTL)
	}

	lg.Info("Location resolver configured",
		zap.String("provider", cfg.Provider),
		zap.Bool("shared_cache", cfg.RedisAddr != ""),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)
	return location.NewResolver(provider, cache, cfg.Timeout), nil
}

// seed applies the configured seed file. Without one, the built-in sample
// data is loaded into in-memory stores only; a database keeps its own state.
func (s *services) seed(ctx context.Context, lg *zap.Logger, cfg *Config, catalog *pricing.StaticCatalog) error {
	var (
		f   *seed.File
		err error
	)
	switch {
	case cfg.SeedFile != "":
		f, err = seed.Load(cfg.SeedFile)
	case cfg.DatabaseURL == "":
		f, err = seed.Default()
	default:
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load seed")
	}

	if err := f.Apply(ctx, s.pricing); err != nil {
		return errors.Wrap(err, "apply seed")
	}
	for variant, tier := range f.Variants {
		catalog.SetVariantTier(variant, tier)
	}
	lg.Info("Seeded pricing data",
		zap.Int("rules", len(f.Rules)),
		zap.Int("multipliers", len(f.Multipliers)),
		zap.Int("variants", len(f.Variants)),
	)
	return nil
}

// telemetryProviders extracts the providers of m, tolerating a nil m.
func telemetryProviders(m *app.Telemetry) (trace.TracerProvider, metric.MeterProvider) {
	if m == nil {
		return nil, nil
	}
	return m.TracerProvider(), m.MeterProvider()
}
