package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:3000"

// Location providers.
const (
	ProviderStatic  = "static"
	ProviderMaxMind = "maxmind"
	ProviderIPAPI   = "ipapi"
)

// Config holds the complete application configuration, loadable from
// environment variables (PRICING_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string `default:"0.0.0.0:3000" usage:"API server listen address"`
	DatabaseURL     string `usage:"PostgreSQL connection URL; in-memory stores when empty (PRICING_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile        string `usage:"YAML file with rules and multipliers applied at startup" flag:"seed-file"`
	Currency        string `default:"EUR" usage:"Currency reported with prices"`
	DefaultSizeTier string `default:"standard" usage:"Size tier for variants missing from the catalog; empty rejects them" flag:"default-size-tier"`
	Location        LocationConfig
	Kafka           KafkaConfig
	Webhook         WebhookConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// LocationConfig selects and tunes the IP location provider.
type LocationConfig struct {
	Provider  string        `default:"static" usage:"Location provider: static, maxmind or ipapi"`
	MaxMindDB string        `usage:"Path to a GeoIP2/GeoLite2 City database" flag:"maxmind-db"`
	APIURL    string        `default:"https://ipapi.co" usage:"Base URL of the ipapi provider" flag:"location-api-url"`
	Timeout   time.Duration `default:"2s" usage:"Per-lookup provider timeout"`
	CacheTTL  time.Duration `default:"1h" usage:"Location cache TTL" flag:"location-cache-ttl"`
	CacheSize int           `default:"10000" usage:"Max in-process cache entries" flag:"location-cache-size"`
	RedisAddr string        `usage:"Redis address for a shared location cache" flag:"redis-addr"`
}

// KafkaConfig enables cart-priced events when Brokers is set.
type KafkaConfig struct {
	Brokers []string      `usage:"Kafka brokers for cart-priced events"`
	Topic   string        `default:"cart-pricing" usage:"Topic for cart-priced events"`
	Timeout time.Duration `default:"2s" usage:"Upper bound on publishing one event"`
}

// WebhookConfig tunes cart webhook processing.
type WebhookConfig struct {
	Concurrency int `default:"8" usage:"Line items priced in parallel per cart"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window; 0 disables"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PRICING",
		Files:     []string{"config.yaml", "/etc/pricing/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PRICING_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Location.Provider {
	case ProviderStatic, ProviderIPAPI:
	case ProviderMaxMind:
		if c.Location.MaxMindDB == "" {
			return errors.New("maxmind provider requires a database path")
		}
	default:
		return errors.Errorf("unknown location provider %q", c.Location.Provider)
	}
	if c.Webhook.Concurrency < 1 {
		return errors.Errorf("webhook concurrency must be positive, got %d", c.Webhook.Concurrency)
	}
	if c.RateLimit.Max < 0 {
		return errors.Errorf("rate limit max must not be negative, got %d", c.RateLimit.Max)
	}
	return nil
}
