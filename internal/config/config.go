package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/izahid19/ekart/internal/pricing"
	pkgconfig "github.com/izahid19/ekart/pkg/config"
)

// Config holds all configuration for the storefront cart engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Remote cart service
	CartAPIBaseURL string        `env:"CART_API_BASE_URL" envDefault:"http://localhost:8000/api/v1"`
	CartAPITimeout time.Duration `env:"CART_API_TIMEOUT" envDefault:"10s"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Guest cart TTL in hours (default: 7 days)
	GuestCartTTL int `env:"GUEST_CART_TTL_HOURS" envDefault:"168"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	// Pricing
	FreeShippingThreshold decimal.Decimal `env:"FREE_SHIPPING_THRESHOLD" envDefault:"50"`
	FlatShippingFee       decimal.Decimal `env:"FLAT_SHIPPING_FEE" envDefault:"10"`
	TaxRate               decimal.Decimal `env:"TAX_RATE" envDefault:"0.05"`
	Currency              string          `env:"CURRENCY" envDefault:"INR"`

	// Kafka; empty disables cart event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the given dotenv files and environment
// variables, then validates it.
func Load(dotenvFiles ...string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, dotenvFiles...); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PricingPolicy returns the configured pricing policy.
func (c *Config) PricingPolicy() pricing.Policy {
	return pricing.Policy{
		FreeShippingThreshold: c.FreeShippingThreshold,
		FlatShippingFee:       c.FlatShippingFee,
		TaxRate:               c.TaxRate,
	}
}

// GuestCartTTLDuration returns the guest cart expiry.
func (c *Config) GuestCartTTLDuration() time.Duration {
	return time.Duration(c.GuestCartTTL) * time.Hour
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.CartAPIBaseURL == "" {
		return fmt.Errorf("CART_API_BASE_URL must not be empty")
	}
	if u, err := url.Parse(c.CartAPIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid CART_API_BASE_URL: %q", c.CartAPIBaseURL)
	}
	if c.CartAPITimeout <= 0 {
		return fmt.Errorf("CART_API_TIMEOUT must be positive: %s", c.CartAPITimeout)
	}
	if c.GuestCartTTL < 1 {
		return fmt.Errorf("GUEST_CART_TTL_HOURS must be at least 1: %d", c.GuestCartTTL)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive: %s", c.SessionIdleTimeout)
	}
	if err := c.PricingPolicy().Validate(); err != nil {
		return fmt.Errorf("invalid pricing policy: %w", err)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("invalid rate limit: rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1]: %v", c.OTelSampleRate)
	}
	return nil
}
