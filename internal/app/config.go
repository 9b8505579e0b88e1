package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/sales"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	SalesAPI     sales.Config
	Pricing      PricingConfig
	Carts        CartConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Health       HealthConfig
	Graceful     GracefulConfig
}

// PricingConfig overrides the engine defaults. Decimal values are strings
// so they are parsed exactly.
type PricingConfig struct {
	MaxDiscount string `default:"0.95" usage:"Upper bound of additive discount stacking"`
	Composition string `default:"multiplicative" usage:"Default discount composition (multiplicative or additive)"`
	CardFee     string `default:"0.0299" usage:"Credit card processing fee fraction"`
}

// CartConfig controls how long cart sessions stay in memory.
type CartConfig struct {
	IdleTimeout     time.Duration `default:"2h"  usage:"Evict open carts unused for this long" flag:"cart-idle-timeout"`
	ClosedRetention time.Duration `default:"15m" usage:"Keep closed carts readable for this long" flag:"cart-closed-retention"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           int      `default:"86400" usage:"Preflight cache duration in seconds"`
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Interval       time.Duration `default:"10s" usage:"Health check interval"`
	GoroutineLimit int           `default:"10000" usage:"Liveness goroutine threshold"`
	CheckSalesAPI  bool          `default:"false" usage:"Include sales API reachability in readiness" flag:"check-sales-api"`
	SalesAPIPath   string        `default:"/health" usage:"Sales API path probed for readiness"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// flags, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	ac.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if c.SalesAPI.BaseURL == "" {
		return errors.New("sales API base URL is required: set CHECKOUT_SALES_API_BASE_URL or SALES_API_URL")
	}
	if _, err := c.Pricing.engineConfig(); err != nil {
		return errors.Wrap(err, "pricing")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.SalesAPI.BaseURL == "" {
		c.SalesAPI.BaseURL = os.Getenv("SALES_API_URL")
	}
	if c.SalesAPI.Token == "" {
		c.SalesAPI.Token = os.Getenv("SALES_API_TOKEN")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// engineConfig merges the overrides into pricing.DefaultConfig.
func (c PricingConfig) engineConfig() (pricing.Config, error) {
	cfg := pricing.DefaultConfig()
	if c.MaxDiscount != "" {
		d, err := decimal.NewFromString(c.MaxDiscount)
		if err != nil {
			return pricing.Config{}, errors.Wrap(err, "max discount")
		}
		cfg.MaxDiscount = d
	}
	if c.Composition != "" {
		comp, err := pricing.ParseComposition(c.Composition)
		if err != nil {
			return pricing.Config{}, err
		}
		cfg.Composition = comp
	}
	if c.CardFee != "" {
		d, err := decimal.NewFromString(c.CardFee)
		if err != nil {
			return pricing.Config{}, errors.Wrap(err, "card fee")
		}
		cfg.Fees[pricing.MethodCreditCard] = d
	}
	return cfg, nil
}
