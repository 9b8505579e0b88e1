package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

func testLoad(t *testing.T, files ...string) (*Config, error) {
	t.Helper()
	return loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		SkipFlags: true,
		Files:     files,
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CHECKOUT_DATABASE_URL", "postgres://localhost/checkout")
	t.Setenv("SALES_API_URL", "https://sales.example/api")

	cfg, err := testLoad(t)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "https://sales.example/api", cfg.SalesAPI.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.SalesAPI.Timeout)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 86400, cfg.CORS.MaxAge)
	assert.Equal(t, 10*time.Second, cfg.Health.Interval)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Carts.IdleTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Carts.ClosedRetention)

	engine, err := cfg.Pricing.engineConfig()
	require.NoError(t, err)
	assert.True(t, engine.MaxDiscount.Equal(pricing.DefaultMaxDiscount))
	assert.Equal(t, pricing.CompositionMultiplicative, engine.Composition)
}

func TestLoadConfig_Required(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SALES_API_URL", "")

	_, err := testLoad(t)
	require.ErrorContains(t, err, "database URL is required")

	t.Setenv("DATABASE_URL", "postgres://localhost/checkout")
	_, err = testLoad(t)
	require.ErrorContains(t, err, "sales API base URL is required")
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("SALES_API_URL", "https://sales.example")
	t.Setenv("SALES_API_TOKEN", "tok")
	t.Setenv("PORT", "9090")

	cfg, err := testLoad(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "tok", cfg.SalesAPI.Token)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SALES_API_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 127.0.0.1:8081
database_url: postgres://yaml/db
sales_api:
  base_url: https://sales.yaml
  timeout: 3s
pricing:
  composition: additive
  card_fee: "0.01"
`), 0o600))

	cfg, err := testLoad(t, path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8081", cfg.Addr)
	assert.Equal(t, "postgres://yaml/db", cfg.DatabaseURL)
	assert.Equal(t, "https://sales.yaml", cfg.SalesAPI.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.SalesAPI.Timeout)

	engine, err := cfg.Pricing.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, pricing.CompositionAdditive, engine.Composition)
	assert.True(t, engine.Fees[pricing.MethodCreditCard].Equal(decimal.RequireFromString("0.01")))
}

func TestPricingConfig_Invalid(t *testing.T) {
	for name, c := range map[string]PricingConfig{
		"MaxDiscount": {MaxDiscount: "lots"},
		"Composition": {Composition: "exponential"},
		"CardFee":     {CardFee: "1,5"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.engineConfig()
			assert.Error(t, err)
		})
	}
}
