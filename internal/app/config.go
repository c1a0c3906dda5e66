package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (PLATTER_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PLATTER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	CatalogFile string `default:"db/seed/catalog.json" usage:"Catalog loaded into the memory backend" flag:"catalog-file"`
	JWT         JWTConfig
	Pricing     PricingConfig
	Analytics   AnalyticsConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// JWTConfig controls bearer token verification.
type JWTConfig struct {
	SigningKey string `usage:"HS256 signing key (PLATTER_JWT_SIGNING_KEY or JWT_KEY)" flag:"jwt-signing-key"`
	Issuer     string `default:"platter" usage:"Expected token issuer, empty to skip the check"`
}

// PricingConfig holds pricing parameters shared by every restaurant.
type PricingConfig struct {
	TaxRate string `default:"0.05" usage:"Tax rate applied to the items total" flag:"tax-rate"`
}

// AnalyticsConfig controls which orders the analytics endpoints count.
type AnalyticsConfig struct {
	IncludeCancelled bool `default:"false" usage:"Count cancelled orders in analytics" flag:"analytics-include-cancelled"`
}

// RedisConfig enables the location mirror and the shared rate limiter when
// Addr is set.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address, empty to disable"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
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

// LoadConfig loads configuration from a .env file, environment variables,
// YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PLATTER",
		Files:     []string{"config.yaml", "/etc/platter/config.yaml"},
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

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set PLATTER_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.JWT.SigningKey == "" {
		return errors.New("JWT signing key is required: set PLATTER_JWT_SIGNING_KEY or JWT_KEY")
	}
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// TaxRate parses Pricing.TaxRate.
func (c *Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse tax rate")
	}
	if rate.IsNegative() {
		return decimal.Zero, errors.Errorf("tax rate %s is negative", rate)
	}
	return rate, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PLATTER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.JWT.SigningKey == "" {
		if v := os.Getenv("JWT_KEY"); v != "" {
			c.JWT.SigningKey = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
