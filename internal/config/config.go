// Package config loads the billing layer configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables (optionally seeded from a .env file).
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where LoadDefault looks for the YAML file.
var DefaultPath = filepath.Join("config", "billing.yaml")

// Ledger backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Redis    RedisConfig    `yaml:"redis"`
	Billing  BillingConfig  `yaml:"billing"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// ServerConfig configures the HTTP listener and middleware.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"BILLING_HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"BILLING_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"BILLING_CORS_ORIGINS"`
	RateLimitRPS    int           `yaml:"rate_limit_rps" env:"BILLING_RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"BILLING_RATE_LIMIT_BURST"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// SupabaseConfig holds the hosted database and auth endpoints.
type SupabaseConfig struct {
	URL           string        `yaml:"url" env:"SUPABASE_URL"`
	AnonKey       string        `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceKey    string        `yaml:"service_key" env:"SUPABASE_SERVICE_KEY"`
	JWTSecret     string        `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	InvoiceBucket string        `yaml:"invoice_bucket" env:"SUPABASE_INVOICE_BUCKET"`
	Timeout       time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Backend     string `yaml:"backend" env:"LEDGER_BACKEND"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`
}

// RedisConfig configures the catalog price cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	PriceTTL time.Duration `yaml:"price_ttl" env:"REDIS_PRICE_TTL"`
}

// BillingConfig holds invoicing policy.
type BillingConfig struct {
	TaxRate          string `yaml:"tax_rate" env:"BILLING_TAX_RATE"`
	CurrencySymbol   string `yaml:"currency_symbol" env:"BILLING_CURRENCY_SYMBOL"`
	DocumentCurrency string `yaml:"document_currency" env:"BILLING_DOCUMENT_CURRENCY"`
	InvoicePrefix    string `yaml:"invoice_prefix" env:"BILLING_INVOICE_PREFIX"`
	SnowflakeNode    int64  `yaml:"snowflake_node" env:"BILLING_SNOWFLAKE_NODE"`
	OverdueAfterDays int    `yaml:"overdue_after_days" env:"BILLING_OVERDUE_AFTER_DAYS"`
}

// JobsConfig configures scheduled jobs. Empty specs disable a job.
type JobsConfig struct {
	OverdueSpec  string        `yaml:"overdue_spec" env:"BILLING_OVERDUE_SPEC"`
	EvictionSpec string        `yaml:"eviction_spec" env:"BILLING_EVICTION_SPEC"`
	DraftTTL     time.Duration `yaml:"draft_ttl" env:"BILLING_DRAFT_TTL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Supabase: SupabaseConfig{
			Timeout: 30 * time.Second,
		},
		Ledger: LedgerConfig{Backend: BackendSupabase},
		Redis:  RedisConfig{PriceTTL: 5 * time.Minute},
		Billing: BillingConfig{
			TaxRate:          "0.18",
			CurrencySymbol:   "₹",
			DocumentCurrency: "Rs.",
			InvoicePrefix:    "INV",
			SnowflakeNode:    1,
			OverdueAfterDays: 30,
		},
		Jobs: JobsConfig{
			OverdueSpec:  "@daily",
			EvictionSpec: "@every 10m",
			DraftTTL:     2 * time.Hour,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), the .env file at envFile (if non-empty and present) and the process
// environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case stderrors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from DefaultPath and ./.env.
func LoadDefault() (*Config, error) {
	return Load(DefaultPath, ".env")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Ledger.Backend) {
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return fmt.Errorf("supabase ledger requires SUPABASE_URL and SUPABASE_ANON_KEY")
		}
	case BackendPostgres:
		if c.Ledger.PostgresDSN == "" {
			return fmt.Errorf("postgres ledger requires DATABASE_URL")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Billing.SnowflakeNode < 0 || c.Billing.SnowflakeNode > 1023 {
		return fmt.Errorf("snowflake node must be in [0, 1023], got %d", c.Billing.SnowflakeNode)
	}
	if c.Billing.OverdueAfterDays < 0 {
		return fmt.Errorf("overdue_after_days must not be negative")
	}
	return nil
}

// TaxRate parses the configured tax rate as a fraction (0.18 for 18%).
func (c *Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Billing.TaxRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", c.Billing.TaxRate, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("tax rate must not be negative")
	}
	return rate, nil
}
