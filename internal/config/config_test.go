package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithEnv(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendSupabase, cfg.Ledger.Backend)
	assert.Equal(t, "INV", cfg.Billing.InvoicePrefix)

	rate, err := cfg.TaxRate()
	require.NoError(t, err)
	assert.Equal(t, "0.18", rate.String())
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.yaml", `
server:
  addr: ":9090"
supabase:
  url: https://yaml.supabase.co
  anon_key: yaml-anon
billing:
  tax_rate: "0.05"
jobs:
  draft_ttl: 30m
`)
	t.Setenv("BILLING_TAX_RATE", "0.12")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://yaml.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.DraftTTL)
	assert.Equal(t, "0.12", cfg.Billing.TaxRate, "environment wins over YAML")
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "LEDGER_BACKEND=postgres\nDATABASE_URL=postgres://localhost/billing?sslmode=disable\n")

	// godotenv never overrides variables that are already set, so make sure
	// these are cleared for the duration of the test.
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("LEDGER_BACKEND")
	os.Unsetenv("DATABASE_URL")
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_BACKEND")
		os.Unsetenv("DATABASE_URL")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Ledger.Backend)
	assert.Contains(t, cfg.Ledger.PostgresDSN, "billing")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "server: [")
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"supabase ok", func(c *Config) { c.Supabase.URL, c.Supabase.AnonKey = "u", "k" }, false},
		{"supabase missing url", func(c *Config) {}, true},
		{"postgres missing dsn", func(c *Config) { c.Ledger.Backend = BackendPostgres }, true},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "mysql" }, true},
		{"memory needs nothing", func(c *Config) { c.Ledger.Backend = BackendMemory }, false},
		{"bad tax rate", func(c *Config) {
			c.Supabase.URL, c.Supabase.AnonKey = "u", "k"
			c.Billing.TaxRate = "eighteen"
		}, true},
		{"negative tax rate", func(c *Config) {
			c.Supabase.URL, c.Supabase.AnonKey = "u", "k"
			c.Billing.TaxRate = "-0.1"
		}, true},
		{"snowflake node out of range", func(c *Config) {
			c.Supabase.URL, c.Supabase.AnonKey = "u", "k"
			c.Billing.SnowflakeNode = 2048
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
