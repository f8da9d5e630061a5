package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/internal/config"
	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/internal/metrics"
	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/services/invoicing/cache"
	"github.com/R3E-Network/billing_layer/services/invoicing/postgres"
	invoicingsupabase "github.com/R3E-Network/billing_layer/services/invoicing/supabase"
	"github.com/R3E-Network/billing_layer/supabase/client"
)

// deps is everything built from configuration that the commands share.
type deps struct {
	backend invoicing.Backend
	// admin reads and writes outside a user session (overdue sweep, render).
	// On Supabase it uses the service key and is nil when none is configured.
	admin   invoicing.Backend
	catalog invoicing.CatalogLookup
	// storage is the service-role client used for archiving; nil unless the
	// backend is Supabase and a bucket is configured.
	storage *client.Client
	checks  map[string]func(context.Context) error
	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func newSupabaseClient(cfg *config.Config, key string, logger *logging.Logger) (*client.Client, error) {
	resilience := client.DefaultResilientClientConfig()
	resilience.CircuitBreakerConfig.OnStateChange = func(from, to client.CircuitState) {
		metrics.SetCircuitState(int(to))
		logger.WithFields(map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		}).Warn("supabase circuit breaker changed state")
	}
	return client.New(client.Config{
		URL:        cfg.Supabase.URL,
		APIKey:     key,
		Timeout:    cfg.Supabase.Timeout,
		Resilience: &resilience,
	})
}

func openDeps(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*deps, error) {
	d := &deps{checks: make(map[string]func(context.Context) error)}

	switch strings.ToLower(cfg.Ledger.Backend) {
	case config.BackendSupabase:
		c, err := newSupabaseClient(cfg, cfg.Supabase.AnonKey, logger)
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		d.backend = invoicingsupabase.NewRepository(c)
		if cfg.Supabase.ServiceKey != "" {
			service, err := newSupabaseClient(cfg, cfg.Supabase.ServiceKey, logger)
			if err != nil {
				return nil, fmt.Errorf("supabase service client: %w", err)
			}
			d.admin = invoicingsupabase.NewRepository(service)
			if cfg.Supabase.InvoiceBucket != "" {
				d.storage = service
			}
		} else if cfg.Supabase.InvoiceBucket != "" {
			d.storage = c
		}
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Ledger.PostgresDSN)
		if err != nil {
			return nil, err
		}
		d.backend = store
		d.admin = store
		d.checks["postgres"] = store.Ping
		d.closers = append(d.closers, store.Close)
	case config.BackendMemory:
		d.backend = invoicing.NewMemoryStore()
		d.admin = d.backend
		logger.Warn("using in-memory ledger; data is lost on exit")
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	d.catalog = d.backend
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.catalog = cache.NewCatalog(d.backend, cache.NewRedisKV(rdb), cfg.Redis.PriceTTL, logger)
		d.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		d.closers = append(d.closers, rdb.Close)
	}
	return d, nil
}

// seedDemo gives userID a company with a small catalog on the memory backend.
func seedDemo(store *invoicing.MemoryStore, userID string) {
	company := store.AddCompany(invoicing.Company{
		Name:    "Demo Traders",
		GSTRate: decimal.NewNullDecimal(decimal.NewFromInt(18)),
	}, userID)
	for _, p := range []invoicing.Product{
		{Name: "Widget", SKU: "W-1", Price: decimal.NewFromInt(100), Stock: 50},
		{Name: "Gadget", SKU: "G-1", Price: decimal.RequireFromString("49.50"), Stock: 20},
	} {
		p.CompanyID = company
		store.AddProduct(p)
	}
	store.AddCustomer(invoicing.Customer{CompanyID: company, Name: "Walk-in Customer"})
}
