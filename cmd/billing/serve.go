package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/R3E-Network/billing_layer/internal/config"
	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/internal/metrics"
	"github.com/R3E-Network/billing_layer/internal/middleware"
	commonservice "github.com/R3E-Network/billing_layer/services/common/service"
	"github.com/R3E-Network/billing_layer/services/invoicing"
	"github.com/R3E-Network/billing_layer/services/invoicing/document"
	"github.com/R3E-Network/billing_layer/services/invoicing/httpapi"
)

const limiterIdle = 10 * time.Minute

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and scheduled jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "demo-user",
				Usage: "with the memory ledger, seed a demo company for this user ID",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.Supabase.JWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required to authenticate requests")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if mem, ok := d.backend.(*invoicing.MemoryStore); ok && c.String("demo-user") != "" {
		seedDemo(mem, c.String("demo-user"))
	}

	api, jobs, err := buildService(cfg, d, logger)
	if err != nil {
		return err
	}
	for name, check := range d.checks {
		api.AddHealthCheck(name, check)
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
	api.AddTickerWorker("ratelimit-cleanup", time.Minute, func(context.Context) error {
		limiter.Cleanup(limiterIdle)
		return nil
	})
	api.AddWorker(func(ctx context.Context) {
		ctx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-api.StopChan():
			case <-ctx.Done():
			}
			cancel()
		}()
		jobs.Run(ctx)
	})

	api.Router().Use(metrics.InstrumentHandler)
	auth := middleware.NewAuthMiddleware(cfg.Supabase.JWTSecret, logger, commonservice.StandardPaths)
	handler := middleware.NewTracingMiddleware(logger).Handler(
		middleware.NewCORSMiddleware(cfg.Server.CORSOrigins).Handler(
			auth.Handler(limiter.Handler(api)),
		),
	)

	if err := api.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    cfg.Server.Addr,
			"backend": cfg.Ledger.Backend,
			"jobs":    jobs.Len(),
		}).Info("billing service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = api.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if err := api.Stop(); err != nil {
		logger.WithError(err).Warn("service stop")
	}
	logger.Info("billing service stopped")
	return nil
}

// buildService wires the invoicing service, the HTTP API and the scheduler.
func buildService(cfg *config.Config, d *deps, logger *logging.Logger) (*httpapi.Service, *invoicing.Jobs, error) {
	rate, err := cfg.TaxRate()
	if err != nil {
		return nil, nil, err
	}
	numbers, err := invoicing.NewSnowflakeNumbers(cfg.Billing.SnowflakeNode, cfg.Billing.InvoicePrefix)
	if err != nil {
		return nil, nil, err
	}
	overdueSpec := cfg.Jobs.OverdueSpec
	if d.admin == nil && overdueSpec != "" {
		logger.Warn("SUPABASE_SERVICE_KEY is not set; overdue sweep disabled")
		overdueSpec = ""
	}
	svc, err := invoicing.NewService(invoicing.ServiceConfig{
		Backend:        d.backend,
		Catalog:        d.catalog,
		Sweeper:        d.admin,
		Numbers:        numbers,
		DefaultTaxRate: decimal.NewNullDecimal(rate),
		OverdueAfter:   time.Duration(cfg.Billing.OverdueAfterDays) * 24 * time.Hour,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}

	sessions := invoicing.NewSessions(nil)
	apiCfg := httpapi.Config{
		Invoicing: svc,
		Sessions:  sessions,
		Renderer: document.NewEmitter(document.Options{
			CurrencyPrefix: cfg.Billing.DocumentCurrency,
			Compress:       true,
		}),
		CurrencySymbol: cfg.Billing.CurrencySymbol,
		Logger:         logger,
	}
	if d.storage != nil {
		apiCfg.Archiver = document.NewArchiver(d.storage, cfg.Supabase.InvoiceBucket)
	}
	api, err := httpapi.New(apiCfg)
	if err != nil {
		return nil, nil, err
	}

	jobs, err := invoicing.NewJobs(invoicing.JobsConfig{
		Service:      svc,
		Sessions:     sessions,
		OverdueSpec:  overdueSpec,
		EvictionSpec: cfg.Jobs.EvictionSpec,
		DraftTTL:     cfg.Jobs.DraftTTL,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return api, jobs, nil
}
