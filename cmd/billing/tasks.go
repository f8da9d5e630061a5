package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/R3E-Network/billing_layer/internal/config"
	"github.com/R3E-Network/billing_layer/services/invoicing/document"
	"github.com/R3E-Network/billing_layer/services/invoicing/postgres"
)

func migrateCommand() *cli.Command {
	run := func(dir postgres.Direction) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			if cfg.Ledger.PostgresDSN == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}
			store, err := postgres.Open(c.Context, cfg.Ledger.PostgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := postgres.Migrate(store.DB().DB, dir)
			if err != nil {
				return err
			}
			logger.WithFields(map[string]interface{}{
				"direction": string(dir),
				"version":   version,
			}).Info("migrations applied")
			return nil
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the postgres ledger schema",
		Subcommands: []*cli.Command{
			{Name: "up", Usage: "apply all pending migrations", Action: run(postgres.Up)},
			{Name: "down", Usage: "revert the latest migration", Action: run(postgres.Down)},
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "write the PDF for a stored invoice",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "invoice-id", Required: true, Usage: "invoice to render"},
			&cli.StringFlag{Name: "out", Usage: "output path (default invoice-<number>.pdf)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			if cfg.Ledger.Backend == config.BackendMemory {
				return fmt.Errorf("render needs a persistent ledger backend")
			}
			d, err := openDeps(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()
			if d.admin == nil {
				return fmt.Errorf("render needs SUPABASE_SERVICE_KEY to read invoices")
			}

			inv, err := d.admin.GetInvoice(c.Context, c.Int64("invoice-id"))
			if err != nil {
				return fmt.Errorf("load invoice %d: %w", c.Int64("invoice-id"), err)
			}
			data, err := document.NewEmitter(document.Options{
				CurrencyPrefix: cfg.Billing.DocumentCurrency,
				Compress:       true,
			}).Render(inv)
			if err != nil {
				return err
			}

			out := c.String("out")
			if out == "" {
				out = document.FileName(inv.InvoiceNumber)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger.WithField("path", out).Info("invoice rendered")
			return nil
		},
	}
}
