// Command billing runs the invoice composer service and its maintenance tasks.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/R3E-Network/billing_layer/internal/config"
	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/services/invoicing/httpapi"
)

func main() {
	app := &cli.App{
		Name:    "billing",
		Usage:   "small-business invoice composer",
		Version: httpapi.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				EnvVars: []string{"BILLING_CONFIG"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			renderCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("billing: %v", err)
	}
}

// setup loads configuration and builds the process logger.
func setup(c *cli.Context) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(httpapi.ServiceID, cfg.Log.Level, cfg.Log.Format), nil
}
