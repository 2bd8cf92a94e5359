package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/provenance/cmd/app/commands"
	"github.com/allisson/provenance/internal/app"
	"github.com/allisson/provenance/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the evidence HTTP API",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply the WORM store schema for SQL store drivers",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				switch cfg.StoreDriver {
				case config.StoreDriverSQLite, config.StoreDriverPostgres, config.StoreDriverMySQL:
					db, err := container.DB()
					if err != nil {
						return err
					}
					return commands.RunMigrations(db, cfg.StoreDriver, container.Logger())
				default:
					return commands.RunMigrations(nil, cfg.StoreDriver, container.Logger())
				}
			},
		},
		{
			Name:  "verify-ledger",
			Usage: "Re-verify every stored leaf, the root and every anchor",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				useCase, err := container.EvidenceUseCase()
				if err != nil {
					return err
				}
				return commands.RunVerifyLedger(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "anchor",
			Usage: "Sign and persist an anchor of the current ledger root",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "policy",
					Aliases: []string{"p"},
					Usage:   "Policy the anchor is bound to (default policy when empty)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				useCase, err := container.EvidenceUseCase()
				if err != nil {
					return err
				}
				return commands.RunAnchor(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("policy"),
					cmd.String("format"),
				)
			},
		},
	}
}
