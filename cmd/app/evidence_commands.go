package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/provenance/cmd/app/commands"
	"github.com/allisson/provenance/internal/app"
	"github.com/allisson/provenance/internal/config"
)

func getEvidenceCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "admit",
			Usage: "Assess and admit a metadata document into the ledger",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "file",
					Aliases: []string{"i"},
					Value:   "-",
					Usage:   "Metadata JSON file, or '-' for stdin",
				},
				&cli.StringFlag{
					Name:    "type",
					Aliases: []string{"t"},
					Usage:   "Record type: dataset, model, inference or anchor",
				},
				&cli.StringFlag{
					Name:    "policy",
					Aliases: []string{"p"},
					Usage:   "Policy to assess against (default policy when empty)",
				},
				&cli.BoolFlag{
					Name:  "batch",
					Usage: "Input is a JSON array of {record_type, metadata, policy_id} submissions",
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
				return commands.RunAdmit(ctx, useCase, container.Logger(), commands.DefaultIO(), commands.AdmitInput{
					File:       cmd.String("file"),
					RecordType: cmd.String("type"),
					PolicyID:   cmd.String("policy"),
					Batch:      cmd.Bool("batch"),
					Format:     cmd.String("format"),
				})
			},
		},
		{
			Name:  "prove",
			Usage: "Build the proof capsule of a leaf",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "leaf",
					Aliases:  []string{"l"},
					Required: true,
					Usage:    "Leaf hash",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Capsule file (stdout when empty)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				useCase, err := container.EvidenceUseCase()
				if err != nil {
					return err
				}
				return commands.RunProve(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("leaf"),
					cmd.String("output"),
				)
			},
		},
		{
			Name:  "verify-capsule",
			Usage: "Verify a proof capsule offline",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "capsule",
					Aliases: []string{"c"},
					Value:   "-",
					Usage:   "Capsule file, or '-' for stdin",
				},
				&cli.StringFlag{
					Name:    "keys",
					Aliases: []string{"k"},
					Usage:   "Public keys JSON from export-public-keys --format json (local key set when empty)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				var publicKeys map[string]string
				if path := cmd.String("keys"); path != "" {
					keys, err := commands.LoadPublicKeys(path)
					if err != nil {
						return err
					}
					publicKeys = keys
				} else {
					cfg := config.Load()
					container := app.NewContainer(cfg)
					defer func() { _ = container.Shutdown(ctx) }()

					manager, err := container.KeyManager()
					if err != nil {
						return err
					}
					publicKeys = make(map[string]string)
					for _, k := range manager.PublicKeys() {
						publicKeys[k.KeyID] = k.PublicKeyPEM
					}
				}
				return commands.RunVerifyCapsule(commands.DefaultIO(), cmd.String("capsule"), publicKeys, cmd.String("format"))
			},
		},
	}
}
