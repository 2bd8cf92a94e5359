package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/provenance/cmd/app/commands"
	"github.com/allisson/provenance/internal/app"
	"github.com/allisson/provenance/internal/config"
)

// withKeyManager runs fn with the container's key manager and closes the container after.
func withKeyManager(
	ctx context.Context,
	fn func(cfg *config.Config, container *app.Container, manager commands.KeyManager) error,
) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	defer func() { _ = container.Shutdown(ctx) }()

	manager, err := container.KeyManager()
	if err != nil {
		return err
	}
	return fn(cfg, container, manager)
}

func keyTransitionCommand(action, usage string) *cli.Command {
	return &cli.Command{
		Name:  action + "-key",
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Aliases:  []string{"i"},
				Required: true,
				Usage:    "Key ID",
			},
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withKeyManager(ctx, func(_ *config.Config, container *app.Container, manager commands.KeyManager) error {
				return commands.RunKeyTransition(
					ctx,
					manager,
					container.Logger(),
					commands.DefaultIO().Writer,
					action,
					cmd.String("id"),
					cmd.String("format"),
				)
			})
		},
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "generate-key",
			Usage: "Generate a signing, encryption or master key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "Key ID (generated from the purpose when empty)",
				},
				&cli.StringFlag{
					Name:    "type",
					Aliases: []string{"t"},
					Value:   "signing",
					Usage:   "Key type: signing, encryption or master",
				},
				&cli.StringFlag{
					Name:    "purpose",
					Aliases: []string{"p"},
					Usage:   "Key purpose (defaults to ANCHOR_KEY_PURPOSE)",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"alg"},
					Usage:   "Signing algorithm: ed25519 or ecdsa-p256 (defaults to SIGNING_ALGORITHM)",
				},
				&cli.IntFlag{
					Name:  "validity-days",
					Value: -1,
					Usage: "Days until the key expires, 0 for no expiry (defaults to SIGNING_KEY_VALIDITY_DAYS)",
				},
				&cli.BoolFlag{
					Name:  "pending",
					Usage: "Create the key as pending even when its purpose has no active key",
				},
				&cli.StringFlag{
					Name:  "parent",
					Usage: "Master key an encryption key is derived from",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withKeyManager(ctx, func(cfg *config.Config, container *app.Container, manager commands.KeyManager) error {
					in := commands.GenerateKeyInput{
						ID:           cmd.String("id"),
						KeyType:      cmd.String("type"),
						Purpose:      cmd.String("purpose"),
						Algorithm:    cmd.String("algorithm"),
						ValidityDays: cmd.Int("validity-days"),
						Pending:      cmd.Bool("pending"),
						ParentKeyID:  cmd.String("parent"),
						Format:       cmd.String("format"),
					}
					if in.Purpose == "" {
						in.Purpose = cfg.AnchorKeyPurpose
					}
					if in.Algorithm == "" {
						in.Algorithm = cfg.SigningAlgorithm
					}
					if in.ValidityDays < 0 {
						in.ValidityDays = cfg.SigningKeyValidityDays
					}
					return commands.RunGenerateKey(ctx, manager, container.Logger(), commands.DefaultIO().Writer, in)
				})
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Retire a key and activate its successor in one step",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Key ID to retire",
				},
				&cli.StringFlag{
					Name:  "new-id",
					Usage: "Pending key to activate (a successor is generated when empty)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withKeyManager(ctx, func(_ *config.Config, container *app.Container, manager commands.KeyManager) error {
					return commands.RunRotateKey(
						ctx,
						manager,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("id"),
						cmd.String("new-id"),
						cmd.String("format"),
					)
				})
			},
		},
		keyTransitionCommand("activate", "Activate a pending key"),
		keyTransitionCommand("retire", "Retire an active key; it keeps verifying existing anchors"),
		keyTransitionCommand("revoke", "Revoke a key; anchors it signed no longer verify"),
		{
			Name:  "purge-keys",
			Usage: "Wipe the secret material of keys retired beyond KEY_RETENTION_DAYS",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withKeyManager(ctx, func(_ *config.Config, container *app.Container, manager commands.KeyManager) error {
					return commands.RunPurgeKeys(
						ctx,
						manager,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "list-keys",
			Usage: "List key metadata",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "purpose",
					Aliases: []string{"p"},
					Usage:   "Only list keys of this purpose",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withKeyManager(ctx, func(_ *config.Config, _ *app.Container, manager commands.KeyManager) error {
					return commands.RunListKeys(manager, commands.DefaultIO().Writer, cmd.String("purpose"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "export-public-keys",
			Usage: "Export the public keys capsule verifiers need",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withKeyManager(ctx, func(_ *config.Config, _ *app.Container, manager commands.KeyManager) error {
					return commands.RunExportPublicKeys(manager, commands.DefaultIO().Writer, cmd.String("format"))
				})
			},
		},
	}
}
