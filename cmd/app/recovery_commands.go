package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/identity/cmd/app/commands"
	"github.com/allisson/identity/internal/app"
	"github.com/allisson/identity/internal/config"
)

func getRecoveryCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "request-password-reset",
			Usage: "Queue a password reset email for a user",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "email",
					Aliases:  []string{"e"},
					Required: true,
					Usage:    "Email address of the account",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				recoveryUseCase, err := container.RecoveryUseCase()
				if err != nil {
					return err
				}

				return commands.RunRequestPasswordReset(
					ctx,
					recoveryUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("email"),
				)
			},
		},
	}
}
