package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/allisson/sealdrop/cmd/app/commands"
	"github.com/allisson/sealdrop/internal/app"
	"github.com/allisson/sealdrop/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server (and the outbox worker when enabled)",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "worker",
			Usage: "Run the outbox worker and the expiry reaper without the HTTP server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
		{
			Name:  "clean-expired-files",
			Usage: "Delete pending files older than the configured TTL",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "hours",
					Aliases: []string{"H"},
					Usage:   "Override FILE_TTL_HOURS for this run",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show how many files would be deleted without deleting",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				fileUseCase, err := container.FileUseCase()
				if err != nil {
					return err
				}

				ttl := cfg.FileTTL
				if cmd.IsSet("hours") {
					ttl = time.Duration(cmd.Int("hours")) * time.Hour
				}

				return commands.RunCleanExpiredFiles(
					ctx,
					fileUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					ttl,
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "outbox-status",
			Usage: "Show pending and failed outbox events",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "strict",
					Usage: "Exit with an error when any event has failed permanently",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				outboxUseCase, err := container.OutboxUseCase()
				if err != nil {
					return err
				}

				return commands.RunOutboxStatus(
					ctx,
					outboxUseCase,
					commands.DefaultIO().Writer,
					cmd.Bool("strict"),
					cmd.String("format"),
				)
			},
		},
	}
}
