package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/allisson/sealdrop/cmd/app/commands"
	"github.com/allisson/sealdrop/internal/client"
	"github.com/allisson/sealdrop/internal/envelope"
)

func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "secret",
			Aliases: []string{"s"},
			Sources: cli.EnvVars("SEALDROP_SECRET"),
			Usage:   "Shared secret (prompted for when empty)",
		},
		&cli.IntFlag{
			Name:  "iterations",
			Value: envelope.DefaultIterations,
			Usage: "PBKDF2 iterations; use 1000 for files from the legacy web client",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Minute,
			Usage: "Overall HTTP timeout",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "text",
			Usage:   "Output format: 'text' or 'json'",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log requests and retries to stderr",
		},
	}
}

func cliLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func secretFrom(cmd *cli.Command, confirm bool) (string, error) {
	if secret := cmd.String("secret"); secret != "" {
		return secret, nil
	}
	return commands.PromptSecret(commands.IOTuple{Reader: os.Stdin, Writer: os.Stderr}, confirm)
}

func getTransferCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "send",
			Usage:     "Encrypt a file locally and upload it to a relay",
			ArgsUsage: "<file>",
			Flags: append(transferFlags(),
				&cli.StringFlag{
					Name:     "relay",
					Aliases:  []string{"r"},
					Sources:  cli.EnvVars("SEALDROP_RELAY_URL"),
					Required: true,
					Usage:    "Relay base URL",
				},
				&cli.StringFlag{
					Name:    "to",
					Aliases: []string{"t"},
					Usage:   "Receiver email to notify",
				},
				&cli.StringFlag{
					Name:  "sender-name",
					Usage: "Sender name shown in the notification",
				},
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				path := cmd.Args().First()
				if path == "" {
					return errors.New("a file to send is required")
				}

				secret, err := secretFrom(cmd, true)
				if err != nil {
					return err
				}

				logger := cliLogger(cmd)
				relay := client.New(
					cmd.String("relay"),
					client.WithTimeout(cmd.Duration("timeout")),
					client.WithLogger(logger),
				)

				return commands.RunSend(ctx, relay, logger, commands.DefaultIO().Writer, commands.SendInput{
					Path:           path,
					Secret:         secret,
					RecipientEmail: cmd.String("to"),
					SenderName:     cmd.String("sender-name"),
					Iterations:     int(cmd.Int("iterations")),
				}, cmd.String("format"))
			},
		},
		{
			Name:      "receive",
			Usage:     "Download a file once and decrypt it locally",
			ArgsUsage: "<link>",
			Flags: append(transferFlags(),
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Value:   ".",
					Usage:   "Directory to write the file into",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Overwrite an existing file with the same name",
				},
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				baseURL, id, err := client.ParseLink(cmd.Args().First())
				if err != nil {
					return err
				}

				secret, err := secretFrom(cmd, false)
				if err != nil {
					return err
				}

				logger := cliLogger(cmd)
				relay := client.New(
					baseURL,
					client.WithTimeout(cmd.Duration("timeout")),
					client.WithLogger(logger),
				)

				return commands.RunReceive(ctx, relay, logger, commands.DefaultIO().Writer, commands.ReceiveInput{
					ID:         id,
					Secret:     secret,
					OutputDir:  cmd.String("output"),
					Iterations: int(cmd.Int("iterations")),
					Force:      cmd.Bool("force"),
				}, cmd.String("format"))
			},
		},
	}
}
