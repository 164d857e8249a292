package main

import (
	"context"
	"os"

	"github.com/pressgate/pressgate/pkg/cmd"
	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/log"
	"github.com/pressgate/pressgate/pkg/otelhelper"
	"github.com/pressgate/pressgate/pkg/permissions"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("api")

	cmdRoot := &cli.Command{
		Name:                  "pressgate-api",
		Usage:                 "Run the content approval workflow API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "content-url",
				Usage:    "Base URL of the content management system API",
				Required: true,
				Sources:  cli.EnvVars("CONTENT_URL"),
			},
			&cli.StringFlag{
				Name:    "permissions-path",
				Usage:   "Path to a JSON file of approval chain rules loaded at startup",
				Sources: cli.EnvVars("PERMISSIONS_PATH"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing PressGate API")

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				if _, err := otelhelper.NewTracer(ctx, "pressgate-api"); err != nil {
					return err
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if path := command.String("permissions-path"); path != "" {
				count, err := permissions.LoadRules(ctx, persistence.Permissions(), path)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Loaded approval chain rules", "count", count)
			}

			cms := content.NewClient(command.String("content-url"))

			api := NewAPI(
				logger,
				persistence,
				cms,
				eventBus,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmdRoot.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
