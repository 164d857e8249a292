package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/pressgate/pressgate/pkg/cmd"
	"github.com/pressgate/pressgate/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmdRoot := &cli.Command{
		Name:                  "pressgate-audit",
		EnableShellCompletion: true,
		Usage:                 "Consume workflow lifecycle events into the audit log",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "auditor-id",
				Aliases: []string{"id"},
				Usage:   "Custom auditor ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("AUDITOR_ID"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS"),
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

			auditorID := command.String("auditor-id")
			if auditorID == "" {
				auditorID = "auditor-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("pressgate-audit").With("auditor_id", auditorID)

			logger.InfoContext(ctx, "Initializing PressGate auditor")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			auditor := NewAuditor(auditorID, eventBus, logger)

			err := auditor.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start auditor", "error", err)
			}

			return nil
		},
	}

	err := cmdRoot.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
