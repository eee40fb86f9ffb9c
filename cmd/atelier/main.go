package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/voxmuse/atelier/pkg/log"
	"github.com/voxmuse/atelier/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "atelier",
		Usage:                 "Run autonomous content productions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "state-url",
				Usage:   "State store URL (redis://... or memory)",
				Value:   "memory",
				Sources: cli.EnvVars("STATE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			// Spans export only when an OTLP endpoint is configured.
			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				if _, err := otelhelper.NewTracer(ctx, "atelier"); err != nil {
					return ctx, err
				}
			}

			return ctx, nil
		},
		Commands: []*cli.Command{
			produceCommand(),
			graphCommand(),
			fundCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("atelier").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
