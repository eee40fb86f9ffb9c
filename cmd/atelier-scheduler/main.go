// Package main provides the autonomous scheduler: it triggers a
// production on a cron cadence without human initiation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/capabilities/sim"
	"github.com/voxmuse/atelier/pkg/cmd"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/log"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/otelhelper"
	"github.com/voxmuse/atelier/pkg/pipeline"
	"github.com/voxmuse/atelier/pkg/solvency"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:  "atelier-scheduler",
		Usage: "Trigger productions on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for production runs",
				Value:   "0 */6 * * *",
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.StringFlag{
				Name:     "account",
				Usage:    "Wallet address productions settle against",
				Required: true,
				Sources:  cli.EnvVars("ATELIER_ACCOUNT"),
			},
			&cli.StringFlag{
				Name:    "intent",
				Usage:   "Standing production intent",
				Value:   "daily piece",
				Sources: cli.EnvVars("ATELIER_INTENT"),
			},
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
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return run(ctx, command, logger)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Spans export only when an OTLP endpoint is configured.
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		if _, err := otelhelper.NewTracer(ctx, "atelier-scheduler"); err != nil {
			return err
		}
	}

	store, err := cmd.NewStateStore(ctx, command.String("state-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close state store", "error", err)
		}
	}()

	bus := cmd.NewEventBus(command.String("event-bus"), "scheduler", logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	p := pipeline.New(
		store,
		solvency.NewGuard(nil, solvency.DefaultConfig(), logger),
		ledger.NewLedger(store, logger),
		approval.NewGate(store, bus, approval.DefaultConfig(), logger),
		sim.NewSet(),
		bus,
		pipeline.DefaultConfig(),
		logger,
	)

	req := pipeline.Request{
		Account:   command.String("account"),
		Intent:    command.String("intent"),
		SubjectID: "muse-default",
		World:     defaultWorld(),
		Wardrobe:  defaultWardrobe(),
	}

	scheduler := cron.New()

	_, err = scheduler.AddFunc(command.String("schedule"), func() {
		result, err := p.Produce(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "Scheduled production failed", "error", err)

			return
		}

		logger.InfoContext(ctx, "Scheduled production finished",
			"task_id", result.TaskID,
			"stage", result.Stage,
			"staged_path", result.StagedPath,
		)
	})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Scheduler started", "schedule", command.String("schedule"))
	scheduler.Start()

	<-ctx.Done()

	logger.InfoContext(ctx, "Scheduler stopping")
	<-scheduler.Stop().Done()

	return nil
}

func defaultWorld() *models.WorldRegistry {
	return &models.WorldRegistry{
		Locations: []models.Location{
			{
				ID:          "loc-studio",
				Name:        "Studio apartment",
				Description: "a small sunlit studio apartment with plants on the windowsill",
			},
		},
	}
}

func defaultWardrobe() *models.WardrobeRegistry {
	return &models.WardrobeRegistry{
		Items: []models.WardrobeItem{
			{ID: "item-linen", Name: "Linen shirt", Description: "an oversized cream linen shirt"},
		},
	}
}
