package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/capabilities/sim"
	"github.com/voxmuse/atelier/pkg/cmd"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/log"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/pipeline"
	"github.com/voxmuse/atelier/pkg/solvency"
)

func produceCommand() *cli.Command {
	return &cli.Command{
		Name:  "produce",
		Usage: "Run one production end to end with simulated capabilities",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "account",
				Usage:    "Wallet address the production settles against",
				Required: true,
				Sources:  cli.EnvVars("ATELIER_ACCOUNT"),
			},
			&cli.StringFlag{
				Name:     "intent",
				Usage:    "What to produce",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Identity the visuals must stay consistent with",
				Value: "muse-default",
			},
			&cli.IntFlag{
				Name:  "variants",
				Usage: "Number of concurrent runs to launch, keeping the best",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "require-script-approval",
				Usage: "Suspend for human review after the script is written",
			},
			&cli.BoolFlag{
				Name:  "require-visual-approval",
				Usage: "Suspend for human review before video generation",
			},
		},
		Action: runProduce,
	}
}

func runProduce(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("atelier")

	store, err := cmd.NewStateStore(ctx, command.String("state-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close state store", "error", err)
		}
	}()

	bus := cmd.NewEventBus(command.String("event-bus"), "atelier", logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	config := pipeline.DefaultConfig()
	config.RequireScriptApproval = command.Bool("require-script-approval")
	config.RequireVisualApproval = command.Bool("require-visual-approval")

	p := pipeline.New(
		store,
		solvency.NewGuard(nil, solvency.DefaultConfig(), logger),
		ledger.NewLedger(store, logger),
		approval.NewGate(store, bus, approval.DefaultConfig(), logger),
		sim.NewSet(),
		bus,
		config,
		logger,
	)

	req := pipeline.Request{
		Account:   command.String("account"),
		Intent:    command.String("intent"),
		SubjectID: command.String("subject"),
		World:     defaultWorld(),
		Wardrobe:  defaultWardrobe(),
	}

	var result *models.ProductionResult

	if variants := command.Int("variants"); variants > 1 {
		reqs := make([]pipeline.Request, variants)
		for i := range reqs {
			reqs[i] = req
		}

		launcher := pipeline.NewLauncher(p, logger)

		result, err = launcher.BestOf(ctx, reqs)
	} else {
		result, err = p.Produce(ctx, req)
	}

	if err != nil {
		return err
	}

	return printResult(result)
}

func printResult(result *models.ProductionResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(result)
}

func defaultWorld() *models.WorldRegistry {
	return &models.WorldRegistry{
		Locations: []models.Location{
			{
				ID:          "loc-studio",
				Name:        "Studio apartment",
				Description: "a small sunlit studio apartment with plants on the windowsill",
				ObjectIDs:   []string{"obj-easel", "obj-record-player"},
			},
		},
	}
}

func defaultWardrobe() *models.WardrobeRegistry {
	return &models.WardrobeRegistry{
		Items: []models.WardrobeItem{
			{ID: "item-linen", Name: "Linen shirt", Description: "an oversized cream linen shirt"},
		},
		Props: []models.Prop{
			{ID: "prop-coffee", Name: "Coffee cup"},
		},
	}
}

func fundCommand() *cli.Command {
	return &cli.Command{
		Name:  "fund",
		Usage: "Record an income transaction for an account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "account",
				Required: true,
			},
			&cli.FloatFlag{
				Name:     "amount",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "description",
				Value: "manual funding",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("atelier")

			store, err := cmd.NewStateStore(ctx, command.String("state-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close state store", "error", err)
				}
			}()

			address := command.String("account")

			// Seed the wallet if the account does not exist yet.
			if _, err := store.Wallet(ctx, address); err != nil {
				if putErr := store.PutWallet(ctx, &models.Wallet{
					Address:  address,
					Currency: "USD",
				}); putErr != nil {
					return putErr
				}
			}

			led := ledger.NewLedger(store, logger)

			tx, err := led.Record(ctx, address, models.TransactionIncome, models.CategorySponsorship,
				command.Float("amount"), command.String("description"), nil)
			if err != nil {
				return err
			}

			fmt.Printf("recorded %s: +%.2f to %s\n", tx.ID, tx.Amount, address)

			return nil
		},
	}
}
