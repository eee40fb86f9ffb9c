package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/capabilities"
	"github.com/voxmuse/atelier/pkg/capabilities/sim"
	"github.com/voxmuse/atelier/pkg/cmd"
	"github.com/voxmuse/atelier/pkg/executor"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/log"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/pipeline"
	"github.com/voxmuse/atelier/pkg/solvency"
)

func graphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Execute a task graph plan file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Usage:    "Path to the task graph JSON file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "account",
				Usage:   "Wallet address enabling the 'produce' capability in plans",
				Sources: cli.EnvVars("ATELIER_ACCOUNT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("atelier")

			graph, err := executor.LoadPlanFile(command.String("plan"))
			if err != nil {
				return err
			}

			registry := simRegistry()

			if account := command.String("account"); account != "" {
				store, err := cmd.NewStateStore(ctx, command.String("state-url"))
				if err != nil {
					return err
				}

				defer func() {
					if err := store.Close(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to close state store", "error", err)
					}
				}()

				p := pipeline.New(
					store,
					solvency.NewGuard(nil, solvency.DefaultConfig(), logger),
					ledger.NewLedger(store, logger),
					approval.NewGate(store, nil, approval.DefaultConfig(), logger),
					sim.NewSet(),
					nil,
					pipeline.DefaultConfig(),
					logger,
				)

				registry.Register("produce", pipeline.LeafHandler(p, pipeline.Request{
					Account:   account,
					SubjectID: "muse-default",
					World:     defaultWorld(),
					Wardrobe:  defaultWardrobe(),
				}))
			}

			exec := executor.NewExecutor(registry, logger)

			execCtx, err := exec.Run(ctx, graph)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(execCtx)
		},
	}
}

// simRegistry binds the creative capability names usable in plan files
// to the simulated implementations.
func simRegistry() *executor.Registry {
	caps := sim.NewSet()
	registry := executor.NewRegistry()

	registry.Register("narrate", func(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) (any, error) {
		topic := node.Instruction
		if topic == "" {
			topic = execCtx.Intent
		}

		return caps.Narrator.GenerateNarrative(ctx, topic, nil)
	})

	registry.Register("plan_layout", func(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) (any, error) {
		script, err := scriptFromContext(execCtx)
		if err != nil {
			return nil, err
		}

		return caps.Architect.PlanLayout(ctx, script, defaultWorld())
	})

	registry.Register("select_look", func(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) (any, error) {
		script, err := scriptFromContext(execCtx)
		if err != nil {
			return nil, err
		}

		layout, ok := execCtx.Results["layout"].(*models.SceneLayout)
		if !ok {
			return nil, fmt.Errorf("no layout in context for node %s", node.ID)
		}

		return caps.Stylist.SelectLook(ctx, script, layout, nil, defaultWardrobe())
	})

	registry.Register("generate_image", func(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) (any, error) {
		return caps.Studio.GenerateImage(ctx, node.Instruction, capabilities.ImageRefs{})
	})

	return registry
}

func scriptFromContext(execCtx *models.ExecutionContext) (*models.Script, error) {
	script, ok := execCtx.Results["script"].(*models.Script)
	if !ok {
		return nil, fmt.Errorf("no script in context")
	}

	return script, nil
}
