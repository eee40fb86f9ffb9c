package pipeline

import (
	"context"

	"github.com/voxmuse/atelier/pkg/executor"
	"github.com/voxmuse/atelier/pkg/models"
)

// LeafHandler adapts a pipeline to a task-graph leaf, so a plan can
// embed full productions alongside simpler actions. The leaf's
// instruction overrides the base request's intent; each invocation gets
// a fresh task id.
func LeafHandler(p *Pipeline, base Request) executor.Handler {
	return func(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) (any, error) {
		req := base
		req.TaskID = ""

		if node.Instruction != "" {
			req.Intent = node.Instruction
		} else if req.Intent == "" {
			req.Intent = execCtx.Intent
		}

		return p.Produce(ctx, req)
	}
}
