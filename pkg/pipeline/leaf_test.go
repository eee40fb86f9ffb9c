package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmuse/atelier/pkg/executor"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/pipeline"
)

func TestLeafHandlerRunsProductionsInsideGraph(t *testing.T) {
	h := newHarness(t, 50.0)
	p := h.pipeline(t)

	base := request()
	base.TaskID = ""

	registry := executor.NewRegistry()
	registry.Register("produce", pipeline.LeafHandler(p, base))

	graph := &models.TaskGraph{
		ID:     "graph-best-of",
		Intent: "daily piece",
		Nodes: []*models.TaskNode{
			{
				ID:   "variants",
				Kind: models.NodeKindParallel,
				Children: []*models.TaskNode{
					{ID: "v1", Kind: models.NodeKindLeaf, Capability: "produce", OutputKey: "variant_a"},
					{ID: "v2", Kind: models.NodeKindLeaf, Capability: "produce", Instruction: "evening walk", OutputKey: "variant_b"},
				},
			},
		},
	}

	exec := executor.NewExecutor(registry, testLogger())

	execCtx, err := exec.Run(context.Background(), graph)
	require.NoError(t, err)

	a, ok := execCtx.Results["variant_a"].(*models.ProductionResult)
	require.True(t, ok)
	assert.True(t, a.Completed())

	b, ok := execCtx.Results["variant_b"].(*models.ProductionResult)
	require.True(t, ok)
	assert.True(t, b.Completed())
	assert.NotEqual(t, a.TaskID, b.TaskID)

	// Both concurrent runs settled against the shared wallet.
	wallet, err := h.store.Wallet(context.Background(), "acct-main")
	require.NoError(t, err)
	assert.InDelta(t, 50.0-2*0.65, wallet.Balance, 0.0001)
}
