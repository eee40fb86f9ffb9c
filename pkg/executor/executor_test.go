package executor_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmuse/atelier/pkg/executor"
	"github.com/voxmuse/atelier/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func leaf(id, capability, outputKey string) *models.TaskNode {
	return &models.TaskNode{
		ID:         id,
		Kind:       models.NodeKindLeaf,
		Capability: capability,
		OutputKey:  outputKey,
	}
}

func container(id string, kind models.NodeKind, children ...*models.TaskNode) *models.TaskNode {
	return &models.TaskNode{ID: id, Kind: kind, Children: children}
}

func graph(nodes ...*models.TaskNode) *models.TaskGraph {
	return &models.TaskGraph{ID: "graph-1", Intent: "test", Nodes: nodes}
}

func TestExecutorVisitsEveryLeafOnce(t *testing.T) {
	registry := executor.NewRegistry()

	var mu sync.Mutex

	visits := map[string]int{}

	registry.Register("echo", func(_ context.Context, node *models.TaskNode, _ *models.ExecutionContext) (any, error) {
		mu.Lock()
		visits[node.ID]++
		mu.Unlock()

		return node.ID, nil
	})

	g := graph(container("root", models.NodeKindSequential,
		leaf("a", "echo", "out_a"),
		container("par", models.NodeKindParallel,
			leaf("b", "echo", "out_b"),
			leaf("c", "echo", "out_c"),
		),
		leaf("d", "echo", "out_d"),
	))

	e := executor.NewExecutor(registry, testLogger())

	execCtx, err := e.Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, visits)
	assert.Len(t, execCtx.Results, 4)
	assert.Equal(t, "c", execCtx.Results["out_c"])
}

func TestExecutorSequentialThreadsContext(t *testing.T) {
	registry := executor.NewRegistry()

	registry.Register("first", func(_ context.Context, _ *models.TaskNode, _ *models.ExecutionContext) (any, error) {
		return "hello", nil
	})
	registry.Register("second", func(_ context.Context, _ *models.TaskNode, execCtx *models.ExecutionContext) (any, error) {
		// A later sibling must see its predecessor's result.
		prev, ok := execCtx.Results["greeting"]
		if !ok {
			return nil, errors.New("predecessor result missing")
		}

		return fmt.Sprintf("%v world", prev), nil
	})

	g := graph(container("root", models.NodeKindSequential,
		leaf("n1", "first", "greeting"),
		leaf("n2", "second", "sentence"),
	))

	e := executor.NewExecutor(registry, testLogger())

	execCtx, err := e.Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, "hello world", execCtx.Results["sentence"])
}

func TestExecutorParallelDisjointKeys(t *testing.T) {
	registry := executor.NewRegistry()
	registry.Register("echo", func(_ context.Context, node *models.TaskNode, _ *models.ExecutionContext) (any, error) {
		return node.ID, nil
	})

	children := make([]*models.TaskNode, 0, 8)
	for i := range 8 {
		children = append(children, leaf(
			fmt.Sprintf("n%d", i), "echo", fmt.Sprintf("out_%d", i)))
	}

	g := graph(container("par", models.NodeKindParallel, children...))

	e := executor.NewExecutor(registry, testLogger())

	execCtx, err := e.Run(context.Background(), g)
	require.NoError(t, err)

	require.Len(t, execCtx.Results, 8)
	for i := range 8 {
		assert.Equal(t, fmt.Sprintf("n%d", i), execCtx.Results[fmt.Sprintf("out_%d", i)])
	}
}

func TestExecutorParallelCollisionIsDeterministic(t *testing.T) {
	registry := executor.NewRegistry()
	registry.Register("echo", func(_ context.Context, node *models.TaskNode, _ *models.ExecutionContext) (any, error) {
		return node.ID, nil
	})

	g := graph(container("par", models.NodeKindParallel,
		leaf("first", "echo", "shared"),
		leaf("last", "echo", "shared"),
	))

	e := executor.NewExecutor(registry, testLogger())

	// Merge order follows declaration order regardless of which child
	// finishes first, so the collision always resolves the same way.
	for range 20 {
		execCtx, err := e.Run(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, "last", execCtx.Results["shared"])
	}
}

func TestExecutorParallelSiblingFailure(t *testing.T) {
	registry := executor.NewRegistry()
	registry.Register("ok", func(_ context.Context, node *models.TaskNode, _ *models.ExecutionContext) (any, error) {
		return node.ID, nil
	})
	registry.Register("boom", func(context.Context, *models.TaskNode, *models.ExecutionContext) (any, error) {
		return nil, errors.New("leaf exploded")
	})

	g := graph(container("par", models.NodeKindParallel,
		leaf("good", "ok", "out_good"),
		leaf("bad", "boom", "out_bad"),
	))

	e := executor.NewExecutor(registry, testLogger())

	execCtx, err := e.Run(context.Background(), g)
	require.Error(t, err)

	var nodeErr *executor.NodeError

	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "bad", nodeErr.NodeID)
	// The surviving sibling's result is still merged.
	assert.Equal(t, "good", execCtx.Results["out_good"])
}

func TestExecutorUnknownCapability(t *testing.T) {
	g := graph(leaf("n1", "missing", "out"))

	e := executor.NewExecutor(executor.NewRegistry(), testLogger())

	_, err := e.Run(context.Background(), g)
	require.ErrorIs(t, err, executor.ErrUnknownCapability)
}

func TestExecutorRejectsInvalidGraph(t *testing.T) {
	g := graph(&models.TaskNode{ID: "n1", Kind: models.NodeKindLeaf})

	e := executor.NewExecutor(executor.NewRegistry(), testLogger())

	_, err := e.Run(context.Background(), g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability binding")
}

func TestExecutorCancelledContext(t *testing.T) {
	registry := executor.NewRegistry()
	registry.Register("echo", func(_ context.Context, node *models.TaskNode, _ *models.ExecutionContext) (any, error) {
		return node.ID, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := executor.NewExecutor(registry, testLogger())

	_, err := e.Run(ctx, graph(leaf("n1", "echo", "out")))
	require.ErrorIs(t, err, context.Canceled)
}
