// Package executor walks production task graphs: sequential nodes
// thread the shared context through their children in order, parallel
// nodes fan out over snapshots, and leaves dispatch to registered
// capability handlers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/otelhelper"
)

// ErrUnknownCapability indicates a leaf references a capability with no
// registered handler.
var ErrUnknownCapability = errors.New("unknown capability")

// Handler executes one leaf node against the current context and
// returns the value stored under the leaf's output key.
type Handler func(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) (any, error)

// Registry maps capability names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(capability string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[capability] = handler
}

func (r *Registry) handler(capability string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[capability]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}

	return h, nil
}

// NodeError wraps a failure with the node it occurred on.
type NodeError struct {
	NodeID string
	Kind   models.NodeKind
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %s", e.NodeID, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Executor runs validated task graphs. It is stateless between runs and
// safe for concurrent use.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger.With("module", "executor"),
		tracer:   otel.Tracer("github.com/voxmuse/atelier/pkg/executor"),
	}
}

// Run validates the graph and executes its nodes in declaration order,
// returning the final accumulated context.
func (e *Executor) Run(ctx context.Context, graph *models.TaskGraph) (*models.ExecutionContext, error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task graph: %w", err)
	}

	ctx, span := e.tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.String(otelhelper.GraphIDKey, graph.ID),
	))
	defer span.End()

	execCtx := &models.ExecutionContext{
		ID:      "exec-" + uuid.New().String()[:8],
		GraphID: graph.ID,
		Intent:  graph.Intent,
		Results: make(map[string]any),
		Meta:    make(map[string]any),
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionKey, execCtx.ID))

	e.logger.InfoContext(ctx, "Starting graph execution",
		"graph_id", graph.ID, "execution_id", execCtx.ID)

	for _, node := range graph.Nodes {
		if err := e.execute(ctx, node, execCtx); err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.GraphIDKey, graph.ID))
			e.logger.ErrorContext(ctx, "Graph execution failed",
				"graph_id", graph.ID, "execution_id", execCtx.ID, "error", err)

			return execCtx, err
		}
	}

	e.logger.InfoContext(ctx, "Graph execution finished",
		"graph_id", graph.ID, "execution_id", execCtx.ID, "results", len(execCtx.Results))

	return execCtx, nil
}

func (e *Executor) execute(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) error {
	if err := ctx.Err(); err != nil {
		return &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	switch node.Kind {
	case models.NodeKindSequential:
		return e.executeSequential(ctx, node, execCtx)
	case models.NodeKindParallel:
		return e.executeParallel(ctx, node, execCtx)
	case models.NodeKindLeaf:
		return e.executeLeaf(ctx, node, execCtx)
	default:
		return &NodeError{NodeID: node.ID, Kind: node.Kind, Err: errors.New("unknown node kind")}
	}
}

// executeSequential threads the live context through each child: later
// children observe every result their predecessors wrote.
func (e *Executor) executeSequential(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) error {
	for _, child := range node.Children {
		if err := e.execute(ctx, child, execCtx); err != nil {
			return err
		}
	}

	return nil
}

// executeParallel runs every child concurrently against its own
// snapshot, then merges the partial results back in declaration order.
// All children are waited on even when one fails; the first failure in
// declaration order is returned and successful siblings still merge.
func (e *Executor) executeParallel(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) error {
	type outcome struct {
		snapshot *models.ExecutionContext
		err      error
	}

	outcomes := make([]outcome, len(node.Children))

	var wg sync.WaitGroup

	for i, child := range node.Children {
		snapshot := execCtx.Snapshot()
		outcomes[i].snapshot = snapshot

		wg.Add(1)

		go func(i int, child *models.TaskNode) {
			defer wg.Done()

			outcomes[i].err = e.execute(ctx, child, snapshot)
		}(i, child)
	}

	wg.Wait()

	var firstErr error

	for i := range outcomes {
		if outcomes[i].err != nil {
			if firstErr == nil {
				firstErr = outcomes[i].err
			}

			continue
		}

		execCtx.Merge(outcomes[i].snapshot.Results)
	}

	return firstErr
}

func (e *Executor) executeLeaf(ctx context.Context, node *models.TaskNode, execCtx *models.ExecutionContext) error {
	handler, err := e.registry.handler(node.Capability)
	if err != nil {
		return &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.leaf",
		attribute.String(otelhelper.CapabilityKey, node.Capability),
	)
	defer span.End()

	e.logger.DebugContext(ctx, "Dispatching leaf",
		"node_id", node.ID, "capability", node.Capability)

	output, err := handler(ctx, node, execCtx)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.CapabilityKey, node.Capability))

		return &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	if execCtx.Results == nil {
		execCtx.Results = make(map[string]any)
	}

	execCtx.Results[node.OutputKey] = output

	return nil
}
