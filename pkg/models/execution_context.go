package models

// ExecutionContext carries the accumulated results of a task-graph run.
// Sequential children see the context as left by their predecessors;
// parallel children receive a read snapshot and return partial results
// that are merged in declaration order.
type ExecutionContext struct {
	ID      string         `json:"id"`
	GraphID string         `json:"graph_id"`
	Intent  string         `json:"intent,omitempty"`
	Results map[string]any `json:"results,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Snapshot returns a shallow copy safe to hand to a concurrent child.
func (c *ExecutionContext) Snapshot() *ExecutionContext {
	results := make(map[string]any, len(c.Results))
	for k, v := range c.Results {
		results[k] = v
	}

	meta := make(map[string]any, len(c.Meta))
	for k, v := range c.Meta {
		meta[k] = v
	}

	return &ExecutionContext{
		ID:      c.ID,
		GraphID: c.GraphID,
		Intent:  c.Intent,
		Results: results,
		Meta:    meta,
	}
}

// Merge folds a child's partial results into the context. Collisions are
// resolved last-writer-wins; the executor calls Merge in child
// declaration order so the outcome is deterministic.
func (c *ExecutionContext) Merge(partial map[string]any) {
	if c.Results == nil {
		c.Results = make(map[string]any, len(partial))
	}

	for k, v := range partial {
		c.Results[k] = v
	}
}
