// Package models defines the core domain models for production orchestration.
package models

import "fmt"

// NodeKind represents the variant of a task node.
type NodeKind string

const (
	NodeKindLeaf       NodeKind = "leaf"       // Dispatches to a bound capability handler
	NodeKindSequential NodeKind = "sequential" // Runs children in order, threading context
	NodeKindParallel   NodeKind = "parallel"   // Runs children concurrently against a snapshot
)

// TaskNode is one node of a production task graph. Graphs are finite
// trees: a node is never shared between parents and never revisited
// within a run. Leaf nodes carry the capability binding; container
// nodes carry children.
type TaskNode struct {
	ID          string      `json:"id"          validate:"required"`
	Kind        NodeKind    `json:"kind"        validate:"required,oneof=leaf sequential parallel"`
	Capability  string      `json:"capability,omitempty"`
	Instruction string      `json:"instruction,omitempty"`
	OutputKey   string      `json:"output_key,omitempty"`
	Children    []*TaskNode `json:"children,omitempty"`
}

// TaskGraph is the execution plan for one production intent. Nodes are
// executed in declaration order and owned exclusively by the executor
// for the duration of a run.
type TaskGraph struct {
	ID     string      `json:"id"     validate:"required"`
	Intent string      `json:"intent" validate:"required"`
	Nodes  []*TaskNode `json:"nodes"  validate:"required,min=1"`
}

// Validate checks the structural invariants of a node and its subtree.
func (n *TaskNode) Validate() error {
	switch n.Kind {
	case NodeKindLeaf:
		if n.Capability == "" {
			return fmt.Errorf("leaf node %s has no capability binding", n.ID)
		}

		if n.OutputKey == "" {
			return fmt.Errorf("leaf node %s has no declared output key", n.ID)
		}

		if len(n.Children) > 0 {
			return fmt.Errorf("leaf node %s must not have children", n.ID)
		}
	case NodeKindSequential, NodeKindParallel:
		if len(n.Children) == 0 {
			return fmt.Errorf("%s node %s has no children", n.Kind, n.ID)
		}

		for _, child := range n.Children {
			if err := child.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("node %s has unknown kind %q", n.ID, n.Kind)
	}

	return nil
}

// Validate checks the whole graph before execution.
func (g *TaskGraph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("task graph %s has no nodes", g.ID)
	}

	seen := make(map[string]bool)
	for _, node := range g.Nodes {
		if err := node.Validate(); err != nil {
			return err
		}

		if err := collectIDs(node, seen); err != nil {
			return err
		}
	}

	return nil
}

func collectIDs(n *TaskNode, seen map[string]bool) error {
	if seen[n.ID] {
		return fmt.Errorf("node id %s appears more than once", n.ID)
	}

	seen[n.ID] = true

	for _, child := range n.Children {
		if err := collectIDs(child, seen); err != nil {
			return err
		}
	}

	return nil
}

// Leaves returns every leaf node of the subtree in declaration order.
func (n *TaskNode) Leaves() []*TaskNode {
	if n.Kind == NodeKindLeaf {
		return []*TaskNode{n}
	}

	var leaves []*TaskNode
	for _, child := range n.Children {
		leaves = append(leaves, child.Leaves()...)
	}

	return leaves
}
