package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/voxmuse/atelier/pkg/models"
)

// planSchema describes the JSON shape of a task graph file. Structural
// invariants beyond the shape (capability bindings, duplicate ids) are
// enforced by TaskGraph.Validate afterwards.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "intent", "nodes"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "intent": {"type": "string", "minLength": 1},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/definitions/node"}
    }
  },
  "definitions": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "kind": {"enum": ["leaf", "sequential", "parallel"]},
        "capability": {"type": "string"},
        "instruction": {"type": "string"},
        "output_key": {"type": "string"},
        "children": {
          "type": "array",
          "items": {"$ref": "#/definitions/node"}
        }
      }
    }
  }
}`

// LoadPlan parses and validates a task graph from JSON.
func LoadPlan(data []byte) (*models.TaskGraph, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validating plan: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("plan does not match schema: %s", strings.Join(details, "; "))
	}

	var graph models.TaskGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	return &graph, nil
}

// LoadPlanFile reads and parses a task graph file.
func LoadPlanFile(path string) (*models.TaskGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	return LoadPlan(data)
}
