package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/pkg/schema"
)

// validateGraph runs the same graph analysis the engine performs at run
// time: trigger selection, reachability and scheduling.
func validateGraph(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	g := engine.NewGraph(def)

	for _, e := range g.Dangling {
		result.AddWarning(fmt.Sprintf("connections[%s->%s]", e.From, e.To), schema.IssueDanglingEdge,
			fmt.Sprintf("connection %s -> %s references a missing node and is ignored", e.From, e.To))
	}

	trigger, err := g.Trigger()
	if err != nil {
		var fe *schema.FlowError
		if errors.As(err, &fe) {
			result.AddError("nodes", fe.Code, fe.Message)
		} else {
			result.AddError("nodes", schema.ErrCodeValidation, err.Error())
		}
		return result
	}

	reachable := engine.Reachable(trigger.ID, g.Edges)
	inRun := make(map[string]bool, len(reachable))
	for _, id := range reachable {
		inRun[id] = true
	}
	for _, id := range g.IDs {
		if n := g.Nodes[id]; n.Kind == schema.NodeKindAction && !inRun[id] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", id), schema.IssueUnreachable,
				fmt.Sprintf("node %q is not reachable from trigger %q and will not run", id, trigger.ID))
		}
	}

	if _, acyclic := engine.Order(reachable, g.Edges); !acyclic {
		result.AddWarning("connections", schema.IssueCycle,
			fmt.Sprintf("reachable nodes contain a cycle; they will run in discovery order: %s", strings.Join(reachable, ", ")))
	}
	return result
}
