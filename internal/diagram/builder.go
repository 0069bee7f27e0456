package diagram

import (
	"errors"
	"fmt"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/pkg/schema"
)

const defaultTitle = "Workflow"

// Build constructs a DiagramModel from a workflow definition and an optional
// run result whose node statuses are overlaid. Definitions without a single
// trigger still render; every node is then marked unreachable.
func Build(def *schema.WorkflowDefinition, result *schema.RunResult) (*DiagramModel, error) {
	if def == nil {
		return nil, errors.New("diagram: nil workflow definition")
	}
	g := engine.NewGraph(def)

	depth := map[string]int{}
	if trigger, err := g.Trigger(); err == nil {
		depth = depths(trigger.ID, g.Edges)
	}

	model := &DiagramModel{Title: defaultTitle}
	for _, id := range g.IDs {
		n := g.Nodes[id]
		_, reachable := depth[id]
		node := &Node{
			ID:        id,
			Label:     nodeLabel(n),
			Kind:      kindOf(n.Kind),
			Reachable: reachable,
		}
		if result != nil {
			if rec, ok := result.Record(id); ok {
				node.Status = &StatusOverlay{
					Status:     string(rec.Status),
					DurationMs: rec.Duration().Milliseconds(),
					Error:      rec.Error,
				}
			}
		}
		model.Nodes = append(model.Nodes, node)
	}

	for _, e := range g.Edges {
		model.Edges = append(model.Edges, Edge{From: e.From, To: e.To})
	}
	model.Levels = buildLevels(g.IDs, depth)
	return model, nil
}

// nodeLabel creates a human-readable label for a node.
func nodeLabel(n engine.Node) string {
	switch {
	case n.AppID != "" && n.ActionID != "":
		return fmt.Sprintf("%s\n(%s.%s)", n.DisplayName(), n.AppID, n.ActionID)
	case n.AppID != "":
		return fmt.Sprintf("%s\n(%s)", n.DisplayName(), n.AppID)
	default:
		return n.DisplayName()
	}
}

// depths returns the breadth-first distance of every node reachable from root.
func depths(root string, edges []engine.Edge) map[string]int {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	depth := map[string]int{root: 0}
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := depth[next]; !seen {
				depth[next] = depth[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	return depth
}

// buildLevels groups reachable ids by depth, keeping definition order within a level.
func buildLevels(ids []string, depth map[string]int) [][]string {
	maxDepth := -1
	for _, d := range depth {
		maxDepth = max(maxDepth, d)
	}
	levels := make([][]string, maxDepth+1)
	for _, id := range ids {
		if d, ok := depth[id]; ok {
			levels[d] = append(levels[d], id)
		}
	}
	return levels
}
