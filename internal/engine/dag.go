package engine

import (
	"github.com/rendis/flowrun/pkg/schema"
)

// Node is the engine's immutable view of a node definition.
type Node struct {
	ID           string
	Kind         schema.NodeKind
	AppID        string
	ActionID     string
	Name         string
	CredentialID string
	Config       map[string]any
}

// DisplayName is the node name, or its id when the definition has none.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Edge is a directed connection between two node ids.
type Edge struct {
	From string
	To   string
}

// Graph is the typed view over a workflow definition's node and connection lists.
type Graph struct {
	Nodes map[string]Node
	IDs   []string // node ids in definition order, duplicates removed
	Edges []Edge   // connections whose endpoints both exist, in definition order

	Duplicates []string // ids defined more than once; the first definition wins
	Dangling   []Edge   // connections with at least one missing endpoint
}

// NewGraph builds a Graph from a definition. It never fails: problems are
// recorded on the graph for validation to report.
func NewGraph(def *schema.WorkflowDefinition) *Graph {
	g := &Graph{Nodes: make(map[string]Node)}
	if def == nil {
		return g
	}

	for _, nd := range def.Nodes {
		if _, exists := g.Nodes[nd.ID]; exists {
			g.Duplicates = append(g.Duplicates, nd.ID)
			continue
		}
		g.Nodes[nd.ID] = Node{
			ID:           nd.ID,
			Kind:         nd.Type.Kind(),
			AppID:        nd.AppID,
			ActionID:     nd.ActionID,
			Name:         nd.Name,
			CredentialID: nd.CredentialID,
			Config:       nd.Config,
		}
		g.IDs = append(g.IDs, nd.ID)
	}

	for _, c := range def.Connections {
		e := Edge{From: c.From, To: c.To}
		_, okFrom := g.Nodes[e.From]
		_, okTo := g.Nodes[e.To]
		if !okFrom || !okTo {
			g.Dangling = append(g.Dangling, e)
			continue
		}
		g.Edges = append(g.Edges, e)
	}
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Triggers lists the trigger nodes in definition order.
func (g *Graph) Triggers() []Node {
	var out []Node
	for _, id := range g.IDs {
		if n := g.Nodes[id]; n.Kind == schema.NodeKindTrigger {
			out = append(out, n)
		}
	}
	return out
}

// Trigger returns the single trigger node. NO_TRIGGER and MULTIPLE_TRIGGERS
// are structural errors: the run cannot start.
func (g *Graph) Trigger() (Node, error) {
	triggers := g.Triggers()
	switch len(triggers) {
	case 0:
		return Node{}, schema.NewError(schema.ErrCodeNoTrigger, "workflow has no trigger node")
	case 1:
		return triggers[0], nil
	default:
		ids := make([]string, len(triggers))
		for i, t := range triggers {
			ids[i] = t.ID
		}
		return Node{}, schema.NewErrorf(schema.ErrCodeMultipleTriggers,
			"workflow has %d trigger nodes, expected exactly one", len(triggers)).
			WithDetails(map[string]any{"triggers": ids})
	}
}

// adjacency returns, for each node, its successors in edge-list order.
func adjacency(edges []Edge) map[string][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// Reachable returns every id forward-reachable from root, root first, in
// breadth-first discovery order.
func Reachable(root string, edges []Edge) []string {
	adj := adjacency(edges)
	seen := map[string]bool{root: true}
	order := []string{root}

	for i := 0; i < len(order); i++ {
		for _, next := range adj[order[i]] {
			if !seen[next] {
				seen[next] = true
				order = append(order, next)
			}
		}
	}
	return order
}

// Order sorts ids topologically with Kahn's algorithm, considering only edges
// with both endpoints in ids. The zero in-degree queue is FIFO and seeded in
// ids order. When the subgraph has a cycle, Order returns a copy of ids
// unchanged and acyclic=false instead of failing.
func Order(ids []string, edges []Edge) (order []string, acyclic bool) {
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}

	inDegree := make(map[string]int, len(ids))
	var inner []Edge
	for _, e := range edges {
		if member[e.From] && member[e.To] {
			inner = append(inner, e)
			inDegree[e.To]++
		}
	}
	adj := adjacency(inner)

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order = make([]string, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) < len(ids) {
		return append([]string(nil), ids...), false
	}
	return order, true
}
