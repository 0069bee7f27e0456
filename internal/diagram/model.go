package diagram

import "github.com/rendis/flowrun/pkg/schema"

// NodeKind classifies a diagram node by its workflow node type.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindUnknown NodeKind = "unknown"
)

func kindOf(k schema.NodeKind) NodeKind {
	switch k {
	case schema.NodeKindTrigger:
		return NodeKindTrigger
	case schema.NodeKindAction:
		return NodeKindAction
	default:
		return NodeKindUnknown
	}
}

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string // reachable node ids grouped by distance from the trigger
}

// Node represents a single workflow node in the diagram.
type Node struct {
	ID        string
	Label     string
	Kind      NodeKind
	Reachable bool
	Status    *StatusOverlay
}

// StatusOverlay carries the outcome of the node in a run.
type StatusOverlay struct {
	Status     string // from schema.NodeStatus
	DurationMs int64
	Error      string
}

// Edge represents a connection between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}

func (m *DiagramModel) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
