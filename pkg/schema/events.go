package schema

// Event type constants published while a run progresses.
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunAborted    = "run_aborted"
	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeSkipped   = "node_skipped"
	EventNodeFailed    = "node_failed"
	EventVariableSet   = "variable_set"

	// EventCycleFallback marks a run whose reachable subgraph had a cycle and
	// was therefore executed in discovery order instead of topological order.
	EventCycleFallback = "schedule_cycle_fallback"
)

// NodeStatus is the outcome of one executed node.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusSkipped NodeStatus = "skipped"
	NodeStatusError   NodeStatus = "error"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// NodeEvent maps a node status to the event published for it.
func NodeEvent(status NodeStatus) string {
	switch status {
	case NodeStatusSkipped:
		return EventNodeSkipped
	case NodeStatusError:
		return EventNodeFailed
	default:
		return EventNodeCompleted
	}
}
