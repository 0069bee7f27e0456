package schema

import "time"

// NodeExecutionRecord is one entry of a run trace. Records are appended in
// execution order and never modified afterwards.
type NodeExecutionRecord struct {
	NodeID      string     `json:"nodeId"`
	NodeName    string     `json:"nodeName"`
	Status      NodeStatus `json:"status"`
	InputData   any        `json:"inputData"`
	OutputData  any        `json:"outputData,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt"`
}

// Duration is the wall time the node took.
func (r NodeExecutionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunOutput is the summary part of a run result.
type RunOutput struct {
	Trigger  any            `json:"trigger"`
	LastNode any            `json:"lastNode"`
	Nodes    map[string]any `json:"nodes"`
}

// RunResult is what a run produces: the ordered trace plus a summary.
type RunResult struct {
	RunID          string                `json:"runId,omitempty"`
	Status         RunStatus             `json:"status"`
	NodeExecutions []NodeExecutionRecord `json:"nodeExecutions"`
	OutputData     RunOutput             `json:"outputData"`
}

// Statuses returns "id:status" pairs in trace order.
func (r *RunResult) Statuses() []string {
	out := make([]string, 0, len(r.NodeExecutions))
	for _, rec := range r.NodeExecutions {
		out = append(out, rec.NodeID+":"+string(rec.Status))
	}
	return out
}

// Record returns the trace entry for nodeID, if the node was executed.
func (r *RunResult) Record(nodeID string) (NodeExecutionRecord, bool) {
	for _, rec := range r.NodeExecutions {
		if rec.NodeID == nodeID {
			return rec, true
		}
	}
	return NodeExecutionRecord{}, false
}
