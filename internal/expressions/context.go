package expressions

import "encoding/json"

// TriggerAlias is the extra key under which the trigger payload is stored in
// the nodes map, so "{{trigger}}"-style lookups work without knowing the id.
const TriggerAlias = "trigger"

// ExecutionContext is the run-scoped data bag threaded through a run.
// It has exactly one writer (the driver loop) and is not safe for concurrent use.
type ExecutionContext struct {
	Trigger   any
	Nodes     map[string]any
	Variables map[string]any
}

// NewExecutionContext seeds a context with the trigger payload, stored under
// both the trigger node's id and TriggerAlias.
func NewExecutionContext(triggerID string, payload any) *ExecutionContext {
	ec := &ExecutionContext{
		Trigger:   payload,
		Nodes:     make(map[string]any),
		Variables: make(map[string]any),
	}
	if triggerID != "" {
		ec.Nodes[triggerID] = payload
	}
	ec.Nodes[TriggerAlias] = payload
	return ec
}

// SetNodeOutput stores a node's result, replacing any earlier value.
func (ec *ExecutionContext) SetNodeOutput(nodeID string, output any) {
	ec.Nodes[nodeID] = output
}

// NodeOutput returns the stored output of a node.
func (ec *ExecutionContext) NodeOutput(nodeID string) (any, bool) {
	v, ok := ec.Nodes[nodeID]
	return v, ok
}

// SetVariable upserts a workflow variable. When the name already exists and
// overwrite is false, the prior value is kept and false is returned.
func (ec *ExecutionContext) SetVariable(name string, value any, overwrite bool) bool {
	if _, exists := ec.Variables[name]; exists && !overwrite {
		return false
	}
	ec.Variables[name] = value
	return true
}

// View returns the whole context as a single object. The maps are shared,
// not copied; callers must treat the view as read-only.
func (ec *ExecutionContext) View() map[string]any {
	return map[string]any{
		"trigger":   ec.Trigger,
		"nodes":     ec.Nodes,
		"variables": ec.Variables,
	}
}

// Snapshot returns a deep copy that later mutations of ec do not affect.
func (ec *ExecutionContext) Snapshot() *ExecutionContext {
	return &ExecutionContext{
		Trigger:   deepCopyAny(ec.Trigger),
		Nodes:     deepCopyMap(ec.Nodes),
		Variables: deepCopyMap(ec.Variables),
	}
}

// CloneMap returns a deep copy of m. Nested maps and slices are copied.
func CloneMap(m map[string]any) map[string]any {
	return deepCopyMap(m)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny copies maps and slices recursively; scalars are values already.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
