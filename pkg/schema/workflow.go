package schema

import (
	"bytes"
	"encoding/json"
)

// WorkflowDefinition is the JSON workflow format consumed by the engine.
// It is produced by whatever persists workflows; the engine never stores it.
type WorkflowDefinition struct {
	Nodes       []NodeDefinition `json:"nodes"`
	Connections []Connection     `json:"connections"`
	TriggerData map[string]any   `json:"triggerData,omitempty"`
}

// NodeDefinition describes a single node of a workflow graph.
type NodeDefinition struct {
	ID           string         `json:"id"`
	Type         NodeType       `json:"type"`
	AppID        string         `json:"appId,omitempty"`    // capability key used to pick a provider
	ActionID     string         `json:"actionId,omitempty"` // provider-specific operation key
	Config       map[string]any `json:"config,omitempty"`
	Name         string         `json:"name,omitempty"`
	CredentialID string         `json:"credentialId,omitempty"`
}

// NodeType is the raw node type string of a definition.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeAction  NodeType = "action"
)

// NodeKind classifies a node for execution purposes.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindAction  NodeKind = "action"
	NodeKindUnknown NodeKind = "unknown"
)

// Kind maps the raw type onto the closed set of node kinds.
func (t NodeType) Kind() NodeKind {
	switch t {
	case NodeTypeTrigger:
		return NodeKindTrigger
	case NodeTypeAction:
		return NodeKindAction
	default:
		return NodeKindUnknown
	}
}

// Connection is a directed edge between two nodes. Definitions in the wild
// spell the endpoints three different ways; all of them decode into From/To.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UnmarshalJSON accepts from|source|sourceId and to|target|targetId.
// The first non-empty alias wins.
func (c *Connection) UnmarshalJSON(data []byte) error {
	var raw struct {
		From     string `json:"from"`
		Source   string `json:"source"`
		SourceID string `json:"sourceId"`
		To       string `json:"to"`
		Target   string `json:"target"`
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.From = firstNonEmpty(raw.From, raw.Source, raw.SourceID)
	c.To = firstNonEmpty(raw.To, raw.Target, raw.TargetID)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseDefinition decodes a workflow definition document.
// Numbers are kept as float64 so that interpolation renders them the way JSON does.
func ParseDefinition(data []byte) (*WorkflowDefinition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewError(ErrCodeValidation, "workflow definition is empty")
	}
	var def WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "decode workflow definition: %s", err.Error()).WithCause(err)
	}
	return &def, nil
}
