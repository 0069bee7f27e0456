package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowrun/pkg/schema"
)

// RunRecord is a persisted run. Result carries the trace and summary; it is
// nil in listings.
type RunRecord struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	TriggerID   string            `json:"trigger_id,omitempty"`
	Status      schema.RunStatus  `json:"status"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *schema.RunResult `json:"result,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	UserID string
	Status schema.RunStatus
	Since  *time.Time
	Limit  int
}

// Event is one entry of the append-only run event log.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}
