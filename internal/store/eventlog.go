package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/flowrun/pkg/schema"
)

// AppendEvent appends an event with the next per-run sequence number and
// sets event.Sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	if event == nil || event.RunID == "" || event.Type == "" {
		return schema.NewError(schema.ErrCodeValidation, "event run id and type are required")
	}

	// The store holds a single connection, so reading MAX(sequence) and
	// inserting within one transaction cannot interleave with another writer.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin append event", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq); err != nil {
		return storeError("next event sequence", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, node_id, event_type, payload, timestamp, sequence) VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.NodeID), event.Type, payload, event.Timestamp, seq,
	)
	if err != nil {
		return storeError("insert event", err)
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit event", err)
	}
	event.Sequence = seq
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetEvents returns the events of a run with sequence > since, in order.
func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node_id, event_type, payload, timestamp, sequence
		 FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence`, runID, since)
	if err != nil {
		return nil, storeError("get events", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ReplayStatuses rebuilds the last known status of every node of a run from
// its event log. A gap in the sequence is reported as STORE_ERROR.
func (s *LibSQLStore) ReplayStatuses(ctx context.Context, runID string) (map[string]schema.NodeStatus, error) {
	events, err := s.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	statuses := make(map[string]schema.NodeStatus)
	for i, e := range events {
		if want := int64(i + 1); e.Sequence != want {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, want, e.Sequence)
		}
		if e.NodeID == "" {
			continue
		}
		switch e.Type {
		case schema.EventNodeCompleted:
			statuses[e.NodeID] = schema.NodeStatusSuccess
		case schema.EventNodeSkipped:
			statuses[e.NodeID] = schema.NodeStatusSkipped
		case schema.EventNodeFailed:
			statuses[e.NodeID] = schema.NodeStatusError
		}
	}
	return statuses, nil
}
