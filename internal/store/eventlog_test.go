package store

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/pkg/schema"
)

func TestEventLog_MonotonicSequencePerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &Event{RunID: "r1", NodeID: "A", Type: schema.EventNodeStarted}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.False(t, e.Timestamp.IsZero())
	}

	other := &Event{RunID: "r2", Type: schema.EventRunStarted}
	require.NoError(t, s.AppendEvent(ctx, other))
	assert.Equal(t, int64(1), other.Sequence, "sequences are per run")
}

func TestEventLog_GetEventsSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	types := []string{schema.EventRunStarted, schema.EventNodeStarted, schema.EventNodeCompleted}
	for _, et := range types {
		require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r1", NodeID: "A", Type: et, Payload: json.RawMessage(`{"k":1}`)}))
	}

	all, err := s.GetEvents(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, types[i], e.Type)
		assert.Equal(t, "A", e.NodeID)
		assert.JSONEq(t, `{"k":1}`, string(e.Payload))
	}

	tail, err := s.GetEvents(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, schema.EventNodeCompleted, tail[0].Type)

	none, err := s.GetEvents(ctx, "unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventLog_AppendValidation(t *testing.T) {
	s := newTestStore(t)
	assertCode(t, s.AppendEvent(context.Background(), &Event{Type: schema.EventRunStarted}), schema.ErrCodeValidation)
	assertCode(t, s.AppendEvent(context.Background(), &Event{RunID: "r"}), schema.ErrCodeValidation)
}

func TestEventLog_ReplayStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, e := range []*Event{
		{RunID: "r1", Type: schema.EventRunStarted},
		{RunID: "r1", NodeID: "A", Type: schema.EventNodeStarted},
		{RunID: "r1", NodeID: "A", Type: schema.EventNodeCompleted},
		{RunID: "r1", NodeID: "B", Type: schema.EventNodeStarted},
		{RunID: "r1", NodeID: "B", Type: schema.EventNodeSkipped},
		{RunID: "r1", NodeID: "C", Type: schema.EventNodeStarted},
		{RunID: "r1", NodeID: "C", Type: schema.EventNodeFailed},
		{RunID: "r1", Type: schema.EventRunAborted},
	} {
		require.NoError(t, s.AppendEvent(ctx, e))
	}

	statuses, err := s.ReplayStatuses(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]schema.NodeStatus{
		"A": schema.NodeStatusSuccess,
		"B": schema.NodeStatusSkipped,
		"C": schema.NodeStatusError,
	}, statuses)
}

func TestEventLog_ReplayDetectsGap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r1", Type: schema.EventRunStarted}))
	require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r1", NodeID: "A", Type: schema.EventNodeStarted}))
	require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r1", NodeID: "A", Type: schema.EventNodeCompleted}))

	_, err := s.db.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ? AND sequence = 2`, "r1")
	require.NoError(t, err)

	_, err = s.ReplayStatuses(ctx, "r1")
	assertCode(t, err, schema.ErrCodeStore)
}

// --- Archive ---

func TestArchive_RecordsEventsAndRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := NewArchive(s, nil)

	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	info := engine.RunInfo{RunID: "r1", UserID: "alice", TriggerID: "T", StartedAt: started}
	node := engine.Node{ID: "A", AppID: "slack"}
	result := sampleRun("r1", "alice", started, schema.RunStatusCompleted).Result
	result.NodeExecutions[1].Status = schema.NodeStatusSuccess
	result.NodeExecutions[1].Error = ""

	a.RunStarted(ctx, info)
	a.NodeStarted(ctx, info, node)
	a.VariableSet(ctx, info, "foo", 42)
	a.NodeFinished(ctx, info, node, result.NodeExecutions[1])
	a.CycleFallback(ctx, info, []string{"T", "A"})
	a.RunFinished(ctx, info, result, nil)

	events, err := s.GetEvents(ctx, "r1", 0)
	require.NoError(t, err)
	var got []string
	for _, e := range events {
		got = append(got, e.Type)
	}
	assert.Equal(t, []string{
		schema.EventRunStarted, schema.EventNodeStarted, schema.EventVariableSet,
		schema.EventNodeCompleted, schema.EventCycleFallback, schema.EventRunCompleted,
	}, got)
	assert.JSONEq(t, `{"order":["T","A"]}`, string(events[4].Payload))

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "T", run.TriggerID)
	assert.Empty(t, run.Error)
	assert.Equal(t, []string{"T:success", "A:success"}, run.Result.Statuses())
}

func TestArchive_AbortedRunKeepsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := NewArchive(s, nil)

	info := engine.RunInfo{RunID: "r1", UserID: "alice", StartedAt: time.Now().UTC()}
	result := sampleRun("r1", "alice", info.StartedAt, schema.RunStatusAborted).Result
	a.RunFinished(ctx, info, result, schema.NewError(schema.ErrCodeNodeFailed, "node \"A\" failed: boom"))

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusAborted, run.Status)
	assert.Contains(t, run.Error, "NODE_FAILED")

	events, err := s.GetEvents(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventRunAborted, events[0].Type)
}

func TestArchive_LogsWriteFailures(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	var buf bytes.Buffer
	a := NewArchive(s, slog.New(slog.NewTextHandler(&buf, nil)))
	info := engine.RunInfo{RunID: "r1", UserID: "alice", StartedAt: time.Now().UTC()}

	assert.NotPanics(t, func() {
		a.RunStarted(context.Background(), info)
		a.RunFinished(context.Background(), info, sampleRun("r1", "alice", info.StartedAt, schema.RunStatusCompleted).Result, nil)
	})
	assert.Contains(t, buf.String(), "archive event failed")
	assert.Contains(t, buf.String(), "archive run failed")
}
