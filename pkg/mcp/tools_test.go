package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/internal/store"
	"github.com/rendis/flowrun/internal/validation"
	"github.com/rendis/flowrun/pkg/schema"
)

// --- Fixtures ---

type mockRunner struct {
	result *schema.RunResult
	err    error
	got    engine.RunRequest
}

func (m *mockRunner) Run(_ context.Context, req engine.RunRequest) (*schema.RunResult, error) {
	m.got = req
	return m.result, m.err
}

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRegistry(t *testing.T) *providers.Registry {
	t.Helper()
	reg := providers.NewRegistry()
	reg.MustRegister("echo", providers.Func(func(_ context.Context, in providers.Input) (any, error) {
		return map[string]any{"echo": in.Config["msg"]}, nil
	}))
	reg.MustRegister("fail", providers.Func(func(context.Context, providers.Input) (any, error) {
		return nil, errors.New("upstream down")
	}))
	return reg
}

func newTestServer(t *testing.T, runner Runner, deps ServerDeps) *Server {
	t.Helper()
	if deps.Registry == nil {
		deps.Registry = newRegistry(t)
	}
	v, err := validation.NewWorkflowValidator(deps.Registry)
	require.NoError(t, err)
	deps.Runner = runner
	deps.Validator = v
	return NewServer(deps)
}

func definition(app string) map[string]any {
	return map[string]any{
		"nodes": []any{
			map[string]any{"id": "T", "type": "trigger"},
			map[string]any{"id": "A", "type": "action", "appId": app, "actionId": "do",
				"config": map[string]any{"msg": "hi {{trigger.name}}"}},
		},
		"connections": []any{map[string]any{"source": "T", "target": "A"}},
	}
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(extractText(t, result)), target))
}

// --- flowrun.run ---

func TestRunTool(t *testing.T) {
	runner := &mockRunner{result: &schema.RunResult{RunID: "r1", Status: schema.RunStatusCompleted,
		NodeExecutions: []schema.NodeExecutionRecord{{NodeID: "T", Status: schema.NodeStatusSuccess}}}}
	s := newTestServer(t, runner, ServerDeps{})

	result, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{
		"definition":   definition("echo"),
		"user_id":      "alice",
		"trigger_data": map[string]any{"name": "bob"},
		"run_id":       "r1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	assert.Equal(t, "alice", runner.got.UserID)
	assert.Equal(t, "r1", runner.got.RunID)
	assert.Equal(t, map[string]any{"name": "bob"}, runner.got.TriggerData)
	require.NotNil(t, runner.got.Definition)
	assert.Equal(t, []schema.Connection{{From: "T", To: "A"}}, runner.got.Definition.Connections)

	var out schema.RunResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.RunStatusCompleted, out.Status)
}

func TestRunToolGeneratesRunID(t *testing.T) {
	runner := &mockRunner{result: &schema.RunResult{Status: schema.RunStatusCompleted}}
	s := newTestServer(t, runner, ServerDeps{})

	_, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{
		"definition": definition("echo"),
		"user_id":    "alice",
	}))
	require.NoError(t, err)
	assert.Len(t, runner.got.RunID, 36)
	assert.Nil(t, runner.got.TriggerData)
}

func TestRunToolMissingParams(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, ServerDeps{})

	result, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{"definition": definition("echo")}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRunToolInvalidDefinition(t *testing.T) {
	runner := &mockRunner{}
	s := newTestServer(t, runner, ServerDeps{})

	result, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{
		"definition": map[string]any{"nodes": []any{map[string]any{"id": "A", "type": "action"}}},
		"user_id":    "alice",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "NO_TRIGGER")
	assert.Nil(t, runner.got.Definition, "runner is never called")
}

func TestRunToolRejected(t *testing.T) {
	runner := &mockRunner{err: schema.NewError(schema.ErrCodeValidation, "nope")}
	s := newTestServer(t, runner, ServerDeps{})

	result, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{
		"definition": definition("echo"),
		"user_id":    "alice",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "run rejected")
}

func TestRunToolAbortCarriesPartialTrace(t *testing.T) {
	reg := newRegistry(t)
	exec := engine.NewExecutor(reg, nil, engine.ExecutorConfig{})
	s := newTestServer(t, exec, ServerDeps{Registry: reg})

	result, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{
		"definition": definition("fail"),
		"user_id":    "alice",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)

	var out struct {
		Error  string           `json:"error"`
		Code   string           `json:"code"`
		Result schema.RunResult `json:"result"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.ErrCodeNodeFailed, out.Code)
	assert.Contains(t, out.Error, "upstream down")
	assert.Equal(t, schema.RunStatusAborted, out.Result.Status)
	assert.Equal(t, []string{"T:success", "A:error"}, out.Result.Statuses())
}

func TestRunToolWithExecutor(t *testing.T) {
	reg := newRegistry(t)
	exec := engine.NewExecutor(reg, nil, engine.ExecutorConfig{})
	s := newTestServer(t, exec, ServerDeps{Registry: reg})

	result, err := s.handleRun(context.Background(), buildRequest("flowrun.run", map[string]any{
		"definition":   definition("echo"),
		"user_id":      "alice",
		"trigger_data": map[string]any{"name": "bob"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out schema.RunResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, map[string]any{"echo": "hi bob"}, out.OutputData.LastNode)
}

// --- flowrun.validate / flowrun.providers ---

func TestValidateTool(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, ServerDeps{})

	result, err := s.handleValidate(context.Background(), buildRequest("flowrun.validate", map[string]any{
		"definition": definition("unregistered"),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Valid    bool                     `json:"valid"`
		Warnings []schema.ValidationIssue `json:"warnings"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Valid)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, schema.IssueUnknownApp, out.Warnings[0].Code)
}

func TestValidateToolNotConfigured(t *testing.T) {
	result, err := NewServer(ServerDeps{}).handleValidate(context.Background(),
		buildRequest("flowrun.validate", map[string]any{"definition": definition("echo")}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestProvidersTool(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, ServerDeps{})

	result, err := s.handleProviders(context.Background(), buildRequest("flowrun.providers", nil))
	require.NoError(t, err)

	var out struct {
		Providers []providers.Info `json:"providers"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Providers, 2)
	assert.Equal(t, "echo", out.Providers[0].AppID)
	assert.Equal(t, "fail", out.Providers[1].AppID)
}

// --- flowrun.diagram ---

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, ServerDeps{})

	result, err := s.handleDiagram(context.Background(), buildRequest("flowrun.diagram", map[string]any{
		"definition": definition("echo"),
		"format":     "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "T --> A")

	result, err = s.handleDiagram(context.Background(), buildRequest("flowrun.diagram", map[string]any{
		"definition": definition("echo"),
		"format":     "svg",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	svg, err := base64.StdEncoding.DecodeString(extractText(t, result))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
}

func TestDiagramToolWithArchivedRun(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.SaveRun(context.Background(), &store.RunRecord{
		ID: "r1", UserID: "alice", Status: schema.RunStatusAborted, StartedAt: now,
		Result: &schema.RunResult{RunID: "r1", Status: schema.RunStatusAborted, NodeExecutions: []schema.NodeExecutionRecord{
			{NodeID: "T", Status: schema.NodeStatusSuccess, StartedAt: now, CompletedAt: now},
			{NodeID: "A", Status: schema.NodeStatusError, Error: "boom", StartedAt: now, CompletedAt: now},
		}},
	}))
	s := newTestServer(t, &mockRunner{}, ServerDeps{Store: st})

	result, err := s.handleDiagram(context.Background(), buildRequest("flowrun.diagram", map[string]any{
		"definition": definition("echo"),
		"format":     "ascii",
		"run_id":     "r1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "[FAIL]")

	result, err = s.handleDiagram(context.Background(), buildRequest("flowrun.diagram", map[string]any{
		"definition": definition("echo"),
		"format":     "ascii",
		"run_id":     "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDiagramToolErrors(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, ServerDeps{})

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing format", map[string]any{"definition": definition("echo")}},
		{"bad format", map[string]any{"definition": definition("echo"), "format": "gif"}},
		{"missing definition", map[string]any{"format": "ascii"}},
		{"run without archive", map[string]any{"definition": definition("echo"), "format": "ascii", "run_id": "r1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleDiagram(context.Background(), buildRequest("flowrun.diagram", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- flowrun.runs ---

func TestRunsTool(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		user := "alice"
		if id == "r3" {
			user = "bob"
		}
		require.NoError(t, st.SaveRun(ctx, &store.RunRecord{
			ID: id, UserID: user, Status: schema.RunStatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour),
			Result: &schema.RunResult{RunID: id, Status: schema.RunStatusCompleted, NodeExecutions: []schema.NodeExecutionRecord{}},
		}))
	}
	require.NoError(t, st.AppendEvent(ctx, &store.Event{RunID: "r1", Type: schema.EventRunStarted}))
	require.NoError(t, st.AppendEvent(ctx, &store.Event{RunID: "r1", Type: schema.EventRunCompleted}))

	s := newTestServer(t, &mockRunner{}, ServerDeps{Store: st})

	result, err := s.handleRuns(ctx, buildRequest("flowrun.runs", map[string]any{
		"resource": "runs",
		"filter":   map[string]any{"user_id": "alice"},
	}))
	require.NoError(t, err)
	var runs struct {
		Runs []store.RunRecord `json:"runs"`
	}
	unmarshalResult(t, result, &runs)
	require.Len(t, runs.Runs, 2)
	assert.Equal(t, "r2", runs.Runs[0].ID)

	result, err = s.handleRuns(ctx, buildRequest("flowrun.runs", map[string]any{
		"resource": "run",
		"filter":   map[string]any{"run_id": "r3"},
	}))
	require.NoError(t, err)
	var run store.RunRecord
	unmarshalResult(t, result, &run)
	assert.Equal(t, "bob", run.UserID)

	result, err = s.handleRuns(ctx, buildRequest("flowrun.runs", map[string]any{
		"resource": "events",
		"filter":   map[string]any{"run_id": "r1", "since_sequence": float64(1)},
	}))
	require.NoError(t, err)
	var events struct {
		Events []store.Event `json:"events"`
	}
	unmarshalResult(t, result, &events)
	require.Len(t, events.Events, 1)
	assert.Equal(t, schema.EventRunCompleted, events.Events[0].Type)
}

func TestRunsToolErrors(t *testing.T) {
	s := newTestServer(t, &mockRunner{}, ServerDeps{Store: newTestStore(t)})

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing resource", map[string]any{}},
		{"unknown resource", map[string]any{"resource": "templates"}},
		{"run without id", map[string]any{"resource": "run"}},
		{"events without id", map[string]any{"resource": "events"}},
		{"missing run", map[string]any{"resource": "run", "filter": map[string]any{"run_id": "nope"}}},
		{"bad since", map[string]any{"resource": "runs", "filter": map[string]any{"since": "yesterday"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleRuns(context.Background(), buildRequest("flowrun.runs", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestExtractInt(t *testing.T) {
	assert.Equal(t, 5, extractInt(nil, "limit", 5))
	assert.Equal(t, 3, extractInt(map[string]any{"limit": float64(3)}, "limit", 5))
	assert.Equal(t, 7, extractInt(map[string]any{"limit": "7"}, "limit", 5))
	assert.Equal(t, 5, extractInt(map[string]any{"limit": "x"}, "limit", 5))
}
