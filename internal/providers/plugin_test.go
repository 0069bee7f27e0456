package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowrun/pkg/schema"
)

type fakeCaller struct {
	tools   []string
	result  *mcp.CallToolResult
	callErr error
	calls   []mcp.CallToolRequest
	closed  bool
}

func (f *fakeCaller) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	res := &mcp.ListToolsResult{}
	for _, name := range f.tools {
		res.Tools = append(res.Tools, mcp.Tool{Name: name})
	}
	return res, nil
}

func (f *fakeCaller) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, req)
	return f.result, f.callErr
}

func (f *fakeCaller) Close() error {
	f.closed = true
	return nil
}

func newTestPlugin(t *testing.T, caller *fakeCaller) *PluginProvider {
	t.Helper()
	p, err := newPluginProvider(context.Background(), "jira", caller)
	require.NoError(t, err)
	return p
}

func TestPlugin_DescribeListsTools(t *testing.T) {
	p := newTestPlugin(t, &fakeCaller{tools: []string{"create_issue", "add_comment"}})
	assert.Equal(t, Info{AppID: "jira", Description: "MCP plugin", Actions: []string{"add_comment", "create_issue"}}, p.Describe())
}

func TestPlugin_ExecuteForwardsArguments(t *testing.T) {
	caller := &fakeCaller{
		tools:  []string{"create_issue"},
		result: mcp.NewToolResultText(`{"key":"OPS-1"}`),
	}
	p := newTestPlugin(t, caller)

	out, err := exec(t, p, "create_issue", map[string]any{"summary": "disk full"}, map[string]any{"token": "j"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "OPS-1"}, out)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "create_issue", caller.calls[0].Params.Name)
	assert.Equal(t, map[string]any{"summary": "disk full", "credential": map[string]any{"token": "j"}}, caller.calls[0].Params.Arguments)
}

func TestPlugin_ResultShapes(t *testing.T) {
	caller := &fakeCaller{tools: []string{"t"}, result: mcp.NewToolResultText("plain text")}
	p := newTestPlugin(t, caller)

	out, err := exec(t, p, "t", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "plain text"}, out)
	_, hasCred := caller.calls[0].Params.Arguments.(map[string]any)["credential"]
	assert.False(t, hasCred)

	caller.result = &mcp.CallToolResult{StructuredContent: map[string]any{"n": float64(1)}}
	out, err = exec(t, p, "t", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(1)}, out)
}

func TestPlugin_Errors(t *testing.T) {
	caller := &fakeCaller{tools: []string{"t"}, result: mcp.NewToolResultError("quota exceeded")}
	p := newTestPlugin(t, caller)

	_, err := exec(t, p, "t", nil, nil)
	assertCode(t, err, schema.ErrCodeProvider)
	assert.Contains(t, err.Error(), "quota exceeded")

	caller.callErr = errors.New("broken pipe")
	_, err = exec(t, p, "t", nil, nil)
	assertCode(t, err, schema.ErrCodeProvider)
	assert.ErrorIs(t, err, caller.callErr)

	out, err := exec(t, p, "unknown_tool", nil, nil)
	require.NoError(t, err)
	assert.True(t, IsSkipped(out))
}

func TestPluginHost_RegistersAndCloses(t *testing.T) {
	reg := NewRegistry()
	host := NewPluginHost(reg, nil)
	caller := &fakeCaller{tools: []string{"t"}}

	require.NoError(t, host.add(newTestPlugin(t, caller)))
	assert.True(t, reg.Has("jira"))

	dup := &fakeCaller{tools: []string{"t"}}
	assertCode(t, host.add(newTestPlugin(t, dup)), schema.ErrCodeConflict)
	assert.True(t, dup.closed, "rejected plugin is stopped")

	require.NoError(t, host.Close())
	assert.True(t, caller.closed)
}

func TestStartPlugin_RequiresCommand(t *testing.T) {
	_, err := StartPlugin(context.Background(), PluginConfig{AppID: "x"})
	assert.Error(t, err)
}
