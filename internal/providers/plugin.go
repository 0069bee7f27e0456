package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// PluginConfig describes how to launch an MCP server that backs one app key.
type PluginConfig struct {
	AppID   string   `json:"app_id"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// toolCaller is the slice of the MCP client a plugin needs.
type toolCaller interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// PluginProvider forwards node executions to a tool on an MCP server. The
// actionId names the tool; the config becomes the tool arguments and a
// node credential is passed under the "credential" argument.
type PluginProvider struct {
	appID  string
	caller toolCaller
	tools  []string
}

// StartPlugin launches the server over stdio, performs the MCP handshake and
// lists its tools.
func StartPlugin(ctx context.Context, cfg PluginConfig) (*PluginProvider, error) {
	if cfg.AppID == "" || cfg.Command == "" {
		return nil, fmt.Errorf("plugin needs an app_id and a command")
	}
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start plugin %q: %w", cfg.AppID, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "flowrun", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("handshake with plugin %q: %w", cfg.AppID, err)
	}

	p, err := newPluginProvider(ctx, cfg.AppID, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return p, nil
}

func newPluginProvider(ctx context.Context, appID string, caller toolCaller) (*PluginProvider, error) {
	res, err := caller.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools of plugin %q: %w", appID, err)
	}
	tools := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, t.Name)
	}
	slices.Sort(tools)
	return &PluginProvider{appID: appID, caller: caller, tools: tools}, nil
}

func (p *PluginProvider) Describe() Info {
	return Info{
		AppID:       p.appID,
		Description: "MCP plugin",
		Actions:     p.tools,
	}
}

func (p *PluginProvider) Execute(ctx context.Context, in Input) (any, error) {
	if _, found := slices.BinarySearch(p.tools, in.ActionID); !found {
		return unsupportedAction(p.appID, in.ActionID), nil
	}

	args := make(map[string]any, len(in.Config)+1)
	for k, v := range in.Config {
		args[k] = v
	}
	if in.Credential != nil {
		args["credential"] = in.Credential
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = in.ActionID
	req.Params.Arguments = args

	res, err := p.caller.CallTool(ctx, req)
	if err != nil {
		return nil, providerError(p.appID, in.ActionID, "call tool: %v", err).WithCause(err)
	}
	text := toolText(res)
	if res.IsError {
		return nil, providerError(p.appID, in.ActionID, "%s", text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded, nil
	}
	return map[string]any{"text": text}, nil
}

// Close stops the plugin's server.
func (p *PluginProvider) Close() error {
	return p.caller.Close()
}

func toolText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// PluginHost owns the lifecycle of the plugins registered into a Registry.
type PluginHost struct {
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	plugins map[string]*PluginProvider
}

// NewPluginHost creates a host that registers plugins into reg.
func NewPluginHost(reg *Registry, logger *slog.Logger) *PluginHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginHost{registry: reg, logger: logger, plugins: make(map[string]*PluginProvider)}
}

// Load starts a plugin and registers it under its app id.
func (h *PluginHost) Load(ctx context.Context, cfg PluginConfig) error {
	p, err := StartPlugin(ctx, cfg)
	if err != nil {
		return err
	}
	return h.add(p)
}

func (h *PluginHost) add(p *PluginProvider) error {
	if err := h.registry.Register(p.appID, p); err != nil {
		_ = p.Close()
		return err
	}
	h.mu.Lock()
	h.plugins[p.appID] = p
	h.mu.Unlock()
	h.logger.Info("plugin loaded", slog.String("app_id", p.appID), slog.Int("tools", len(p.tools)))
	return nil
}

// Close stops every loaded plugin. The first error is returned.
func (h *PluginHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var first error
	for id, p := range h.plugins {
		if err := p.Close(); err != nil {
			h.logger.Warn("plugin close failed", slog.String("app_id", id), slog.String("error", err.Error()))
			if first == nil {
				first = err
			}
		}
		delete(h.plugins, id)
	}
	return first
}
