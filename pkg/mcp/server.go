package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/internal/store"
	"github.com/rendis/flowrun/internal/streaming"
	"github.com/rendis/flowrun/internal/validation"
	"github.com/rendis/flowrun/pkg/schema"
)

// Runner executes workflow runs. Satisfied by *engine.Executor.
type Runner interface {
	Run(ctx context.Context, req engine.RunRequest) (*schema.RunResult, error)
}

// ServerDeps holds the dependencies for creating a Server. Hub and Store are
// optional: without a hub no run events are pushed to clients, and without
// a store flowrun.runs is not registered.
type ServerDeps struct {
	Runner    Runner
	Validator validation.Validator
	Registry  *providers.Registry
	Hub       streaming.EventHub
	Store     store.Store
	Logger    *slog.Logger
	Version   string
}

// Server wraps an MCP server with flowrun tool handlers.
type Server struct {
	runner    Runner
	validator validation.Validator
	registry  *providers.Registry
	store     store.Store
	notifier  *notifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with its tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		runner:    deps.Runner,
		validator: deps.Validator,
		registry:  deps.Registry,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowrun",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("flowrun executes trigger-rooted workflow graphs. Use flowrun.validate to lint a definition, flowrun.run to execute it, flowrun.providers to list available apps and actions, and flowrun.diagram to draw it."),
	)
	if deps.Hub != nil {
		s.notifier = newNotifier(mcpSrv, deps.Hub, logger)
	}

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: providersTool(), Handler: s.handleProviders},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
	if s.store != nil {
		tools = append(tools, server.ServerTool{Tool: runsTool(), Handler: s.handleRuns})
	}
	return tools
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("flowrun.run",
		mcp.WithDescription("Execute a workflow definition and return its trace"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition with nodes and connections")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User the run executes as; every credential must belong to this user")),
		mcp.WithObject("trigger_data", mcp.Description("Trigger payload (default: the definition's triggerData)")),
		mcp.WithString("run_id", mcp.Description("Run ID (default: generated)")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowrun.validate",
		mcp.WithDescription("Validate a workflow definition without running it"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition with nodes and connections")),
	)
}

func providersTool() mcp.Tool {
	return mcp.NewTool("flowrun.providers",
		mcp.WithDescription("List registered providers and their actions"),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowrun.diagram",
		mcp.WithDescription("Generate a diagram of a workflow. Returns ASCII art, Mermaid flowchart syntax, or a base64-encoded image"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition with nodes and connections")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "png", "svg"),
			mcp.Description("Output format"),
		),
		mcp.WithString("run_id", mcp.Description("Archived run whose node statuses are overlaid")),
	)
}

func runsTool() mcp.Tool {
	return mcp.NewTool("flowrun.runs",
		mcp.WithDescription("Query archived runs or the event log of a run"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("runs", "run", "events"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (run_id, user_id, status, since, limit)")),
	)
}
