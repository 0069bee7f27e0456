package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowrun/internal/diagram"
	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/internal/store"
	"github.com/rendis/flowrun/pkg/schema"
)

// handleRun executes a workflow definition. An aborted run is reported as a
// tool error that still carries the partial trace.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	def, errResult := s.definition(req)
	if errResult != nil {
		return errResult, nil
	}

	runID := req.GetString("run_id", "")
	if runID == "" {
		runID = uuid.NewString()
	}

	if s.notifier != nil {
		if session := server.ClientSessionFromContext(ctx); session != nil {
			stop := s.notifier.follow(ctx, runID, session.SessionID())
			defer stop()
		}
	}

	result, runErr := s.runner.Run(ctx, engine.RunRequest{
		RunID:       runID,
		UserID:      userID,
		Definition:  def,
		TriggerData: mcp.ParseStringMap(req, "trigger_data", nil),
	})
	if runErr != nil && result == nil {
		return mcp.NewToolResultError(fmt.Sprintf("run rejected: %v", runErr)), nil
	}
	if runErr != nil {
		out, mErr := marshalResult(map[string]any{
			"error":  runErr.Error(),
			"code":   schema.CodeOf(runErr),
			"result": result,
		})
		if mErr == nil && out != nil {
			out.IsError = true
		}
		return out, mErr
	}
	return marshalResult(result)
}

// handleValidate lints a workflow definition.
func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("validation is not configured"), nil
	}
	raw, errResult := definitionJSON(req)
	if errResult != nil {
		return errResult, nil
	}
	_, result := s.validator.ValidateJSON(raw)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleProviders lists the registered providers.
func (s *Server) handleProviders(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := []providers.Info{}
	if s.registry != nil {
		infos = s.registry.List()
	}
	return marshalResult(map[string]any{"providers": infos})
}

// handleDiagram draws a workflow, optionally overlaid with an archived run.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	def, errResult := s.definition(req)
	if errResult != nil {
		return errResult, nil
	}

	var result *schema.RunResult
	if runID := req.GetString("run_id", ""); runID != "" {
		if s.store == nil {
			return mcp.NewToolResultError("run_id requires a run archive"), nil
		}
		rec, getErr := s.store.GetRun(ctx, runID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", getErr)), nil
		}
		result = rec.Result
	}

	model, buildErr := diagram.Build(def, result)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "png", "svg":
		img, imgErr := diagram.RenderImage(ctx, model, diagram.ImageFormat(format))
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(img)), nil
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, png or svg"), nil
	}
}

// handleRuns queries the run archive.
func (s *Server) handleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "runs":
		return s.queryRuns(ctx, filter)
	case "run":
		runID := extractString(filter, "run_id")
		if runID == "" {
			return mcp.NewToolResultError("run query requires 'run_id' in filter"), nil
		}
		rec, getErr := s.store.GetRun(ctx, runID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", getErr)), nil
		}
		return marshalResult(rec)
	case "events":
		runID := extractString(filter, "run_id")
		if runID == "" {
			return mcp.NewToolResultError("event query requires 'run_id' in filter"), nil
		}
		events, getErr := s.store.GetEvents(ctx, runID, int64(extractInt(filter, "since_sequence", 0)))
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", getErr)), nil
		}
		return marshalResult(map[string]any{"events": events})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

func (s *Server) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		UserID: extractString(filter, "user_id"),
		Status: schema.RunStatus(extractString(filter, "status")),
		Limit:  extractInt(filter, "limit", 50),
	}
	if since := extractString(filter, "since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("since must be RFC3339: %v", err)), nil
		}
		rf.Since = &t
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// --- Internal helpers ---

// definitionJSON re-encodes the definition argument for the validator.
func definitionJSON(req mcp.CallToolRequest) ([]byte, *mcp.CallToolResult) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return nil, mcp.NewToolResultError("definition is required")
	}
	raw, err := json.Marshal(defRaw)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err))
	}
	return raw, nil
}

// definition decodes the definition argument. Structural problems are
// returned as a tool error listing the validation errors.
func (s *Server) definition(req mcp.CallToolRequest) (*schema.WorkflowDefinition, *mcp.CallToolResult) {
	raw, errResult := definitionJSON(req)
	if errResult != nil {
		return nil, errResult
	}
	if s.validator == nil {
		def, err := schema.ParseDefinition(raw)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err))
		}
		return def, nil
	}
	def, result := s.validator.ValidateJSON(raw)
	if !result.Valid() {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", result.ToError()))
	}
	return def, nil
}

func extractString(filter map[string]any, key string) string {
	if filter == nil {
		return ""
	}
	v, _ := filter[key].(string)
	return v
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
