package streaming

import (
	"context"
	"log/slog"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/pkg/schema"
)

// Observer publishes run lifecycle callbacks to an EventHub.
type Observer struct {
	hub    EventHub
	logger *slog.Logger
}

// NewObserver creates an engine observer publishing to hub.
func NewObserver(hub EventHub, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{hub: hub, logger: logger}
}

func (o *Observer) RunStarted(ctx context.Context, run engine.RunInfo) {
	o.publish(ctx, StreamEvent{RunID: run.RunID, EventType: schema.EventRunStarted, Payload: map[string]any{
		"user_id":    run.UserID,
		"trigger_id": run.TriggerID,
		"started_at": run.StartedAt,
	}})
}

func (o *Observer) NodeStarted(ctx context.Context, run engine.RunInfo, node engine.Node) {
	o.publish(ctx, StreamEvent{RunID: run.RunID, NodeID: node.ID, EventType: schema.EventNodeStarted, Payload: map[string]any{
		"app_id":    node.AppID,
		"action_id": node.ActionID,
		"name":      node.DisplayName(),
	}})
}

func (o *Observer) NodeFinished(ctx context.Context, run engine.RunInfo, node engine.Node, rec schema.NodeExecutionRecord) {
	o.publish(ctx, StreamEvent{RunID: run.RunID, NodeID: node.ID, EventType: schema.NodeEvent(rec.Status), Payload: rec})
}

func (o *Observer) VariableSet(ctx context.Context, run engine.RunInfo, name string, value any) {
	o.publish(ctx, StreamEvent{RunID: run.RunID, EventType: schema.EventVariableSet, Payload: map[string]any{
		"name":  name,
		"value": value,
	}})
}

func (o *Observer) CycleFallback(ctx context.Context, run engine.RunInfo, order []string) {
	o.publish(ctx, StreamEvent{RunID: run.RunID, EventType: schema.EventCycleFallback, Payload: map[string]any{"order": order}})
}

func (o *Observer) RunFinished(ctx context.Context, run engine.RunInfo, result *schema.RunResult, err error) {
	event := StreamEvent{RunID: run.RunID, EventType: schema.EventRunCompleted}
	payload := map[string]any{}
	if result != nil {
		payload["status"] = result.Status
		payload["node_count"] = len(result.NodeExecutions)
		if result.Status == schema.RunStatusAborted {
			event.EventType = schema.EventRunAborted
		}
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	event.Payload = payload
	o.publish(ctx, event)
}

func (o *Observer) publish(ctx context.Context, event StreamEvent) {
	// A cancelled run context must not hide the final events from subscribers.
	if err := o.hub.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.logger.WarnContext(ctx, "publish run event failed",
			slog.String("event", event.EventType), slog.String("error", err.Error()))
	}
}

var _ engine.Observer = (*Observer)(nil)
