package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/pkg/schema"
)

// Archive records runs as they happen: every lifecycle callback becomes a
// run event, and the finished run is saved with its trace. Write failures
// are logged and never affect the run.
type Archive struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewArchive creates an Archive writing to s.
func NewArchive(s Store, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: s, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (a *Archive) RunStarted(ctx context.Context, run engine.RunInfo) {
	a.append(ctx, run.RunID, "", schema.EventRunStarted, map[string]any{
		"user_id":    run.UserID,
		"trigger_id": run.TriggerID,
	})
}

func (a *Archive) NodeStarted(ctx context.Context, run engine.RunInfo, node engine.Node) {
	a.append(ctx, run.RunID, node.ID, schema.EventNodeStarted, map[string]any{"app_id": node.AppID})
}

func (a *Archive) NodeFinished(ctx context.Context, run engine.RunInfo, node engine.Node, rec schema.NodeExecutionRecord) {
	payload := map[string]any{"duration_ms": rec.Duration().Milliseconds()}
	if rec.Error != "" {
		payload["error"] = rec.Error
	}
	a.append(ctx, run.RunID, node.ID, schema.NodeEvent(rec.Status), payload)
}

func (a *Archive) VariableSet(ctx context.Context, run engine.RunInfo, name string, _ any) {
	a.append(ctx, run.RunID, "", schema.EventVariableSet, map[string]any{"name": name})
}

func (a *Archive) CycleFallback(ctx context.Context, run engine.RunInfo, order []string) {
	a.append(ctx, run.RunID, "", schema.EventCycleFallback, map[string]any{"order": order})
}

func (a *Archive) RunFinished(ctx context.Context, run engine.RunInfo, result *schema.RunResult, err error) {
	if result == nil {
		return
	}
	eventType := schema.EventRunCompleted
	if result.Status == schema.RunStatusAborted {
		eventType = schema.EventRunAborted
	}
	a.append(ctx, run.RunID, "", eventType, nil)

	completed := a.now()
	rec := &RunRecord{
		ID:          run.RunID,
		UserID:      run.UserID,
		TriggerID:   run.TriggerID,
		Status:      result.Status,
		StartedAt:   run.StartedAt,
		CompletedAt: &completed,
		Result:      result,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if saveErr := a.store.SaveRun(ctx, rec); saveErr != nil {
		a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", saveErr.Error()))
	}
}

func (a *Archive) append(ctx context.Context, runID, nodeID, eventType string, payload map[string]any) {
	e := &Event{RunID: runID, NodeID: nodeID, Type: eventType, Timestamp: a.now()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			a.logger.WarnContext(ctx, "archive event payload dropped", slog.String("event", eventType), slog.String("error", err.Error()))
		} else {
			e.Payload = b
		}
	}
	if err := a.store.AppendEvent(ctx, e); err != nil {
		a.logger.ErrorContext(ctx, "archive event failed", slog.String("event", eventType), slog.String("error", err.Error()))
	}
}

var _ engine.Observer = (*Archive)(nil)
