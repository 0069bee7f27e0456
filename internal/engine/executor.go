package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/flowrun/internal/expressions"
	"github.com/rendis/flowrun/internal/logging"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/pkg/schema"
)

// VariableSetterApp is the app key whose results update workflow variables.
const VariableSetterApp = providers.VariableApp

// variableScopeWorkflow is the only variable scope the driver applies.
const variableScopeWorkflow = "workflow"

// ExecutorConfig holds optional collaborators for the executor.
type ExecutorConfig struct {
	Logger   *slog.Logger     // nil = slog.Default()
	Observer Observer         // nil = no callbacks
	Clock    func() time.Time // nil = time.Now().UTC()
}

// RunRequest describes one run.
type RunRequest struct {
	RunID       string // generated when empty
	UserID      string // owner every credential must belong to
	Definition  *schema.WorkflowDefinition
	TriggerData map[string]any // overrides Definition.TriggerData when non-nil
}

// Executor drives a run: it schedules the reachable action nodes and
// executes them one at a time, recording a trace entry for each.
type Executor struct {
	providers   ProviderLookup
	credentials CredentialResolver
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time
}

// NewExecutor creates an Executor. credentials may be nil when no workflow
// uses credentials.
func NewExecutor(p ProviderLookup, credentials CredentialResolver, cfg ExecutorConfig) *Executor {
	e := &Executor{
		providers:   p,
		credentials: credentials,
		logger:      cfg.Logger,
		observer:    cfg.Observer,
		now:         cfg.Clock,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = NopObserver{}
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Run executes a workflow to completion or to its first failing node.
//
// A structural problem (missing definition, zero or several triggers)
// returns a nil result: nothing ran. When a node fails, Run returns the
// partial trace with status aborted together with a NODE_FAILED error that
// wraps the node's error. Otherwise the error is nil.
//
// ctx is passed to providers for their own I/O. The driver does not check
// it between nodes: once started, a run proceeds until completion or failure.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*schema.RunResult, error) {
	if req.Definition == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	g := NewGraph(req.Definition)
	trigger, err := g.Trigger()
	if err != nil {
		e.logger.WarnContext(ctx, "run rejected", slog.String("error", err.Error()))
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithUserID(logging.WithRunID(ctx, runID), req.UserID)

	payload := req.TriggerData
	if payload == nil {
		payload = req.Definition.TriggerData
	}
	if payload == nil {
		payload = map[string]any{}
	}

	r := &run{
		Executor: e,
		info:     RunInfo{RunID: runID, UserID: req.UserID, TriggerID: trigger.ID, StartedAt: e.now()},
		graph:    g,
		ec:       expressions.NewExecutionContext(trigger.ID, payload),
		dispatch: NewDispatcher(e.providers, newCredentialCache(e.credentials)),
		result: &schema.RunResult{
			RunID:          runID,
			NodeExecutions: []schema.NodeExecutionRecord{},
		},
	}
	return r.execute(ctx, trigger, payload)
}

// run holds the state of one in-flight run. It is owned by a single goroutine.
type run struct {
	*Executor
	info     RunInfo
	graph    *Graph
	ec       *expressions.ExecutionContext
	dispatch *Dispatcher
	result   *schema.RunResult
}

func (r *run) execute(ctx context.Context, trigger Node, payload map[string]any) (*schema.RunResult, error) {
	r.logger.InfoContext(ctx, "run started",
		slog.String("trigger", trigger.ID),
		slog.Int("nodes", len(r.graph.IDs)),
		slog.Int("dangling_edges", len(r.graph.Dangling)))
	r.observer.RunStarted(ctx, r.info)

	r.append(ctx, trigger, schema.NodeExecutionRecord{
		NodeID:      trigger.ID,
		NodeName:    trigger.DisplayName(),
		Status:      schema.NodeStatusSuccess,
		InputData:   payload,
		OutputData:  payload,
		StartedAt:   r.info.StartedAt,
		CompletedAt: r.info.StartedAt,
	})

	order, acyclic := Order(Reachable(trigger.ID, r.graph.Edges), r.graph.Edges)
	if !acyclic {
		r.logger.WarnContext(ctx, "reachable graph has a cycle; executing in discovery order",
			slog.Any("order", order))
		r.observer.CycleFallback(ctx, r.info, order)
	}

	for _, id := range order {
		if id == trigger.ID {
			continue
		}
		node, ok := r.graph.Node(id)
		if !ok || node.Kind != schema.NodeKindAction {
			continue
		}
		if err := r.step(logging.WithNodeID(ctx, id), node); err != nil {
			return r.finish(ctx, schema.RunStatusAborted, err)
		}
	}
	return r.finish(ctx, schema.RunStatusCompleted, nil)
}

// step dispatches one action node and records it. A returned error aborts the run.
func (r *run) step(ctx context.Context, node Node) error {
	started := r.now()
	r.observer.NodeStarted(ctx, r.info, node)

	d, err := r.dispatch.Dispatch(ctx, node, r.info.UserID, r.ec)
	rec := schema.NodeExecutionRecord{
		NodeID:    node.ID,
		NodeName:  node.DisplayName(),
		InputData: d.Config,
		StartedAt: started,
	}

	if err != nil {
		rec.Status = schema.NodeStatusError
		rec.Error = errorMessage(err)
		rec.CompletedAt = r.now()
		r.logger.ErrorContext(ctx, "node failed",
			slog.String("app", node.AppID),
			slog.String("action", node.ActionID),
			slog.String("code", schema.CodeOf(err)),
			slog.String("error", rec.Error))
		r.append(ctx, node, rec)
		return schema.NewErrorf(schema.ErrCodeNodeFailed, "node %q failed: %s", node.ID, rec.Error).
			WithNode(node.ID).
			WithCause(err)
	}

	r.ec.SetNodeOutput(node.ID, d.Result)
	if node.AppID == VariableSetterApp {
		r.applyVariable(ctx, d.Result)
	}

	rec.OutputData = d.Result
	rec.Status = schema.NodeStatusSuccess
	if providers.IsSkipped(d.Result) {
		rec.Status = schema.NodeStatusSkipped
		r.logger.InfoContext(ctx, "node skipped", slog.String("reason", providers.SkipReason(d.Result)))
	} else {
		r.logger.DebugContext(ctx, "node completed", slog.String("app", node.AppID))
	}
	rec.CompletedAt = r.now()
	r.append(ctx, node, rec)
	return nil
}

// applyVariable upserts a workflow variable from a variable-setter result
// shaped {name, scope:"workflow", value, overwrite}. overwrite defaults to true.
func (r *run) applyVariable(ctx context.Context, result any) {
	m, ok := result.(map[string]any)
	if !ok {
		return
	}
	name, _ := m["name"].(string)
	scope, _ := m["scope"].(string)
	if name == "" || scope != variableScopeWorkflow {
		return
	}
	overwrite := true
	if b, ok := m["overwrite"].(bool); ok {
		overwrite = b
	}

	value := m["value"]
	if !r.ec.SetVariable(name, value, overwrite) {
		r.logger.DebugContext(ctx, "variable kept", slog.String("name", name))
		return
	}
	r.observer.VariableSet(ctx, r.info, name, value)
}

func (r *run) append(ctx context.Context, node Node, rec schema.NodeExecutionRecord) {
	r.result.NodeExecutions = append(r.result.NodeExecutions, rec)
	r.observer.NodeFinished(ctx, r.info, node, rec)
}

func (r *run) finish(ctx context.Context, status schema.RunStatus, err error) (*schema.RunResult, error) {
	r.result.Status = status
	r.result.OutputData = schema.RunOutput{
		Trigger:  r.ec.Trigger,
		LastNode: lastOutput(r.result.NodeExecutions),
		Nodes:    r.ec.Nodes,
	}

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "run finished",
		slog.String("status", string(status)),
		slog.Int("executed", len(r.result.NodeExecutions)),
		slog.Duration("elapsed", r.now().Sub(r.info.StartedAt)))

	r.observer.RunFinished(ctx, r.info, r.result, err)
	return r.result, err
}

// lastOutput is the output of the last trace entry that has one.
func lastOutput(records []schema.NodeExecutionRecord) any {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Status != schema.NodeStatusError {
			return records[i].OutputData
		}
	}
	return nil
}

// errorMessage prefers the structured message over the formatted error string.
func errorMessage(err error) string {
	var fe *schema.FlowError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
