package engine

import (
	"context"
	"time"

	"github.com/rendis/flowrun/pkg/schema"
)

// RunInfo identifies the run an observer callback belongs to.
type RunInfo struct {
	RunID     string
	UserID    string
	TriggerID string
	StartedAt time.Time
}

// Observer receives run lifecycle callbacks. Callbacks are made synchronously
// on the run goroutine in execution order and must not block.
type Observer interface {
	RunStarted(ctx context.Context, run RunInfo)
	NodeStarted(ctx context.Context, run RunInfo, node Node)
	NodeFinished(ctx context.Context, run RunInfo, node Node, rec schema.NodeExecutionRecord)
	VariableSet(ctx context.Context, run RunInfo, name string, value any)
	CycleFallback(ctx context.Context, run RunInfo, order []string)
	RunFinished(ctx context.Context, run RunInfo, result *schema.RunResult, err error)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RunStarted(context.Context, RunInfo) {}
func (NopObserver) NodeStarted(context.Context, RunInfo, Node) {}
func (NopObserver) NodeFinished(context.Context, RunInfo, Node, schema.NodeExecutionRecord) {}
func (NopObserver) VariableSet(context.Context, RunInfo, string, any) {}
func (NopObserver) CycleFallback(context.Context, RunInfo, []string) {}
func (NopObserver) RunFinished(context.Context, RunInfo, *schema.RunResult, error) {}

// Observers fans every callback out to each member in order.
type Observers []Observer

func (o Observers) RunStarted(ctx context.Context, run RunInfo) {
	for _, obs := range o {
		obs.RunStarted(ctx, run)
	}
}

func (o Observers) NodeStarted(ctx context.Context, run RunInfo, node Node) {
	for _, obs := range o {
		obs.NodeStarted(ctx, run, node)
	}
}

func (o Observers) NodeFinished(ctx context.Context, run RunInfo, node Node, rec schema.NodeExecutionRecord) {
	for _, obs := range o {
		obs.NodeFinished(ctx, run, node, rec)
	}
}

func (o Observers) VariableSet(ctx context.Context, run RunInfo, name string, value any) {
	for _, obs := range o {
		obs.VariableSet(ctx, run, name, value)
	}
}

func (o Observers) CycleFallback(ctx context.Context, run RunInfo, order []string) {
	for _, obs := range o {
		obs.CycleFallback(ctx, run, order)
	}
}

func (o Observers) RunFinished(ctx context.Context, run RunInfo, result *schema.RunResult, err error) {
	for _, obs := range o {
		obs.RunFinished(ctx, run, result, err)
	}
}

var (
	_ Observer = NopObserver{}
	_ Observer = Observers(nil)
)
