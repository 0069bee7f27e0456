package providers

import (
	"context"
	"fmt"

	"github.com/rendis/flowrun/internal/expressions"
)

// ConditionApp is the app key of the CEL condition provider.
const ConditionApp = "condition"

// ConditionProvider evaluates CEL conditions. Config: "expression" and
// "data" (an object exposed to the expression as input).
//
// evaluate returns {result: bool}. guard returns the skip sentinel when the
// condition is false, so the run records the node as skipped and continues.
type ConditionProvider struct {
	cel *expressions.CELEngine
}

// NewConditionProvider creates the condition provider.
func NewConditionProvider(cel *expressions.CELEngine) *ConditionProvider {
	return &ConditionProvider{cel: cel}
}

func (p *ConditionProvider) Describe() Info {
	return Info{
		AppID:       ConditionApp,
		Description: "CEL conditions and guards.",
		Actions:     []string{"evaluate", "guard"},
	}
}

func (p *ConditionProvider) Execute(ctx context.Context, in Input) (any, error) {
	if in.ActionID != "evaluate" && in.ActionID != "guard" {
		return unsupportedAction(ConditionApp, in.ActionID), nil
	}
	expression := stringParam(in.Config, "expression", "")
	if expression == "" {
		return nil, providerError(ConditionApp, in.ActionID, "'expression' is required")
	}
	data := map[string]any{}
	if raw, ok := in.Config["data"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, providerError(ConditionApp, in.ActionID, "'data' must be an object, got %T", raw)
		}
		data = m
	}

	ok, err := p.cel.EvaluateBool(ctx, expression, map[string]any{"input": data})
	if err != nil {
		return nil, err
	}
	if in.ActionID == "guard" && !ok {
		return Skipped(fmt.Sprintf("guard %q evaluated to false", expression)), nil
	}
	return map[string]any{"result": ok}, nil
}
