package providers

import (
	"context"

	"github.com/rendis/flowrun/internal/expressions"
)

// TransformApp is the app key of the jq transform provider.
const TransformApp = "transform"

// TransformProvider reshapes data with jq. Config: "filter" (jq program)
// and "input" (any value, usually an interpolated upstream output).
// A filter yielding one value returns it as "result"; several values come
// back as a list.
type TransformProvider struct {
	jq *expressions.GoJQEngine
}

// NewTransformProvider creates the transform provider.
func NewTransformProvider(jq *expressions.GoJQEngine) *TransformProvider {
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &TransformProvider{jq: jq}
}

func (p *TransformProvider) Describe() Info {
	return Info{
		AppID:       TransformApp,
		Description: "jq transformations over node data.",
		Actions:     []string{"jq"},
	}
}

func (p *TransformProvider) Execute(ctx context.Context, in Input) (any, error) {
	if in.ActionID != "jq" {
		return unsupportedAction(TransformApp, in.ActionID), nil
	}
	filter := stringParam(in.Config, "filter", "")
	if filter == "" {
		return nil, providerError(TransformApp, in.ActionID, "'filter' is required")
	}

	results, err := p.jq.EvaluateValue(ctx, filter, in.Config["input"])
	if err != nil {
		return nil, err
	}
	var result any
	switch len(results) {
	case 0:
	case 1:
		result = results[0]
	default:
		result = results
	}
	return map[string]any{"result": result}, nil
}
