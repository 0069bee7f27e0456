package providers

import (
	"context"

	"github.com/rendis/flowrun/internal/expressions"
)

// CodeApp is the app key of the expression provider.
const CodeApp = "code"

// CodeProvider computes values with expr-lang. Config: "expression" and
// "env" (an object whose keys are the expression's variables).
type CodeProvider struct {
	expr *expressions.ExprEngine
}

// NewCodeProvider creates the code provider.
func NewCodeProvider(e *expressions.ExprEngine) *CodeProvider {
	if e == nil {
		e = expressions.NewExprEngine()
	}
	return &CodeProvider{expr: e}
}

func (p *CodeProvider) Describe() Info {
	return Info{
		AppID:       CodeApp,
		Description: "expr-lang computations.",
		Actions:     []string{"expr"},
	}
}

func (p *CodeProvider) Execute(ctx context.Context, in Input) (any, error) {
	if in.ActionID != "expr" {
		return unsupportedAction(CodeApp, in.ActionID), nil
	}
	expression := stringParam(in.Config, "expression", "")
	if expression == "" {
		return nil, providerError(CodeApp, in.ActionID, "'expression' is required")
	}
	out, err := p.expr.Evaluate(ctx, expression, mapParam(in.Config, "env"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": out}, nil
}
