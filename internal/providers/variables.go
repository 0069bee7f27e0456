package providers

import "context"

// VariableApp is the app key the engine treats as the variable setter.
const VariableApp = "set_variable"

// VariableSetter echoes its config as a variable instruction
// {name, scope, value, overwrite}. The engine applies it to the run's
// variables when scope is "workflow"; scope defaults to "workflow" and
// overwrite to true.
type VariableSetter struct{}

func (VariableSetter) Describe() Info {
	return Info{
		AppID:       VariableApp,
		Description: "Sets a workflow-scoped variable readable as {{variables.<name>}}.",
	}
}

func (VariableSetter) Execute(_ context.Context, in Input) (any, error) {
	name := stringParam(in.Config, "name", "")
	if name == "" {
		return nil, providerError(VariableApp, in.ActionID, "'name' is required")
	}
	return map[string]any{
		"name":      name,
		"scope":     stringParam(in.Config, "scope", "workflow"),
		"value":     in.Config["value"],
		"overwrite": boolParam(in.Config, "overwrite", true),
	}, nil
}
