package providers

import (
	"fmt"

	"github.com/rendis/flowrun/internal/expressions"
)

// BuiltinConfig holds the settings of the built-in providers.
type BuiltinConfig struct {
	HTTP   HTTPConfig
	Slack  SlackConfig
	OpenAI OpenAIConfig
}

// RegisterBuiltins registers all built-in providers into reg.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return fmt.Errorf("init condition provider: %w", err)
	}

	builtins := []struct {
		appID    string
		provider Provider
	}{
		{VariableApp, VariableSetter{}},
		{HTTPApp, NewHTTPProvider(cfg.HTTP)},
		{TransformApp, NewTransformProvider(expressions.NewGoJQEngine())},
		{ConditionApp, NewConditionProvider(cel)},
		{CodeApp, NewCodeProvider(expressions.NewExprEngine())},
		{CryptoApp, CryptoProvider{}},
		{SlackApp, NewSlackProvider(cfg.Slack)},
		{OpenAIApp, NewOpenAIProvider(cfg.OpenAI)},
		{AssertApp, AssertProvider{}},
	}
	for _, b := range builtins {
		if err := reg.Register(b.appID, b.provider); err != nil {
			return fmt.Errorf("register %s: %w", b.appID, err)
		}
	}
	return nil
}
