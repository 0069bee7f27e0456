package providers

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIApp is the app key of the OpenAI provider.
const OpenAIApp = "openai"

const defaultChatModel = openai.GPT4oMini

// OpenAIConfig configures the OpenAI provider. BaseURL targets any
// OpenAI-compatible endpoint; empty means api.openai.com.
type OpenAIConfig struct {
	BaseURL string
}

// OpenAIProvider runs chat completions with the API key in the node
// credential ("apiKey").
//
// Config: "model", "prompt" or "messages" ([{role, content}]), "system",
// "temperature", "max_tokens".
type OpenAIProvider struct {
	baseURL string
}

// NewOpenAIProvider creates the OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{baseURL: cfg.BaseURL}
}

func (p *OpenAIProvider) Describe() Info {
	return Info{
		AppID:       OpenAIApp,
		Description: "OpenAI chat completions (credential: apiKey).",
		Actions:     []string{"chat_completion"},
	}
}

func (p *OpenAIProvider) Execute(ctx context.Context, in Input) (any, error) {
	if in.ActionID != "chat_completion" {
		return unsupportedAction(OpenAIApp, in.ActionID), nil
	}
	if err := requireCredential(OpenAIApp, in); err != nil {
		return nil, err
	}
	apiKey := stringParam(in.Credential, "apiKey", "")
	if apiKey == "" {
		return nil, providerError(OpenAIApp, in.ActionID, "credential has no 'apiKey'")
	}

	messages, err := chatMessages(in.Config)
	if err != nil {
		return nil, providerError(OpenAIApp, in.ActionID, "%v", err)
	}

	cfg := openai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	req := openai.ChatCompletionRequest{
		Model:       stringParam(in.Config, "model", defaultChatModel),
		Messages:    messages,
		Temperature: float32(floatParam(in.Config, "temperature", 0)),
		MaxTokens:   intParam(in.Config, "max_tokens", 0),
	}
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, providerError(OpenAIApp, in.ActionID, "chat completion: %v", err).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return nil, providerError(OpenAIApp, in.ActionID, "response has no choices")
	}

	choice := resp.Choices[0]
	return map[string]any{
		"content":       choice.Message.Content,
		"model":         resp.Model,
		"finish_reason": string(choice.FinishReason),
		"usage": map[string]any{
			"prompt_tokens":     float64(resp.Usage.PromptTokens),
			"completion_tokens": float64(resp.Usage.CompletionTokens),
			"total_tokens":      float64(resp.Usage.TotalTokens),
		},
	}, nil
}

func chatMessages(config map[string]any) ([]openai.ChatCompletionMessage, error) {
	var messages []openai.ChatCompletionMessage
	if system := stringParam(config, "system", ""); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	if raw, ok := config["messages"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, errors.New("'messages' entries must be objects")
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    stringParam(m, "role", openai.ChatMessageRoleUser),
				Content: stringParam(m, "content", ""),
			})
		}
	}
	if prompt := stringParam(config, "prompt", ""); prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	}
	if len(messages) == 0 || messages[len(messages)-1].Role == openai.ChatMessageRoleSystem {
		return nil, errors.New("'prompt' or 'messages' is required")
	}
	return messages, nil
}
