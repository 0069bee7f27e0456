package providers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowrun/pkg/schema"
)

func TestOpenAI_ChatCompletion(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Bonjour"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 2, "total_tokens": 11}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1"})
	out, err := exec(t, p, "chat_completion", map[string]any{
		"system": "Translate to French.",
		"prompt": "Hello",
	}, map[string]any{"apiKey": "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "Hello", messages[1].(map[string]any)["content"])

	result := out.(map[string]any)
	assert.Equal(t, "Bonjour", result["content"])
	assert.Equal(t, "stop", result["finish_reason"])
	assert.Equal(t, float64(11), result["usage"].(map[string]any)["total_tokens"])
}

func TestOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := exec(t, p, "chat_completion", map[string]any{"prompt": "hi"}, map[string]any{"apiKey": "sk-bad"})
	assertCode(t, err, schema.ErrCodeProvider)
}

func TestOpenAI_InputErrors(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := exec(t, p, "chat_completion", map[string]any{"prompt": "hi"}, nil)
	assertCode(t, err, schema.ErrCodeCredentialRequired)

	_, err = exec(t, p, "chat_completion", map[string]any{"prompt": "hi"}, map[string]any{"token": "x"})
	assertCode(t, err, schema.ErrCodeProvider)

	_, err = exec(t, p, "chat_completion", map[string]any{"system": "only a system prompt"}, map[string]any{"apiKey": "k"})
	assertCode(t, err, schema.ErrCodeProvider)

	_, err = exec(t, p, "chat_completion", map[string]any{"messages": []any{"nope"}}, map[string]any{"apiKey": "k"})
	assertCode(t, err, schema.ErrCodeProvider)
}

func TestChatMessages(t *testing.T) {
	msgs, err := chatMessages(map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "a"},
			map[string]any{"role": "assistant", "content": "b"},
		},
		"prompt": "c",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "c", msgs[2].Content)
}
