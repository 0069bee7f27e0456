package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rendis/flowrun/internal/expressions"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_InterpolatesAndPassesInput(t *testing.T) {
	reg := providers.NewRegistry()
	p := &recordingProvider{}
	reg.MustRegister("app", p)
	creds := &fakeCredentials{owner: map[string]string{"c": "u"}, data: map[string]map[string]any{"c": {"key": "secret"}}}

	ec := expressions.NewExecutionContext("t", map[string]any{"name": "ada"})
	node := Node{ID: "n", AppID: "app", ActionID: "greet", CredentialID: "c", Config: map[string]any{"msg": "hi {{trigger.name}}"}}

	d, err := NewDispatcher(reg, creds).Dispatch(context.Background(), node, "u", ec)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"msg": "hi ada"}, d.Config)
	assert.Equal(t, map[string]any{"ok": true, "action": "greet"}, d.Result)
	require.Len(t, p.calls, 1)
	assert.Equal(t, providers.Input{
		ActionID:   "greet",
		Config:     map[string]any{"msg": "hi ada"},
		Credential: map[string]any{"key": "secret"},
	}, p.calls[0])
	assert.Equal(t, "hi {{trigger.name}}", node.Config["msg"], "raw config untouched")
}

func TestDispatch_NilCredentialWhenNoneConfigured(t *testing.T) {
	reg := providers.NewRegistry()
	p := &recordingProvider{}
	reg.MustRegister("app", p)

	_, err := NewDispatcher(reg, nil).Dispatch(context.Background(), Node{ID: "n", AppID: "app"}, "u", expressions.NewExecutionContext("t", nil))
	require.NoError(t, err)
	assert.Nil(t, p.calls[0].Credential)
	assert.Equal(t, map[string]any{}, p.calls[0].Config)
}

func TestDispatch_UnregisteredApp(t *testing.T) {
	d, err := NewDispatcher(providers.NewRegistry(), nil).
		Dispatch(context.Background(), Node{ID: "n", AppID: "ghost"}, "u", expressions.NewExecutionContext("t", nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "skipped", "reason": `no provider registered for app "ghost"`}, d.Result)
}

func TestDispatch_ErrorWrapping(t *testing.T) {
	plain := errors.New("socket closed")
	structured := schema.NewError(schema.ErrCodeCredentialRequired, "needs a token")

	reg := providers.NewRegistry()
	reg.MustRegister("plain", providers.Func(func(context.Context, providers.Input) (any, error) { return nil, plain }))
	reg.MustRegister("structured", providers.Func(func(context.Context, providers.Input) (any, error) { return nil, structured }))
	dispatcher := NewDispatcher(reg, nil)
	ec := expressions.NewExecutionContext("t", nil)

	d, err := dispatcher.Dispatch(context.Background(), Node{ID: "n", AppID: "plain", Config: map[string]any{"a": "b"}}, "u", ec)
	assert.Equal(t, schema.ErrCodeProvider, schema.CodeOf(err))
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, map[string]any{"a": "b"}, d.Config, "config is returned with the error")

	_, err = dispatcher.Dispatch(context.Background(), Node{ID: "n", AppID: "structured"}, "u", ec)
	assert.Same(t, structured, err)
}
