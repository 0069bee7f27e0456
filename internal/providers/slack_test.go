package providers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowrun/pkg/schema"
)

// slackToken reads the bot token from the Authorization header, falling back
// to the form field older Web API clients use.
func slackToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.FormValue("token")
}

func TestSlack_SendMessage(t *testing.T) {
	var got struct{ channel, text, threadTS, token string }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got.channel = r.FormValue("channel")
		got.text = r.FormValue("text")
		got.threadTS = r.FormValue("thread_ts")
		got.token = slackToken(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	p := NewSlackProvider(SlackConfig{BaseURL: srv.URL + "/api/"})
	out, err := exec(t, p, "send_message",
		map[string]any{"channel": "C1", "text": "deployed", "thread_ts": "1699999999.000001"},
		map[string]any{"token": "xoxb-1"})
	require.NoError(t, err)

	assert.Equal(t, "C1", got.channel)
	assert.Equal(t, "deployed", got.text)
	assert.Equal(t, "1699999999.000001", got.threadTS)
	assert.Equal(t, "xoxb-1", got.token)
	assert.Equal(t, map[string]any{"ok": true, "channel": "C1", "ts": "1700000000.000100"}, out)
}

func TestSlack_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slackToken(r) == "down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()
	p := NewSlackProvider(SlackConfig{BaseURL: srv.URL})
	msg := map[string]any{"channel": "C1", "text": "hi"}

	_, err := exec(t, p, "send_message", msg, nil)
	assertCode(t, err, schema.ErrCodeCredentialRequired)

	_, err = exec(t, p, "send_message", msg, map[string]any{"user": "x"})
	assertCode(t, err, schema.ErrCodeProvider)

	_, err = exec(t, p, "send_message", map[string]any{"channel": "C1"}, map[string]any{"token": "t"})
	assertCode(t, err, schema.ErrCodeProvider)

	_, err = exec(t, p, "send_message", msg, map[string]any{"token": "t"})
	assertCode(t, err, schema.ErrCodeProvider)
	assert.Contains(t, err.Error(), "channel_not_found")

	_, err = exec(t, p, "send_message", msg, map[string]any{"token": "down"})
	assertCode(t, err, schema.ErrCodeProvider)
	assert.Contains(t, err.Error(), "503")
}
