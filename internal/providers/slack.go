package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// SlackApp is the app key of the Slack provider.
const SlackApp = "slack"

// DefaultSlackBaseURL is the Slack Web API root.
const DefaultSlackBaseURL = "https://slack.com/api"

// SlackConfig configures the Slack provider.
type SlackConfig struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// SlackProvider posts messages through the Slack Web API using the bot
// token in the node credential ("token"). A client is built per call since
// the token comes from the node.
type SlackProvider struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

// NewSlackProvider creates the Slack provider.
func NewSlackProvider(cfg SlackConfig) *SlackProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSlackBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &SlackProvider{
		// slack-go appends the method name directly to the API URL.
		apiURL:  strings.TrimRight(cfg.BaseURL, "/") + "/",
		timeout: cfg.Timeout,
		client:  cfg.Client,
	}
}

func (p *SlackProvider) Describe() Info {
	return Info{
		AppID:       SlackApp,
		Description: "Slack messages (credential: bot token).",
		Actions:     []string{"send_message"},
	}
}

func (p *SlackProvider) Execute(ctx context.Context, in Input) (any, error) {
	if in.ActionID != "send_message" {
		return unsupportedAction(SlackApp, in.ActionID), nil
	}
	if err := requireCredential(SlackApp, in); err != nil {
		return nil, err
	}
	token := stringParam(in.Credential, "token", "")
	if token == "" {
		return nil, providerError(SlackApp, in.ActionID, "credential has no 'token'")
	}
	channel := stringParam(in.Config, "channel", "")
	text := stringParam(in.Config, "text", "")
	if channel == "" || text == "" {
		return nil, providerError(SlackApp, in.ActionID, "'channel' and 'text' are required")
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if ts := stringParam(in.Config, "thread_ts", ""); ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}

	api := slack.New(token, slack.OptionAPIURL(p.apiURL), slack.OptionHTTPClient(p.client))
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	respChannel, ts, err := api.PostMessageContext(reqCtx, channel, opts...)
	if err != nil {
		var apiErr slack.SlackErrorResponse
		if errors.As(err, &apiErr) {
			return nil, providerError(SlackApp, in.ActionID, "slack error: %s", apiErr.Err).WithCause(err)
		}
		return nil, providerError(SlackApp, in.ActionID, "request failed: %v", err).WithCause(err)
	}
	return map[string]any{"ok": true, "channel": respChannel, "ts": ts}, nil
}
