package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// HTTPApp is the app key of the HTTP provider.
const HTTPApp = "http"

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPConfig configures the HTTP provider.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
	Transport       http.RoundTripper // nil uses a clone of http.DefaultTransport
}

const httpConfigSchema = `{
  "type": "object",
  "properties": {
    "method": {"type": "string", "enum": ["GET","POST","PUT","PATCH","DELETE","HEAD","OPTIONS","get","post","put","patch","delete","head","options"]},
    "url": {"type": "string", "minLength": 1},
    "headers": {"type": "object", "additionalProperties": {"type": ["string","number","boolean"]}},
    "query": {"type": "object"},
    "body": {},
    "body_encoding": {"type": "string", "enum": ["json","form","text"]},
    "timeout": {"type": "string"},
    "follow_redirects": {"type": "boolean"},
    "max_redirects": {"type": "integer", "minimum": 0},
    "fail_on_error_status": {"type": "boolean"}
  },
  "required": ["url"]
}`

// HTTPProvider performs outbound HTTP requests. Actions: request (method
// from config), get, post.
//
// A node credential authenticates the request: "token" becomes a bearer
// header, "username"/"password" basic auth, "header_name"/"header_value" an
// API-key header.
type HTTPProvider struct {
	config HTTPConfig
	schema *jsonschema.Schema
}

// NewHTTPProvider creates the HTTP provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &HTTPProvider{config: cfg, schema: compileConfigSchema("http", httpConfigSchema)}
}

func (p *HTTPProvider) Describe() Info {
	return Info{
		AppID:       HTTPApp,
		Description: "Outbound HTTP requests with JSON, form or text bodies.",
		Actions:     []string{"get", "post", "request"},
	}
}

func (p *HTTPProvider) Execute(ctx context.Context, in Input) (any, error) {
	var method string
	switch in.ActionID {
	case "request":
		method = strings.ToUpper(stringParam(in.Config, "method", http.MethodGet))
	case "get":
		method = http.MethodGet
	case "post":
		method = http.MethodPost
	default:
		return unsupportedAction(HTTPApp, in.ActionID), nil
	}

	if err := checkConfig(p.schema, HTTPApp, in.ActionID, in.Config); err != nil {
		return nil, err
	}
	return p.do(ctx, method, in)
}

func (p *HTTPProvider) do(ctx context.Context, method string, in Input) (map[string]any, error) {
	params := in.Config
	action := in.ActionID

	u, err := url.ParseRequestURI(stringParam(params, "url", ""))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, providerError(HTTPApp, action, "invalid url %q", stringParam(params, "url", ""))
	}
	if query := mapParam(params, "query"); len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
	}

	timeout := p.config.DefaultTimeout
	if ts := stringParam(params, "timeout", ""); ts != "" {
		d, err := time.ParseDuration(ts)
		if err != nil {
			return nil, providerError(HTTPApp, action, "invalid timeout %q", ts)
		}
		timeout = d
	}

	bodyReader, contentType, err := encodeBody(params)
	if err != nil {
		return nil, providerError(HTTPApp, action, "encode body: %v", err).WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), bodyReader)
	if err != nil {
		return nil, providerError(HTTPApp, action, "build request: %v", err).WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range mapParam(params, "headers") {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}
	applyCredential(req, in.Credential)

	client := &http.Client{Transport: p.config.Transport}
	if !boolParam(params, "follow_redirects", true) {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if limit := intParam(params, "max_redirects", 10); limit > 0 {
		client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, providerError(HTTPApp, action, "request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxResponseBody))
	if err != nil {
		return nil, providerError(HTTPApp, action, "read response body: %v", err).WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code":  float64(resp.StatusCode),
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         decodeBody(bodyBytes, respContentType),
		"content_type": respContentType,
		"duration_ms":  float64(durationMs),
	}

	if boolParam(params, "fail_on_error_status", true) && resp.StatusCode >= 400 {
		return nil, providerError(HTTPApp, action, "server returned %d", resp.StatusCode).
			WithDetails(result)
	}
	return result, nil
}

func encodeBody(params map[string]any) (io.Reader, string, error) {
	raw, ok := params["body"]
	if !ok || raw == nil {
		return nil, "", nil
	}
	switch stringParam(params, "body_encoding", "json") {
	case "form":
		form, ok := raw.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("form body must be an object, got %T", raw)
		}
		vals := url.Values{}
		for k, v := range form {
			vals.Set(k, fmt.Sprintf("%v", v))
		}
		return strings.NewReader(vals.Encode()), "application/x-www-form-urlencoded", nil
	case "text":
		if s, ok := raw.(string); ok {
			return strings.NewReader(s), "text/plain", nil
		}
		return strings.NewReader(fmt.Sprintf("%v", raw)), "text/plain", nil
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(string(b)), "application/json", nil
	}
}

func decodeBody(b []byte, contentType string) any {
	if len(b) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(b, &v); err == nil {
			return v
		}
	}
	return string(b)
}

func applyCredential(req *http.Request, cred map[string]any) {
	if cred == nil {
		return
	}
	if token := stringParam(cred, "token", ""); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	if user := stringParam(cred, "username", ""); user != "" {
		req.SetBasicAuth(user, stringParam(cred, "password", ""))
		return
	}
	if name := stringParam(cred, "header_name", ""); name != "" {
		req.Header.Set(name, stringParam(cred, "header_value", ""))
	}
}
