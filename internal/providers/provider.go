package providers

import (
	"context"
	"fmt"

	"github.com/rendis/flowrun/pkg/schema"
)

// Input is what a provider receives for one node execution.
type Input struct {
	ActionID   string         `json:"actionId"`
	Config     map[string]any `json:"config"`
	Credential map[string]any `json:"credential"` // decrypted; nil when the node has none
}

// Provider is the capability every integration implements. A provider
// declines an action by returning Skipped(reason) and fails by returning
// an error. Results must be JSON-encodable; the engine re-encodes typed
// containers into plain maps and slices before downstream nodes see them.
type Provider interface {
	Execute(ctx context.Context, in Input) (any, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, in Input) (any, error)

func (f Func) Execute(ctx context.Context, in Input) (any, error) {
	return f(ctx, in)
}

// Describer is implemented by providers that publish metadata for listings.
type Describer interface {
	Describe() Info
}

// Info describes a registered provider.
type Info struct {
	AppID       string   `json:"appId"`
	Description string   `json:"description,omitempty"`
	Actions     []string `json:"actions,omitempty"`
}

const (
	statusKey     = "status"
	statusSkipped = "skipped"
)

// Skipped builds the intentional-skip sentinel.
func Skipped(reason string) map[string]any {
	return map[string]any{statusKey: statusSkipped, "reason": reason}
}

// IsSkipped reports whether a provider result is the skip sentinel.
func IsSkipped(result any) bool {
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}
	s, _ := m[statusKey].(string)
	return s == statusSkipped
}

// SkipReason returns the reason carried by a skip sentinel.
func SkipReason(result any) string {
	m, _ := result.(map[string]any)
	r, _ := m["reason"].(string)
	return r
}

// unsupportedAction is the skip returned for an actionId a provider does not know.
func unsupportedAction(appID, actionID string) map[string]any {
	return Skipped(fmt.Sprintf("action %q is not supported by %s", actionID, appID))
}

// requireCredential fails with CREDENTIAL_REQUIRED when in carries no credential.
func requireCredential(appID string, in Input) error {
	if in.Credential == nil {
		return schema.NewErrorf(schema.ErrCodeCredentialRequired, "%s.%s requires a credential", appID, in.ActionID)
	}
	return nil
}

func providerError(appID, actionID, format string, args ...any) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeProvider, "%s.%s: %s", appID, actionID, fmt.Sprintf(format, args...))
}
