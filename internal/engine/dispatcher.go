package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rendis/flowrun/internal/expressions"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/pkg/schema"
)

// ProviderLookup finds the provider for an app key. Satisfied by *providers.Registry.
type ProviderLookup interface {
	Get(appID string) (providers.Provider, bool)
}

// CredentialResolver returns the decrypted credential data for a node after
// checking that it exists, belongs to userID and is valid. Each failed check
// is reported with its own error code.
type CredentialResolver interface {
	Resolve(ctx context.Context, credentialID, userID string) (map[string]any, error)
}

// Dispatch is the outcome of dispatching one node.
type Dispatch struct {
	Config map[string]any // config after interpolation
	Result any            // provider result, or a skip sentinel
}

// Dispatcher runs a single node: interpolate, resolve credential, pick the
// provider, execute.
type Dispatcher struct {
	providers   ProviderLookup
	credentials CredentialResolver
}

// NewDispatcher creates a Dispatcher. credentials may be nil when no node
// uses one.
func NewDispatcher(p ProviderLookup, credentials CredentialResolver) *Dispatcher {
	return &Dispatcher{providers: p, credentials: credentials}
}

// Dispatch executes node against the current context. The returned Config
// is populated even when an error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, node Node, userID string, ec *expressions.ExecutionContext) (Dispatch, error) {
	out := Dispatch{Config: expressions.InterpolateConfig(node.Config, ec)}

	var credential map[string]any
	if node.CredentialID != "" {
		if d.credentials == nil {
			return out, schema.NewErrorf(schema.ErrCodeCredentialNotFound,
				"credential %q cannot be resolved: no credential store configured", node.CredentialID).WithNode(node.ID)
		}
		cred, err := d.credentials.Resolve(ctx, node.CredentialID, userID)
		if err != nil {
			return out, err
		}
		credential = cred
	}

	provider, ok := d.providers.Get(node.AppID)
	if !ok {
		out.Result = providers.Skipped(fmt.Sprintf("no provider registered for app %q", node.AppID))
		return out, nil
	}

	result, err := provider.Execute(ctx, providers.Input{
		ActionID:   node.ActionID,
		Config:     out.Config,
		Credential: credential,
	})
	if err != nil {
		var fe *schema.FlowError
		if !errors.As(err, &fe) {
			err = schema.NewError(schema.ErrCodeProvider, err.Error()).WithCause(err)
		}
		return out, err
	}
	normalized, err := expressions.Normalize(result)
	if err != nil {
		return out, schema.NewErrorf(schema.ErrCodeProvider,
			"%s.%s returned a result that is not JSON-encodable: %v", node.AppID, node.ActionID, err).WithCause(err)
	}
	out.Result = normalized
	return out, nil
}

// credentialCache memoizes successful resolutions for the lifetime of a run.
// Failures are not cached. Every caller gets its own copy, so a provider
// that mutates its credential cannot change what later nodes receive.
type credentialCache struct {
	inner   CredentialResolver
	entries map[[2]string]map[string]any
}

func newCredentialCache(inner CredentialResolver) CredentialResolver {
	if inner == nil {
		return nil
	}
	return &credentialCache{inner: inner, entries: make(map[[2]string]map[string]any)}
}

func (c *credentialCache) Resolve(ctx context.Context, credentialID, userID string) (map[string]any, error) {
	key := [2]string{credentialID, userID}
	if cred, ok := c.entries[key]; ok {
		return expressions.CloneMap(cred), nil
	}
	cred, err := c.inner.Resolve(ctx, credentialID, userID)
	if err != nil {
		return nil, err
	}
	c.entries[key] = expressions.CloneMap(cred)
	return cred, nil
}
