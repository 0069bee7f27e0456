package providers

import (
	"sort"
	"sync"

	"github.com/rendis/flowrun/pkg/schema"
)

// Registry maps app keys to providers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under appID. Returns CONFLICT on a duplicate key.
func (r *Registry) Register(appID string, p Provider) error {
	if p == nil {
		return schema.NewError(schema.ErrCodeValidation, "provider is nil")
	}
	if appID == "" {
		return schema.NewError(schema.ErrCodeValidation, "provider app id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[appID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "provider %q already registered", appID)
	}
	r.providers[appID] = p
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(appID string, p Provider) {
	if err := r.Register(appID, p); err != nil {
		panic(err)
	}
}

// Get returns the provider registered under appID.
func (r *Registry) Get(appID string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[appID]
	return p, ok
}

// Has checks if a provider is registered.
func (r *Registry) Has(appID string) bool {
	_, ok := r.Get(appID)
	return ok
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// List returns info for all registered providers, sorted by app id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.providers))
	for appID, p := range r.providers {
		info := Info{AppID: appID}
		if d, ok := p.(Describer); ok {
			desc := d.Describe()
			info.Description = desc.Description
			info.Actions = desc.Actions
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].AppID < infos[j].AppID
	})
	return infos
}
