package credentials

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/flowrun/pkg/schema"
)

// MemoryStore keeps credentials in memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credential)}
}

// Put inserts or replaces a credential.
func (m *MemoryStore) Put(_ context.Context, c *Credential) error {
	if c == nil || c.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "credential id is required")
	}
	cp := *c
	cp.EncryptedData = append([]byte(nil), c.EncryptedData...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.ID] = cp
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// SetValidity flips the valid flag of a stored credential.
func (m *MemoryStore) SetValidity(_ context.Context, id string, valid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", id)
	}
	c.IsValid = valid
	m.creds[id] = c
	return nil
}

// List returns the credentials owned by userID, sorted by id. An empty
// userID lists all credentials.
func (m *MemoryStore) List(_ context.Context, userID string) ([]Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Credential, 0, len(m.creds))
	for _, c := range m.creds {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
