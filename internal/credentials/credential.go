package credentials

import (
	"context"
	"time"

	"github.com/rendis/flowrun/pkg/schema"
)

// Credential is a stored, encrypted key-value bag owned by one user.
type Credential struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AppID         string    `json:"app_id,omitempty"`
	IsValid       bool      `json:"is_valid"`
	EncryptedData []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store looks credentials up by id. GetByID returns (nil, nil) when no
// credential has that id.
type Store interface {
	GetByID(ctx context.Context, id string) (*Credential, error)
}

// Decrypter turns a credential's encrypted payload into its key-value data.
type Decrypter interface {
	Decrypt(ctx context.Context, encrypted []byte) (map[string]any, error)
}

// Resolver performs the checks a node's credential must pass before a
// provider may use it: it exists, belongs to the requesting user, is marked
// valid and decrypts.
type Resolver struct {
	store     Store
	decrypter Decrypter
}

// NewResolver creates a Resolver.
func NewResolver(s Store, d Decrypter) *Resolver {
	return &Resolver{store: s, decrypter: d}
}

// Resolve returns the decrypted data of credential id on behalf of userID.
func (r *Resolver) Resolve(ctx context.Context, id, userID string) (map[string]any, error) {
	cred, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load credential %q: %s", id, err.Error()).WithCause(err)
	}
	if cred == nil {
		return nil, schema.NewErrorf(schema.ErrCodeCredentialNotFound, "credential %q not found", id)
	}
	if cred.UserID != userID {
		return nil, schema.NewErrorf(schema.ErrCodeCredentialForbidden, "credential %q does not belong to the requesting user", id)
	}
	if !cred.IsValid {
		return nil, schema.NewErrorf(schema.ErrCodeCredentialInvalid, "credential %q is marked invalid", id)
	}

	data, err := r.decrypter.Decrypt(ctx, cred.EncryptedData)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCredentialDecrypt, "credential %q could not be decrypted", id).WithCause(err)
	}
	return data, nil
}
