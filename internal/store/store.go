package store

import (
	"context"

	"github.com/rendis/flowrun/internal/credentials"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Credentials
	credentials.Store
	PutCredential(ctx context.Context, c *credentials.Credential) error
	SetCredentialValidity(ctx context.Context, id string, valid bool) error
	ListCredentials(ctx context.Context, userID string) ([]*credentials.Credential, error)
	DeleteCredential(ctx context.Context, id string) error

	// Runs
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

var _ Store = (*LibSQLStore)(nil)
