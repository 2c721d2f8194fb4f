package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// Store hands out scoped sessions against the persistence backend.
// Every session must be closed on every exit path.
type Store interface {
	// Session pins a connection for the duration of one unit of work
	Session(ctx context.Context) (Session, error)

	// Ping checks if the backend is reachable
	Ping(ctx context.Context) error
}

// Session exposes the stores bound to one acquired connection
type Session interface {
	Jobs() JobStore
	Records() RecordStore
	Configs() SyncConfigStore

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// JobStore handles sync job persistence
type JobStore interface {
	// Get retrieves a job by ID. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// Create inserts a new job
	Create(ctx context.Context, job *domain.SyncJob) error

	// Update applies a compare-and-patch to a single job and returns the stored result.
	// Returns domain.ErrNotFound if the job is missing and domain.ErrConflict
	// if patch.ExpectStatus does not match the stored status.
	Update(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.SyncJob, error)

	// List retrieves jobs matching the filter, newest first
	List(ctx context.Context, filter domain.JobFilter) ([]*domain.SyncJob, error)
}

// RecordStore is the document store that receives synced rows
type RecordStore interface {
	// Upsert stores a row keyed by its natural primary key.
	// Re-writing an identical row reports domain.UpsertUnchanged.
	Upsert(ctx context.Context, tableID, key, whseID string, row domain.Row) (domain.UpsertOutcome, error)

	// Get retrieves a stored row. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, tableID, key string) (domain.Row, error)

	// Count returns the number of stored rows for a table
	Count(ctx context.Context, tableID string) (int, error)
}

// SyncConfigStore handles per-table sync configuration
type SyncConfigStore interface {
	// Get retrieves a config by table ID. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, tableID string) (*domain.SyncConfig, error)

	// List retrieves configs, optionally only enabled ones
	List(ctx context.Context, enabledOnly bool) ([]*domain.SyncConfig, error)

	// Save creates or updates a config
	Save(ctx context.Context, cfg *domain.SyncConfig) error
}
