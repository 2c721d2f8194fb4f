package driving

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// SyncOrchestrator drives a table copy across bounded invocations
type SyncOrchestrator interface {
	// CreateJob creates a pending job for the config with its window frozen
	CreateJob(ctx context.Context, cfg *domain.SyncConfig) (*domain.SyncJob, error)

	// Run executes batches for a job until it finishes, is paused or stopped,
	// or the context ends. The returned job reflects the last known state.
	Run(ctx context.Context, jobID string, cfg *domain.SyncConfig) (*domain.SyncJob, error)
}

// ControlService applies dashboard control actions to jobs
type ControlService interface {
	// Apply validates and applies pause, resume or stop
	Apply(ctx context.Context, jobID string, action domain.ControlAction) (*domain.ControlResult, error)
}

// JobService exposes job state to the dashboard
type JobService interface {
	// Get retrieves a job by ID
	Get(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// List retrieves jobs matching the filter
	List(ctx context.Context, filter domain.JobFilter) ([]*domain.SyncJob, error)

	// Start creates a pending job for a table unless one is already active
	Start(ctx context.Context, tableID string) (*domain.SyncJob, error)
}

// ConfigService manages per-table sync configuration
type ConfigService interface {
	Get(ctx context.Context, tableID string) (*domain.SyncConfig, error)
	List(ctx context.Context) ([]*domain.SyncConfig, error)
	Save(ctx context.Context, cfg *domain.SyncConfig) (*domain.SyncConfig, error)
}

// Scheduler periodically re-invokes sync work
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop stops the scheduling loop and waits for it to exit
	Stop()
}
