package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.JobService = (*JobService)(nil)

// Job listing limits
const (
	DefaultJobListLimit = 50
	MaxJobListLimit     = 500
)

// JobService exposes job state and manual sync triggers.
type JobService struct {
	store        driven.Store
	orchestrator driving.SyncOrchestrator
	dispatcher   Dispatcher // optional
	logger       *slog.Logger
}

// JobServiceConfig holds dependencies for JobService.
type JobServiceConfig struct {
	Store        driven.Store
	Orchestrator driving.SyncOrchestrator
	Dispatcher   Dispatcher // Optional: when set, started jobs are dispatched immediately
	Logger       *slog.Logger
}

// NewJobService creates a new job service.
func NewJobService(cfg JobServiceConfig) *JobService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		dispatcher:   cfg.Dispatcher,
		logger:       logger,
	}
}

// Get retrieves a job by ID.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	var job *domain.SyncJob
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		var err error
		job, err = sess.Jobs().Get(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return job, nil
}

// List retrieves jobs newest first. Limit defaults to 50 and is capped at 500.
func (s *JobService) List(ctx context.Context, filter domain.JobFilter) ([]*domain.SyncJob, error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultJobListLimit
	}
	if filter.Limit > MaxJobListLimit {
		filter.Limit = MaxJobListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var jobs []*domain.SyncJob
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		var err error
		jobs, err = sess.Jobs().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*domain.SyncJob{}
	}
	return jobs, nil
}

// Start creates a pending job for tableID. It fails with ErrSyncInProgress
// while the table already has an active job.
func (s *JobService) Start(ctx context.Context, tableID string) (*domain.SyncJob, error) {
	if strings.TrimSpace(tableID) == "" {
		return nil, fmt.Errorf("%w: tableId is required", domain.ErrInvalidInput)
	}

	var cfg *domain.SyncConfig
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		var err error
		cfg, err = sess.Configs().Get(ctx, tableID)
		if err != nil {
			return fmt.Errorf("sync config %s: %w", tableID, err)
		}
		active, err := sess.Jobs().List(ctx, domain.JobFilter{
			TableID:  tableID,
			Statuses: domain.ActiveJobStatuses,
			Limit:    1,
		})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("table %s has active job %s: %w", tableID, active[0].JobID, domain.ErrSyncInProgress)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	job, err := s.orchestrator.CreateJob(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sync job triggered", "job_id", job.JobID, "table_id", tableID)

	if s.dispatcher != nil && !s.dispatcher.Dispatch(domain.Invocation{JobID: job.JobID, Config: cfg}) {
		s.logger.Warn("triggered job not dispatched, scheduler will pick it up", "job_id", job.JobID)
	}
	return job, nil
}
