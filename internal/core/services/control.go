package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ControlService = (*ControlService)(nil)

// ControlService applies dashboard pause, resume and stop requests.
// Stopped is absorbing: pause and resume on a finished job are rejected, and
// stopping an already stopped job is a no-op.
type ControlService struct {
	store  driven.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewControlService creates a new control service.
func NewControlService(store driven.Store, logger *slog.Logger) *ControlService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Apply performs action on jobID.
func (s *ControlService) Apply(ctx context.Context, jobID string, action domain.ControlAction) (*domain.ControlResult, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: invalid action %q: must be one of pause, resume, stop", domain.ErrInvalidInput, action)
	}

	var (
		job  *domain.SyncJob
		noop bool
	)
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		var err error
		job, noop, err = s.apply(ctx, sess.Jobs(), jobID, action)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &domain.ControlResult{
		JobID:   job.JobID,
		Status:  job.Status,
		Action:  action,
		Success: true,
		Paused:  job.Paused,
		Message: controlMessage(action, noop),
	}, nil
}

func (s *ControlService) apply(ctx context.Context, jobs driven.JobStore, jobID string, action domain.ControlAction) (*domain.SyncJob, bool, error) {
	job, err := jobs.Get(ctx, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("job %s: %w", jobID, err)
	}

	if action == domain.ControlActionStop && job.Status == domain.JobStatusStopped {
		return job, true, nil
	}
	if job.IsTerminal() {
		return nil, false, fmt.Errorf("cannot %s job %s in status %s: %w", action, jobID, job.Status, domain.ErrJobFinished)
	}

	now := s.now().UTC()
	patch := domain.JobPatch{
		LastUpdated:  now,
		ExpectStatus: domain.ActiveJobStatuses,
	}
	switch action {
	case domain.ControlActionPause:
		paused := true
		patch.Paused = &paused
	case domain.ControlActionResume:
		paused := false
		patch.Paused = &paused
	case domain.ControlActionStop:
		stopped := domain.JobStatusStopped
		patch.Status = &stopped
		patch.EndTime = &now
	}

	updated, err := jobs.Update(ctx, jobID, patch)
	if errors.Is(err, domain.ErrConflict) {
		// finished between the read and the write
		latest, getErr := jobs.Get(ctx, jobID)
		if getErr == nil && action == domain.ControlActionStop && latest.Status == domain.JobStatusStopped {
			return latest, true, nil
		}
		return nil, false, fmt.Errorf("cannot %s job %s: %w", action, jobID, domain.ErrJobFinished)
	}
	if err != nil {
		return nil, false, fmt.Errorf("update job %s: %w", jobID, err)
	}

	s.logger.Info("job control applied",
		"job_id", jobID,
		"action", action,
		"status", updated.Status,
		"paused", updated.Paused,
	)
	return updated, false, nil
}

func controlMessage(action domain.ControlAction, noop bool) string {
	switch action {
	case domain.ControlActionPause:
		return "Job paused; no new batches will start until it is resumed"
	case domain.ControlActionResume:
		return "Job resumed; the next invocation continues from the last committed batch"
	default:
		if noop {
			return "Job already stopped"
		}
		return "Job stopped"
	}
}
