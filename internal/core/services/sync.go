package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// SyncOrchestrator copies one remote table into the record store in batches.
// Each Run is one bounded invocation:
//  1. Load (or create) the job and skip it if paused or finished
//  2. Re-read the job at every batch boundary
//  3. Submit the batch query and poll until it completes
//  4. Page through the results and upsert each row
//  5. Commit stats and cursor, guarded on the job still being in progress
//  6. Complete the job on a short batch or when maxRecords is reached
//
// Progress is persisted after every batch, so an invocation that runs out of
// time leaves the job in progress and the next one resumes from the offset.
type SyncOrchestrator struct {
	store  driven.Store
	client driven.QueryClient
	poll   domain.PollPolicy
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// SyncOrchestratorConfig holds dependencies for SyncOrchestrator.
type SyncOrchestratorConfig struct {
	Store       driven.Store
	QueryClient driven.QueryClient
	PollPolicy  domain.PollPolicy // zero value uses DefaultPollPolicy
	Logger      *slog.Logger

	// Clock and Sleep are replaced in tests
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(cfg SyncOrchestratorConfig) *SyncOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := cfg.PollPolicy
	if poll.MaxAttempts <= 0 {
		poll = domain.DefaultPollPolicy()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &SyncOrchestrator{
		store:  cfg.Store,
		client: cfg.QueryClient,
		poll:   poll,
		logger: logger,
		now:    now,
		sleep:  sleep,
	}
}

// batchResult is what one batch wrote to the record store.
type batchResult struct {
	rows      int
	inserted  int
	updated   int
	highWater string
}

// CreateJob records a pending job for cfg with a freshly frozen window.
func (o *SyncOrchestrator) CreateJob(ctx context.Context, cfg *domain.SyncConfig) (*domain.SyncJob, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: sync config is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var job *domain.SyncJob
	err := withSession(ctx, o.store, func(sess driven.Session) error {
		var err error
		job, err = o.createJob(ctx, sess.Jobs(), uuid.NewString(), cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Run executes one invocation for jobID. A job that does not exist yet is
// created from cfg. Paused and finished jobs return without doing any work.
func (o *SyncOrchestrator) Run(ctx context.Context, jobID string, cfg *domain.SyncConfig) (*domain.SyncJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrInvalidInput)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: sync config is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var job *domain.SyncJob
	err := withSession(ctx, o.store, func(sess driven.Session) error {
		var err error
		job, err = o.run(ctx, sess, jobID, cfg)
		return err
	})
	return job, err
}

func (o *SyncOrchestrator) run(ctx context.Context, sess driven.Session, jobID string, cfg *domain.SyncConfig) (*domain.SyncJob, error) {
	jobs := sess.Jobs()
	logger := o.logger.With("job_id", jobID, "table_id", cfg.TableID)

	job, err := jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		job, err = o.createJob(ctx, jobs, jobID, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	if job.IsTerminal() {
		logger.Debug("job already finished, nothing to do", "status", job.Status)
		return job, nil
	}
	if job.Paused {
		logger.Info("job paused, skipping invocation")
		return job, nil
	}

	if job.Status == domain.JobStatusPending {
		inProgress := domain.JobStatusInProgress
		started, err := jobs.Update(ctx, jobID, domain.JobPatch{
			Status:       &inProgress,
			LastUpdated:  o.now().UTC(),
			ExpectStatus: []domain.JobStatus{domain.JobStatusPending},
		})
		if errors.Is(err, domain.ErrConflict) {
			return o.reload(ctx, jobs, job)
		}
		if err != nil {
			return job, fmt.Errorf("start job %s: %w", jobID, err)
		}
		job = started
		logger.Info("sync job started", "window_start", job.WindowStart, "window_end", job.WindowEnd)
	}

	if cfg.Options.CountTotal && job.Stats.TotalRecords == 0 && job.Stats.ProcessedRecords == 0 {
		total, err := o.countTotal(ctx, cfg, job)
		if err != nil {
			if interrupted(ctx, err) {
				logger.Info("invocation ended while counting, job left in progress")
				return job, nil
			}
			return o.failJob(ctx, jobs, job, fmt.Errorf("count rows: %w", err))
		}
		stats := job.Stats
		stats.TotalRecords = total
		counted, err := jobs.Update(ctx, jobID, domain.JobPatch{
			Stats:        &stats,
			LastUpdated:  o.now().UTC(),
			ExpectStatus: []domain.JobStatus{domain.JobStatusInProgress},
		})
		if errors.Is(err, domain.ErrConflict) {
			return o.reload(ctx, jobs, job)
		}
		if err != nil {
			return job, fmt.Errorf("save total for job %s: %w", jobID, err)
		}
		job = counted
	}

	for batch := 1; ; batch++ {
		if ctx.Err() != nil {
			logger.Info("invocation window closed, job left in progress",
				"processed", job.Stats.ProcessedRecords)
			return job, nil
		}

		current, err := jobs.Get(ctx, jobID)
		if err != nil {
			return job, fmt.Errorf("reload job %s: %w", jobID, err)
		}
		job = current
		if !job.CanRunBatch() {
			logger.Info("job no longer runnable, stopping", "status", job.Status, "paused", job.Paused)
			return job, nil
		}

		limit := batchLimit(cfg, job.Stats.ProcessedRecords)
		if limit == 0 {
			return o.completeJob(ctx, jobs, job)
		}

		result, err := o.runBatch(ctx, sess.Records(), cfg, job, limit)
		if err != nil {
			if interrupted(ctx, err) {
				logger.Info("invocation ended mid-batch, job left in progress",
					"batch", batch, "processed", job.Stats.ProcessedRecords)
				return job, nil
			}
			return o.failJob(ctx, jobs, job, fmt.Errorf("batch %d: %w", batch, err))
		}

		stats := job.Stats
		stats.ProcessedRecords += result.rows
		stats.InsertedRecords += result.inserted
		stats.UpdatedRecords += result.updated
		cursor := domain.AdvanceCursor(job.Cursor, result.highWater)

		committed, err := jobs.Update(ctx, jobID, domain.JobPatch{
			Stats:        &stats,
			Cursor:       &cursor,
			LastUpdated:  o.now().UTC(),
			ExpectStatus: []domain.JobStatus{domain.JobStatusInProgress},
		})
		if errors.Is(err, domain.ErrConflict) {
			logger.Info("job changed during batch, progress discarded", "batch", batch)
			return o.reload(ctx, jobs, job)
		}
		if err != nil {
			return job, fmt.Errorf("checkpoint batch %d of job %s: %w", batch, jobID, err)
		}
		job = committed

		logger.Info("batch committed",
			"batch", batch,
			"rows", result.rows,
			"inserted", result.inserted,
			"updated", result.updated,
			"processed", stats.ProcessedRecords,
			"cursor", cursor,
		)

		if result.rows < limit || reachedMax(cfg, stats.ProcessedRecords) {
			return o.completeJob(ctx, jobs, job)
		}
	}
}

// createJob freezes the job window. Incremental jobs start at the cursor of
// the latest completed or failed job for the table; a failed job's cursor is
// the high-water mark of the rows it committed. Numeric cursors have no upper
// bound, so rows added while the job runs are picked up by it.
func (o *SyncOrchestrator) createJob(ctx context.Context, jobs driven.JobStore, jobID string, cfg *domain.SyncConfig) (*domain.SyncJob, error) {
	now := o.now().UTC()

	var start, end string
	if cfg.EffectiveCursorType() == domain.CursorTypeTimestamp {
		end = now.Format(time.RFC3339Nano)
		if cfg.Options.EndTime != nil {
			end = cfg.Options.EndTime.UTC().Format(time.RFC3339Nano)
		}
		if cfg.Options.StartTime != nil {
			start = cfg.Options.StartTime.UTC().Format(time.RFC3339Nano)
		}
	}

	if !cfg.Options.InitialSync {
		previous, err := jobs.List(ctx, domain.JobFilter{
			TableID:  cfg.TableID,
			Statuses: []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed},
			Limit:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("find previous job: %w", err)
		}
		if len(previous) > 0 && previous[0].Cursor != "" {
			start = previous[0].Cursor
			if previous[0].Status == domain.JobStatusFailed {
				o.logger.Info("resuming after failed job",
					"table_id", cfg.TableID, "failed_job_id", previous[0].JobID, "cursor", start)
			}
		}
	}

	job := &domain.SyncJob{
		JobID:       jobID,
		TableID:     cfg.TableID,
		WhseID:      cfg.Options.WarehouseID,
		Status:      domain.JobStatusPending,
		Cursor:      start,
		WindowStart: start,
		WindowEnd:   end,
		StartTime:   now,
		LastUpdated: now,
	}
	if err := jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	o.logger.Info("sync job created",
		"job_id", jobID,
		"table_id", cfg.TableID,
		"window_start", job.WindowStart,
		"window_end", job.WindowEnd,
	)
	return job, nil
}

// runBatch submits one batch query and upserts its rows page by page.
func (o *SyncOrchestrator) runBatch(ctx context.Context, records driven.RecordStore, cfg *domain.SyncConfig, job *domain.SyncJob, limit int) (batchResult, error) {
	var result batchResult

	sql := buildBatchQuery(cfg, job, job.Stats.ProcessedRecords, limit)
	queryID, err := o.client.Submit(ctx, sql)
	if err != nil {
		return result, fmt.Errorf("submit query: %w", err)
	}
	if err := o.awaitQuery(ctx, queryID); err != nil {
		return result, err
	}

	cursorField := cfg.EffectiveCursorField()
	pageSize := cfg.EffectivePageSize()
	for result.rows < limit {
		size := min(pageSize, limit-result.rows)
		rows, err := o.client.FetchPage(ctx, queryID, result.rows, size)
		if err != nil {
			return result, fmt.Errorf("fetch results of query %s: %w", queryID, err)
		}

		for _, row := range rows {
			key, err := recordKey(cfg, row)
			if err != nil {
				return result, err
			}
			outcome, err := records.Upsert(ctx, cfg.TableID, key, job.WhseID, row)
			if err != nil {
				return result, fmt.Errorf("upsert record %s: %w", key, err)
			}
			switch outcome {
			case domain.UpsertInserted:
				result.inserted++
			case domain.UpsertUpdated:
				result.updated++
			}
			result.highWater = domain.AdvanceCursor(result.highWater, domain.CursorValue(row[cursorField]))
		}
		result.rows += len(rows)

		if len(rows) < size {
			break
		}
	}
	return result, nil
}

// awaitQuery polls until the query reaches a terminal status or the poll
// policy runs out of attempts.
func (o *SyncOrchestrator) awaitQuery(ctx context.Context, queryID string) error {
	for attempt := 0; attempt < o.poll.MaxAttempts; attempt++ {
		state, err := o.client.Status(ctx, queryID)
		if err != nil {
			return fmt.Errorf("check status of query %s: %w", queryID, err)
		}
		switch state.Status {
		case domain.QueryStatusCompleted:
			return nil
		case domain.QueryStatusFailed:
			if state.Message != "" {
				return fmt.Errorf("query %s: %w: %s", queryID, domain.ErrRemoteQuery, state.Message)
			}
			return fmt.Errorf("query %s: %w", queryID, domain.ErrRemoteQuery)
		}

		if attempt == o.poll.MaxAttempts-1 {
			break
		}
		if err := o.sleep(ctx, o.poll.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("query %s still running after %d status checks: %w", queryID, o.poll.MaxAttempts, domain.ErrQueryTimeout)
}

func (o *SyncOrchestrator) countTotal(ctx context.Context, cfg *domain.SyncConfig, job *domain.SyncJob) (int, error) {
	queryID, err := o.client.Submit(ctx, buildCountQuery(cfg, job))
	if err != nil {
		return 0, fmt.Errorf("submit count query: %w", err)
	}
	if err := o.awaitQuery(ctx, queryID); err != nil {
		return 0, err
	}
	rows, err := o.client.FetchPage(ctx, queryID, 0, 1)
	if err != nil {
		return 0, fmt.Errorf("fetch count: %w", err)
	}
	return parseCount(rows)
}

// completeJob marks the job completed and moves the cursor to the window end.
// A store error here is logged and the in-memory result is still returned.
func (o *SyncOrchestrator) completeJob(ctx context.Context, jobs driven.JobStore, job *domain.SyncJob) (*domain.SyncJob, error) {
	now := o.now().UTC()
	completed := domain.JobStatusCompleted
	cursor := domain.AdvanceCursor(job.Cursor, job.WindowEnd)
	stats := job.Stats
	stats.TotalRecords = max(stats.TotalRecords, stats.ProcessedRecords)

	patch := domain.JobPatch{
		Status:       &completed,
		Stats:        &stats,
		Cursor:       &cursor,
		EndTime:      &now,
		LastUpdated:  now,
		ExpectStatus: []domain.JobStatus{domain.JobStatusInProgress},
	}
	updated, err := jobs.Update(ctx, job.JobID, patch)
	if errors.Is(err, domain.ErrConflict) {
		return o.reload(ctx, jobs, job)
	}
	if err != nil {
		o.logger.Error("failed to persist job completion",
			"job_id", job.JobID, "error", err)
		result := job.Clone()
		patch.Apply(result)
		return result, nil
	}

	o.logger.Info("sync job completed",
		"job_id", job.JobID,
		"table_id", job.TableID,
		"processed", stats.ProcessedRecords,
		"inserted", stats.InsertedRecords,
		"updated", stats.UpdatedRecords,
		"duration_seconds", now.Sub(job.StartTime).Seconds(),
	)
	return updated, nil
}

// failJob records cause on the job and returns it. A job that was stopped
// concurrently keeps its stopped status.
func (o *SyncOrchestrator) failJob(ctx context.Context, jobs driven.JobStore, job *domain.SyncJob, cause error) (*domain.SyncJob, error) {
	o.logger.Error("sync job failed", "job_id", job.JobID, "table_id", job.TableID, "error", cause)

	now := o.now().UTC()
	failed := domain.JobStatusFailed
	message := cause.Error()
	patch := domain.JobPatch{
		Status:       &failed,
		Error:        &message,
		EndTime:      &now,
		LastUpdated:  now,
		ExpectStatus: domain.ActiveJobStatuses,
	}
	updated, err := jobs.Update(ctx, job.JobID, patch)
	if errors.Is(err, domain.ErrConflict) {
		latest, _ := o.reload(ctx, jobs, job)
		return latest, cause
	}
	if err != nil {
		o.logger.Error("failed to persist job failure", "job_id", job.JobID, "error", err)
		result := job.Clone()
		patch.Apply(result)
		return result, cause
	}
	return updated, cause
}

// reload returns the stored job, or fallback when it cannot be read.
func (o *SyncOrchestrator) reload(ctx context.Context, jobs driven.JobStore, fallback *domain.SyncJob) (*domain.SyncJob, error) {
	latest, err := jobs.Get(ctx, fallback.JobID)
	if err != nil {
		o.logger.Warn("failed to reload job", "job_id", fallback.JobID, "error", err)
		return fallback, nil
	}
	return latest, nil
}

// batchLimit is the row budget of the next batch.
func batchLimit(cfg *domain.SyncConfig, processed int) int {
	limit := cfg.EffectiveBatchSize()
	if cfg.MaxRecords > 0 {
		limit = min(limit, cfg.MaxRecords-processed)
	}
	return max(limit, 0)
}

func reachedMax(cfg *domain.SyncConfig, processed int) bool {
	return cfg.MaxRecords > 0 && processed >= cfg.MaxRecords
}

// interrupted reports whether err came from the invocation context ending.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
