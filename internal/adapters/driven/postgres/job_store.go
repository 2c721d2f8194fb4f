package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

const jobColumns = `job_id, table_id, whseid, status, paused, sync_cursor, window_start, window_end,
	total_records, processed_records, inserted_records, updated_records,
	start_time, end_time, last_updated, error_message`

// JobStore implements driven.JobStore using PostgreSQL
type JobStore struct {
	q querier
}

// Get retrieves a job by ID
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE job_id = $1`

	job, err := scanJob(s.q.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get job", err)
	}
	return job, nil
}

// Create inserts a new job. An existing ID is a conflict.
func (s *JobStore) Create(ctx context.Context, job *domain.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.q.ExecContext(ctx, query,
		job.JobID,
		job.TableID,
		job.WhseID,
		string(job.Status),
		job.Paused,
		job.Cursor,
		job.WindowStart,
		job.WindowEnd,
		job.Stats.TotalRecords,
		job.Stats.ProcessedRecords,
		job.Stats.InsertedRecords,
		job.Stats.UpdatedRecords,
		job.StartTime,
		NullTime(job.EndTime),
		job.LastUpdated,
		job.Error,
	)
	if err != nil {
		return storeError("create job", err)
	}
	return nil
}

// Update applies patch in one statement. When the guard rejects the stored
// status the job is left untouched and ErrConflict is returned.
func (s *JobStore) Update(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.SyncJob, error) {
	query, args := buildJobUpdate(jobID, patch)

	job, err := scanJob(s.q.QueryRowContext(ctx, query, args...))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError("update job", err)
	}

	// no row: either the job is missing or the guard failed
	var status string
	err = s.q.QueryRowContext(ctx, `SELECT status FROM sync_jobs WHERE job_id = $1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("update job", err)
	}
	return nil, fmt.Errorf("job %s is %s: %w", jobID, status, domain.ErrConflict)
}

// buildJobUpdate renders the compare-and-patch statement for patch.
func buildJobUpdate(jobID string, patch domain.JobPatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Paused != nil {
		set("paused", *patch.Paused)
	}
	if patch.Stats != nil {
		set("total_records", patch.Stats.TotalRecords)
		set("processed_records", patch.Stats.ProcessedRecords)
		set("inserted_records", patch.Stats.InsertedRecords)
		set("updated_records", patch.Stats.UpdatedRecords)
	}
	if patch.Cursor != nil {
		set("sync_cursor", *patch.Cursor)
	}
	if patch.EndTime != nil {
		set("end_time", *patch.EndTime)
	}
	if patch.Error != nil {
		set("error_message", *patch.Error)
	}
	lastUpdated := patch.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}
	set("last_updated", lastUpdated)

	args = append(args, jobID)
	where := fmt.Sprintf("job_id = $%d", len(args))
	if len(patch.ExpectStatus) > 0 {
		statuses := make([]string, len(patch.ExpectStatus))
		for i, st := range patch.ExpectStatus {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	query := "UPDATE sync_jobs SET " + strings.Join(sets, ", ") +
		" WHERE " + where +
		" RETURNING " + jobColumns
	return query, args
}

// List retrieves jobs matching filter, newest first
func (s *JobStore) List(ctx context.Context, filter domain.JobFilter) ([]*domain.SyncJob, error) {
	var (
		conds []string
		args  []any
	)
	if filter.TableID != "" {
		args = append(args, filter.TableID)
		conds = append(conds, fmt.Sprintf("table_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC, job_id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list jobs", err)
	}
	defer rows.Close()

	var jobs []*domain.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeError("scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list jobs", err)
	}
	return jobs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.SyncJob, error) {
	var job domain.SyncJob
	var status string
	var endTime sql.NullTime

	err := row.Scan(
		&job.JobID,
		&job.TableID,
		&job.WhseID,
		&status,
		&job.Paused,
		&job.Cursor,
		&job.WindowStart,
		&job.WindowEnd,
		&job.Stats.TotalRecords,
		&job.Stats.ProcessedRecords,
		&job.Stats.InsertedRecords,
		&job.Stats.UpdatedRecords,
		&job.StartTime,
		&endTime,
		&job.LastUpdated,
		&job.Error,
	)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.EndTime = TimePtr(endTime)
	return &job, nil
}
