package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven/mocks"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeRows(n int) []domain.Row {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]domain.Row, n)
	for i := range rows {
		rows[i] = domain.Row{
			"order_id":   float64(i + 1),
			"whseid":     "WH1",
			"updated_at": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"qty":        float64(i % 7),
		}
	}
	return rows
}

func testSyncConfig() *domain.SyncConfig {
	return &domain.SyncConfig{
		TableID:       "orders",
		TableName:     "wms.orders",
		Enabled:       true,
		SyncFrequency: "15m",
		BatchSize:     100,
		MaxRecords:    500,
		Options: domain.SyncOptions{
			WarehouseID: "WH1",
			PrimaryKey:  []string{"order_id"},
			InitialSync: true,
		},
	}
}

type syncFixture struct {
	store  *mocks.MockStore
	client *mocks.MockQueryClient
	orch   *SyncOrchestrator
	sleeps []time.Duration
}

func newSyncFixture(rows []domain.Row, poll domain.PollPolicy) *syncFixture {
	f := &syncFixture{
		store:  mocks.NewMockStore(),
		client: mocks.NewMockQueryClient(rows),
	}
	f.orch = NewSyncOrchestrator(SyncOrchestratorConfig{
		Store:       f.store,
		QueryClient: f.client,
		PollPolicy:  poll,
		Clock:       func() time.Time { return testNow },
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return ctx.Err()
		},
	})
	return f
}

func (f *syncFixture) job(t *testing.T, jobID string) *domain.SyncJob {
	t.Helper()
	job, err := f.store.JobStore.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("failed to load job %s: %v", jobID, err)
	}
	return job
}

func (f *syncFixture) assertSessionsReleased(t *testing.T) {
	t.Helper()
	if n := f.store.Outstanding(); n != 0 {
		t.Errorf("expected all store sessions released, %d outstanding", n)
	}
}

func TestSyncOrchestrator_RespectsMaxRecords(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.Stats.ProcessedRecords != 500 {
		t.Errorf("expected 500 processed, got %d", job.Stats.ProcessedRecords)
	}
	if job.Stats.InsertedRecords != 500 {
		t.Errorf("expected 500 inserted, got %d", job.Stats.InsertedRecords)
	}
	if f.client.SubmitCount() != 5 {
		t.Errorf("expected 5 submit cycles, got %d", f.client.SubmitCount())
	}
	if f.client.FetchCount() != 5 {
		t.Errorf("expected 5 fetches, got %d", f.client.FetchCount())
	}
	if job.EndTime == nil {
		t.Error("expected endTime to be set")
	}
	if job.Cursor != job.WindowEnd {
		t.Errorf("expected cursor to advance to window end %s, got %s", job.WindowEnd, job.Cursor)
	}
	if n, _ := f.store.RecordStore.Count(context.Background(), "orders"); n != 500 {
		t.Errorf("expected 500 stored records, got %d", n)
	}
	f.assertSessionsReleased(t)
}

func TestSyncOrchestrator_CompletesOnShortBatch(t *testing.T) {
	cfg := testSyncConfig()
	cfg.MaxRecords = 0
	f := newSyncFixture(makeRows(250), domain.PollPolicy{})

	job, err := f.orch.Run(context.Background(), "job-1", cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.Stats.ProcessedRecords != 250 {
		t.Errorf("expected 250 processed, got %d", job.Stats.ProcessedRecords)
	}
	if job.Stats.TotalRecords != 250 {
		t.Errorf("expected total to default to processed, got %d", job.Stats.TotalRecords)
	}
	if f.client.SubmitCount() != 3 {
		t.Errorf("expected 3 submits, got %d", f.client.SubmitCount())
	}
}

func TestSyncOrchestrator_EmptyTrailingBatch(t *testing.T) {
	cfg := testSyncConfig()
	cfg.MaxRecords = 0
	f := newSyncFixture(makeRows(200), domain.PollPolicy{})

	job, err := f.orch.Run(context.Background(), "job-1", cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Stats.ProcessedRecords != 200 {
		t.Errorf("expected completed with 200 rows, got %s with %d", job.Status, job.Stats.ProcessedRecords)
	}
	if f.client.SubmitCount() != 3 {
		t.Errorf("expected 3 submits, got %d", f.client.SubmitCount())
	}
}

func TestSyncOrchestrator_PagesWithinBatch(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Options.PageSize = 30
	cfg.MaxRecords = 100
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})

	job, err := f.orch.Run(context.Background(), "job-1", cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Stats.ProcessedRecords != 100 {
		t.Errorf("expected 100 processed, got %d", job.Stats.ProcessedRecords)
	}
	// 30 + 30 + 30 + 10
	if f.client.FetchCount() != 4 {
		t.Errorf("expected 4 page fetches, got %d", f.client.FetchCount())
	}
}

func TestSyncOrchestrator_PausedJobDoesNotStartBatch(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})
	f.store.JobStore.Put(&domain.SyncJob{
		JobID:     "job-1",
		TableID:   "orders",
		WhseID:    "WH1",
		Status:    domain.JobStatusInProgress,
		Paused:    true,
		StartTime: testNow,
		Stats:     domain.JobStats{ProcessedRecords: 100},
	})

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.client.SubmitCount() != 0 {
		t.Errorf("expected no remote queries for a paused job, got %d", f.client.SubmitCount())
	}
	if job.Status != domain.JobStatusInProgress || !job.Paused {
		t.Errorf("expected paused in_progress job, got %s paused=%v", job.Status, job.Paused)
	}
	if job.Stats.ProcessedRecords != 100 {
		t.Errorf("expected stats untouched, got %d", job.Stats.ProcessedRecords)
	}
}

func TestSyncOrchestrator_FinishedJobIsNoop(t *testing.T) {
	for _, status := range domain.FinishedJobStatuses {
		t.Run(string(status), func(t *testing.T) {
			f := newSyncFixture(makeRows(10), domain.PollPolicy{})
			f.store.JobStore.Put(&domain.SyncJob{JobID: "job-1", TableID: "orders", Status: status})

			job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if job.Status != status {
				t.Errorf("expected status %s unchanged, got %s", status, job.Status)
			}
			if f.client.SubmitCount() != 0 {
				t.Error("expected no remote queries")
			}
			if f.store.JobStore.UpdateCount() != 0 {
				t.Error("expected no job writes")
			}
		})
	}
}

func TestSyncOrchestrator_StopDuringBatchDiscardsProgress(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})

	stopped := false
	f.store.JobStore.BeforeUpdate = func(jobID string, patch domain.JobPatch) {
		if patch.Cursor != nil && patch.Status == nil && !stopped {
			stopped = true
			status := domain.JobStatusStopped
			end := testNow
			f.store.JobStore.Put(&domain.SyncJob{
				JobID:   jobID,
				TableID: "orders",
				Status:  status,
				EndTime: &end,
			})
		}
	}

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusStopped {
		t.Errorf("expected stopped, got %s", job.Status)
	}
	if job.Stats.ProcessedRecords != 0 {
		t.Errorf("expected no progress after stop, got %d", job.Stats.ProcessedRecords)
	}
	if f.client.SubmitCount() != 1 {
		t.Errorf("expected only the in-flight batch, got %d submits", f.client.SubmitCount())
	}
	f.assertSessionsReleased(t)
}

func TestSyncOrchestrator_PollTimeoutFailsJob(t *testing.T) {
	f := newSyncFixture(makeRows(100), domain.PollPolicy{Interval: 2 * time.Second, MaxAttempts: 10, Multiplier: 1})
	f.client.Statuses = []domain.QueryStatus{domain.QueryStatusRunning}

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if !errors.Is(err, domain.ErrQueryTimeout) {
		t.Fatalf("expected ErrQueryTimeout, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.Error, "timeout") {
		t.Errorf("expected error to mention timeout, got %q", job.Error)
	}
	if f.client.StatusCount() != 10 {
		t.Errorf("expected 10 status checks, got %d", f.client.StatusCount())
	}
	if len(f.sleeps) != 9 {
		t.Errorf("expected 9 waits between checks, got %d", len(f.sleeps))
	}

	stored := f.job(t, "job-1")
	if stored.Status != domain.JobStatusFailed || stored.EndTime == nil {
		t.Errorf("expected stored job failed with endTime, got %s", stored.Status)
	}
	f.assertSessionsReleased(t)
}

func TestSyncOrchestrator_PollBackoff(t *testing.T) {
	policy := domain.PollPolicy{Interval: time.Second, MaxAttempts: 10, Multiplier: 2, MaxInterval: 4 * time.Second}
	f := newSyncFixture(makeRows(10), policy)
	f.client.Statuses = []domain.QueryStatus{
		domain.QueryStatusPending,
		domain.QueryStatusRunning,
		domain.QueryStatusRunning,
		domain.QueryStatusRunning,
		domain.QueryStatusCompleted,
	}

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(f.sleeps) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), f.sleeps)
	}
	for i := range want {
		if f.sleeps[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], f.sleeps[i])
		}
	}
}

func TestSyncOrchestrator_RemoteFailure(t *testing.T) {
	f := newSyncFixture(makeRows(100), domain.PollPolicy{})
	f.client.Statuses = []domain.QueryStatus{domain.QueryStatusFailed}
	f.client.Message = "column qty does not exist"

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if !errors.Is(err, domain.ErrRemoteQuery) {
		t.Fatalf("expected ErrRemoteQuery, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.Error, "column qty does not exist") {
		t.Errorf("expected remote message in error, got %q", job.Error)
	}
}

func TestSyncOrchestrator_FailureKeepsCommittedProgress(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})
	f.client.FailSubmitAfter = 2

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if !errors.Is(err, domain.ErrRemoteQuery) {
		t.Fatalf("expected ErrRemoteQuery, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if job.Stats.ProcessedRecords != 200 {
		t.Errorf("expected two committed batches, got %d", job.Stats.ProcessedRecords)
	}
	if !strings.Contains(job.Error, "batch 3") {
		t.Errorf("expected error to name the failing batch, got %q", job.Error)
	}
}

func TestSyncOrchestrator_DeadlineLeavesJobInProgress(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.JobStore.BeforeUpdate = func(jobID string, patch domain.JobPatch) {
		if patch.Cursor != nil && patch.Status == nil {
			cancel()
		}
	}

	job, err := f.orch.Run(ctx, "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("expected no error when the invocation window closes, got %v", err)
	}
	if job.Status != domain.JobStatusInProgress {
		t.Errorf("expected in_progress, got %s", job.Status)
	}
	if job.Stats.ProcessedRecords != 100 {
		t.Errorf("expected first batch committed, got %d", job.Stats.ProcessedRecords)
	}
	f.assertSessionsReleased(t)

	// next invocation resumes from the stored offset
	f.store.JobStore.BeforeUpdate = nil
	job, err = f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("resumed Run failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Stats.ProcessedRecords != 500 {
		t.Errorf("expected completed with 500 rows, got %s with %d", job.Status, job.Stats.ProcessedRecords)
	}
	if f.client.SubmitCount() != 5 {
		t.Errorf("expected 5 submits across both invocations, got %d", f.client.SubmitCount())
	}
	if !strings.Contains(f.client.Submitted[1], "OFFSET 100") {
		t.Errorf("expected second batch at offset 100, got %s", f.client.Submitted[1])
	}
}

func TestSyncOrchestrator_ResumeContinuesStats(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})
	f.store.JobStore.Put(&domain.SyncJob{
		JobID:     "job-1",
		TableID:   "orders",
		WhseID:    "WH1",
		Status:    domain.JobStatusInProgress,
		WindowEnd: testNow.Format(time.RFC3339),
		StartTime: testNow.Add(-time.Hour),
		Stats:     domain.JobStats{ProcessedRecords: 200, InsertedRecords: 200},
	})

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Stats.ProcessedRecords != 500 || job.Stats.InsertedRecords != 500 {
		t.Errorf("expected stats to continue to 500, got %+v", job.Stats)
	}
	if f.client.SubmitCount() != 3 {
		t.Errorf("expected 3 remaining batches, got %d", f.client.SubmitCount())
	}
	if !strings.Contains(f.client.Submitted[0], "LIMIT 100 OFFSET 200") {
		t.Errorf("expected first query at offset 200, got %s", f.client.Submitted[0])
	}
}

func TestSyncOrchestrator_IdempotentResync(t *testing.T) {
	f := newSyncFixture(makeRows(300), domain.PollPolicy{})
	cfg := testSyncConfig()

	first, err := f.orch.Run(context.Background(), "job-1", cfg)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := f.orch.Run(context.Background(), "job-2", cfg)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if first.Stats.InsertedRecords != 300 {
		t.Errorf("expected 300 inserts on first sync, got %d", first.Stats.InsertedRecords)
	}
	if second.Stats.InsertedRecords != 0 || second.Stats.UpdatedRecords != 0 {
		t.Errorf("expected resync to change nothing, got %+v", second.Stats)
	}
	if n, _ := f.store.RecordStore.Count(context.Background(), "orders"); n != 300 {
		t.Errorf("expected 300 records after resync, got %d", n)
	}
}

func TestSyncOrchestrator_IncrementalWindow(t *testing.T) {
	f := newSyncFixture(makeRows(10), domain.PollPolicy{})
	previousCursor := "2026-02-15T00:00:00Z"
	f.store.JobStore.Put(&domain.SyncJob{
		JobID:     "old",
		TableID:   "orders",
		Status:    domain.JobStatusCompleted,
		Cursor:    previousCursor,
		StartTime: testNow.Add(-24 * time.Hour),
	})

	cfg := testSyncConfig()
	cfg.Options.InitialSync = false

	job, err := f.orch.CreateJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}
	if job.WindowStart != previousCursor {
		t.Errorf("expected window to start at previous cursor, got %q", job.WindowStart)
	}
	if job.WindowEnd != testNow.Format(time.RFC3339Nano) {
		t.Errorf("expected window to end now, got %q", job.WindowEnd)
	}

	if _, err := f.orch.Run(context.Background(), job.JobID, cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(f.client.Submitted[0], "updated_at >= '2026-02-15T00:00:00Z'") {
		t.Errorf("expected lower window bound in query, got %s", f.client.Submitted[0])
	}
}

func TestSyncOrchestrator_RerunAfterFailureStartsAtCursor(t *testing.T) {
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})
	f.client.FailSubmitAfter = 2
	cfg := testSyncConfig()
	cfg.Options.InitialSync = false

	failed, err := f.orch.Run(context.Background(), "job-1", cfg)
	if !errors.Is(err, domain.ErrRemoteQuery) {
		t.Fatalf("expected ErrRemoteQuery, got %v", err)
	}
	if failed.Status != domain.JobStatusFailed || failed.Stats.ProcessedRecords != 200 {
		t.Fatalf("expected failed with 200 rows, got %s with %d", failed.Status, failed.Stats.ProcessedRecords)
	}
	// row 200 is the last committed one
	wantCursor := "2026-02-01T03:19:00Z"
	if failed.Cursor != wantCursor {
		t.Fatalf("expected cursor %s, got %s", wantCursor, failed.Cursor)
	}

	f.client.FailSubmitAfter = 0
	next, err := f.orch.CreateJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if next.WindowStart != wantCursor {
		t.Errorf("expected new window to start at the failed job's cursor, got %q", next.WindowStart)
	}

	submitted := f.client.SubmitCount()
	if _, err := f.orch.Run(context.Background(), next.JobID, cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(f.client.Submitted[submitted], "updated_at >= '"+wantCursor+"'") {
		t.Errorf("expected lower bound at the failed job's cursor, got %s", f.client.Submitted[submitted])
	}
	f.assertSessionsReleased(t)
}

func TestSyncOrchestrator_NumericCursor(t *testing.T) {
	rows := make([]domain.Row, 10)
	for i := range rows {
		rows[i] = domain.Row{"seq": float64(100 + i), "whseid": "WH1", "qty": float64(i)}
	}
	f := newSyncFixture(rows, domain.PollPolicy{})
	f.store.JobStore.Put(&domain.SyncJob{
		JobID:     "old",
		TableID:   "orders",
		Status:    domain.JobStatusCompleted,
		Cursor:    "99",
		StartTime: testNow.Add(-24 * time.Hour),
	})

	cfg := testSyncConfig()
	cfg.Options.InitialSync = false
	cfg.Options.PrimaryKey = []string{"seq"}
	cfg.Options.CursorField = "seq"
	cfg.Options.CursorType = domain.CursorTypeNumeric

	job, err := f.orch.CreateJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.WindowStart != "99" || job.WindowEnd != "" {
		t.Errorf("expected window [99, open), got [%q, %q)", job.WindowStart, job.WindowEnd)
	}

	job, err = f.orch.Run(context.Background(), job.JobID, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.Cursor != "109" {
		t.Errorf("expected cursor to stay numeric at 109, got %q", job.Cursor)
	}
	query := f.client.Submitted[0]
	if !strings.Contains(query, "seq >= 99 ") {
		t.Errorf("expected bare numeric lower bound, got %s", query)
	}
	if strings.Contains(query, "seq <") {
		t.Errorf("expected no upper bound for a numeric cursor, got %s", query)
	}
}

func TestSyncOrchestrator_CountTotal(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Options.CountTotal = true
	f := newSyncFixture(makeRows(1000), domain.PollPolicy{})

	job, err := f.orch.Run(context.Background(), "job-1", cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Stats.TotalRecords != 1000 {
		t.Errorf("expected total 1000, got %d", job.Stats.TotalRecords)
	}
	if !strings.Contains(f.client.Submitted[0], "COUNT(*)") {
		t.Errorf("expected count query first, got %s", f.client.Submitted[0])
	}
}

func TestSyncOrchestrator_UpsertErrorReleasesSession(t *testing.T) {
	f := newSyncFixture(makeRows(10), domain.PollPolicy{})
	f.store.RecordStore.UpsertErr = domain.ErrStoreUnavailable

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	f.assertSessionsReleased(t)
}

func TestSyncOrchestrator_MissingPrimaryKey(t *testing.T) {
	rows := makeRows(5)
	delete(rows[2], "order_id")
	f := newSyncFixture(rows, domain.PollPolicy{})

	job, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !strings.Contains(job.Error, "order_id") {
		t.Errorf("expected error to name the column, got %q", job.Error)
	}
}

func TestSyncOrchestrator_SessionUnavailable(t *testing.T) {
	f := newSyncFixture(makeRows(10), domain.PollPolicy{})
	f.store.SessionErr = domain.ErrStoreUnavailable

	_, err := f.orch.Run(context.Background(), "job-1", testSyncConfig())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if f.client.SubmitCount() != 0 {
		t.Error("expected no remote work without a store session")
	}
}

func TestSyncOrchestrator_InvalidInput(t *testing.T) {
	f := newSyncFixture(nil, domain.PollPolicy{})

	if _, err := f.orch.Run(context.Background(), "", testSyncConfig()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty job id, got %v", err)
	}
	bad := testSyncConfig()
	bad.TableName = "orders; drop table x"
	if _, err := f.orch.Run(context.Background(), "job-1", bad); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad table, got %v", err)
	}
	if f.store.Opened() != 0 {
		t.Error("expected validation before opening a session")
	}
}

func TestBuildBatchQuery(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Options.PrimaryKey = []string{"order_id", "line_no"}
	job := &domain.SyncJob{
		WhseID:      "WH'1",
		WindowStart: "2026-01-01T00:00:00Z",
		WindowEnd:   "2026-02-01T00:00:00Z",
	}

	got := buildBatchQuery(cfg, job, 200, 100)
	want := "SELECT * FROM wms.orders WHERE whseid = 'WH''1'" +
		" AND updated_at >= '2026-01-01T00:00:00Z' AND updated_at < '2026-02-01T00:00:00Z'" +
		" ORDER BY updated_at ASC, order_id ASC, line_no ASC LIMIT 100 OFFSET 200"
	if got != want {
		t.Errorf("buildBatchQuery:\n got %s\nwant %s", got, want)
	}
}

func TestBuildBatchQuery_NumericCursor(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Options.CursorField = "seq"
	cfg.Options.CursorType = domain.CursorTypeNumeric
	job := &domain.SyncJob{WhseID: "WH1", WindowStart: "42"}

	got := buildBatchQuery(cfg, job, 0, 10)
	want := "SELECT * FROM wms.orders WHERE whseid = 'WH1' AND seq >= 42" +
		" ORDER BY seq ASC, order_id ASC LIMIT 10 OFFSET 0"
	if got != want {
		t.Errorf("buildBatchQuery:\n got %s\nwant %s", got, want)
	}

	// anything that is not a number is still quoted
	job.WindowStart = "42; drop table x"
	if got := buildBatchQuery(cfg, job, 0, 10); !strings.Contains(got, "seq >= '42; drop table x'") {
		t.Errorf("expected non-numeric bound to be quoted, got %s", got)
	}
}

func TestRecordKey(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Options.PrimaryKey = []string{"order_id", "line_no"}

	key, err := recordKey(cfg, domain.Row{"order_id": float64(1234567), "line_no": "A"})
	if err != nil {
		t.Fatalf("recordKey failed: %v", err)
	}
	if key != "1234567|A" {
		t.Errorf("expected 1234567|A, got %s", key)
	}

	if _, err := recordKey(cfg, domain.Row{"order_id": nil, "line_no": "A"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for null key, got %v", err)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name string
		rows []domain.Row
		want int
		ok   bool
	}{
		{"float", []domain.Row{{"total": float64(42)}}, 42, true},
		{"string", []domain.Row{{"total": "17"}}, 17, true},
		{"other column", []domain.Row{{"count": float64(3)}}, 3, true},
		{"empty", nil, 0, false},
		{"garbage", []domain.Row{{"total": "many"}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCount(tt.rows)
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
