package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven/mocks"
)

func newJobFixture(dispatcher Dispatcher) (*JobService, *mocks.MockStore) {
	store := mocks.NewMockStore()
	orch := NewSyncOrchestrator(SyncOrchestratorConfig{
		Store:       store,
		QueryClient: mocks.NewMockQueryClient(nil),
		Clock:       func() time.Time { return testNow },
	})
	return NewJobService(JobServiceConfig{
		Store:        store,
		Orchestrator: orch,
		Dispatcher:   dispatcher,
	}), store
}

func TestJobService_Get(t *testing.T) {
	svc, store := newJobFixture(nil)
	store.JobStore.Put(runningJob("job-1"))

	job, err := svc.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.JobID != "job-1" {
		t.Errorf("expected job-1, got %s", job.JobID)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestJobService_List(t *testing.T) {
	svc, store := newJobFixture(nil)
	for i, status := range []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusInProgress} {
		job := runningJob(string(rune('a' + i)))
		job.Status = status
		job.StartTime = testNow.Add(time.Duration(i) * time.Minute)
		store.JobStore.Put(job)
	}

	all, err := svc.List(context.Background(), domain.JobFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	if all[0].JobID != "c" {
		t.Errorf("expected newest first, got %s", all[0].JobID)
	}

	finished, err := svc.List(context.Background(), domain.JobFilter{Statuses: domain.FinishedJobStatuses})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(finished) != 2 {
		t.Errorf("expected 2 finished jobs, got %d", len(finished))
	}

	none, err := svc.List(context.Background(), domain.JobFilter{TableID: "unknown"})
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v (%v)", none, err)
	}

	if _, err := svc.List(context.Background(), domain.JobFilter{Statuses: []domain.JobStatus{"running"}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown status, got %v", err)
	}
}

func TestJobService_Start(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc, store := newJobFixture(dispatcher)
	store.ConfigStore.Save(context.Background(), testSyncConfig())

	job, err := svc.Start(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.TableID != "orders" {
		t.Errorf("unexpected job %+v", job)
	}
	if got := dispatcher.invocations(); len(got) != 1 || got[0].JobID != job.JobID {
		t.Errorf("expected the new job dispatched, got %+v", got)
	}

	_, err = svc.Start(context.Background(), "orders")
	if !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress for a second start, got %v", err)
	}
	if store.Outstanding() != 0 {
		t.Error("expected sessions released")
	}
}

func TestJobService_StartUnknownTable(t *testing.T) {
	svc, _ := newJobFixture(nil)

	if _, err := svc.Start(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
