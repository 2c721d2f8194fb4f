package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockJobStore is an in-memory JobStore with the same compare-and-patch
// semantics as the PostgreSQL implementation. It stores copies, so callers
// never share pointers with the store.
type MockJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.SyncJob

	// Optional failure injection
	GetErr    error
	CreateErr error
	UpdateErr error
	ListErr   error

	// BeforeUpdate runs inside Update before the guard is checked.
	// Tests use it to simulate a concurrent writer.
	BeforeUpdate func(jobID string, patch domain.JobPatch)

	updates int
}

// NewMockJobStore creates a new MockJobStore
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs: make(map[string]*domain.SyncJob),
	}
}

func (m *MockJobStore) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *MockJobStore) Create(ctx context.Context, job *domain.SyncJob) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.JobID]; exists {
		return fmt.Errorf("job %s: %w", job.JobID, domain.ErrConflict)
	}
	m.jobs[job.JobID] = job.Clone()
	return nil
}

func (m *MockJobStore) Update(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.SyncJob, error) {
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	if m.BeforeUpdate != nil {
		m.BeforeUpdate(jobID, patch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !patch.Matches(job.Status) {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, domain.ErrConflict)
	}
	patch.Apply(job)
	m.updates++
	return job.Clone(), nil
}

func (m *MockJobStore) List(ctx context.Context, filter domain.JobFilter) ([]*domain.SyncJob, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.SyncJob
	for _, job := range m.jobs {
		if filter.TableID != "" && job.TableID != filter.TableID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, job.Status) {
			continue
		}
		result = append(result, job.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].JobID > result[j].JobID
		}
		return result[i].StartTime.After(result[j].StartTime)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func containsStatus(statuses []domain.JobStatus, s domain.JobStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Helper methods for testing

// Put stores a job directly, bypassing Create.
func (m *MockJobStore) Put(job *domain.SyncJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job.Clone()
}

// UpdateCount returns how many patches were applied.
func (m *MockJobStore) UpdateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}

func (m *MockJobStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}
