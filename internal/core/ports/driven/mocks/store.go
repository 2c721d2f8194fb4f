package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// MockStore hands out sessions over shared in-memory stores and counts
// acquisitions so tests can assert every session was released.
type MockStore struct {
	JobStore    *MockJobStore
	RecordStore *MockRecordStore
	ConfigStore *MockSyncConfigStore

	// SessionErr fails Session when set
	SessionErr error
	PingErr    error

	mu       sync.Mutex
	opened   int
	released int
}

// NewMockStore creates a MockStore with empty stores
func NewMockStore() *MockStore {
	return &MockStore{
		JobStore:    NewMockJobStore(),
		RecordStore: NewMockRecordStore(),
		ConfigStore: NewMockSyncConfigStore(),
	}
}

func (m *MockStore) Session(ctx context.Context) (driven.Session, error) {
	if m.SessionErr != nil {
		return nil, m.SessionErr
	}
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
	return &mockSession{store: m}, nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Opened returns the number of sessions handed out.
func (m *MockStore) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Outstanding returns sessions acquired but not yet closed.
func (m *MockStore) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened - m.released
}

type mockSession struct {
	store *MockStore
	once  sync.Once
}

func (s *mockSession) Jobs() driven.JobStore           { return s.store.JobStore }
func (s *mockSession) Records() driven.RecordStore     { return s.store.RecordStore }
func (s *mockSession) Configs() driven.SyncConfigStore { return s.store.ConfigStore }

func (s *mockSession) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		s.store.released++
		s.store.mu.Unlock()
	})
	return nil
}
