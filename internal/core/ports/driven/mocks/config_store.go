package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockSyncConfigStore is an in-memory SyncConfigStore
type MockSyncConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*domain.SyncConfig

	ListErr error
}

// NewMockSyncConfigStore creates a new MockSyncConfigStore
func NewMockSyncConfigStore() *MockSyncConfigStore {
	return &MockSyncConfigStore{
		configs: make(map[string]*domain.SyncConfig),
	}
}

func (m *MockSyncConfigStore) Get(ctx context.Context, tableID string) (*domain.SyncConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[tableID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *cfg
	return &c, nil
}

func (m *MockSyncConfigStore) List(ctx context.Context, enabledOnly bool) ([]*domain.SyncConfig, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.SyncConfig
	for _, cfg := range m.configs {
		if enabledOnly && !cfg.Enabled {
			continue
		}
		c := *cfg
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TableID < result[j].TableID })
	return result, nil
}

func (m *MockSyncConfigStore) Save(ctx context.Context, cfg *domain.SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cfg
	m.configs[cfg.TableID] = &c
	return nil
}
