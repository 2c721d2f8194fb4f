package mocks

import (
	"context"
	"reflect"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// MockRecordStore is an in-memory RecordStore
type MockRecordStore struct {
	mu      sync.RWMutex
	records map[string]map[string]domain.Row // tableID -> key -> row

	// UpsertErr fails every upsert when set
	UpsertErr error

	upserts int
}

// NewMockRecordStore creates a new MockRecordStore
func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{
		records: make(map[string]map[string]domain.Row),
	}
}

func (m *MockRecordStore) Upsert(ctx context.Context, tableID, key, whseID string, row domain.Row) (domain.UpsertOutcome, error) {
	if m.UpsertErr != nil {
		return "", m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	table, ok := m.records[tableID]
	if !ok {
		table = make(map[string]domain.Row)
		m.records[tableID] = table
	}
	existing, ok := table[key]
	table[key] = copyRow(row)
	switch {
	case !ok:
		return domain.UpsertInserted, nil
	case reflect.DeepEqual(existing, row):
		return domain.UpsertUnchanged, nil
	default:
		return domain.UpsertUpdated, nil
	}
}

func (m *MockRecordStore) Get(ctx context.Context, tableID, key string) (domain.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.records[tableID][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRow(row), nil
}

func (m *MockRecordStore) Count(ctx context.Context, tableID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[tableID]), nil
}

// UpsertCount returns the number of Upsert calls that reached the store.
func (m *MockRecordStore) UpsertCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

func copyRow(row domain.Row) domain.Row {
	c := make(domain.Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	return c
}
