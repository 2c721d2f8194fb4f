package mocks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

var limitOffsetPattern = regexp.MustCompile(`(?i)LIMIT\s+(\d+)\s+OFFSET\s+(\d+)`)

// MockQueryClient simulates the warehouse query service over an in-memory
// table. Submitted SQL is recorded; its LIMIT/OFFSET clause selects the slice
// of Rows a query returns, and COUNT(*) queries return len(Rows).
type MockQueryClient struct {
	mu sync.Mutex

	// Rows is the remote table, already in cursor order
	Rows []domain.Row

	// Statuses scripts the status sequence for every query. The last entry
	// repeats. Defaults to completed.
	Statuses []domain.QueryStatus
	Message  string

	// Optional failure injection
	SubmitErr error
	StatusErr error
	FetchErr  error

	// FailSubmitAfter fails submits once this many have succeeded (0 disables)
	FailSubmitAfter int

	Submitted []string
	queries   map[string]*mockQuery
	fetches   int
	statuses  int
}

type mockQuery struct {
	rows   []domain.Row
	checks int
}

// NewMockQueryClient creates a client over the given rows
func NewMockQueryClient(rows []domain.Row) *MockQueryClient {
	return &MockQueryClient{
		Rows:    rows,
		queries: make(map[string]*mockQuery),
	}
}

func (m *MockQueryClient) Submit(ctx context.Context, sql string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	if m.FailSubmitAfter > 0 && len(m.Submitted) >= m.FailSubmitAfter {
		return "", &domain.RemoteQueryError{Op: "submit", StatusCode: 500, Body: "injected"}
	}
	m.Submitted = append(m.Submitted, sql)
	id := fmt.Sprintf("q-%d", len(m.Submitted))

	var rows []domain.Row
	if strings.Contains(strings.ToUpper(sql), "COUNT(*)") {
		rows = []domain.Row{{"total": float64(len(m.Rows))}}
	} else {
		rows = m.Rows
		if match := limitOffsetPattern.FindStringSubmatch(sql); match != nil {
			limit, _ := strconv.Atoi(match[1])
			offset, _ := strconv.Atoi(match[2])
			rows = window(m.Rows, offset, limit)
		}
	}
	m.queries[id] = &mockQuery{rows: rows}
	return id, nil
}

func (m *MockQueryClient) Status(ctx context.Context, queryID string) (*domain.QueryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses++
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}
	q, ok := m.queries[queryID]
	if !ok {
		return nil, &domain.RemoteQueryError{Op: "status", StatusCode: 404}
	}
	status := domain.QueryStatusCompleted
	if len(m.Statuses) > 0 {
		idx := q.checks
		if idx >= len(m.Statuses) {
			idx = len(m.Statuses) - 1
		}
		status = m.Statuses[idx]
	}
	q.checks++
	return &domain.QueryState{QueryID: queryID, Status: status, Message: m.Message}, nil
}

func (m *MockQueryClient) FetchPage(ctx context.Context, queryID string, offset, limit int) ([]domain.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	q, ok := m.queries[queryID]
	if !ok {
		return nil, &domain.RemoteQueryError{Op: "fetch", StatusCode: 404}
	}
	return window(q.rows, offset, limit), nil
}

// SubmitCount returns the number of accepted submits.
func (m *MockQueryClient) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Submitted)
}

// FetchCount returns the number of FetchPage calls.
func (m *MockQueryClient) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// StatusCount returns the number of Status calls.
func (m *MockQueryClient) StatusCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses
}

func window(rows []domain.Row, offset, limit int) []domain.Row {
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	out := make([]domain.Row, 0, end-offset)
	out = append(out, rows[offset:end]...)
	return out
}
