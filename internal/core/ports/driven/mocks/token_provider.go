package mocks

import (
	"context"
	"fmt"
	"sync"
)

// MockTokenProvider hands out numbered tokens and counts refreshes
type MockTokenProvider struct {
	mu        sync.Mutex
	current   int
	gets      int
	refreshes int

	// Err fails both calls when set
	Err error
}

// NewMockTokenProvider creates a provider whose first token is "token-1"
func NewMockTokenProvider() *MockTokenProvider {
	return &MockTokenProvider{current: 1}
}

func (m *MockTokenProvider) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.gets++
	return fmt.Sprintf("token-%d", m.current), nil
}

func (m *MockTokenProvider) RefreshAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.refreshes++
	m.current++
	return fmt.Sprintf("token-%d", m.current), nil
}

// Refreshes returns how many forced refreshes happened.
func (m *MockTokenProvider) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}
