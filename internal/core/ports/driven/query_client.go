package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// QueryClient talks to the asynchronous warehouse query service.
// Polling is left to the caller.
type QueryClient interface {
	// Submit posts SQL text and returns the remote query ID
	Submit(ctx context.Context, sql string) (string, error)

	// Status returns the normalized status of a query
	Status(ctx context.Context, queryID string) (*domain.QueryState, error)

	// FetchPage returns one page of results. A page shorter than limit is the last one.
	FetchPage(ctx context.Context, queryID string, offset, limit int) ([]domain.Row, error)
}
