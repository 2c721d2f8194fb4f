package driven

import "context"

// TokenProvider provides bearer tokens for the warehouse query API.
type TokenProvider interface {
	// GetAccessToken returns a cached token while it is fresh and fetches a new
	// one otherwise. Concurrent callers share a single in-flight request.
	GetAccessToken(ctx context.Context) (string, error)

	// RefreshAccessToken bypasses the cache and fetches a new token.
	// Used after the remote service rejects a token with 401.
	RefreshAccessToken(ctx context.Context) (string, error)
}
