package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Ensure TokenCache implements the interface.
var _ driven.TokenProvider = (*TokenCache)(nil)

// tokenExpiryMargin is subtracted from expires_in so a token is never used
// right up to its expiry.
const tokenExpiryMargin = 300 * time.Second

// TokenCache holds the current warehouse access token and refreshes it with a
// password grant against the SSO service when it expires.
// Concurrent refreshes share one token request.
type TokenCache struct {
	creds    domain.Credentials
	tokenURL string
	client   *resty.Client
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	token *domain.Token
}

// TokenCacheConfig holds configuration for the token cache.
type TokenCacheConfig struct {
	Credentials domain.Credentials
	HTTPClient  *http.Client // Optional: defaults to a client with Timeout
	Timeout     time.Duration
	Logger      *slog.Logger
	Clock       func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewTokenCache creates a token cache for the given credentials.
func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New().SetTimeout(timeout)
	}
	client.SetHeader("Accept", "application/json")

	return &TokenCache{
		creds:    cfg.Credentials,
		tokenURL: strings.TrimRight(cfg.Credentials.SSOBaseURL, "/") + "/oauth/token",
		client:   client,
		timeout:  timeout,
		logger:   logger,
		now:      now,
	}
}

// GetAccessToken returns the cached token, fetching a new one when it has expired.
func (c *TokenCache) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token.Valid(c.now()) {
		return token.AccessToken, nil
	}
	return c.refresh(ctx)
}

// RefreshAccessToken discards the cached token and fetches a new one.
func (c *TokenCache) RefreshAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
	return c.refresh(ctx)
}

// refresh shares one token request between concurrent callers. The request
// runs detached from any single caller, so a caller that gives up does not
// fail the others.
func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	ch := c.group.DoChan("token", func() (any, error) {
		c.mu.RLock()
		cached := c.token
		c.mu.RUnlock()
		if cached.Valid(c.now()) {
			return cached.AccessToken, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		token, err := c.fetch(fetchCtx)
		if err != nil && fetchCtx.Err() == nil {
			c.logger.Warn("token request failed, retrying once", "error", err)
			token, err = c.fetch(fetchCtx)
		}
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		c.logger.Debug("warehouse token refreshed", "expires_at", token.ExpiresAt)
		return token.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// fetch performs one password grant.
func (c *TokenCache) fetch(ctx context.Context) (*domain.Token, error) {
	if missing := c.missingCredentials(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing credentials: %s", domain.ErrUnauthorized, strings.Join(missing, ", "))
	}

	var body tokenResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   c.creds.KeyID,
			"password":   c.creds.KeySecret,
		}).
		SetResult(&body).
		Post(c.tokenURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: token request: %v", domain.ErrUnauthorized, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned %d: %s", domain.ErrUnauthorized, resp.StatusCode(), truncate(resp.String()))
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", domain.ErrUnauthorized)
	}

	now := c.now()
	expiresAt := now.Add(time.Duration(body.ExpiresIn)*time.Second - tokenExpiryMargin)
	if expiresAt.Before(now) {
		expiresAt = now
	}
	return &domain.Token{AccessToken: body.AccessToken, ExpiresAt: expiresAt}, nil
}

// missingCredentials names the fields a password grant needs but lacks.
func (c *TokenCache) missingCredentials() []string {
	var missing []string
	for _, name := range c.creds.Missing() {
		if name == "tenant" || name == "apiBaseUrl" {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}

// truncate keeps error bodies readable in logs and job errors.
func truncate(s string) string {
	const maxErrorBody = 512
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
