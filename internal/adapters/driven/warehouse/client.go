package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.QueryClient = (*Client)(nil)

// Client talks to the warehouse asynchronous query API:
//
//	POST {api}/v1/tenants/{tenant}/queries                 submit SQL
//	GET  {api}/v1/tenants/{tenant}/queries/{id}            status
//	GET  {api}/v1/tenants/{tenant}/queries/{id}/results    result page
//
// A 401 is retried once with a freshly issued token.
type Client struct {
	baseURL string
	tokens  driven.TokenProvider
	client  *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientConfig holds configuration for the query client.
type ClientConfig struct {
	Credentials domain.Credentials
	Tokens      driven.TokenProvider
	HTTPClient  *http.Client // Optional: defaults to a client with Timeout
	Timeout     time.Duration
	RateLimit   float64 // Requests per second, 0 disables limiting
	Burst       int
	Logger      *slog.Logger
}

type submitResponse struct {
	QueryID string `json:"queryId"`
	ID      string `json:"id"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type resultsResponse struct {
	Rows []domain.Row `json:"rows"`
}

// NewClient creates a warehouse query client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New().SetTimeout(timeout)
	}
	client.SetHeader("Accept", "application/json")

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL: fmt.Sprintf("%s/v1/tenants/%s/queries",
			strings.TrimRight(cfg.Credentials.APIBaseURL, "/"),
			url.PathEscape(cfg.Credentials.Tenant)),
		tokens:  cfg.Tokens,
		client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// Submit starts a query and returns its id.
func (c *Client) Submit(ctx context.Context, sql string) (string, error) {
	resp, err := c.do(ctx, "submit", http.MethodPost, "", func(r *resty.Request) {
		r.SetHeader("Content-Type", "text/plain").SetBody(sql)
	})
	if err != nil {
		return "", err
	}

	var body submitResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("submit: %w: decode response: %v", domain.ErrRemoteQuery, err)
	}
	queryID := body.QueryID
	if queryID == "" {
		queryID = body.ID
	}
	if queryID == "" {
		return "", fmt.Errorf("submit: %w: response has no query id", domain.ErrRemoteQuery)
	}

	c.logger.Debug("query submitted", "query_id", queryID)
	return queryID, nil
}

// Status returns the normalized status of a query. Unknown provider statuses
// are logged and reported as running.
func (c *Client) Status(ctx context.Context, queryID string) (*domain.QueryState, error) {
	resp, err := c.do(ctx, "status", http.MethodGet, "/"+url.PathEscape(queryID), nil)
	if err != nil {
		return nil, err
	}

	var body statusResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("status: %w: decode response: %v", domain.ErrRemoteQuery, err)
	}
	status, ok := domain.NormalizeQueryStatus(body.Status)
	if !ok {
		c.logger.Warn("unrecognized query status, treating as running",
			"query_id", queryID, "status", body.Status)
	}

	message := body.Message
	if message == "" {
		message = body.Error
	}
	return &domain.QueryState{QueryID: queryID, Status: status, Message: message}, nil
}

// FetchPage returns up to limit result rows starting at offset.
func (c *Client) FetchPage(ctx context.Context, queryID string, offset, limit int) ([]domain.Row, error) {
	path := "/" + url.PathEscape(queryID) + "/results"
	resp, err := c.do(ctx, "fetch", http.MethodGet, path, func(r *resty.Request) {
		r.SetQueryParam("offset", strconv.Itoa(offset)).
			SetQueryParam("limit", strconv.Itoa(limit))
	})
	if err != nil {
		return nil, err
	}

	var body resultsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("fetch: %w: decode response: %v", domain.ErrRemoteQuery, err)
	}
	return body.Rows, nil
}

// do sends an authenticated request and retries once on 401 with a new token.
func (c *Client) do(ctx context.Context, op, method, path string, build func(*resty.Request)) (*resty.Response, error) {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.send(ctx, op, method, path, token, build)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		c.logger.Info("warehouse rejected access token, refreshing", "op", op)
		token, err = c.tokens.RefreshAccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		resp, err = c.send(ctx, op, method, path, token, build)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &domain.RemoteQueryError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String()),
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, op, method, path, token string, build func(*resty.Request)) (*resty.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := c.client.R().SetContext(ctx).SetAuthToken(token)
	if build != nil {
		build(req)
	}
	resp, err := req.Execute(method, c.baseURL+path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %v", op, domain.ErrRemoteQuery, err)
	}
	return resp, nil
}
