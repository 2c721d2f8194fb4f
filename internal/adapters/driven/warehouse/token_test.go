package warehouse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

type fakeSSO struct {
	calls     atomic.Int32
	expiresIn int
	delay     time.Duration
	failFirst int32
	status    int
}

func (f *fakeSSO) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "saak", r.PostForm.Get("username"))
		assert.Equal(t, "sask", r.PostForm.Get("password"))

		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if n <= f.failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":%d}`, n, f.expiresIn)
	}
}

func testCredentials(ssoURL, apiURL string) domain.Credentials {
	return domain.Credentials{
		Tenant:       "acme",
		KeyID:        "saak",
		KeySecret:    "sask",
		ClientID:     "client",
		ClientSecret: "secret",
		APIBaseURL:   apiURL,
		SSOBaseURL:   ssoURL,
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTokenCache(t *testing.T, sso *fakeSSO) (*TokenCache, *testClock) {
	srv := httptest.NewServer(sso.handler(t))
	t.Cleanup(srv.Close)

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewTokenCache(TokenCacheConfig{
		Credentials: testCredentials(srv.URL, ""),
		Clock:       clock.Now,
	})
	return cache, clock
}

func TestTokenCache_CachesUntilExpiry(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600}
	cache, clock := newTestTokenCache(t, sso)
	ctx := context.Background()

	token, err := cache.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	clock.Advance(50 * time.Minute)
	token, err = cache.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int32(1), sso.calls.Load())

	// 3600s minus the 300s margin
	clock.Advance(5*time.Minute + time.Second)
	token, err = cache.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int32(2), sso.calls.Load())
}

func TestTokenCache_ShortLivedTokenIsNotCached(t *testing.T) {
	sso := &fakeSSO{expiresIn: 60}
	cache, _ := newTestTokenCache(t, sso)
	ctx := context.Background()

	_, err := cache.GetAccessToken(ctx)
	require.NoError(t, err)
	_, err = cache.GetAccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), sso.calls.Load())
}

func TestTokenCache_ConcurrentCallersShareRefresh(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600, delay: 100 * time.Millisecond}
	cache, _ := newTestTokenCache(t, sso)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := cache.GetAccessToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), sso.calls.Load())
	for _, token := range tokens {
		assert.Equal(t, "tok-1", token)
	}
}

func TestTokenCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600, delay: 200 * time.Millisecond}
	cache, _ := newTestTokenCache(t, sso)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var shortErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, shortErr = cache.GetAccessToken(shortCtx)
	}()

	// join the refresh the first caller started
	time.Sleep(20 * time.Millisecond)
	token, err := cache.GetAccessToken(context.Background())
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), sso.calls.Load())
}

func TestTokenCache_NoRetryAfterDeadline(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600, delay: 200 * time.Millisecond}
	srv := httptest.NewServer(sso.handler(t))
	t.Cleanup(srv.Close)

	cache := NewTokenCache(TokenCacheConfig{
		Credentials: testCredentials(srv.URL, ""),
		HTTPClient:  &http.Client{},
		Timeout:     50 * time.Millisecond,
	})

	_, err := cache.GetAccessToken(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), sso.calls.Load())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short body", truncate("  short body\n"))

	long := strings.Repeat("x", 600)
	got := truncate(long)
	assert.Len(t, got, 512+len("..."))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestTokenCache_RefreshBypassesCache(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600}
	cache, _ := newTestTokenCache(t, sso)
	ctx := context.Background()

	_, err := cache.GetAccessToken(ctx)
	require.NoError(t, err)

	token, err := cache.RefreshAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)

	token, err = cache.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestTokenCache_RetriesOnce(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600, failFirst: 1}
	cache, _ := newTestTokenCache(t, sso)

	token, err := cache.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int32(2), sso.calls.Load())
}

func TestTokenCache_RejectedCredentials(t *testing.T) {
	sso := &fakeSSO{status: http.StatusUnauthorized}
	cache, _ := newTestTokenCache(t, sso)

	_, err := cache.GetAccessToken(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(2), sso.calls.Load())
}

func TestTokenCache_IncompleteCredentials(t *testing.T) {
	sso := &fakeSSO{expiresIn: 3600}
	srv := httptest.NewServer(sso.handler(t))
	defer srv.Close()

	creds := testCredentials(srv.URL, "")
	creds.KeySecret = ""
	cache := NewTokenCache(TokenCacheConfig{Credentials: creds})

	_, err := cache.GetAccessToken(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Contains(t, err.Error(), "keySecret")
	assert.Equal(t, int32(0), sso.calls.Load())
}
