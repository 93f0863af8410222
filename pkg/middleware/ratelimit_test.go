package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
	"github.com/vendorgate/vendorgate/pkg/identity"
)

func authedRequest(r *http.Request, userID int64) *http.Request {
	id := &identity.Identity{ID: userID, Role: identity.RoleCompanyUser, TenantID: 1, OrganizationID: 1}
	return r.WithContext(contextkeys.WithIdentity(r.Context(), id))
}

func TestRateLimiterAllow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	allowed := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if limiter.Allow("user:1") {
			allowed++
		}
	}
	assert.Equal(t, config.RequestsPerWindow+config.BurstSize, allowed)

	// A different key has its own bucket.
	assert.True(t, limiter.Allow("user:2"))
}

func TestRateLimiterCleanup(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Millisecond,
		BurstSize:         0,
	}
	limiter := NewRateLimiter(config)
	limiter.Allow("stale")

	time.Sleep(5 * time.Millisecond)
	limiter.Cleanup()

	limiter.mu.RLock()
	_, exists := limiter.buckets["stale"]
	limiter.mu.RUnlock()
	assert.False(t, exists)
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}),
		anonymousLimiter: NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}),
	}
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		r := authedRequest(httptest.NewRequest("GET", "/v1/documents", nil), 7)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimitMiddlewareKeysAuthenticatedCallersByUser(t *testing.T) {
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}),
		anonymousLimiter: NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}),
	}
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(r *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec
	}

	// The second authenticated request exhausts the per-user limit while
	// the generous anonymous limit stays untouched.
	assert.Equal(t, http.StatusOK, send(authedRequest(httptest.NewRequest("GET", "/v1/documents", nil), 7)).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(authedRequest(httptest.NewRequest("GET", "/v1/documents", nil), 7)).Code)
	assert.Equal(t, http.StatusOK, send(httptest.NewRequest("GET", "/v1/documents", nil)).Code)
}

func TestRateLimitMiddlewareStartCleanupPrunesBothLimiters(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Millisecond}
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(config),
		anonymousLimiter: NewRateLimiter(config),
	}
	m.userLimiter.Allow("user:7")
	m.anonymousLimiter.Allow("ip:10.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartCleanup(ctx)

	assert.Eventually(t, func() bool {
		m.userLimiter.mu.RLock()
		_, userStale := m.userLimiter.buckets["user:7"]
		m.userLimiter.mu.RUnlock()
		m.anonymousLimiter.mu.RLock()
		_, anonStale := m.anonymousLimiter.buckets["ip:10.0.0.1"]
		m.anonymousLimiter.mu.RUnlock()
		return !userStale && !anonStale
	}, time.Second, 5*time.Millisecond)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	config := &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	limiter := NewDistributedRateLimiter(client, config, "ratelimit:test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := limiter.Remaining(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Other callers are unaffected.
	allowed, err = limiter.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "user:1"))
	allowed, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimitMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewDistributedRateLimitMiddleware(client, nil, nil)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mr.Close() // simulate a Redis outage

	r := authedRequest(httptest.NewRequest("GET", "/v1/documents", nil), 7)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDistributedRateLimitMiddlewareRejects(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewDistributedRateLimitMiddleware(client, nil, nil)
	m.anonymousLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "ratelimit:anon")

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/v1/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/documents", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestDistributedRateLimitMiddlewareKeysAuthenticatedCallersByUser(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewDistributedRateLimitMiddleware(client, nil, nil)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(httptest.NewRequest("GET", "/v1/documents", nil), 7))
	require.Equal(t, http.StatusOK, rec.Code)

	// The authenticated caller consumes from the per-user window, not the
	// anonymous IP window.
	assert.Contains(t, mr.Keys(), "ratelimit:user:user:7")
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "ratelimit:anon")
	}
}
