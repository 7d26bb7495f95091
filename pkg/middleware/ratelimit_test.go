package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func hit(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit_LocalBurstThen429(t *testing.T) {
	limiter := NewLocalLimiter(1, 3, time.Minute)
	defer limiter.Close()
	h := RateLimit(limiter, discardLogger())(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234"), "other IPs have their own bucket")
}

func TestLocalLimiter_CleanupEvictsStale(t *testing.T) {
	limiter := NewLocalLimiter(10, 10, time.Minute)
	defer limiter.Close()

	now := time.Now()
	limiter.nowFunc = func() time.Time { return now }
	_, _ = limiter.Allow(context.Background(), "a")
	_, _ = limiter.Allow(context.Background(), "b")
	require.Equal(t, 2, limiter.len())

	now = now.Add(2 * time.Minute)
	_, _ = limiter.Allow(context.Background(), "b")
	limiter.cleanup()

	assert.Equal(t, 1, limiter.len())
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "siterank:rl", 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.9")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "10.0.0.10")
	require.NoError(t, err)
	assert.True(t, ok)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, discardLogger())(okHandler())
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:9999"
	assert.Equal(t, "192.168.1.5", clientIP(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
