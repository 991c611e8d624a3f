package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveFrom(h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/calculate-price", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serveFrom(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:9999", nil).Code)
	}

	w := serveFrom(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Shop-Domain") },
	})(okHandler())

	shopA := http.Header{"X-Shop-Domain": {"a.example"}}
	shopB := http.Header{"X-Shop-Domain": {"b.example"}}

	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:1", shopA).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "10.0.0.2:1", shopA).Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:1", shopB).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())
	for range 3 {
		w := serveFrom(h, "10.0.0.1:1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", start.Add(59*time.Second))
	assert.False(t, ok, "window still full")

	// Halfway into the next window half of the previous count still applies.
	remaining, _, ok := l.take("k", start.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	// Two windows later the client starts fresh.
	remaining, _, ok = l.take("k", start.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.take("old", now)
	l.take("fresh", now.Add(2*time.Minute))

	l.evict(now.Add(2*time.Minute + time.Second))
	assert.NotContains(t, l.counters, "old")
	assert.Contains(t, l.counters, "fresh")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header http.Header
		want   string
	}{
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "no port", remote: "192.168.1.1", want: "192.168.1.1"},
		{
			name:   "forwarded for",
			remote: "10.0.0.1:1",
			header: http.Header{"X-Forwarded-For": {"203.0.113.50, 70.41.3.18"}},
			want:   "203.0.113.50",
		},
		{
			name:   "real ip",
			remote: "10.0.0.1:1",
			header: http.Header{"X-Real-Ip": {"198.51.100.7"}},
			want:   "198.51.100.7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header[k] = v
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
