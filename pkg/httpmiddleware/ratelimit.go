package httpmiddleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero disables limiting.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// counter holds the request counts of the current and previous fixed windows
// of one client. The sliding count weights the previous window by its
// remaining overlap.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type limiter struct {
	max    int
	window time.Duration
	key    func(*http.Request) string

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		key:      key,
		counters: make(map[string]*counter),
	}
}

// take records one request for key at now and reports whether it fits.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{currStart: now.Truncate(l.window)}
		l.counters[key] = c
	}

	if elapsed := now.Sub(c.currStart); elapsed >= l.window {
		// Only the immediately preceding window still overlaps.
		if elapsed < 2*l.window {
			c.prev = c.curr
		} else {
			c.prev = 0
		}
		c.curr = 0
		c.currStart = now.Truncate(l.window)
	}

	overlap := 1 - now.Sub(c.currStart).Seconds()/l.window.Seconds()
	used := c.prev*math.Max(overlap, 0) + c.curr
	reset = c.currStart.Add(l.window)

	if used >= float64(l.max) {
		return 0, reset, false
	}
	c.curr++
	return max(int(float64(l.max)-used-1), 0), reset, true
}

// evict drops clients idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit limits requests per client. Rejected requests receive 429 with
// a Retry-After header; every response carries X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a background goroutine evicting idle
// clients until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	if cfg.Max > 0 && cfg.Window > 0 {
		go l.evictLoop(ctx)
	}
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	if l.max <= 0 || l.window <= 0 {
		return next
	}
	limit := strconv.Itoa(l.max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, reset, ok := l.take(l.key(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			wait := max(time.Until(reset), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeErrorJSON writes the API failure body {"success":false,"error":msg}.
func writeErrorJSON(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
