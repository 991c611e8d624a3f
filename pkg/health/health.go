// Package health runs background liveness and readiness probes and serves
// their state over HTTP.
//
// A probe flips to unhealthy after three consecutive failures and back to
// healthy after one success, so a single slow dependency call does not take
// the service out of rotation.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

const (
	failureThreshold = 3
	successThreshold = 1
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// probe is a registered check. Counters are owned by the goroutine running
// the probe; healthy and lastErr are read concurrently by handlers.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, check: check}
	p.healthy.Store(true)
	return p
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= successThreshold {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() string {
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Health tracks the probes of one service. It starts not ready.
type Health struct {
	ready atomic.Bool
	now   func() time.Time

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health.
func New() *Health {
	return &Health{now: time.Now}
}

// AddLivenessCheck registers a probe deciding whether the process should be
// restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a probe deciding whether the service should
// receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start runs every registered probe now and then every interval until Stop
// or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the probe goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag, typically true after startup and
// false when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(&h.readiness))) == 0
}

func (h *Health) snapshot(probes *[]*probe) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(*probes)
}

func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if !p.healthy.Load() {
			out[p.name] = p.failure()
		}
	}
	return out
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} or 503 with the failing
// checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, "ok", failures(h.snapshot(&h.liveness)), nil)
}

// ReadyEndpoint serves /readyz. It also fails while the service is not
// marked ready.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, "ok", failed, nil)
}

// StatusEndpoint serves the public /health check:
// {"status":"healthy","timestamp":...}, or 503 "unhealthy" when a liveness
// probe fails.
func (h *Health) StatusEndpoint(w http.ResponseWriter, _ *http.Request) {
	ts := h.now()
	writeStatus(w, "healthy", failures(h.snapshot(&h.liveness)), &ts)
}

func writeStatus(w http.ResponseWriter, okStatus string, failed map[string]string, ts *time.Time) {
	status, code := okStatus, http.StatusOK
	if len(failed) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if ts != nil {
			e.Field("timestamp", func(e *jx.Encoder) { e.Str(ts.UTC().Format(time.RFC3339Nano)) })
		}
		if len(failed) > 0 {
			e.Field("checks", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, name := range slices.Sorted(maps.Keys(failed)) {
						e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
					}
				})
			})
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
