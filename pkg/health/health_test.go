package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type statusBody struct {
	Status    string
	Timestamp string
	Checks    map[string]string
}

func serve(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			body.Status = v
			return err
		case "timestamp":
			v, err := d.Str()
			body.Timestamp = v
			return err
		case "checks":
			body.Checks = make(map[string]string)
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				body.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return w.Code, body
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing)
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))

	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "probes start healthy")
	assert.Equal(t, "ok", body.Status)

	runN(h.liveness[1], failureThreshold-1)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	runN(h.liveness[1], 1)
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)
	h.AddReadinessCheck("redis", time.Second, failing("dial tcp: refused"))

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready before SetReady")
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)

	runN(h.readiness[1], failureThreshold)
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "redis")
	assert.NotContains(t, body.Checks, "postgres")
	assert.NotContains(t, body.Checks, "_readiness")
}

func TestStatusEndpoint(t *testing.T) {
	h := New()
	h.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	h.AddLivenessCheck("gc", time.Second, failing("pause too long"))

	code, body := serve(t, h.StatusEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "2026-05-01T10:00:00Z", body.Timestamp)
	assert.Empty(t, body.Checks)

	runN(h.liveness[0], failureThreshold)
	code, body = serve(t, h.StatusEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "pause too long", body.Checks["gc"])
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, passing)

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestProbe_Recovers(t *testing.T) {
	down := true
	p := newProbe("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})

	runN(p, failureThreshold)
	assert.False(t, p.healthy.Load())
	assert.Equal(t, "down", p.failure())

	down = false
	runN(p, successThreshold)
	assert.True(t, p.healthy.Load())
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runN(p, 1)
	assert.Contains(t, p.failure(), "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("noisy", time.Second, failing("err"))
	h.AddReadinessCheck("quiet", time.Second, passing)
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				serve(t, h.LiveEndpoint)
				serve(t, h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return w.Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))

	assert.NoError(t, PingCheck("redis", passing)(ctx))
	assert.EqualError(t, PingCheck("redis", failing("refused"))(ctx), "ping redis: refused")
}
