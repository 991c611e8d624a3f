package location

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Resolver wraps a Provider with caching and soft failure.
type Resolver struct {
	provider Provider
	cache    Cache
	timeout  time.Duration
	group    singleflight.Group
}

// NewResolver creates a Resolver. cache may be nil to disable caching; a
// zero timeout leaves provider calls unbounded.
func NewResolver(provider Provider, cache Cache, timeout time.Duration) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
	}
}

// Locate returns the location of ip. It never fails: empty addresses,
// provider errors, timeouts and a cancelled ctx yield Unknown, which is not cached.
func (r *Resolver) Locate(ctx context.Context, ip string) Location {
	if ip == "" {
		return Unknown
	}
	if r.cache != nil {
		if loc, ok := r.cache.Get(ctx, ip); ok {
			return loc
		}
	}

	// Concurrent misses for one IP share a single provider call. The shared
	// call is detached from any one caller's cancellation and bounded by the
	// resolver timeout; each caller waits only as long as its own context.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(ip, func() (any, error) {
		return r.lookup(shared, ip), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Location)
	case <-ctx.Done():
		return Unknown
	}
}

func (r *Resolver) lookup(ctx context.Context, ip string) Location {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	loc, err := r.provider.Lookup(ctx, ip)
	if err != nil {
		zctx.From(ctx).Warn("Location lookup degraded",
			zap.String("ip", ip),
			zap.Error(err),
		)
		return Unknown
	}
	if loc.Country == "" {
		return Unknown
	}
	if loc.City == "" {
		loc.City = Unknown.City
	}
	if r.cache != nil {
		r.cache.Set(ctx, ip, loc)
	}
	return loc
}
