// Package redis implements a shared location cache on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/geo-pricing/internal/domain/location"
)

const keyPrefix = "geo:ip:"

var _ location.Cache = (*LocationCache)(nil)

// LocationCache stores lookups as JSON strings with a TTL, so replicas share
// one view of located addresses. Redis failures degrade to cache misses.
type LocationCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewLocationCache creates a cache storing entries for ttl.
func NewLocationCache(client goredis.UniversalClient, ttl time.Duration) *LocationCache {
	return &LocationCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %q", addr)
	}
	return client, nil
}

// Get implements location.Cache.
func (c *LocationCache) Get(ctx context.Context, ip string) (location.Location, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+ip).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			zctx.From(ctx).Warn("Location cache read failed", zap.String("ip", ip), zap.Error(err))
		}
		return location.Location{}, false
	}

	var loc location.Location
	if err := loc.Decode(jx.DecodeBytes(raw)); err != nil {
		zctx.From(ctx).Warn("Location cache entry corrupt", zap.String("ip", ip), zap.Error(err))
		return location.Location{}, false
	}
	return loc, true
}

// Set implements location.Cache.
func (c *LocationCache) Set(ctx context.Context, ip string, loc location.Location) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	loc.Encode(e)

	if err := c.client.Set(ctx, keyPrefix+ip, e.Bytes(), c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Location cache write failed", zap.String("ip", ip), zap.Error(err))
	}
}
