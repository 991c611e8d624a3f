package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/geo-pricing/internal/domain/location"
)

func TestLocationCache_UnavailableDegradesToMiss(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.WarnLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))
	c := NewLocationCache(client, time.Hour)

	c.Set(ctx, "1.1.1.1", location.Location{Country: "US", City: "New York"})
	_, ok := c.Get(ctx, "1.1.1.1")
	assert.False(t, ok)

	assert.Equal(t, 1, logs.FilterMessage("Location cache write failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Location cache read failed").Len())
}
