//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/geo-pricing/internal/domain/location"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := Dial(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocationCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	c := NewLocationCache(client, time.Second)

	_, ok := c.Get(ctx, "1.1.1.1")
	assert.False(t, ok)

	want := location.Location{Country: "US", City: "Boston", Region: "Massachusetts", Latitude: 42.36, Longitude: -71.06}
	c.Set(ctx, "1.1.1.1", want)

	got, ok := c.Get(ctx, "1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, want, got)

	ttl, err := client.TTL(ctx, keyPrefix+"1.1.1.1").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.NoError(t, client.Set(ctx, keyPrefix+"2.2.2.2", "not json", 0).Err())
	_, ok = c.Get(ctx, "2.2.2.2")
	assert.False(t, ok, "corrupt entries read as misses")

	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "1.1.1.1")
		return !ok
	}, 5*time.Second, 100*time.Millisecond, "entries expire after the TTL")
}
