//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"ppbverify/internal/components/telemetry"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type cachedEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	return url
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := startRedis(t)

	pharmtechs, err := NewRedis[cachedEnvelope](ctx, RedisOptions{URL: url, KeyPrefix: "ppb:pharmtech:v1:", DefaultTTL: time.Minute}, &telemetry.Recorder{})
	require.NoError(t, err)
	defer pharmtechs.Close()
	facilities, err := NewRedis[cachedEnvelope](ctx, RedisOptions{URL: url, KeyPrefix: "ppb:v1:", DefaultTTL: time.Minute}, &telemetry.Recorder{})
	require.NoError(t, err)
	defer facilities.Close()

	_, ok := pharmtechs.Get(ctx, "detailed:PT2025D05614")
	require.False(t, ok)

	value := cachedEnvelope{
		Success: true,
		Message: "PharmTech verification successful",
		Data:    map[string]any{"full_name": "Changwony Gloria"},
	}
	pharmtechs.Set(ctx, "detailed:PT2025D05614", value, 0)
	facilities.Set(ctx, "detailed:PPB/C/1234", value, 0)

	got, ok := pharmtechs.Get(ctx, "detailed:PT2025D05614")
	require.True(t, ok)
	require.Equal(t, value, got)

	stats := pharmtechs.Stats(ctx)
	require.Equal(t, BackendRedis, stats.Backend)
	require.Equal(t, 1, stats.Size)
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)

	pharmtechs.Clear(ctx)
	require.Equal(t, 0, pharmtechs.Stats(ctx).Size)
	require.Equal(t, 1, facilities.Stats(ctx).Size)

	require.True(t, facilities.Delete(ctx, "detailed:PPB/C/1234"))
	require.False(t, facilities.Delete(ctx, "detailed:PPB/C/1234"))
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	url := startRedis(t)

	c, err := NewRedis[string](ctx, RedisOptions{URL: url, KeyPrefix: "ppb:test:"}, &telemetry.Recorder{})
	require.NoError(t, err)
	defer c.Close()

	c.Set(ctx, "k", "v", time.Second)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k")
		return !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisUnreachableFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewRedis[string](ctx, RedisOptions{URL: "redis://127.0.0.1:1/0"}, &telemetry.Recorder{})
	require.ErrorContains(t, err, "redis ping failed")
}
