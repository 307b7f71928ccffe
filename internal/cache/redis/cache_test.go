package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "test:"), mr
}

func TestIncrSetsTTLOnCreate(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "budget:serpapi:hour:2024-01-01-10", 1, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, time.Hour, mr.TTL("test:budget:serpapi:hour:2024-01-01-10"))

	mr.FastForward(30 * time.Minute)
	n, err = c.Incr(ctx, "budget:serpapi:hour:2024-01-01-10", 4, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
	require.Equal(t, 30*time.Minute, mr.TTL("test:budget:serpapi:hour:2024-01-01-10"))

	mr.FastForward(30 * time.Minute)
	got, err := c.Get(ctx, "budget:serpapi:hour:2024-01-01-10")
	require.NoError(t, err)
	require.Zero(t, got)
}

func TestIncrRepairsKeyWithoutTTL(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("test:budget:serpapi:month:2024-01", "7"))
	require.Zero(t, mr.TTL("test:budget:serpapi:month:2024-01"))

	n, err := c.Incr(ctx, "budget:serpapi:month:2024-01", 1, 31*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 8, n)
	require.Equal(t, 31*24*time.Hour, mr.TTL("test:budget:serpapi:month:2024-01"))
}

func TestMarkerRoundTrip(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "cooldown")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SetMarker(ctx, "cooldown", 24*time.Hour))
	ok, err = c.Exists(ctx, "cooldown")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(24 * time.Hour)
	ok, err = c.Exists(ctx, "cooldown")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnavailableServerWrapsSentinel(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Incr(context.Background(), "k", 1, time.Hour)
	require.Error(t, err)
	require.True(t, errors.Is(err, discovery.ErrCacheUnavailable))

	_, err = c.Exists(context.Background(), "k")
	require.ErrorIs(t, err, discovery.ErrCacheUnavailable)
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "cache.redis_url")
}
