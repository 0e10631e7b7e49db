package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	pkgcache "SignalFlow/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheMarkSeen(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCacheWithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := c.MarkSeen(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.MarkSeen(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	now = now.Add(time.Minute)
	expired, err := c.MarkSeen(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, expired, "an expired id counts as new")
}

func TestTTLCacheSweepsExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCacheWithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < sweepEvery-1; i++ {
		_, _ = c.MarkSeen(ctx, "old-"+strconv.Itoa(i), time.Second)
	}
	now = now.Add(time.Hour)
	_, _ = c.MarkSeen(ctx, "fresh", time.Second)

	assert.Equal(t, 1, c.Len())
}

func TestRedisSeen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisSeen(pkgcache.NewRedisCacheFromClient(client, "test"))
	ctx := context.Background()

	first, err := s.MarkSeen(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	assert.True(t, mr.Exists("test:seen:evt-1"))

	again, err := s.MarkSeen(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(time.Minute)
	expired, err := s.MarkSeen(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, expired)
}
