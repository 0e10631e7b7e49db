package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rc, err := NewRedisCache(WithRedisAddr(mr.Host(), port), WithRedisPrefix("sf"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	assert.Equal(t, "sf:trade:BTCUSDT", rc.Key("trade:BTCUSDT"))
	require.NoError(t, rc.Health(context.Background()))
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache(WithRedisAddr("127.0.0.1", 1))
	require.Error(t, err)
}

func TestKeyWithoutPrefix(t *testing.T) {
	rc := NewRedisCacheFromClient(nil, "")
	assert.Equal(t, "outbox-drain", rc.Key("outbox-drain"))
}
