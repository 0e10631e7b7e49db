package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/domain/repository"
	"SignalFlow/pkg/cache"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compare-and-delete: only the token holder may release.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Compare-and-extend.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLocker grants leases with SET NX PX; expiry is enforced by Redis so a
// crashed holder cannot block others beyond the TTL.
type RedisLocker struct {
	rc  *cache.RedisCache
	now func() time.Time
}

func NewRedisLocker(rc *cache.RedisCache) repository.Locker {
	return &RedisLocker{rc: rc, now: time.Now}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*models.Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	token := uuid.NewString()
	ok, err := l.rc.Client().SetNX(ctx, l.rc.Key("lock:"+key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s acquire: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, models.ErrContended)
	}
	return &models.Lease{Key: key, Token: token, ExpiresAt: l.now().Add(ttl)}, nil
}

func (l *RedisLocker) Release(ctx context.Context, lease *models.Lease) error {
	n, err := releaseScript.Run(ctx, l.rc.Client(), []string{l.rc.Key("lock:" + lease.Key)}, lease.Token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock %s release: %w", lease.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s: %w", lease.Key, models.ErrLeaseLost)
	}
	return nil
}

func (l *RedisLocker) Renew(ctx context.Context, lease *models.Lease, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, l.rc.Client(), []string{l.rc.Key("lock:" + lease.Key)}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock %s renew: %w", lease.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s: %w", lease.Key, models.ErrLeaseLost)
	}
	lease.ExpiresAt = l.now().Add(ttl)
	return nil
}
