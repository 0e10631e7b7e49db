package cache

import (
	"context"
	"fmt"
	"time"

	pkgcache "SignalFlow/pkg/cache"
)

// RedisSeen shares seen ids across consumer instances with SET NX.
type RedisSeen struct {
	rc *pkgcache.RedisCache
}

func NewRedisSeen(rc *pkgcache.RedisCache) *RedisSeen {
	return &RedisSeen{rc: rc}
}

func (r *RedisSeen) MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := r.rc.Client().SetNX(ctx, r.rc.Key(seenKeyPrefix+id), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", id, err)
	}
	return ok, nil
}
