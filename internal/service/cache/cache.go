// Package cache keeps short-lived consumer state, such as which events were
// already notified, in memory or in Redis.
package cache

import "SignalFlow/internal/domain/repository"

const seenKeyPrefix = "seen:"

var (
	_ repository.Deduper = (*TTLCache)(nil)
	_ repository.Deduper = (*RedisSeen)(nil)
)
