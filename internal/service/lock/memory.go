package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/domain/repository"

	"github.com/google/uuid"
)

type heldLease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a process-local Locker for single-instance deployments
// and tests.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]heldLease
	now    func() time.Time
}

func NewMemoryLocker() repository.Locker {
	return NewMemoryLockerWithClock(time.Now)
}

// NewMemoryLockerWithClock uses now for expiry checks.
func NewMemoryLockerWithClock(now func() time.Time) *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]heldLease), now: now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*models.Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return nil, fmt.Errorf("lock %s: %w", key, models.ErrContended)
	}
	held := heldLease{token: uuid.NewString(), expiresAt: now.Add(ttl)}
	l.leases[key] = held
	return &models.Lease{Key: key, Token: held.token, ExpiresAt: held.expiresAt}, nil
}

func (l *MemoryLocker) Release(_ context.Context, lease *models.Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[lease.Key]
	if !ok || cur.token != lease.Token || !l.now().Before(cur.expiresAt) {
		return fmt.Errorf("lock %s: %w", lease.Key, models.ErrLeaseLost)
	}
	delete(l.leases, lease.Key)
	return nil
}

func (l *MemoryLocker) Renew(_ context.Context, lease *models.Lease, ttl time.Duration) error {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[lease.Key]
	if !ok || cur.token != lease.Token || !now.Before(cur.expiresAt) {
		return fmt.Errorf("lock %s: %w", lease.Key, models.ErrLeaseLost)
	}
	cur.expiresAt = now.Add(ttl)
	l.leases[lease.Key] = cur
	lease.ExpiresAt = cur.expiresAt
	return nil
}
