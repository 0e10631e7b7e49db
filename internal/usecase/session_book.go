package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"

	"github.com/samber/lo"
)

type sessionEntry struct {
	mu      sync.Mutex
	snap    models.MonitoringSession
	removed bool
	cancel  context.CancelFunc
}

// SessionBook is the arena of active sessions keyed by (symbol, interval).
// Every mutation of a session is serialized on that session and committed
// together with its outbox event; callers only ever see copies.
type SessionBook struct {
	mu       sync.RWMutex
	entries  map[models.SessionKey]*sessionEntry
	reserved map[models.SessionKey]struct{}
	order    []models.SessionKey

	tx     drepo.Transactor
	store  drepo.SessionStore
	outbox drepo.OutboxStore
	now    func() time.Time
}

func NewSessionBook(tx drepo.Transactor, store drepo.SessionStore, outbox drepo.OutboxStore) *SessionBook {
	return &SessionBook{
		entries:  make(map[models.SessionKey]*sessionEntry),
		reserved: make(map[models.SessionKey]struct{}),
		tx:       tx,
		store:    store,
		outbox:   outbox,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// open persists a new session and its monitoring.started event. The key is
// reserved under the book lock and committed outside it, so other sessions
// stay readable while the transaction runs.
func (b *SessionBook) open(ctx context.Context, sess models.MonitoringSession, cancel context.CancelFunc) (*sessionEntry, error) {
	key := sess.Key()
	if err := b.reserve(key); err != nil {
		return nil, err
	}

	err := b.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := b.store.Create(ctx, sess); err != nil {
			return err
		}
		return b.emit(ctx, models.EventMonitoringStarted, sess.Symbol, sess)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.reserved, key)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", key, err)
	}
	return b.insertLocked(key, sess, cancel), nil
}

// adopt registers an already persisted session without writing anything.
func (b *SessionBook) adopt(sess models.MonitoringSession, cancel context.CancelFunc) (*sessionEntry, error) {
	key := sess.Key()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.takenLocked(key) {
		return nil, models.ErrSessionExists
	}
	return b.insertLocked(key, sess, cancel), nil
}

func (b *SessionBook) reserve(key models.SessionKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.takenLocked(key) {
		return models.ErrSessionExists
	}
	b.reserved[key] = struct{}{}
	return nil
}

func (b *SessionBook) takenLocked(key models.SessionKey) bool {
	if _, ok := b.entries[key]; ok {
		return true
	}
	_, ok := b.reserved[key]
	return ok
}

func (b *SessionBook) insertLocked(key models.SessionKey, sess models.MonitoringSession, cancel context.CancelFunc) *sessionEntry {
	e := &sessionEntry{snap: sess, cancel: cancel}
	b.entries[key] = e
	b.order = append(b.order, key)
	return e
}

// close removes the session and records monitoring.stopped. When only is
// set the call is a no-op unless key still maps to that entry. The
// transaction runs under the session lock alone.
func (b *SessionBook) close(ctx context.Context, key models.SessionKey, reason, detail string, only *sessionEntry) (models.MonitoringSession, error) {
	e := b.lookup(key)
	if e == nil || (only != nil && e != only) {
		return models.MonitoringSession{}, models.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return models.MonitoringSession{}, models.ErrSessionNotFound
	}

	snap := e.snap
	stopped := models.SessionStopped{
		Symbol:           snap.Symbol,
		Interval:         snap.Interval,
		Strategy:         snap.Strategy,
		Reason:           reason,
		Detail:           detail,
		SignalsGenerated: snap.SignalsGenerated,
		TradesExecuted:   snap.TradesExecuted,
		StoppedAt:        b.now(),
	}
	err := b.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := b.store.Delete(ctx, key); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
			return err
		}
		return b.emit(ctx, models.EventMonitoringStopped, snap.Symbol, stopped)
	})
	if err != nil {
		return models.MonitoringSession{}, fmt.Errorf("close session %s: %w", key, err)
	}

	e.removed = true
	b.mu.Lock()
	if b.entries[key] == e {
		delete(b.entries, key)
		b.order = lo.Without(b.order, key)
	}
	b.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	return snap, nil
}

// RecordSignal stores sig as the latest signal of key, bumps
// signalsGenerated and appends signal.generated, all in one transaction.
func (b *SessionBook) RecordSignal(ctx context.Context, key models.SessionKey, sig models.TradingSignal) (models.MonitoringSession, error) {
	e := b.lookup(key)
	if e == nil {
		return models.MonitoringSession{}, models.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return models.MonitoringSession{}, models.ErrSessionNotFound
	}

	n := e.snap.SignalsGenerated + 1
	err := b.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := b.store.SaveSignal(ctx, key, sig, n); err != nil {
			return err
		}
		return b.emit(ctx, models.EventSignalGenerated, key.Symbol, sig)
	})
	if err != nil {
		return models.MonitoringSession{}, fmt.Errorf("record signal %s: %w", key, err)
	}

	s := sig
	e.snap.LatestSignal = &s
	e.snap.SignalsGenerated = n
	return e.snap, nil
}

// RecordTrade appends trade.executed and, if the originating session is
// still active, bumps its tradesExecuted in the same transaction.
func (b *SessionBook) RecordTrade(ctx context.Context, res models.TradeResult) error {
	key := models.SessionKey{Symbol: res.Symbol, Interval: res.Interval}
	e := b.lookup(key)
	if e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.removed {
			e = nil
		}
	}

	var n int64
	err := b.tx.WithinTx(ctx, func(ctx context.Context) error {
		if e != nil {
			n = e.snap.TradesExecuted + 1
			if err := b.store.SaveTradeCount(ctx, key, n); err != nil {
				return err
			}
		}
		return b.emit(ctx, models.EventTradeExecuted, res.Symbol, res)
	})
	if err != nil {
		return fmt.Errorf("record trade %s: %w", res.Symbol, err)
	}
	if e != nil {
		e.snap.TradesExecuted = n
	}
	return nil
}

// RecordRejection appends trade.rejected.
func (b *SessionBook) RecordRejection(ctx context.Context, rej models.TradeRejected) error {
	return b.tx.WithinTx(ctx, func(ctx context.Context) error {
		return b.emit(ctx, models.EventTradeRejected, rej.Symbol, rej)
	})
}

// Get returns a snapshot of key.
func (b *SessionBook) Get(key models.SessionKey) (models.MonitoringSession, bool) {
	e := b.lookup(key)
	if e == nil {
		return models.MonitoringSession{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap, !e.removed
}

// Has reports whether key is active.
func (b *SessionBook) Has(key models.SessionKey) bool {
	return b.lookup(key) != nil
}

// Len returns the number of active sessions.
func (b *SessionBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Snapshot returns copies of all active sessions in insertion order.
func (b *SessionBook) Snapshot() []models.MonitoringSession {
	b.mu.RLock()
	entries := lo.Map(b.order, func(k models.SessionKey, _ int) *sessionEntry { return b.entries[k] })
	b.mu.RUnlock()

	out := make([]models.MonitoringSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.snap)
		}
		e.mu.Unlock()
	}
	return out
}

// Latest maps every monitored symbol to its most recent signal across
// intervals.
func (b *SessionBook) Latest() map[string]models.TradingSignal {
	out := make(map[string]models.TradingSignal)
	for _, s := range b.Snapshot() {
		if s.LatestSignal == nil {
			continue
		}
		cur, ok := out[s.Symbol]
		if !ok || !s.LatestSignal.Timestamp.Before(cur.Timestamp) {
			out[s.Symbol] = *s.LatestSignal
		}
	}
	return out
}

// LatestSignal returns the most recent signal for symbol across intervals.
func (b *SessionBook) LatestSignal(symbol string) (models.TradingSignal, bool) {
	sig, ok := b.Latest()[symbol]
	return sig, ok
}

func (b *SessionBook) lookup(key models.SessionKey) *sessionEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[key]
}

func (b *SessionBook) emit(ctx context.Context, eventType, aggregateKey string, payload any) error {
	msg, err := models.NewOutboxMessage(eventType, aggregateKey, payload)
	if err != nil {
		return err
	}
	return b.outbox.Add(ctx, msg)
}
