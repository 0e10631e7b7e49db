package repository

import (
	"context"
	"time"

	"SignalFlow/internal/domain/models"
)

// Transactor runs fn inside one atomic unit of work. Stores called with the
// ctx handed to fn join that unit; if fn returns an error nothing commits.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OutboxStore interface {
	// Add appends a Pending message. It fails with ErrOutsideTransaction
	// unless ctx carries a transaction from Transactor.
	Add(ctx context.Context, msg *models.OutboxMessage) error
	GetUnprocessed(ctx context.Context, batchSize int) ([]models.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkStatus(ctx context.Context, id string, status models.OutboxStatus) error
	IncrementRetry(ctx context.Context, id string, cause string) (int, error)
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ListFailed(ctx context.Context, limit int) ([]models.OutboxMessage, error)
}

type SessionStore interface {
	Create(ctx context.Context, s models.MonitoringSession) error
	Delete(ctx context.Context, key models.SessionKey) error
	SaveSignal(ctx context.Context, key models.SessionKey, sig models.TradingSignal, signalsGenerated int64) error
	SaveTradeCount(ctx context.Context, key models.SessionKey, tradesExecuted int64) error
	List(ctx context.Context) ([]models.MonitoringSession, error)
}

// Subscription is a live, non-restartable stream of candle updates.
type Subscription interface {
	Updates() <-chan models.Candle
	Errors() <-chan error
	Close() error
}

type PriceFeed interface {
	Subscribe(ctx context.Context, key models.SessionKey) (Subscription, error)
}

// Exchange submits market orders. A rejection wraps models.ErrOrderRejected.
type Exchange interface {
	Submit(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (*models.OrderAck, error)
}

// Broker publishes with fire-and-confirm semantics.
type Broker interface {
	Publish(ctx context.Context, topic string, key, payload []byte, headers map[string]string) error
	Close() error
}

// Locker grants exclusive, time-bounded leases. Acquire fails fast with
// models.ErrContended instead of blocking.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*models.Lease, error)
	Release(ctx context.Context, lease *models.Lease) error
	Renew(ctx context.Context, lease *models.Lease, ttl time.Duration) error
}

type AuditSink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

// Deduper remembers ids for a while. MarkSeen reports whether id was new.
type Deduper interface {
	MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, eventType string, payload []byte) error
}

type Metrics interface {
	RecordSignal(strategy string, kind models.SignalKind)
	RecordTrade(result string)
	RecordPublish(eventType, result string)
	RecordLock(name, result string)
	RecordFeedReconnect(symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetActiveSessions(n int)
	SetOutboxBacklog(n int)
}
