package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
	mid "SignalFlow/internal/middleware"
	"SignalFlow/internal/repository"
	"SignalFlow/internal/service/exchange"
	"SignalFlow/internal/service/feed"
	"SignalFlow/internal/service/lock"
	"SignalFlow/internal/service/strategy"
	"SignalFlow/pkg/database"
	"SignalFlow/pkg/logger"
	"SignalFlow/pkg/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type testEnv struct {
	db       *gorm.DB
	tx       drepo.Transactor
	outbox   *repository.OutboxStore
	sessions *repository.SessionStore
	metrics  *metrics.Recorder
	locker   drepo.Locker
	feed     *feed.MemoryFeed
	exchange drepo.Exchange
	book     *SessionBook
	executor *TradeExecutor
	engine   *SignalEngine
	registry *Registry
}

type envOption func(*envConfig)

type envConfig struct {
	exchange drepo.Exchange
	engine   EngineConfig
}

func withExchange(x drepo.Exchange) envOption {
	return func(c *envConfig) { c.exchange = x }
}

func withEngine(ec EngineConfig) envOption {
	return func(c *envConfig) { c.engine = ec }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := database.NewClient(database.WithDriver("sqlite"), database.WithDSN(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(repository.Tables()...))
	return client.DB()
}

func defaultEnvConfig() envConfig {
	return envConfig{
		exchange: exchange.NewPaper(),
		engine: EngineConfig{
			WindowSize:    50,
			BackoffMin:    time.Millisecond,
			BackoffMax:    5 * time.Millisecond,
			MaxReconnects: 3,
		},
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := defaultEnvConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return buildEnv(t, newTestDB(t), cfg)
}

func buildEnv(t *testing.T, db *gorm.DB, cfg envConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       db,
		tx:       repository.NewGormTransactor(db),
		outbox:   repository.NewOutboxStore(db),
		sessions: repository.NewSessionStore(db),
		metrics:  metrics.NewWithRegisterer(prometheus.NewRegistry()),
		locker:   lock.NewMemoryLocker(),
		feed:     feed.NewMemory(),
		exchange: cfg.exchange,
	}
	log := logger.Nop()
	env.book = NewSessionBook(env.tx, env.sessions, env.outbox)
	env.executor = NewTradeExecutor(env.exchange, env.locker, env.book, env.metrics, log, ExecutorConfig{
		MinRisk:       2.0,
		MaxRisk:       4.0,
		AccountEquity: 10000,
		RiskPercent:   2.0,
		QuantityStep:  0.001,
		TradeTTL:      5 * time.Second,
		SubmitTimeout: 2 * time.Second,
	})
	env.engine = NewSignalEngine(env.feed, mid.NewCandleGuard(env.metrics), env.book, env.executor, env.metrics, log, cfg.engine)
	env.registry = NewRegistry(env.book, env.sessions, strategy.NewRegistry(), env.engine, env.metrics, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = env.registry.Shutdown(ctx)
	})
	return env
}

// outboxCount counts messages of eventType in any status.
func (e *testEnv) outboxCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&repository.OutboxRecord{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func (e *testEnv) totalOutbox(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&repository.OutboxRecord{}).Count(&n).Error)
	return n
}

// seedSignal opens a session and records sig as its latest signal without
// running an engine.
func (e *testEnv) seedSignal(t *testing.T, sig models.TradingSignal) {
	t.Helper()
	ctx := context.Background()
	sess := models.MonitoringSession{
		Symbol:    sig.Symbol,
		Interval:  sig.Interval,
		Strategy:  strategy.EmaMomentumName,
		StartedAt: time.Now().UTC(),
	}
	if !e.book.Has(sess.Key()) {
		_, err := e.book.open(ctx, sess, nil)
		require.NoError(t, err)
	}
	_, err := e.book.RecordSignal(ctx, sess.Key(), sig)
	require.NoError(t, err)
}

func testCandle(key models.SessionKey, open time.Time, price float64) models.Candle {
	return models.Candle{
		Symbol:    key.Symbol,
		Interval:  key.Interval,
		OpenTime:  open,
		CloseTime: open.Add(models.IntervalDuration(key.Interval) - time.Millisecond),
		Open:      price,
		High:      price * 1.002,
		Low:       price * 0.998,
		Close:     price,
		Volume:    12,
	}
}

// waitSubscribed blocks until the engine of key has a live subscription.
func (e *testEnv) waitSubscribed(t *testing.T, key models.SessionKey) {
	t.Helper()
	require.Eventually(t, func() bool { return e.feed.Subscribed(key) }, waitFor, tick)
}

type sentMessage struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

// fakeBroker records publishes; fail, if set, decides the outcome.
type fakeBroker struct {
	mu    sync.Mutex
	msgs  []sentMessage
	calls int
	fail  func(topic string) error
	gate  chan struct{}
	inPub chan struct{}
}

func (b *fakeBroker) Publish(ctx context.Context, topic string, key, payload []byte, headers map[string]string) error {
	if b.inPub != nil {
		select {
		case b.inPub <- struct{}{}:
		default:
		}
	}
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail != nil {
		if err := b.fail(topic); err != nil {
			return err
		}
	}
	b.msgs = append(b.msgs, sentMessage{topic: topic, key: string(key), payload: payload, headers: headers})
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) snapshot() ([]sentMessage, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.msgs...), b.calls
}

// blockingExchange holds every Submit until release is closed.
type blockingExchange struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	orders  int
}

func newBlockingExchange() *blockingExchange {
	return &blockingExchange{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (x *blockingExchange) Submit(ctx context.Context, symbol string, side models.OrderSide, qty float64) (*models.OrderAck, error) {
	x.entered <- struct{}{}
	select {
	case <-x.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	x.mu.Lock()
	x.orders++
	x.mu.Unlock()
	return &models.OrderAck{OrderID: uuid.NewString(), Status: "FILLED", Filled: qty}, nil
}

type rejectingExchange struct{}

func (rejectingExchange) Submit(context.Context, string, models.OrderSide, float64) (*models.OrderAck, error) {
	return nil, fmt.Errorf("%w: code=-2019 margin is insufficient", models.ErrOrderRejected)
}
