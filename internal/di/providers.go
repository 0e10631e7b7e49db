package di

import (
	"context"
	"fmt"
	"time"

	"SignalFlow/internal/domain/repository"
	"SignalFlow/internal/handler/api"
	mid "SignalFlow/internal/middleware"
	internalrepo "SignalFlow/internal/repository"
	icache "SignalFlow/internal/service/cache"
	"SignalFlow/internal/service/exchange"
	"SignalFlow/internal/service/feed"
	"SignalFlow/internal/service/lock"
	"SignalFlow/internal/service/notify"
	"SignalFlow/internal/service/ratelimit"
	"SignalFlow/internal/usecase"
	"SignalFlow/pkg/cache"
	pkgch "SignalFlow/pkg/clickhouse"
	"SignalFlow/pkg/config"
	"SignalFlow/pkg/database"
	xhttp "SignalFlow/pkg/http"
	pkgkafka "SignalFlow/pkg/kafka"
	"SignalFlow/pkg/logger"
	"SignalFlow/pkg/metrics"
	"SignalFlow/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideDatabase opens the transactional store and migrates its tables.
func ProvideDatabase(cfg *config.Config) (*database.Client, error) {
	client, err := database.NewClient(
		database.WithDriver(cfg.Storage.Driver),
		database.WithDSN(cfg.Storage.DSN),
		database.WithPool(cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns, cfg.Storage.ConnMaxLife),
	)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := client.Migrate(internalrepo.Tables()...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("database migrate: %w", err)
	}
	return client, nil
}

// ProvideRedis connects to Redis when the lock backend needs it; nil otherwise.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Lock.Backend != "redis" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 3*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideLocker picks the lock backend.
func ProvideLocker(cfg *config.Config, rc *cache.RedisCache) repository.Locker {
	if cfg.Lock.Backend == "redis" && rc != nil {
		return lock.NewRedisLocker(rc)
	}
	return lock.NewMemoryLocker()
}

// ProvideClickHouseClient creates a ClickHouse client when auditing is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithAsyncInsert(true, true),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.AuditSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideAuditSink returns nil when ClickHouse is disabled.
func ProvideAuditSink(ch *pkgch.Client) repository.AuditSink {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseAudit(ch.DB())
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAutoTopicCreation(cfg.Kafka.Producer.AutoCreateTopic),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBroker adapts the producer to the outbox broker port.
func ProvideBroker(producer *pkgkafka.Producer) repository.Broker {
	return internalrepo.NewKafkaBroker(producer)
}

// ProvideKafkaConsumer creates the audit/notification consumer; nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideNotifier posts events to the configured webhook, or logs them.
func ProvideNotifier(cfg *config.Config, log *logger.Logger) repository.Notifier {
	return notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, log)
}

// ProvideDeduper shares seen event ids through Redis when it is available.
func ProvideDeduper(rc *cache.RedisCache) repository.Deduper {
	if rc != nil {
		return icache.NewRedisSeen(rc)
	}
	return icache.NewTTLCache()
}

// ProvideEventHandlers builds one consumer handler per event topic.
func ProvideEventHandlers(
	cfg *config.Config,
	audit repository.AuditSink,
	notifier repository.Notifier,
	dedup repository.Deduper,
	m repository.Metrics,
	log *logger.Logger,
) []pkgkafka.MessageHandler {
	return usecase.NewEventHandlers(cfg.Kafka.TopicPrefix, audit, notifier, m, log,
		usecase.WithDedup(dedup, cfg.Notify.DedupTTL))
}

// ProvidePriceFeed selects the candle source.
func ProvidePriceFeed(cfg *config.Config, log *logger.Logger) repository.PriceFeed {
	if cfg.Feed.Type == "memory" {
		return feed.NewMemory()
	}
	return feed.NewBinance(cfg.Feed.WebSocketURL, cfg.Feed.PingInterval, log)
}

// ProvideExchange selects the order venue.
func ProvideExchange(cfg *config.Config) repository.Exchange {
	if cfg.Exchange.Type == "binance" {
		return exchange.NewBinanceFutures(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet)
	}
	return exchange.NewPaper()
}

func ProvideTransactor(db *database.Client) repository.Transactor {
	return internalrepo.NewGormTransactor(db.DB())
}

func ProvideOutboxStore(db *database.Client) repository.OutboxStore {
	return internalrepo.NewOutboxStore(db.DB())
}

func ProvideSessionStore(db *database.Client) repository.SessionStore {
	return internalrepo.NewSessionStore(db.DB())
}

func ProvideCandleGuard(m repository.Metrics) *mid.CandleGuard {
	return mid.NewCandleGuard(m)
}

// ProvideTradeExecutor wires the executor with the trading section.
func ProvideTradeExecutor(
	cfg *config.Config,
	ex repository.Exchange,
	locker repository.Locker,
	book *usecase.SessionBook,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TradeExecutor {
	return usecase.NewTradeExecutor(ex, locker, book, m, log, usecase.ExecutorConfig{
		MinRisk:       cfg.Trading.MinRisk,
		MaxRisk:       cfg.Trading.MaxRisk,
		AccountEquity: cfg.Trading.AccountEquity,
		RiskPercent:   cfg.Trading.RiskPercent,
		QuantityStep:  cfg.Exchange.QuantityStep,
		TradeTTL:      cfg.Lock.TradeTTL,
		SubmitTimeout: cfg.Trading.SubmitTimeout,
	})
}

// ProvideSignalEngine wires the engine with the feed section.
func ProvideSignalEngine(
	cfg *config.Config,
	pf repository.PriceFeed,
	guard *mid.CandleGuard,
	book *usecase.SessionBook,
	executor *usecase.TradeExecutor,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.SignalEngine {
	return usecase.NewSignalEngine(pf, guard, book, executor, m, log, usecase.EngineConfig{
		WindowSize:    cfg.Feed.WindowSize,
		BackoffMin:    cfg.Feed.BackoffMin,
		BackoffMax:    cfg.Feed.BackoffMax,
		MaxReconnects: cfg.Feed.MaxReconnects,
	})
}

// ProvideOutboxProcessor wires the drain loop with the outbox and lock sections.
func ProvideOutboxProcessor(
	cfg *config.Config,
	store repository.OutboxStore,
	broker repository.Broker,
	locker repository.Locker,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.OutboxProcessor {
	return usecase.NewOutboxProcessor(store, broker, locker, m, log, usecase.OutboxConfig{
		BatchSize:   cfg.Outbox.BatchSize,
		Interval:    cfg.Outbox.Interval,
		MaxRetries:  cfg.Outbox.MaxRetries,
		DrainTTL:    cfg.Lock.DrainTTL,
		StaleAfter:  cfg.Outbox.StaleAfter,
		TopicPrefix: cfg.Kafka.TopicPrefix,
	})
}

// ProvideTradeLimiter throttles POST /api/trades per symbol.
func ProvideTradeLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(2*cfg.Trading.RequestsPerS, cfg.Trading.RequestsPerS)
}

// ProvideHealthChecks collects the dependency probes served on /healthz.
func ProvideHealthChecks(db *database.Client, rc *cache.RedisCache, ch *pkgch.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{"database": db.Health}
	if rc != nil {
		checks["redis"] = rc.Health
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return checks
}

// ProvideHTTPHandlers returns every route group of the API.
func ProvideHTTPHandlers(
	cfg *config.Config,
	log *logger.Logger,
	registry *usecase.Registry,
	executor *usecase.TradeExecutor,
	processor *usecase.OutboxProcessor,
	limiter *ratelimit.Limiter,
	checks map[string]api.HealthCheck,
) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewMonitoringHandler(log, registry, executor, processor, limiter, api.TradeDefaults{
			AccountEquity: cfg.Trading.AccountEquity,
			RiskPercent:   cfg.Trading.RiskPercent,
		}, checks),
	}
}

// ProvideHTTPServer builds the echo server.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	path := cfg.Metrics.Path
	if !cfg.Metrics.Enabled {
		path = ""
	}
	return xhttp.NewServer(log, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, path),
	)
}

// ProvideInfra groups the clients the app must close on shutdown.
func ProvideInfra(db *database.Client, rc *cache.RedisCache, ch *pkgch.Client, broker repository.Broker) server.Infra {
	return server.Infra{DB: db, Redis: rc, ClickHouse: ch, Broker: broker}
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	registry *usecase.Registry,
	processor *usecase.OutboxProcessor,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	infra server.Infra,
) *server.App {
	return server.New(cfg, log, registry, processor, consumer, handlers, httpServer, infra)
}
