package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"SignalFlow/internal/domain/repository"
	"SignalFlow/internal/usecase"
	"SignalFlow/pkg/cache"
	pkgch "SignalFlow/pkg/clickhouse"
	"SignalFlow/pkg/config"
	"SignalFlow/pkg/database"
	xhttp "SignalFlow/pkg/http"
	pkgkafka "SignalFlow/pkg/kafka"
	"SignalFlow/pkg/logger"
)

// Infra holds the clients closed last on shutdown. Redis and ClickHouse are
// nil when their features are disabled.
type Infra struct {
	DB         *database.Client
	Redis      *cache.RedisCache
	ClickHouse *pkgch.Client
	Broker     repository.Broker
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	registry   *usecase.Registry
	processor  *usecase.OutboxProcessor
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	httpServer *xhttp.Server
	infra      Infra
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *logger.Logger,
	registry *usecase.Registry,
	processor *usecase.OutboxProcessor,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	infra Infra,
) *App {
	return &App{
		cfg:        cfg,
		log:        log.With(logger.String("component", "app")),
		registry:   registry,
		processor:  processor,
		consumer:   consumer,
		handlers:   handlers,
		httpServer: httpServer,
		infra:      infra,
	}
}

// Run starts the application and blocks until interrupted or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	restored, err := a.registry.Restore(ctx)
	if err != nil {
		a.log.Error("restore sessions", logger.Error(err))
	} else {
		a.log.Info("sessions restored", logger.Int("count", restored))
	}

	a.processor.Start(ctx)

	if a.consumer != nil {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start", logger.Error(err))
			return errors.Join(err, a.shutdown())
		}
		a.log.Info("kafka consumer started", logger.Int("topics", len(a.handlers)))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start", logger.Error(err))
		return errors.Join(err, a.shutdown())
	}
	a.log.Info("http server started", logger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case s := <-sigCh:
		a.log.Info("shutdown signal received", logger.String("signal", s.String()))
	case <-ctx.Done():
		a.log.Info("context done, shutting down")
	}
	return a.shutdown()
}

// shutdown stops intake first, then the engines and the drain loop, then
// closes infrastructure. Every step runs even if an earlier one fails.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	step := func(name string, err error) {
		if err != nil {
			a.log.Warn(name+" stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	step("http", a.httpServer.Stop(ctx))
	step("registry", a.registry.Shutdown(ctx))
	step("outbox", a.processor.Stop(ctx))
	if a.consumer != nil {
		step("kafka consumer", a.consumer.Stop(ctx))
	}
	if a.infra.Broker != nil {
		step("broker", a.infra.Broker.Close())
	}
	if a.infra.ClickHouse != nil {
		step("clickhouse", a.infra.ClickHouse.Close())
	}
	if a.infra.Redis != nil {
		step("redis", a.infra.Redis.Close())
	}
	if a.infra.DB != nil {
		step("database", a.infra.DB.Close())
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
