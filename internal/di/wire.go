//go:build wireinject
// +build wireinject

package di

import (
	"SignalFlow/internal/service/strategy"
	"SignalFlow/internal/usecase"
	"SignalFlow/pkg/config"
	"SignalFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideDatabase,
		ProvideRedis,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories and adapters
		ProvideTransactor,
		ProvideOutboxStore,
		ProvideSessionStore,
		ProvideLocker,
		ProvideBroker,
		ProvideAuditSink,
		ProvideNotifier,
		ProvideDeduper,
		ProvidePriceFeed,
		ProvideExchange,
		ProvideCandleGuard,
		strategy.NewRegistry,

		// Use cases
		usecase.NewSessionBook,
		ProvideTradeExecutor,
		ProvideSignalEngine,
		usecase.NewRegistry,
		ProvideOutboxProcessor,
		ProvideEventHandlers,

		// HTTP
		ProvideTradeLimiter,
		ProvideHealthChecks,
		ProvideHTTPHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideInfra,
		ProvideApp,
	)
	return &server.App{}, nil
}
