//go:build wireinject
// +build wireinject

package di

import (
	"RangePull/pkg/config"
	"RangePull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideBarCache,

		// Repositories
		ProvideBarStorage,
		ProvideBarPublisher,
		ProvideFeedStream,

		// Core engine and use cases
		ProvideStreamingEngine,
		ProvideBarRouter,
		ProvideTradeCollector,
		ProvideKafkaBarsHandler,
		ProvideJobQueue,

		// HTTP surface
		ProvideBarsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
