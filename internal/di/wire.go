//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalView/pkg/config"
	"SignalView/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideObjectStore,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaConsumer,

		// Snapshot core
		ProvideSourceDescriptor,
		ProvideSource,
		ProvideSnapshotReader,
		ProvideSnapshotCache,
		ProvideClassifier,

		// Use cases
		ProvideSnapshotUseCase,
		ProvideInvalidationHandler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
