package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"SignalView/internal/domain/models"
	"SignalView/internal/domain/repository"
	"SignalView/internal/handler/api"
	internalrepo "SignalView/internal/repository"
	icache "SignalView/internal/service/cache"
	"SignalView/internal/service/ratelimit"
	"SignalView/internal/service/signal"
	"SignalView/internal/snapshot"
	"SignalView/internal/usecase"
	pkgcache "SignalView/pkg/cache"
	pkgch "SignalView/pkg/clickhouse"
	"SignalView/pkg/config"
	xhttp "SignalView/pkg/http"
	pkgkafka "SignalView/pkg/kafka"
	applogger "SignalView/pkg/logger"
	"SignalView/pkg/metrics"
	"SignalView/pkg/objstore"
	"SignalView/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSourceDescriptor builds the immutable description of the source.
func ProvideSourceDescriptor(cfg *config.Config) models.SourceDescriptor {
	loc := cfg.Source.Container + "/" + cfg.Source.Prefix
	switch {
	case cfg.Source.Kind == config.SourceClickHouse:
		loc = cfg.ClickHouse.Database + "." + cfg.ClickHouse.Table
	case cfg.Source.Storage == config.StorageLocal:
		loc = cfg.Source.LocalRoot + "/" + cfg.Source.Prefix
	case cfg.Source.Account != "":
		loc = cfg.Source.Account + "/" + loc
	}
	return models.SourceDescriptor{
		Kind:           cfg.Source.Kind,
		Name:           cfg.Source.Name,
		Location:       strings.TrimSuffix(loc, "/"),
		Columns:        append([]string(nil), cfg.Source.Columns...),
		OrderingColumn: cfg.Source.OrderingColumn,
		FileExtension:  cfg.Source.FileExtension,
		LogDir:         cfg.Source.LogDir,
	}
}

// ProvideObjectStore creates the blob store backing delta and listing
// sources. It is nil for table sources.
func ProvideObjectStore(cfg *config.Config) (objstore.Store, error) {
	if cfg.Source.Kind == config.SourceClickHouse {
		return nil, nil
	}
	if cfg.Source.Storage == config.StorageLocal {
		return objstore.NewLocalStore(cfg.Source.LocalRoot), nil
	}
	var opts []objstore.AzureOption
	if cfg.Source.AccountKey != "" {
		opts = append(opts, objstore.WithAccountKey(cfg.Source.AccountKey))
	}
	store, err := objstore.NewAzureStore(cfg.Source.Account, cfg.Source.Container, opts...)
	if err != nil {
		return nil, fmt.Errorf("azure store: %w", err)
	}
	return store, nil
}

// ProvideClickHouseClient creates a ClickHouse client for table sources.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Source.Kind != config.SourceClickHouse {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSource creates the configured source adapter.
func ProvideSource(
	cfg *config.Config,
	desc models.SourceDescriptor,
	store objstore.Store,
	ch *pkgch.Client,
	l *applogger.Logger,
) (repository.Source, error) {
	sl := l.With(applogger.String("source", desc.Name), applogger.String("kind", desc.Kind))
	switch cfg.Source.Kind {
	case config.SourceDelta:
		s := internalrepo.NewDeltaSource(store, desc, cfg.Source.Prefix)
		s.SetLogger(sl)
		return s, nil
	case config.SourceListing:
		s := internalrepo.NewListingSource(store, desc, cfg.Source.Prefix,
			internalrepo.WithFileBudget(cfg.Snapshot.FileBudget, cfg.Snapshot.FileBudgetWithLookback),
		)
		s.SetLogger(sl)
		return s, nil
	case config.SourceClickHouse:
		s, err := internalrepo.NewCHSource(ch, desc, cfg.ClickHouse.Table)
		if err != nil {
			return nil, snapshot.ConfigError("clickhouse source: %v", err)
		}
		s.SetLogger(sl)
		return s, nil
	}
	return nil, snapshot.ConfigError("unknown source kind %q", cfg.Source.Kind)
}

// ProvideSnapshotReader creates the bounded snapshot reader.
func ProvideSnapshotReader(
	cfg *config.Config,
	src repository.Source,
	desc models.SourceDescriptor,
	m repository.Metrics,
	l *applogger.Logger,
) (*snapshot.Reader, error) {
	return snapshot.NewReader(src, desc,
		snapshot.WithFetchTimeout(cfg.Snapshot.FetchTimeout),
		snapshot.WithTrustWriteOrder(cfg.Snapshot.TrustWriteOrder),
		snapshot.WithMetrics(m),
		snapshot.WithLogger(l.With(applogger.String("component", "reader"))),
	)
}

// ProvideRedisCache creates the shared L2 cache when Redis is enabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideSnapshotCache creates the process-wide snapshot cache.
func ProvideSnapshotCache(rc *pkgcache.RedisCache, m repository.Metrics, l *applogger.Logger) *icache.SnapshotCache {
	opts := []icache.Option{
		icache.WithMetrics(m),
		icache.WithLogger(l.With(applogger.String("component", "snapshot_cache"))),
	}
	if rc != nil {
		opts = append(opts, icache.WithL2(rc))
	}
	return icache.NewSnapshotCache(opts...)
}

// ProvideClassifier creates the threshold classifier.
func ProvideClassifier(cfg *config.Config) (*signal.ThresholdClassifier, error) {
	return signal.NewThresholdClassifier(cfg.Signals.BuyThreshold, cfg.Signals.SellThreshold)
}

// ProvideSnapshotUseCase creates the snapshot use case.
func ProvideSnapshotUseCase(
	cfg *config.Config,
	reader *snapshot.Reader,
	cache *icache.SnapshotCache,
	classifier *signal.ThresholdClassifier,
	l *applogger.Logger,
) *usecase.SnapshotUseCase {
	uc := usecase.NewSnapshotUseCase(reader, cache, classifier, usecase.SnapshotDefaults{
		RowCap:   cfg.Snapshot.RowCap,
		Lookback: cfg.Snapshot.Lookback,
		TTL:      cfg.Snapshot.CacheTTL,
	})
	uc.SetLogger(l.With(applogger.String("component", "snapshot")))
	return uc
}

// ProvideKafkaConsumer creates the commit event consumer when Kafka is
// enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerFromBeginning(cfg.Kafka.FromStart),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.MinBytes, cfg.Kafka.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.LogHook{L: l}))
	return consumer, nil
}

// ProvideInvalidationHandler creates the commit event handler.
func ProvideInvalidationHandler(cfg *config.Config, uc *usecase.SnapshotUseCase, l *applogger.Logger) *usecase.InvalidationHandler {
	return usecase.NewInvalidationHandler(cfg.Kafka.Topic, uc, l)
}

// ProvideHTTPServer creates the Echo server with every route registered.
func ProvideHTTPServer(
	cfg *config.Config,
	uc *usecase.SnapshotUseCase,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	l *applogger.Logger,
) *xhttp.Server {
	checks := map[string]api.HealthCheck{}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}

	hl := l.With(applogger.String("component", "http"))
	handlers := xhttp.Handlers{
		api.NewHealthHandler(uc.Source(), checks),
		api.NewSnapshotEchoHandler(hl, uc, ratelimit.New(), cfg.Snapshot.DisplayRows),
		api.NewStreamHandler(hl, uc, cfg.Stream.Interval),
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
		xhttp.WithLogger(hl),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	ih *usecase.InvalidationHandler,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
) *server.App {
	app := server.New(l, srv, consumer, cfg.Server.ShutdownTimeout)
	if consumer != nil {
		app.AddHandler(ih)
	}
	if ch != nil {
		app.AddResource("clickhouse", ch)
	}
	if rc != nil {
		app.AddResource("redis", rc)
	}
	return app
}
