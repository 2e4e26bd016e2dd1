package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"RangePull/internal/domain/repository"
	"RangePull/internal/handler/api"
	"RangePull/internal/indicator"
	mid "RangePull/internal/middleware"
	internalrepo "RangePull/internal/repository"
	"RangePull/internal/service/feed"
	"RangePull/internal/streaming"
	"RangePull/internal/usecase"
	xcache "RangePull/pkg/cache"
	pkgch "RangePull/pkg/clickhouse"
	"RangePull/pkg/config"
	xhttp "RangePull/pkg/http"
	pkgkafka "RangePull/pkg/kafka"
	applogger "RangePull/pkg/logger"
	"RangePull/pkg/metrics"
	"RangePull/pkg/queue"
	"RangePull/pkg/server"
	"RangePull/pkg/timeutil"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		format = "console"
	}
	output := cfg.Logging.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if db == "" {
		db = "rangepull"
	}
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		`CREATE TABLE IF NOT EXISTS ` + db + `.range_bars (
			symbol String,
			open Decimal(38, 8),
			high Decimal(38, 8),
			low Decimal(38, 8),
			close Decimal(38, 8),
			volume Decimal(38, 8),
			turnover Decimal(38, 8),
			buy_volume Decimal(38, 8),
			sell_volume Decimal(38, 8),
			open_time DateTime64(6, 'UTC'),
			close_time DateTime64(6, 'UTC'),
			trade_count UInt64
		) ENGINE=MergeTree ORDER BY (symbol, close_time)`,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideBarStorage creates ClickHouse bar storage.
func ProvideBarStorage(chClient *pkgch.Client, cfg *config.Config) repository.BarStorage {
	db := cfg.ClickHouse.Database
	if db == "" {
		db = "rangepull"
	}
	return internalrepo.NewClickHouseBarStorage(chClient.DB(), db+".range_bars")
}

// ProvideBarPublisher creates a Kafka bar publisher.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.BarPublisher {
	return internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaBarsHandler registers the handler for the bars topic.
func ProvideKafkaBarsHandler(store repository.BarStorage, m repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideFeedStream creates the WebSocket market stream.
func ProvideFeedStream(cfg *config.Config) (repository.MarketStream, error) {
	precision, err := timeutil.ParsePrecision(cfg.Feed.Timestamps)
	if err != nil {
		return nil, err
	}
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Symbols,
		precision,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	), nil
}

// ProvideStreamingEngine builds the range bar streaming engine from config.
func ProvideStreamingEngine(cfg *config.Config, log *applogger.Logger, m repository.Metrics) (*streaming.Engine, error) {
	specs := make([]streaming.IndicatorSpec, 0, len(cfg.RangeBar.Indicators))
	for _, ind := range cfg.RangeBar.Indicators {
		specs = append(specs, streaming.IndicatorSpec{
			Kind:   indicator.Kind(ind.Kind),
			Period: ind.Period,
		})
	}
	return streaming.NewEngine(streaming.Config{
		ThresholdDecibps: cfg.RangeBar.ThresholdDecibps,
		Indicators:       specs,
		ReplayWindow:     cfg.RangeBar.ReplayWindow,
		Breaker: streaming.BreakerConfig{
			WindowSize:     cfg.Streaming.Breaker.WindowSize,
			MinSamples:     cfg.Streaming.Breaker.MinSamples,
			ErrorRate:      cfg.Streaming.Breaker.ErrorRate,
			Cooldown:       cfg.Streaming.Breaker.Cooldown,
			ProbeSuccesses: cfg.Streaming.Breaker.ProbeSuccesses,
		},
		SharedBreaker: cfg.Streaming.SharedBreaker,
		QueueSize:     cfg.Streaming.QueueSize,
		Policy:        streaming.BackpressurePolicy(cfg.Streaming.Policy),
	}, log, m)
}

// ProvideBarRouter creates the backend router for completed bars.
func ProvideBarRouter(
	pub repository.BarPublisher,
	store repository.BarStorage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.BarRouter {
	return usecase.NewBarRouter(
		pub,
		store,
		m,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideTradeCollector creates the trade collector use case.
func ProvideTradeCollector(
	stream repository.MarketStream,
	engine *streaming.Engine,
	router *usecase.BarRouter,
	m repository.Metrics,
) *usecase.TradeCollector {
	// Ingest pipeline between WebSocket and the engine
	pipe := mid.NewIngestPipeline(engine, m,
		mid.WithBufferSize(2000),
	)
	return usecase.NewTradeCollector(stream, engine, router, m, pipe)
}

// ProvideRedisCache creates the Redis cache when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*xcache.RedisCache, error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Cache.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("cache redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("cache redis port: %w", err)
	}
	return xcache.NewRedisCache(
		xcache.WithRedisHost(host),
		xcache.WithRedisPort(port),
		xcache.WithRedisPassword(cfg.Cache.Redis.Password),
		xcache.WithRedisDB(cfg.Cache.Redis.DB),
	)
}

// ProvideBarCache layers memory over Redis when Redis is available, and
// falls back to memory-only otherwise.
func ProvideBarCache(redisCache *xcache.RedisCache) xcache.Service {
	if redisCache == nil {
		return xcache.NewMemoryCache()
	}
	return xcache.NewLayeredCache(redisCache)
}

// ProvideBarsHandler creates the HTTP surface.
func ProvideBarsHandler(
	log *applogger.Logger,
	engine *streaming.Engine,
	store repository.BarStorage,
	barCache xcache.Service,
	jobQueue *queue.RedisQueue,
	cfg *config.Config,
) xhttp.Handler {
	var exports queue.Enqueuer
	if jobQueue != nil {
		exports = jobQueue
	}
	return api.NewBarsEchoHandler(log, engine, store, barCache, exports, cfg.Cache.BarsTTL)
}

// ProvideJobQueue builds the Redis-backed bar export queue when Redis is
// available; nil otherwise.
func ProvideJobQueue(
	log *applogger.Logger,
	redisCache *xcache.RedisCache,
	store repository.BarStorage,
	pub repository.BarPublisher,
	m repository.Metrics,
) *queue.RedisQueue {
	if redisCache == nil {
		return nil
	}
	job := usecase.NewBarExportJob(store, pub, m)
	return queue.NewRedisConsumer(log, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: 5,
		RetryDelay: 30 * time.Second,
	}, redisCache.Client(), []queue.Job{job})
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	chClient *pkgch.Client,
	router *usecase.BarRouter,
	handler xhttp.Handler,
	jobQueue *queue.RedisQueue,
	producer *pkgkafka.Producer,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if producer != nil && cfg.Kafka.Topic != "" {
		log.AddCollector(applogger.CollectorConfig{
			Topic: cfg.Kafka.Topic + "_errors",
			Sink:  producer,
		})
	}
	app := server.New(cfg, log, collector, consumer, kh, chClient, handler)
	app.Router = router
	if jobQueue != nil {
		app.SetJobQueue(jobQueue)
	}
	return app
}
