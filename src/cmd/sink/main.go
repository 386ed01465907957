package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/adapters/kafka/consumers"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/config"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/helper/env"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/kafka"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/metrics"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/neo4j"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/repositories"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink"
)

func main() {
	log.SetOutput(os.Stdout)
	log.Println("Starting Neo4j sink connector...")

	app := fx.New(
		fx.Provide(
			newLogger,
			newMetrics,
			newSinkConfig,
			newKafkaClient,
			newNeo4jClient,
			newRegistry,
			newGraphWriteRepository,
			newDeadLetterPublisher,
			newSinkConsumer,
			newMetricsServer,
		),

		fx.Invoke(startConsumer),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start sink connector: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down sink connector...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}

	log.Println("Sink connector shutdown complete")
}

func newLogger() *slog.Logger {
	logLevel := env.GetString("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func newMetrics() *metrics.Metrics {
	return metrics.New()
}

func newMetricsServer(logger *slog.Logger, m *metrics.Metrics) *metrics.Server {
	return metrics.NewServer(logger, m, env.GetString("METRICS_ADDR", ""))
}

func newSinkConfig() (*config.SinkConfig, error) {
	path := env.MustGetString("SINK_CONFIG_FILE")
	props, err := config.LoadProperties(path)
	if err != nil {
		return nil, err
	}
	return config.ParseSink(props)
}

func newKafkaClient(logger *slog.Logger, cfg *config.SinkConfig) (*kafka.KafkaClient, error) {
	brokers := env.MustGetString("KAFKA_BROKERS")
	groupID := env.MustGetString("KAFKA_SINK_CONSUMER_GROUP_ID")

	return kafka.NewKafkaClient(logger, brokers, groupID, cfg.BatchSize, cfg.BatchTimeout)
}

func newNeo4jClient(cfg *config.SinkConfig) (neo4j.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return neo4j.NewClient(ctx, neo4j.Options{
		URI:            cfg.URI,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Database:       cfg.Database,
		MaxConnections: env.GetInt("NEO4J_MAX_CONNECTIONS", 10),
	})
}

func newRegistry(logger *slog.Logger, cfg *config.SinkConfig, m *metrics.Metrics) (*sink.Registry, error) {
	return sink.NewRegistry(logger, cfg, m)
}

func newGraphWriteRepository(logger *slog.Logger, client neo4j.Client, m *metrics.Metrics, cfg *config.SinkConfig) *repositories.GraphWriteRepository {
	return repositories.NewGraphWriteRepository(logger, client, m, cfg.BatchSize, cfg.MaxRetryAttempts, cfg.RetryBackoff)
}

func newDeadLetterPublisher(logger *slog.Logger, kafkaClient *kafka.KafkaClient, cfg *config.SinkConfig, m *metrics.Metrics) *sink.DeadLetterPublisher {
	if cfg.DeadLetterTopic == "" {
		return nil
	}
	return sink.NewDeadLetterPublisher(logger, kafkaClient, cfg.DeadLetterTopic, m)
}

func newSinkConsumer(
	logger *slog.Logger,
	kafkaClient *kafka.KafkaClient,
	registry *sink.Registry,
	repository *repositories.GraphWriteRepository,
	deadLetter *sink.DeadLetterPublisher,
	cfg *config.SinkConfig,
	m *metrics.Metrics,
) *consumers.SinkConsumer {
	return consumers.NewSinkConsumer(logger, kafkaClient, registry, repository, deadLetter, cfg.Tolerance, m)
}

func startConsumer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	sinkConsumer *consumers.SinkConsumer,
	kafkaClient *kafka.KafkaClient,
	neo4jClient neo4j.Client,
	metricsServer *metrics.Server,
) {
	consumerCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting sink connector")

			// Start consumer in background
			go func() {
				if err := sinkConsumer.Start(consumerCtx); err != nil {
					logger.Error("Sink consumer failed", "error", err)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down sink connector...")
			cancel()
			if err := kafkaClient.Close(); err != nil {
				logger.Error("Failed to close kafka client", "error", err)
			}
			if err := neo4jClient.Close(ctx); err != nil {
				logger.Error("Failed to close graph client", "error", err)
			}
			if err := metricsServer.Close(); err != nil {
				logger.Error("Failed to close metrics listener", "error", err)
			}
			logger.Info("Sink connector shut down gracefully")
			return nil
		},
	})
}
