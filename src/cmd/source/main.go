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

	"github.com/dhrudevalia/neo4j-kafka-connector/src/helper/env"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/kafka"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/neo4j"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/redis"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/source"
)

func main() {
	log.SetOutput(os.Stdout)
	log.Println("Starting Neo4j source connector...")

	app := fx.New(
		fx.Provide(
			newLogger,
			newKafkaClient,
			newNeo4jClient,
			newRedisClient,
			newRecordPublisher,
			newQueryPoller,
		),

		fx.Invoke(startPoller),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start source connector: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down source connector...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}

	log.Println("Source connector shutdown complete")
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

func newKafkaClient(logger *slog.Logger) (*kafka.KafkaClient, error) {
	brokers := env.MustGetString("KAFKA_BROKERS")
	groupID := env.GetString("KAFKA_SOURCE_GROUP_ID", "neo4j-source")

	return kafka.NewKafkaClient(logger, brokers, groupID, 100, time.Second)
}

func newNeo4jClient() (neo4j.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return neo4j.NewClient(ctx, neo4j.Options{
		URI:            env.MustGetString("NEO4J_URI"),
		Username:       env.GetString("NEO4J_USERNAME", ""),
		Password:       env.GetString("NEO4J_PASSWORD", ""),
		Database:       env.GetString("NEO4J_DATABASE", ""),
		MaxConnections: env.GetInt("NEO4J_MAX_CONNECTIONS", 10),
	})
}

func newRedisClient() *redis.RedisClient {
	addr := env.MustGetString("REDIS_ADDR")
	poolSize := env.GetInt("REDIS_POOL_SIZE", 10)
	return redis.NewRedisClient(addr, poolSize)
}

func newRecordPublisher(logger *slog.Logger, kafkaClient *kafka.KafkaClient) *source.RecordPublisher {
	topic := env.MustGetString("SOURCE_TOPIC")
	keyField := env.GetString("SOURCE_KEY_FIELD", "")
	return source.NewRecordPublisher(logger, kafkaClient, topic, keyField)
}

func newQueryPoller(
	logger *slog.Logger,
	neo4jClient neo4j.Client,
	redisClient *redis.RedisClient,
	publisher *source.RecordPublisher,
) *source.QueryPoller {
	return source.NewQueryPoller(
		logger,
		neo4jClient,
		publisher,
		redisClient,
		env.GetString("SOURCE_CURSOR_KEY", "neo4j-source:cursor"),
		env.MustGetString("SOURCE_QUERY"),
		env.GetDuration("SOURCE_POLL_INTERVAL", 10*time.Second),
		env.GetString("SOURCE_STREAMING_FIELD", "timestamp"),
	)
}

func startPoller(
	lc fx.Lifecycle,
	logger *slog.Logger,
	poller *source.QueryPoller,
	kafkaClient *kafka.KafkaClient,
	neo4jClient neo4j.Client,
	redisClient *redis.RedisClient,
) {
	pollerCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting source poller")

			go func() {
				if err := poller.Start(pollerCtx); err != nil {
					logger.Error("Source poller failed", "error", err)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down source poller...")
			cancel()
			if err := kafkaClient.Close(); err != nil {
				logger.Error("Failed to close kafka client", "error", err)
			}
			if err := neo4jClient.Close(ctx); err != nil {
				logger.Error("Failed to close graph client", "error", err)
			}
			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close redis client", "error", err)
			}
			logger.Info("Source poller shut down gracefully")
			return nil
		},
	})
}
