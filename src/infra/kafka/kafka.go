package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Message is the broker record envelope exchanged with the connector.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string]string

	internal *sarama.ConsumerMessage
}

// Handler processes one batch of messages from a single partition, in offset
// order. Offsets are marked only when the handler returns nil.
type Handler func(messages []Message) error

type KafkaClient struct {
	consumer     sarama.ConsumerGroup
	producer     sarama.SyncProducer
	brokers      []string
	batchSize    int
	batchTimeout time.Duration
	logger       *slog.Logger
}

func NewKafkaClient(logger *slog.Logger, brokers, groupID string, batchSize int, batchTimeout time.Duration) (*KafkaClient, error) {
	brokerList := strings.Split(brokers, ",")

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0

	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 30 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 10 * time.Second
	config.Consumer.MaxProcessingTime = 60 * time.Second
	config.ChannelBufferSize = batchSize * 2

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy

	consumer, err := sarama.NewConsumerGroup(brokerList, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokerList, config)
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	logger.Info("Kafka client initialized", "brokers", brokers, "batch_size", batchSize)

	return &KafkaClient{
		consumer:     consumer,
		producer:     producer,
		brokers:      brokerList,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		logger:       logger,
	}, nil
}

// Consumer joins the consumer group for the given topics and feeds
// per-partition batches to the handler until the context is cancelled.
func (k *KafkaClient) Consumer(ctx context.Context, handler Handler, topics []string) error {
	consumerHandler := &consumerGroupHandler{
		handler:      handler,
		batchSize:    k.batchSize,
		batchTimeout: k.batchTimeout,
		logger:       k.logger,
	}

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Kafka consumer context cancelled")
			return nil
		default:
			if err := k.consumer.Consume(ctx, topics, consumerHandler); err != nil {
				k.logger.Error("Error consuming", "topics", topics, "error", err)
				time.Sleep(5 * time.Second)
				continue
			}
		}
	}
}

// Producer sends messages synchronously, preserving input order.
func (k *KafkaClient) Producer(messages []Message, topic string) error {
	if len(messages) == 0 {
		return nil
	}

	kafkaMessages := make([]*sarama.ProducerMessage, 0, len(messages))
	for _, msg := range messages {
		producerMsg := &sarama.ProducerMessage{
			Topic: topic,
			Value: sarama.ByteEncoder(msg.Value),
		}
		if msg.Key != nil {
			producerMsg.Key = sarama.ByteEncoder(msg.Key)
		}
		for name, value := range msg.Headers {
			producerMsg.Headers = append(producerMsg.Headers, sarama.RecordHeader{
				Key:   []byte(name),
				Value: []byte(value),
			})
		}
		kafkaMessages = append(kafkaMessages, producerMsg)
	}

	if err := k.producer.SendMessages(kafkaMessages); err != nil {
		return fmt.Errorf("failed to send %d messages to topic %s: %w", len(kafkaMessages), topic, err)
	}

	k.logger.Debug("Batch sent", "topic", topic, "count", len(kafkaMessages))
	return nil
}

func (k *KafkaClient) Close() error {
	var errs []error

	if err := k.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := k.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing kafka client: %v", errs)
	}

	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler. Each claim is
// one partition, so a batch never mixes partitions and stays in offset order.
type consumerGroupHandler struct {
	handler      Handler
	batchSize    int
	batchTimeout time.Duration
	logger       *slog.Logger
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup", "batch_size", h.batchSize)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.logger.Info("Starting consumer claim",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"batch", h.batchSize,
		"timeout", h.batchTimeout)

	messages := make([]Message, 0, h.batchSize)
	timer := time.NewTimer(h.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				// Channel closed, flush what we have
				if len(messages) > 0 {
					h.processBatch(session, messages)
				}
				return nil
			}

			messages = append(messages, fromConsumerMessage(message))

			if len(messages) >= h.batchSize {
				h.processBatch(session, messages)
				messages = messages[:0]
				timer.Reset(h.batchTimeout)
			}

		case <-timer.C:
			if len(messages) > 0 {
				h.processBatch(session, messages)
				messages = messages[:0]
			}
			timer.Reset(h.batchTimeout)

		case <-session.Context().Done():
			if len(messages) > 0 {
				h.processBatch(session, messages)
			}
			return nil
		}
	}
}

func (h *consumerGroupHandler) processBatch(session sarama.ConsumerGroupSession, messages []Message) {
	if len(messages) == 0 {
		return
	}

	err := h.handler(messages)
	if err != nil {
		h.logger.Error("Handler error for batch",
			"topic", messages[0].Topic,
			"partition", messages[0].Partition,
			"count", len(messages),
			"error", err)
		// Don't mark messages - they will be redelivered
		return
	}

	for _, msg := range messages {
		if msg.internal != nil {
			session.MarkMessage(msg.internal, "")
		}
	}
}

func fromConsumerMessage(message *sarama.ConsumerMessage) Message {
	headers := make(map[string]string, len(message.Headers))
	for _, header := range message.Headers {
		headers[string(header.Key)] = string(header.Value)
	}
	return Message{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       message.Key,
		Value:     message.Value,
		Timestamp: message.Timestamp,
		Headers:   headers,
		internal:  message,
	}
}
