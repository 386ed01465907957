package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/config"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/kafka"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/metrics"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink"
)

// GraphWriter commits grouped query events to the graph database.
type GraphWriter interface {
	WriteBatch(ctx context.Context, events []domain.QueryEvents) error
}

// SinkConsumer bridges broker batches into the sink write pipeline: decode
// records, dispatch to the topic's handler, group the resulting query events
// and commit them. Offsets are marked only after a successful commit, which
// the kafka layer enforces by marking on a nil return.
type SinkConsumer struct {
	logger      *slog.Logger
	kafkaClient *kafka.KafkaClient
	registry    *sink.Registry
	writer      GraphWriter
	deadLetter  *sink.DeadLetterPublisher
	tolerance   config.Tolerance
	metrics     *metrics.Metrics
}

func NewSinkConsumer(
	logger *slog.Logger,
	kafkaClient *kafka.KafkaClient,
	registry *sink.Registry,
	writer GraphWriter,
	deadLetter *sink.DeadLetterPublisher,
	tolerance config.Tolerance,
	m *metrics.Metrics,
) *SinkConsumer {
	return &SinkConsumer{
		logger:      logger,
		kafkaClient: kafkaClient,
		registry:    registry,
		writer:      writer,
		deadLetter:  deadLetter,
		tolerance:   tolerance,
		metrics:     m,
	}
}

func (c *SinkConsumer) Start(ctx context.Context) error {
	topics := c.registry.Topics()
	c.logger.Info("Starting sink consumer", "topics", topics)

	handler := func(messages []kafka.Message) error {
		return c.handleBatch(ctx, messages)
	}
	return c.kafkaClient.Consumer(ctx, handler, topics)
}

// handleBatch processes one per-partition batch through the pipeline. A nil
// return acknowledges the batch; any error leaves it for redelivery.
func (c *SinkConsumer) handleBatch(ctx context.Context, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}
	topic := messages[0].Topic

	handler, err := c.registry.HandlerFor(topic)
	if err != nil {
		return c.routeFailed(messages, err)
	}

	records, err := decodeRecords(messages)
	if err != nil {
		return c.routeFailed(messages, err)
	}

	queryEvents, err := handler.Handle(records)
	if err != nil {
		return c.routeFailed(messages, err)
	}

	grouped := sink.GroupQueryEvents(queryEvents)

	if err := c.writer.WriteBatch(ctx, grouped); err != nil {
		if errors.Is(err, domain.ErrPermanentDriver) {
			return c.routeFailed(messages, err)
		}
		// Transient exhaustion or cancellation: leave the batch unmarked so
		// the broker redelivers it.
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordsConsumed.WithLabelValues(topic).Add(float64(len(messages)))
	}
	c.logger.Debug("Batch committed",
		"topic", topic,
		"partition", messages[0].Partition,
		"records", len(records),
		"statements", len(grouped))
	return nil
}

// routeFailed applies the error tolerance policy to a permanently failed
// batch. With tolerance none the error propagates and the batch stays
// unacknowledged; with tolerance all the batch is logged, optionally
// dead-lettered, and skipped.
func (c *SinkConsumer) routeFailed(messages []kafka.Message, cause error) error {
	if c.tolerance != config.ToleranceAll {
		return cause
	}

	kind := errorKind(cause)
	for _, msg := range messages {
		c.logger.Warn("Skipping record",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error_kind", kind,
			"error", cause)
	}

	if c.deadLetter != nil {
		if err := c.deadLetter.Publish(messages, cause.Error()); err != nil {
			return err
		}
	}
	return nil
}

func decodeRecords(messages []kafka.Message) ([]domain.Record, error) {
	records := make([]domain.Record, 0, len(messages))
	for _, msg := range messages {
		value, err := decodePayload(msg.Value)
		if err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w: %v", msg.Topic, msg.Partition, msg.Offset, domain.ErrMalformedRecord, err)
		}
		records = append(records, domain.Record{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       decodeKey(msg.Key),
			Value:     value,
			Timestamp: msg.Timestamp,
			Headers:   msg.Headers,
		})
	}
	return records, nil
}

// decodePayload deserializes a record value; an empty payload is a tombstone.
func decodePayload(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// decodeKey tolerates both JSON keys and plain string keys.
func decodeKey(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var key any
	if err := json.Unmarshal(raw, &key); err != nil {
		return string(raw)
	}
	return key
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnmappedTopic):
		return "unmapped_topic"
	case errors.Is(err, domain.ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, domain.ErrMissingConstraint):
		return "missing_constraint"
	case errors.Is(err, domain.ErrPermanentDriver):
		return "permanent_driver"
	case errors.Is(err, domain.ErrTransientDriver):
		return "transient_driver"
	case errors.Is(err, domain.ErrDeadLetterPublish):
		return "dead_letter_publish_failed"
	}
	return "unknown"
}
