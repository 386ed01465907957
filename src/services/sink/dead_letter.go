package sink

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/kafka"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/metrics"
)

// DeadLetterPublisher routes refused records to a secondary topic. The
// original key and value are forwarded untouched; provenance and the refusal
// reason travel in headers.
type DeadLetterPublisher struct {
	logger      *slog.Logger
	kafkaClient *kafka.KafkaClient
	topic       string
	metrics     *metrics.Metrics
}

func NewDeadLetterPublisher(logger *slog.Logger, kafkaClient *kafka.KafkaClient, topic string, m *metrics.Metrics) *DeadLetterPublisher {
	return &DeadLetterPublisher{
		logger:      logger,
		kafkaClient: kafkaClient,
		topic:       topic,
		metrics:     m,
	}
}

// Publish forwards the refused records. The returned error wraps
// ErrDeadLetterPublish so callers keep the batch unacknowledged when the
// dead-letter topic itself is unavailable.
func (p *DeadLetterPublisher) Publish(messages []kafka.Message, reason string) error {
	if len(messages) == 0 {
		return nil
	}

	deadLetters := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		deadLetters = append(deadLetters, kafka.Message{
			Key:   msg.Key,
			Value: msg.Value,
			Headers: map[string]string{
				"__connect.errors.topic":     msg.Topic,
				"__connect.errors.partition": fmt.Sprintf("%d", msg.Partition),
				"__connect.errors.offset":    fmt.Sprintf("%d", msg.Offset),
				"__connect.errors.reason":    reason,
				"__connect.errors.event.id":  uuid.New().String(),
			},
		})
	}

	if err := p.kafkaClient.Producer(deadLetters, p.topic); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeadLetterPublish, err)
	}

	if p.metrics != nil {
		p.metrics.DeadLetters.WithLabelValues(messages[0].Topic).Add(float64(len(messages)))
	}
	p.logger.Info("Routed records to dead-letter topic",
		"dead_letter_topic", p.topic,
		"source_topic", messages[0].Topic,
		"count", len(messages),
		"reason", reason)
	return nil
}
