package source

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/kafka"
)

// RecordPublisher adapts polled graph rows into topic records. Each row is
// serialized as JSON and keyed by a configured field so downstream consumers
// see per-entity ordering.
type RecordPublisher struct {
	logger      *slog.Logger
	kafkaClient *kafka.KafkaClient
	topic       string
	keyField    string
}

func NewRecordPublisher(logger *slog.Logger, kafkaClient *kafka.KafkaClient, topic, keyField string) *RecordPublisher {
	return &RecordPublisher{
		logger:      logger,
		kafkaClient: kafkaClient,
		topic:       topic,
		keyField:    keyField,
	}
}

// PublishRows publishes a batch of rows, preserving their order.
func (p *RecordPublisher) PublishRows(rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(rows))
	for _, row := range rows {
		value, err := json.Marshal(row)
		if err != nil {
			p.logger.Error("Failed to marshal polled row", "error", err)
			continue
		}

		msg := kafka.Message{
			Value: value,
			Headers: map[string]string{
				"event_id":       uuid.New().String(),
				"source_service": "neo4j-source-connector",
				"schema_version": "v1",
			},
		}
		if p.keyField != "" {
			if keyValue, ok := row[p.keyField]; ok {
				msg.Key = []byte(fmt.Sprintf("%v", keyValue))
			}
		}
		messages = append(messages, msg)
	}

	if err := p.kafkaClient.Producer(messages, p.topic); err != nil {
		return fmt.Errorf("failed to publish polled rows to topic %s: %w", p.topic, err)
	}

	p.logger.Info("Published polled rows", "topic", p.topic, "count", len(messages))
	return nil
}
