//go:build datagen_cud
// +build datagen_cud

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/kafka"
)

// Generates CUD-format node and relationship traffic so the sink pipeline can
// be exercised against a local broker.

var labels = []string{"User", "Product", "Organization", "Device", "Store"}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated Kafka brokers")
	topic := flag.String("topic", "cud-events", "destination topic")
	total := flag.Int("total", 10000, "number of events to generate")
	batchSize := flag.Int("batch", 500, "messages per producer batch")
	relRatio := flag.Float64("rel-ratio", 0.2, "fraction of relationship events")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	client, err := kafka.NewKafkaClient(logger, *brokers, "datagen-cud", *batchSize, time.Second)
	if err != nil {
		log.Fatalf("Failed to create kafka client: %v", err)
	}
	defer client.Close()

	sent := 0
	for sent < *total {
		count := *batchSize
		if remaining := *total - sent; remaining < count {
			count = remaining
		}

		messages := make([]kafka.Message, 0, count)
		for i := 0; i < count; i++ {
			var event map[string]any
			if rand.Float64() < *relRatio {
				event = relationshipEvent()
			} else {
				event = nodeEvent()
			}

			value, err := json.Marshal(event)
			if err != nil {
				log.Fatalf("Failed to marshal event: %v", err)
			}
			messages = append(messages, kafka.Message{
				Key:   []byte(fmt.Sprintf("%v", event["key"])),
				Value: value,
			})
		}

		if err := client.Producer(messages, *topic); err != nil {
			log.Fatalf("Failed to send batch: %v", err)
		}
		sent += count
		log.Printf("Sent %d/%d events", sent, *total)
	}
}

func nodeEvent() map[string]any {
	id := rand.Intn(100000)
	ops := []string{"create", "merge", "merge", "update", "delete"}
	op := ops[rand.Intn(len(ops))]

	event := map[string]any{
		"op":     op,
		"type":   "node",
		"labels": []string{labels[rand.Intn(len(labels))]},
		"ids":    map[string]any{"id": id},
		"key":    id,
	}
	if op != "delete" {
		event["properties"] = map[string]any{
			"name":  gofakeit.Name(),
			"email": gofakeit.Email(),
			"city":  gofakeit.City(),
			"score": gofakeit.Number(1, 100),
		}
	}
	return event
}

func relationshipEvent() map[string]any {
	from := rand.Intn(100000)
	to := rand.Intn(100000)

	return map[string]any{
		"op":       "merge",
		"type":     "relationship",
		"rel_type": "RELATES_TO",
		"from": map[string]any{
			"labels": []string{labels[rand.Intn(len(labels))]},
			"ids":    map[string]any{"id": from},
			"op":     "merge",
		},
		"to": map[string]any{
			"labels": []string{labels[rand.Intn(len(labels))]},
			"ids":    map[string]any{"id": to},
			"op":     "merge",
		},
		"properties": map[string]any{
			"weight": gofakeit.Float64Range(0, 1),
			"since":  gofakeit.Year(),
		},
		"key": from,
	}
}
