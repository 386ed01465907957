package handlers_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/handlers"
)

var _ = Describe("CypherHandler", func() {
	It("wraps the user statement in the UNWIND prelude", func() {
		// ARRANGE
		handler := handlers.NewCypherHandler(
			"MERGE (p:Person {name: event.value.name})",
			handlers.CypherBindings{Value: true},
		)
		records := []domain.Record{
			{Topic: "people", Value: map[string]any{"name": "ada"}},
		}

		// ACT
		events, err := handler.Handle(records)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Statement).To(Equal(
			"UNWIND $events AS event MERGE (p:Person {name: event.value.name})"))
		Expect(events[0].Events).To(Equal([]map[string]any{
			{"value": map[string]any{"name": "ada"}},
		}))
	})

	It("contributes one event per record in input order", func() {
		handler := handlers.NewCypherHandler("RETURN event", handlers.CypherBindings{Value: true})
		records := []domain.Record{
			{Value: map[string]any{"seq": 1}},
			{Value: map[string]any{"seq": 2}},
			{Value: map[string]any{"seq": 3}},
		}

		events, err := handler.Handle(records)

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Events).To(HaveLen(3))
		Expect(events[0].Events[0]["value"]).To(Equal(map[string]any{"seq": 1}))
		Expect(events[0].Events[2]["value"]).To(Equal(map[string]any{"seq": 3}))
	})

	It("binds only the enabled record parts", func() {
		timestamp := time.UnixMilli(1700000000000).UTC()
		handler := handlers.NewCypherHandler("RETURN event", handlers.CypherBindings{
			Key:       true,
			Header:    true,
			Timestamp: true,
		})
		records := []domain.Record{
			{
				Key:       "k1",
				Value:     map[string]any{"ignored": true},
				Timestamp: timestamp,
				Headers:   map[string]string{"trace": "abc"},
			},
		}

		events, err := handler.Handle(records)

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Events[0]).To(Equal(map[string]any{
			"key":       "k1",
			"header":    map[string]string{"trace": "abc"},
			"timestamp": int64(1700000000000),
		}))
	})

	It("returns nothing for an empty batch", func() {
		handler := handlers.NewCypherHandler("RETURN event", handlers.CypherBindings{Value: true})

		events, err := handler.Handle(nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
	})
})
