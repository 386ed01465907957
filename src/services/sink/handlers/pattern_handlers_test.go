package handlers_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/handlers"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/pattern"
)

var _ = Describe("NodePatternHandler", func() {
	It("merges by keys and sets the projected properties", func() {
		// ARRANGE
		cfg, err := pattern.ParseNode("(:User{!id})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		records := []domain.Record{
			{Topic: "users", Value: map[string]any{"id": 1, "name": "ada", "city": "london"}},
		}

		// ACT
		events, err := handler.Handle(records)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Statement).To(Equal(
			"UNWIND $events AS event MERGE (n:`User` {id: event.keys.id}) SET n = event.properties SET n += event.keys"))
		Expect(events[0].Events).To(Equal([]map[string]any{
			{
				"keys":       map[string]any{"id": 1},
				"properties": map[string]any{"name": "ada", "city": "london"},
			},
		}))
	})

	It("projects only the listed fields for an INCLUDE pattern", func() {
		cfg, err := pattern.ParseNode("(:User{!id,name})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		events, err := handler.Handle([]domain.Record{
			{Value: map[string]any{"id": 1, "name": "ada", "city": "london"}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Events[0]["properties"]).To(Equal(map[string]any{"name": "ada"}))
	})

	It("drops the listed fields for an EXCLUDE pattern", func() {
		cfg, err := pattern.ParseNode("(:User{!id,-city})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		events, err := handler.Handle([]domain.Record{
			{Value: map[string]any{"id": 1, "name": "ada", "city": "london"}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Events[0]["properties"]).To(Equal(map[string]any{"name": "ada"}))
	})

	It("flattens nested values into dotted property names", func() {
		cfg, err := pattern.ParseNode("(:User{!id})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		events, err := handler.Handle([]domain.Record{
			{Value: map[string]any{"id": 1, "address": map[string]any{"city": "london"}}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Events[0]["properties"]).To(Equal(map[string]any{"address.city": "london"}))
	})

	It("detach-deletes on tombstones, keyed by the record key", func() {
		cfg, err := pattern.ParseNode("(:User{!id})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		events, err := handler.Handle([]domain.Record{
			{Key: map[string]any{"id": 42}, Value: nil},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Statement).To(Equal(
			"UNWIND $events AS event MATCH (n:`User` {id: event.keys.id}) DETACH DELETE n"))
		Expect(events[0].Events[0]["keys"]).To(Equal(map[string]any{"id": 42}))
	})

	It("derives keys from a scalar record key when a single key is configured", func() {
		cfg, err := pattern.ParseNode("(:User{!id})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		events, err := handler.Handle([]domain.Record{
			{Key: 42, Value: nil},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Events[0]["keys"]).To(Equal(map[string]any{"id": 42}))
	})

	It("uses additive SET when merge-properties is enabled", func() {
		cfg, err := pattern.ParseNode("(:User{!id})", true)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		events, err := handler.Handle([]domain.Record{
			{Value: map[string]any{"id": 1, "name": "ada"}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Statement).To(ContainSubstring("SET n += event.properties"))
	})

	It("fails on records missing a configured key field", func() {
		cfg, err := pattern.ParseNode("(:User{!id})", false)
		Expect(err).NotTo(HaveOccurred())
		handler := handlers.NewNodePatternHandler(cfg)

		_, err = handler.Handle([]domain.Record{
			{Value: map[string]any{"name": "ada"}},
		})

		Expect(err).To(MatchError(domain.ErrMalformedRecord))
	})
})

var _ = Describe("RelationshipPatternHandler", func() {
	var handler *handlers.RelationshipPatternHandler

	BeforeEach(func() {
		cfg, err := pattern.ParseRelationship("(:User{!uid})-[:BOUGHT]->(:Product{!pid})", false)
		Expect(err).NotTo(HaveOccurred())
		handler = handlers.NewRelationshipPatternHandler(cfg)
	})

	It("merges both endpoints and the relationship", func() {
		// ACT
		events, err := handler.Handle([]domain.Record{
			{Value: map[string]any{"uid": 1, "pid": "sku-1", "qty": 3}},
		})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Statement).To(Equal(
			"UNWIND $events AS event MERGE (start:`User` {uid: event.start.uid}) MERGE (end:`Product` {pid: event.end.pid}) MERGE (start)-[r:`BOUGHT`]->(end) SET r = event.properties"))
		Expect(events[0].Events[0]).To(Equal(map[string]any{
			"start":      map[string]any{"uid": 1},
			"end":        map[string]any{"pid": "sku-1"},
			"properties": map[string]any{"qty": 3},
		}))
	})

	It("deletes only the relationship on tombstones", func() {
		events, err := handler.Handle([]domain.Record{
			{Key: map[string]any{"uid": 1, "pid": "sku-1"}, Value: nil},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Statement).To(Equal(
			"UNWIND $events AS event MATCH (start:`User` {uid: event.start.uid})-[r:`BOUGHT`]->(end:`Product` {pid: event.end.pid}) DELETE r"))
		Expect(events[0].Statement).NotTo(ContainSubstring("DETACH"))
	})

	It("fails on records missing an endpoint key", func() {
		_, err := handler.Handle([]domain.Record{
			{Value: map[string]any{"uid": 1, "qty": 3}},
		})

		Expect(err).To(MatchError(domain.ErrMalformedRecord))
	})
})
