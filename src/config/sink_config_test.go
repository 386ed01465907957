package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/config"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

var _ = Describe("ParseSink", func() {
	baseProps := func() map[string]string {
		return map[string]string{
			"connector.class":                      "streams.kafka.connect.sink.Neo4jSinkConnector",
			"neo4j.uri":                            "neo4j://localhost:7687",
			"neo4j.authentication.basic.username":  "neo4j",
			"neo4j.authentication.basic.password":  "secret",
			"neo4j.database":                       "graph",
			"neo4j.topic.cypher.people":            "MERGE (p:Person {name: event.value.name})",
			"neo4j.topic.cud":                      "cud-a,cud-b",
			"neo4j.topic.pattern.node.users":       "(:User{!id})",
			"neo4j.topic.pattern.relationship.buys": "(:User{!uid})-[:BOUGHT]->(:Product{!pid})",
			"neo4j.topic.cdc.schema":               "cdc-schema",
			"neo4j.topic.cdc.sourceId":             "cdc-ids",
		}
	}

	It("binds every configured topic to exactly one strategy", func() {
		// ACT
		cfg, err := config.ParseSink(baseProps())

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.TopicNames()).To(Equal([]string{
			"buys", "cdc-ids", "cdc-schema", "cud-a", "cud-b", "people", "users",
		}))
		Expect(cfg.Topics["people"].Strategy).To(Equal(config.StrategyCypher))
		Expect(cfg.Topics["cud-a"].Strategy).To(Equal(config.StrategyCUD))
		Expect(cfg.Topics["users"].Strategy).To(Equal(config.StrategyNodePattern))
		Expect(cfg.Topics["buys"].Strategy).To(Equal(config.StrategyRelationshipPattern))
		Expect(cfg.Topics["cdc-schema"].Strategy).To(Equal(config.StrategyCDCSchema))
		Expect(cfg.Topics["cdc-ids"].Strategy).To(Equal(config.StrategyCDCSourceID))
	})

	It("parses pattern strings at configuration time", func() {
		cfg, err := config.ParseSink(baseProps())

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Topics["users"].NodePattern.Keys).To(Equal([]string{"id"}))
		Expect(cfg.Topics["buys"].RelationshipPattern.RelType).To(Equal("BOUGHT"))
	})

	It("applies batch and retry defaults", func() {
		cfg, err := config.ParseSink(baseProps())

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.BatchSize).To(Equal(1000))
		Expect(cfg.BatchTimeout).To(Equal(30 * time.Second))
		Expect(cfg.MaxRetryAttempts).To(Equal(5))
		Expect(cfg.RetryBackoff).To(Equal(3 * time.Second))
		Expect(cfg.Tolerance).To(Equal(config.ToleranceNone))
	})

	It("reads batch, retry and tolerance overrides", func() {
		props := baseProps()
		props["neo4j.batch.size"] = "250"
		props["neo4j.batch.timeout.msecs"] = "5000"
		props["neo4j.retry.max.attemps"] = "7"
		props["neo4j.retry.backoff.msecs"] = "1500"
		props["errors.tolerance"] = "all"
		props["errors.deadletterqueue.topic.name"] = "dead-letters"

		cfg, err := config.ParseSink(props)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.BatchSize).To(Equal(250))
		Expect(cfg.BatchTimeout).To(Equal(5 * time.Second))
		Expect(cfg.MaxRetryAttempts).To(Equal(7))
		Expect(cfg.RetryBackoff).To(Equal(1500 * time.Millisecond))
		Expect(cfg.Tolerance).To(Equal(config.ToleranceAll))
		Expect(cfg.DeadLetterTopic).To(Equal("dead-letters"))
	})

	It("rejects a topic claimed by more than one strategy", func() {
		props := baseProps()
		props["neo4j.topic.cud"] = "cud-a,users"

		_, err := config.ParseSink(props)

		Expect(err).To(MatchError(domain.ErrInvalidConfig))
		Expect(err.Error()).To(ContainSubstring("users"))
	})

	It("rejects unknown tolerance values", func() {
		props := baseProps()
		props["errors.tolerance"] = "some"

		_, err := config.ParseSink(props)

		Expect(err).To(MatchError(domain.ErrInvalidConfig))
	})

	It("rejects invalid patterns at start-up", func() {
		props := baseProps()
		props["neo4j.topic.pattern.node.users"] = "(:User{id})"

		_, err := config.ParseSink(props)

		Expect(err).To(MatchError(domain.ErrMissingKey))
	})

	It("requires the graph database URI", func() {
		props := baseProps()
		delete(props, "neo4j.uri")

		_, err := config.ParseSink(props)

		Expect(err).To(MatchError(domain.ErrInvalidConfig))
	})

	It("requires at least one topic strategy", func() {
		_, err := config.ParseSink(map[string]string{"neo4j.uri": "neo4j://localhost:7687"})

		Expect(err).To(MatchError(domain.ErrInvalidConfig))
	})
})

var _ = Describe("LoadProperties", func() {
	It("parses key=value lines, skipping comments and blanks", func() {
		// ARRANGE
		path := filepath.Join(GinkgoT().TempDir(), "sink.properties")
		content := "# sink connector\n\nneo4j.uri=neo4j://localhost:7687\nneo4j.topic.cud = cud-a , cud-b\n"
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

		// ACT
		props, err := config.LoadProperties(path)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(props).To(Equal(map[string]string{
			"neo4j.uri":       "neo4j://localhost:7687",
			"neo4j.topic.cud": "cud-a , cud-b",
		}))
	})

	It("rejects lines without a separator", func() {
		path := filepath.Join(GinkgoT().TempDir(), "bad.properties")
		Expect(os.WriteFile(path, []byte("not-a-property\n"), 0o600)).To(Succeed())

		_, err := config.LoadProperties(path)

		Expect(err).To(MatchError(domain.ErrInvalidConfig))
	})
})
