package sink

import (
	"fmt"
	"log/slog"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/config"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/metrics"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/handlers"
)

// Registry maps each configured topic to its strategy handler. Handlers are
// materialized once at start-up and the registry is read-only afterwards.
type Registry struct {
	handlers map[string]handlers.Handler
	topics   []string
}

// NewRegistry builds one handler per configured topic. Metrics may be nil in
// tests; the CDC-Schema drop counter is then a no-op.
func NewRegistry(logger *slog.Logger, cfg *config.SinkConfig, m *metrics.Metrics) (*Registry, error) {
	registry := &Registry{handlers: make(map[string]handlers.Handler, len(cfg.Topics))}

	for _, topic := range cfg.TopicNames() {
		tc := cfg.Topics[topic]

		var handler handlers.Handler
		switch tc.Strategy {
		case config.StrategyCypher:
			handler = handlers.NewCypherHandler(tc.CypherStatement, handlers.CypherBindings{
				Key:       cfg.CypherBindings.Key,
				Value:     cfg.CypherBindings.Value,
				Header:    cfg.CypherBindings.Header,
				Timestamp: cfg.CypherBindings.Timestamp,
			})
		case config.StrategyCUD:
			handler = handlers.NewCUDHandler()
		case config.StrategyNodePattern:
			handler = handlers.NewNodePatternHandler(tc.NodePattern)
		case config.StrategyRelationshipPattern:
			handler = handlers.NewRelationshipPatternHandler(tc.RelationshipPattern)
		case config.StrategyCDCSchema:
			handler = handlers.NewCDCSchemaHandler(logger, dropCounter(m, topic))
		case config.StrategyCDCSourceID:
			handler = handlers.NewCDCSourceIDHandler(cfg.SourceIDLabelName, cfg.SourceIDName)
		default:
			return nil, fmt.Errorf("%w: unknown strategy %q for topic %q", domain.ErrInvalidConfig, tc.Strategy, topic)
		}

		registry.handlers[topic] = handler
		registry.topics = append(registry.topics, topic)

		logger.Info("Registered topic strategy", "topic", topic, "strategy", tc.Strategy)
	}

	return registry, nil
}

// HandlerFor dispatches a topic to its configured handler.
func (r *Registry) HandlerFor(topic string) (handlers.Handler, error) {
	handler, ok := r.handlers[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnmappedTopic, topic)
	}
	return handler, nil
}

// Topics returns all configured topic names in sorted order.
func (r *Registry) Topics() []string {
	return append([]string(nil), r.topics...)
}

func dropCounter(m *metrics.Metrics, topic string) func(reason string) {
	if m == nil {
		return nil
	}
	return func(reason string) {
		m.EventsDropped.WithLabelValues(topic, reason).Inc()
	}
}
