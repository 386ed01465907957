package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/pattern"
)

// Strategy identifies the translation applied to a topic's records.
type Strategy string

const (
	StrategyCypher              Strategy = "cypher"
	StrategyCUD                 Strategy = "cud"
	StrategyNodePattern         Strategy = "node-pattern"
	StrategyRelationshipPattern Strategy = "relationship-pattern"
	StrategyCDCSchema           Strategy = "cdc-schema"
	StrategyCDCSourceID         Strategy = "cdc-source-id"
)

// Tolerance controls what happens to records that permanently fail.
type Tolerance string

const (
	ToleranceNone Tolerance = "none"
	ToleranceAll  Tolerance = "all"
)

// Configuration keys recognized by the sink connector. The misspelled retry
// key is the compatible surface and is kept as-is.
const (
	keyConnectorClass = "connector.class"
	keyURI            = "neo4j.uri"
	keyUsername       = "neo4j.authentication.basic.username"
	keyPassword       = "neo4j.authentication.basic.password"
	keyDatabase       = "neo4j.database"

	prefixCypher      = "neo4j.topic.cypher."
	keyCUD            = "neo4j.topic.cud"
	prefixNodePattern = "neo4j.topic.pattern.node."
	prefixRelPattern  = "neo4j.topic.pattern.relationship."
	keyCDCSchema      = "neo4j.topic.cdc.schema"
	keyCDCSourceID    = "neo4j.topic.cdc.sourceId"

	keySourceIDLabelName = "neo4j.topic.cdc.sourceId.labelName"
	keySourceIDIDName    = "neo4j.topic.cdc.sourceId.idName"

	keyPatternMergeProps = "neo4j.pattern.merge-properties"

	keyBindKey       = "neo4j.cypher.bind-key"
	keyBindValue     = "neo4j.cypher.bind-value"
	keyBindHeader    = "neo4j.cypher.bind-header"
	keyBindTimestamp = "neo4j.cypher.bind-timestamp"

	keyBatchSize    = "neo4j.batch.size"
	keyBatchTimeout = "neo4j.batch.timeout.msecs"
	keyMaxRetries   = "neo4j.retry.max.attemps"
	keyRetryBackoff = "neo4j.retry.backoff.msecs"

	keyTolerance = "errors.tolerance"
	keyDLQTopic  = "errors.deadletterqueue.topic.name"
)

const (
	defaultBatchSize    = 1000
	defaultBatchTimeout = 30 * time.Second
	defaultMaxRetries   = 5
	defaultRetryBackoff = 3 * time.Second
)

// TopicConfig binds one topic to its strategy and strategy-specific
// parameters.
type TopicConfig struct {
	Topic               string
	Strategy            Strategy
	CypherStatement     string
	NodePattern         domain.NodePatternConfiguration
	RelationshipPattern domain.RelationshipPatternConfiguration
}

// CypherBindings mirrors the per-record bindings the Cypher strategy exposes.
type CypherBindings struct {
	Key       bool
	Value     bool
	Header    bool
	Timestamp bool
}

// SinkConfig is the validated sink connector configuration. It is immutable
// after ParseSink returns and shared read-only by all consumer tasks.
type SinkConfig struct {
	URI      string
	Username string
	Password string
	Database string

	BatchSize        int
	BatchTimeout     time.Duration
	MaxRetryAttempts int
	RetryBackoff     time.Duration

	Tolerance       Tolerance
	DeadLetterTopic string

	SourceIDLabelName string
	SourceIDName      string

	CypherBindings CypherBindings

	// Topics holds one entry per configured topic, keyed by topic name.
	Topics map[string]TopicConfig
}

// TopicNames returns the configured topics in sorted order.
func (c *SinkConfig) TopicNames() []string {
	names := make([]string, 0, len(c.Topics))
	for name := range c.Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSink builds a SinkConfig from raw key/value properties, validating
// that every topic is claimed by exactly one strategy and that every pattern
// parses. Any violation aborts start-up.
func ParseSink(props map[string]string) (*SinkConfig, error) {
	cfg := &SinkConfig{
		URI:               props[keyURI],
		Username:          props[keyUsername],
		Password:          props[keyPassword],
		Database:          props[keyDatabase],
		BatchSize:         defaultBatchSize,
		BatchTimeout:      defaultBatchTimeout,
		MaxRetryAttempts:  defaultMaxRetries,
		RetryBackoff:      defaultRetryBackoff,
		Tolerance:         ToleranceNone,
		SourceIDLabelName: props[keySourceIDLabelName],
		SourceIDName:      props[keySourceIDIDName],
		Topics:            make(map[string]TopicConfig),
	}

	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidConfig, keyURI)
	}

	var err error
	if cfg.BatchSize, err = intProp(props, keyBatchSize, defaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.BatchTimeout, err = msecsProp(props, keyBatchTimeout, defaultBatchTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxRetryAttempts, err = intProp(props, keyMaxRetries, defaultMaxRetries); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = msecsProp(props, keyRetryBackoff, defaultRetryBackoff); err != nil {
		return nil, err
	}

	switch Tolerance(valueOrDefault(props, keyTolerance, string(ToleranceNone))) {
	case ToleranceNone:
		cfg.Tolerance = ToleranceNone
	case ToleranceAll:
		cfg.Tolerance = ToleranceAll
	default:
		return nil, fmt.Errorf("%w: %s must be one of none, all", domain.ErrInvalidConfig, keyTolerance)
	}
	cfg.DeadLetterTopic = props[keyDLQTopic]

	cfg.CypherBindings = CypherBindings{
		Key:       boolProp(props, keyBindKey, false),
		Value:     boolProp(props, keyBindValue, true),
		Header:    boolProp(props, keyBindHeader, false),
		Timestamp: boolProp(props, keyBindTimestamp, false),
	}

	mergeProperties := boolProp(props, keyPatternMergeProps, false)

	if err := collectTopics(props, cfg, mergeProperties); err != nil {
		return nil, err
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topic strategies configured", domain.ErrInvalidConfig)
	}
	return cfg, nil
}

func collectTopics(props map[string]string, cfg *SinkConfig, mergeProperties bool) error {
	claim := func(tc TopicConfig) error {
		if tc.Topic == "" {
			return fmt.Errorf("%w: empty topic name for strategy %s", domain.ErrInvalidConfig, tc.Strategy)
		}
		if existing, ok := cfg.Topics[tc.Topic]; ok {
			return fmt.Errorf("%w: topic %q is claimed by both %s and %s", domain.ErrInvalidConfig, tc.Topic, existing.Strategy, tc.Strategy)
		}
		cfg.Topics[tc.Topic] = tc
		return nil
	}

	// Deterministic iteration keeps duplicate-claim errors stable.
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(props[key])
		switch {
		case strings.HasPrefix(key, prefixCypher):
			if err := claim(TopicConfig{
				Topic:           strings.TrimPrefix(key, prefixCypher),
				Strategy:        StrategyCypher,
				CypherStatement: value,
			}); err != nil {
				return err
			}
		case strings.HasPrefix(key, prefixNodePattern):
			parsed, err := pattern.ParseNode(value, mergeProperties)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if err := claim(TopicConfig{
				Topic:       strings.TrimPrefix(key, prefixNodePattern),
				Strategy:    StrategyNodePattern,
				NodePattern: parsed,
			}); err != nil {
				return err
			}
		case strings.HasPrefix(key, prefixRelPattern):
			parsed, err := pattern.ParseRelationship(value, mergeProperties)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if err := claim(TopicConfig{
				Topic:               strings.TrimPrefix(key, prefixRelPattern),
				Strategy:            StrategyRelationshipPattern,
				RelationshipPattern: parsed,
			}); err != nil {
				return err
			}
		}
	}

	for _, topic := range splitTopics(props[keyCUD]) {
		if err := claim(TopicConfig{Topic: topic, Strategy: StrategyCUD}); err != nil {
			return err
		}
	}
	for _, topic := range splitTopics(props[keyCDCSchema]) {
		if err := claim(TopicConfig{Topic: topic, Strategy: StrategyCDCSchema}); err != nil {
			return err
		}
	}
	for _, topic := range splitTopics(props[keyCDCSourceID]) {
		if err := claim(TopicConfig{Topic: topic, Strategy: StrategyCDCSourceID}); err != nil {
			return err
		}
	}
	return nil
}

func splitTopics(value string) []string {
	var topics []string
	for _, part := range strings.Split(value, ",") {
		if topic := strings.TrimSpace(part); topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

func valueOrDefault(props map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(props[key]); v != "" {
		return v
	}
	return fallback
}

func intProp(props map[string]string, key string, fallback int) (int, error) {
	v := strings.TrimSpace(props[key])
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", domain.ErrInvalidConfig, key, v)
	}
	return parsed, nil
}

func msecsProp(props map[string]string, key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(props[key])
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive millisecond count, got %q", domain.ErrInvalidConfig, key, v)
	}
	return time.Duration(parsed) * time.Millisecond, nil
}

func boolProp(props map[string]string, key string, fallback bool) bool {
	v := strings.TrimSpace(props[key])
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
