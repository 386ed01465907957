package domain

import "errors"

var (
	// ErrInvalidConfig aborts start-up when the connector configuration is
	// inconsistent, e.g. a topic claimed by more than one strategy.
	ErrInvalidConfig = errors.New("invalid connector configuration")

	// ErrInvalidPattern is returned for pattern DSL strings that do not match
	// the grammar.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrNotHomogeneous is returned when a property selection mixes include
	// and exclude tokens.
	ErrNotHomogeneous = errors.New("property tokens are not homogeneous")

	// ErrMissingKey is returned for patterns without any !-prefixed key token.
	ErrMissingKey = errors.New("pattern must contain at least one key")

	// ErrUnmappedTopic is returned when no strategy is configured for a topic.
	ErrUnmappedTopic = errors.New("no strategy configured for topic")

	// ErrMalformedRecord is returned when a record payload does not have the
	// shape its topic's strategy expects.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMissingConstraint is returned when a strategy demands a unique
	// constraint that the event schema does not declare.
	ErrMissingConstraint = errors.New("missing unique constraint")

	// ErrTransientDriver classifies a driver failure worth retrying:
	// deadlocks, connection resets, leader elections.
	ErrTransientDriver = errors.New("transient graph driver error")

	// ErrPermanentDriver classifies a driver failure that will not succeed on
	// retry: constraint violations, syntax errors, type mismatches.
	ErrPermanentDriver = errors.New("permanent graph driver error")

	// ErrDeadLetterPublish is returned when routing a record to the
	// dead-letter topic fails.
	ErrDeadLetterPublish = errors.New("dead-letter publish failed")
)
