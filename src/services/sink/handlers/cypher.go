package handlers

import (
	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// CypherBindings controls which record parts are exposed on the UNWIND event
// passed to a user-provided statement.
type CypherBindings struct {
	Key       bool
	Value     bool
	Header    bool
	Timestamp bool
}

// CypherHandler wraps a user-provided parameterized statement in the UNWIND
// iteration prelude; each record contributes one event mapping with the
// enabled bindings.
type CypherHandler struct {
	statement string
	bindings  CypherBindings
}

func NewCypherHandler(statement string, bindings CypherBindings) *CypherHandler {
	return &CypherHandler{statement: statement, bindings: bindings}
}

func (h *CypherHandler) Handle(records []domain.Record) ([]domain.QueryEvents, error) {
	if len(records) == 0 {
		return nil, nil
	}

	events := make([]map[string]any, 0, len(records))
	for _, r := range records {
		event := make(map[string]any, 4)
		if h.bindings.Value {
			event["value"] = r.Value
		}
		if h.bindings.Key {
			event["key"] = r.Key
		}
		if h.bindings.Header {
			event["header"] = r.Headers
		}
		if h.bindings.Timestamp {
			event["timestamp"] = r.Timestamp.UnixMilli()
		}
		events = append(events, event)
	}

	return []domain.QueryEvents{{
		Statement: unwindPrelude + h.statement,
		Events:    events,
	}}, nil
}
