package handlers

import (
	"fmt"
	"strings"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

const (
	// DefaultSourceIDLabel is the synthetic label applied to entities merged
	// by opaque source identifier.
	DefaultSourceIDLabel = "SourceEvent"
	// DefaultSourceIDName is the synthetic property holding the identifier.
	DefaultSourceIDName = "sourceId"
)

// CDCSourceIDHandler consumes change events keyed by the opaque entity id the
// source database assigned. No constraint lookup is needed: every merge is
// keyed by a synthetic id property under a synthetic label.
type CDCSourceIDHandler struct {
	labelName string
	idName    string
}

func NewCDCSourceIDHandler(labelName, idName string) *CDCSourceIDHandler {
	if labelName == "" {
		labelName = DefaultSourceIDLabel
	}
	if idName == "" {
		idName = DefaultSourceIDName
	}
	return &CDCSourceIDHandler{labelName: labelName, idName: idName}
}

func (h *CDCSourceIDHandler) Handle(records []domain.Record) ([]domain.QueryEvents, error) {
	groups := newGrouping()

	for _, r := range records {
		var event domain.StreamsTransactionEvent
		if err := domain.DecodeValue(r.Value, &event); err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}

		var err error
		switch event.Payload.Type {
		case domain.CDCPayloadNode:
			err = h.addNode(groups, event)
		case domain.CDCPayloadRelationship:
			err = h.addRelationship(groups, event)
		default:
			err = fmt.Errorf("%w: unknown CDC payload type %q", domain.ErrMalformedRecord, event.Payload.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}
	}

	return groups.queryEvents(), nil
}

func (h *CDCSourceIDHandler) addNode(groups *grouping, event domain.StreamsTransactionEvent) error {
	label := quoteLabel(h.labelName)
	idMatch := "{" + quoteProperty(h.idName) + ": event.id}"

	if event.Meta.Operation == domain.CDCOperationDeleted {
		statement := unwindPrelude + "MATCH (n:" + label + " " + idMatch + ") DETACH DELETE n"
		groups.add("node-delete", statement, map[string]any{"id": event.Payload.ID})
		return nil
	}

	after := event.Payload.After
	if after == nil {
		return fmt.Errorf("%w: node change without after state", domain.ErrMalformedRecord)
	}
	var beforeLabels []string
	if event.Payload.Before != nil {
		beforeLabels = event.Payload.Before.Labels
	}
	labelsToAdd := labelsDiff(after.Labels, beforeLabels, nil)
	labelsToDelete := labelsDiff(beforeLabels, after.Labels, nil)

	statement := unwindPrelude + "MERGE (n:" + label + " " + idMatch + ") SET n = event.properties"
	for _, l := range labelsToAdd {
		statement += " SET n:" + quoteLabel(l)
	}
	for _, l := range labelsToDelete {
		statement += " REMOVE n:" + quoteLabel(l)
	}

	// The id rides along in the properties map so the full SET keeps it.
	properties := make(map[string]any, len(after.Properties)+1)
	for k, v := range after.Properties {
		properties[k] = v
	}
	properties[h.idName] = event.Payload.ID

	key := "node-merge|" + strings.Join(labelsToAdd, ":") + "|" + strings.Join(labelsToDelete, ":")
	groups.add(key, statement, map[string]any{
		"id":         event.Payload.ID,
		"properties": properties,
	})
	return nil
}

func (h *CDCSourceIDHandler) addRelationship(groups *grouping, event domain.StreamsTransactionEvent) error {
	payload := event.Payload
	if payload.Start == nil || payload.End == nil || payload.Label == "" {
		return fmt.Errorf("%w: relationship change without endpoints", domain.ErrMalformedRecord)
	}

	label := quoteLabel(h.labelName)
	relType := quoteLabel(payload.Label)
	startMatch := "{" + quoteProperty(h.idName) + ": event.start}"
	endMatch := "{" + quoteProperty(h.idName) + ": event.end}"

	if event.Meta.Operation == domain.CDCOperationDeleted {
		statement := unwindPrelude +
			"MATCH (start:" + label + " " + startMatch + ") MATCH (end:" + label + " " + endMatch + ") " +
			"MATCH (start)-[r:" + relType + "]->(end) DELETE r"
		groups.add("rel-delete|"+payload.Label, statement, map[string]any{
			"start": payload.Start.ID,
			"end":   payload.End.ID,
		})
		return nil
	}

	properties := map[string]any{}
	if payload.After != nil && payload.After.Properties != nil {
		properties = payload.After.Properties
	}

	statement := unwindPrelude +
		"MERGE (start:" + label + " " + startMatch + ") MERGE (end:" + label + " " + endMatch + ") " +
		"MERGE (start)-[r:" + relType + "]->(end) SET r = event.properties"
	groups.add("rel-merge|"+payload.Label, statement, map[string]any{
		"start":      payload.Start.ID,
		"end":        payload.End.ID,
		"properties": properties,
	})
	return nil
}
