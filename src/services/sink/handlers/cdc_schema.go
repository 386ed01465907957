package handlers

import (
	"fmt"
	"log/slog"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/services/sink/schema"
)

// CDCSchemaHandler consumes change events that carry constraint schema and
// produces merges keyed by unique-constraint properties.
//
// Events that lack a usable constraint are dropped from the output without
// failing the batch; the drop hook is invoked so a metric can surface them.
type CDCSchemaHandler struct {
	logger *slog.Logger
	onDrop func(reason string)
}

func NewCDCSchemaHandler(logger *slog.Logger, onDrop func(reason string)) *CDCSchemaHandler {
	if onDrop == nil {
		onDrop = func(string) {}
	}
	return &CDCSchemaHandler{logger: logger, onDrop: onDrop}
}

func (h *CDCSchemaHandler) Handle(records []domain.Record) ([]domain.QueryEvents, error) {
	groups := newGrouping()

	for _, r := range records {
		var event domain.StreamsTransactionEvent
		if err := domain.DecodeValue(r.Value, &event); err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}

		var err error
		switch event.Payload.Type {
		case domain.CDCPayloadNode:
			err = h.addNode(groups, r, event)
		case domain.CDCPayloadRelationship:
			err = h.addRelationship(groups, r, event)
		default:
			err = fmt.Errorf("%w: unknown CDC payload type %q", domain.ErrMalformedRecord, event.Payload.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}
	}

	return groups.queryEvents(), nil
}

func (h *CDCSchemaHandler) addNode(groups *grouping, r domain.Record, event domain.StreamsTransactionEvent) error {
	if event.Meta.Operation == domain.CDCOperationDeleted {
		return h.addNodeDelete(groups, r, event)
	}

	after := event.Payload.After
	if after == nil {
		return fmt.Errorf("%w: node change without after state", domain.ErrMalformedRecord)
	}

	constraints := schema.FilterUniqueConstraints(after.Labels, event.Schema.Constraints)
	chosen, ok := schema.ChooseNodeKeyConstraint(after.Labels, mapKeys(after.Properties), event.Schema.Constraints)
	if !ok {
		h.drop(r, event)
		return nil
	}
	keys := schema.GetNodeKeys(after.Labels, mapKeys(after.Properties), event.Schema.Constraints)

	var beforeLabels []string
	if event.Payload.Before != nil {
		beforeLabels = event.Payload.Before.Labels
	}
	constraintLabels := labelSet(constraints)
	labelsToAdd := labelsDiff(after.Labels, beforeLabels, constraintLabels)
	labelsToDelete := labelsDiff(beforeLabels, after.Labels, constraintLabels)

	meta := domain.NodeSchemaMetadata{
		Constraints:    constraints,
		LabelsToAdd:    labelsToAdd,
		LabelsToDelete: labelsToDelete,
		Keys:           keys,
	}

	statement := unwindPrelude + "MERGE (n:" + quoteLabel(chosen.Label) + " " + keyPattern("event.keys", keys) + ") SET n = event.properties"
	for _, label := range labelsToAdd {
		statement += " SET n:" + quoteLabel(label)
	}
	for _, label := range labelsToDelete {
		statement += " REMOVE n:" + quoteLabel(label)
	}

	groups.add("node-merge|"+chosen.Label+"|"+meta.GroupKey(), statement, map[string]any{
		"keys":       pick(after.Properties, keys),
		"properties": after.Properties,
	})
	return nil
}

func (h *CDCSchemaHandler) addNodeDelete(groups *grouping, r domain.Record, event domain.StreamsTransactionEvent) error {
	before := event.Payload.Before
	if before == nil {
		return fmt.Errorf("%w: node delete without before state", domain.ErrMalformedRecord)
	}

	chosen, ok := schema.ChooseNodeKeyConstraint(before.Labels, mapKeys(before.Properties), event.Schema.Constraints)
	if !ok {
		h.drop(r, event)
		return nil
	}
	keys := schema.GetNodeKeys(before.Labels, mapKeys(before.Properties), event.Schema.Constraints)

	meta := domain.NodeSchemaMetadata{
		Constraints: schema.FilterUniqueConstraints(before.Labels, event.Schema.Constraints),
		Keys:        keys,
	}

	statement := unwindPrelude + "MATCH (n:" + quoteLabel(chosen.Label) + " " + keyPattern("event.keys", keys) + ") DETACH DELETE n"
	groups.add("node-delete|"+chosen.Label+"|"+meta.GroupKey(), statement, map[string]any{
		"keys": pick(before.Properties, keys),
	})
	return nil
}

func (h *CDCSchemaHandler) addRelationship(groups *grouping, r domain.Record, event domain.StreamsTransactionEvent) error {
	payload := event.Payload
	if payload.Start == nil || payload.End == nil || payload.Label == "" {
		return fmt.Errorf("%w: relationship change without endpoints", domain.ErrMalformedRecord)
	}

	// Both endpoints need a unique constraint to be addressable.
	startChosen, startOK := schema.ChooseNodeKeyConstraint(payload.Start.Labels, mapKeys(payload.Start.IDs), event.Schema.Constraints)
	endChosen, endOK := schema.ChooseNodeKeyConstraint(payload.End.Labels, mapKeys(payload.End.IDs), event.Schema.Constraints)
	if !startOK || !endOK {
		h.drop(r, event)
		return nil
	}

	startKeys := schema.GetNodeKeys(payload.Start.Labels, mapKeys(payload.Start.IDs), event.Schema.Constraints)
	endKeys := schema.GetNodeKeys(payload.End.Labels, mapKeys(payload.End.IDs), event.Schema.Constraints)

	meta := domain.RelationshipSchemaMetadata{
		Label:       payload.Label,
		StartLabels: []string{startChosen.Label},
		EndLabels:   []string{endChosen.Label},
		StartKeys:   startKeys,
		EndKeys:     endKeys,
	}

	startFragment := quoteLabel(startChosen.Label) + " " + keyPattern("event.start", startKeys)
	endFragment := quoteLabel(endChosen.Label) + " " + keyPattern("event.end", endKeys)
	relType := quoteLabel(payload.Label)

	if event.Meta.Operation == domain.CDCOperationDeleted {
		statement := unwindPrelude +
			"MATCH (start:" + startFragment + ") MATCH (end:" + endFragment + ") " +
			"MATCH (start)-[r:" + relType + "]->(end) DELETE r"
		groups.add("rel-delete|"+meta.GroupKey(), statement, map[string]any{
			"start": pick(payload.Start.IDs, startKeys),
			"end":   pick(payload.End.IDs, endKeys),
		})
		return nil
	}

	properties := map[string]any{}
	if payload.After != nil && payload.After.Properties != nil {
		properties = payload.After.Properties
	}

	statement := unwindPrelude +
		"MERGE (start:" + startFragment + ") MERGE (end:" + endFragment + ") " +
		"MERGE (start)-[r:" + relType + "]->(end) SET r = event.properties"
	groups.add("rel-merge|"+meta.GroupKey(), statement, map[string]any{
		"start":      pick(payload.Start.IDs, startKeys),
		"end":        pick(payload.End.IDs, endKeys),
		"properties": properties,
	})
	return nil
}

// drop discards an event that lacks the constraints this strategy needs.
// This is the strategy's contract, not an error; the counter keeps it visible.
func (h *CDCSchemaHandler) drop(r domain.Record, event domain.StreamsTransactionEvent) {
	h.onDrop("missing_constraint")
	h.logger.Debug("Dropping CDC event without usable constraint",
		"topic", r.Topic,
		"partition", r.Partition,
		"offset", r.Offset,
		"payload_type", event.Payload.Type,
		"operation", event.Meta.Operation)
}

func labelSet(constraints []domain.Constraint) map[string]bool {
	set := make(map[string]bool, len(constraints))
	for _, c := range constraints {
		set[c.Label] = true
	}
	return set
}

// labelsDiff returns the labels in a that are neither in b nor excluded,
// preserving a's order.
func labelsDiff(a, b []string, excluded map[string]bool) []string {
	bSet := make(map[string]bool, len(b))
	for _, label := range b {
		bSet[label] = true
	}
	var out []string
	for _, label := range a {
		if !bSet[label] && !excluded[label] {
			out = append(out, label)
		}
	}
	return out
}

func pick(m map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		out[key] = m[key]
	}
	return out
}
