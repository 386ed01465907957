package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// CUDHandler consumes the compact create/update/merge/delete JSON form. It
// groups records by the mutation shape they induce (operation, entity kind,
// labels or relationship type, and identity-key shape) and emits one
// parameterized statement per group.
type CUDHandler struct{}

func NewCUDHandler() *CUDHandler {
	return &CUDHandler{}
}

func (h *CUDHandler) Handle(records []domain.Record) ([]domain.QueryEvents, error) {
	groups := newGrouping()

	for _, r := range records {
		var event domain.CUDEvent
		if err := domain.DecodeValue(r.Value, &event); err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}

		var err error
		switch event.Type {
		case domain.CUDTypeNode:
			err = h.addNode(groups, event)
		case domain.CUDTypeRelationship:
			err = h.addRelationship(groups, event)
		default:
			err = fmt.Errorf("%w: unknown CUD type %q", domain.ErrMalformedRecord, event.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}
	}

	return groups.queryEvents(), nil
}

func (h *CUDHandler) addNode(groups *grouping, event domain.CUDEvent) error {
	if len(event.Labels) == 0 {
		return fmt.Errorf("%w: CUD node without labels", domain.ErrMalformedRecord)
	}

	idKeys := sortedKeys(event.IDs)
	if event.Op != domain.CUDOpCreate && len(idKeys) == 0 {
		return fmt.Errorf("%w: CUD %s requires ids", domain.ErrMalformedRecord, event.Op)
	}

	labels := labelsFragment(event.Labels)
	match := keyPattern("event.ids", idKeys)

	var statement string
	switch event.Op {
	case domain.CUDOpCreate:
		statement = unwindPrelude + "CREATE (n" + labels + ") SET n = event.properties"
	case domain.CUDOpMerge:
		statement = unwindPrelude + "MERGE (n" + labels + " " + match + ") SET n += event.properties"
	case domain.CUDOpUpdate:
		statement = unwindPrelude + "MATCH (n" + labels + " " + match + ") SET n += event.properties"
	case domain.CUDOpDelete:
		verb := "DELETE n"
		if event.Detach {
			verb = "DETACH " + verb
		}
		statement = unwindPrelude + "MATCH (n" + labels + " " + match + ") " + verb
	default:
		return fmt.Errorf("%w: unknown CUD op %q", domain.ErrMalformedRecord, event.Op)
	}

	params := map[string]any{"ids": event.IDs}
	if event.Op != domain.CUDOpDelete {
		params["properties"] = orEmptyMap(event.Properties)
	}

	key := strings.Join([]string{
		"node", event.Op, strings.Join(event.Labels, ":"),
		strings.Join(idKeys, ","), fmt.Sprintf("%t", event.Detach),
	}, "|")
	groups.add(key, statement, params)
	return nil
}

func (h *CUDHandler) addRelationship(groups *grouping, event domain.CUDEvent) error {
	if event.RelType == "" {
		return fmt.Errorf("%w: CUD relationship without rel_type", domain.ErrMalformedRecord)
	}
	fromKeys := sortedKeys(event.From.IDs)
	toKeys := sortedKeys(event.To.IDs)
	if len(fromKeys) == 0 || len(toKeys) == 0 {
		return fmt.Errorf("%w: CUD relationship requires from and to ids", domain.ErrMalformedRecord)
	}

	fromClause := endpointClause("from", event.From, fromKeys)
	toClause := endpointClause("to", event.To, toKeys)
	relType := quoteLabel(event.RelType)

	var statement string
	switch event.Op {
	case domain.CUDOpCreate:
		statement = unwindPrelude + fromClause + " " + toClause + " CREATE (from)-[r:" + relType + "]->(to) SET r = event.properties"
	case domain.CUDOpMerge:
		statement = unwindPrelude + fromClause + " " + toClause + " MERGE (from)-[r:" + relType + "]->(to) SET r += event.properties"
	case domain.CUDOpUpdate:
		statement = unwindPrelude + fromClause + " " + toClause + " MATCH (from)-[r:" + relType + "]->(to) SET r += event.properties"
	case domain.CUDOpDelete:
		statement = unwindPrelude + fromClause + " " + toClause + " MATCH (from)-[r:" + relType + "]->(to) DELETE r"
	default:
		return fmt.Errorf("%w: unknown CUD op %q", domain.ErrMalformedRecord, event.Op)
	}

	params := map[string]any{"from": event.From.IDs, "to": event.To.IDs}
	if event.Op != domain.CUDOpDelete {
		params["properties"] = orEmptyMap(event.Properties)
	}

	key := strings.Join([]string{
		"relationship", event.Op, event.RelType,
		strings.Join(event.From.Labels, ":"), strings.Join(fromKeys, ","), event.From.Op,
		strings.Join(event.To.Labels, ":"), strings.Join(toKeys, ","), event.To.Op,
	}, "|")
	groups.add(key, statement, params)
	return nil
}

// endpointClause matches or merges a relationship endpoint, depending on the
// endpoint's op (match is the default).
func endpointClause(alias string, ref domain.CUDNodeRef, idKeys []string) string {
	verb := "MATCH"
	if ref.Op == domain.CUDOpMerge {
		verb = "MERGE"
	}
	return verb + " (" + alias + labelsFragment(ref.Labels) + " " + keyPattern("event."+alias, idKeys) + ")"
}

func sortedKeys(m map[string]any) []string {
	keys := mapKeys(m)
	sort.Strings(keys)
	return keys
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
