package handlers

import (
	"fmt"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// RelationshipPatternHandler projects record values through a relationship
// pattern configuration: endpoint nodes are merged by their keys, the
// relationship is merged by type and its selected properties set. Tombstones
// delete the relationship only, never the endpoint nodes.
type RelationshipPatternHandler struct {
	cfg             domain.RelationshipPatternConfiguration
	mergeStatement  string
	deleteStatement string
}

func NewRelationshipPatternHandler(cfg domain.RelationshipPatternConfiguration) *RelationshipPatternHandler {
	startLabels := labelsFragment(cfg.Start.Labels)
	endLabels := labelsFragment(cfg.End.Labels)
	startMatch := keyPattern("event.start", cfg.Start.Keys)
	endMatch := keyPattern("event.end", cfg.End.Keys)
	relType := quoteLabel(cfg.RelType)

	set := "SET r = event.properties"
	if cfg.MergeProperties {
		set = "SET r += event.properties"
	}

	return &RelationshipPatternHandler{
		cfg: cfg,
		mergeStatement: unwindPrelude +
			"MERGE (start" + startLabels + " " + startMatch + ") " +
			"MERGE (end" + endLabels + " " + endMatch + ") " +
			"MERGE (start)-[r:" + relType + "]->(end) " + set,
		deleteStatement: unwindPrelude +
			"MATCH (start" + startLabels + " " + startMatch + ")-[r:" + relType + "]->(end" + endLabels + " " + endMatch + ") " +
			"DELETE r",
	}
}

func (h *RelationshipPatternHandler) Handle(records []domain.Record) ([]domain.QueryEvents, error) {
	var merges, deletes []map[string]any

	for _, r := range records {
		if r.IsTombstone() {
			key, err := r.KeyMap()
			if err != nil {
				return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
			}
			flat := flattenMap(key)
			start, err := h.endpointKeys(r, flat, h.cfg.Start.Keys)
			if err != nil {
				return nil, err
			}
			end, err := h.endpointKeys(r, flat, h.cfg.End.Keys)
			if err != nil {
				return nil, err
			}
			deletes = append(deletes, map[string]any{"start": start, "end": end})
			continue
		}

		value, err := r.ValueMap()
		if err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}
		flat := flattenMap(value)

		start, err := h.endpointKeys(r, flat, h.cfg.Start.Keys)
		if err != nil {
			return nil, err
		}
		end, err := h.endpointKeys(r, flat, h.cfg.End.Keys)
		if err != nil {
			return nil, err
		}

		endpointKeys := append(append([]string(nil), h.cfg.Start.Keys...), h.cfg.End.Keys...)
		merges = append(merges, map[string]any{
			"start":      start,
			"end":        end,
			"properties": projectProperties(flat, endpointKeys, h.cfg.Type, h.cfg.Properties),
		})
	}

	var out []domain.QueryEvents
	if len(merges) > 0 {
		out = append(out, domain.QueryEvents{Statement: h.mergeStatement, Events: merges})
	}
	if len(deletes) > 0 {
		out = append(out, domain.QueryEvents{Statement: h.deleteStatement, Events: deletes})
	}
	return out, nil
}

func (h *RelationshipPatternHandler) endpointKeys(r domain.Record, flat map[string]any, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		value, ok := flat[key]
		if !ok {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w: missing key field %q", r.Topic, r.Partition, r.Offset, domain.ErrMalformedRecord, key)
		}
		out[key] = value
	}
	return out, nil
}
