package handlers

import (
	"fmt"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// NodePatternHandler projects record values through a node pattern
// configuration. Non-tombstone records merge the node by its configured keys
// and set the selected properties; tombstones detach-delete by keys.
//
// Merge events are emitted before delete events, so a tombstone later in the
// batch wins over an earlier merge of the same key.
type NodePatternHandler struct {
	cfg             domain.NodePatternConfiguration
	mergeStatement  string
	deleteStatement string
}

func NewNodePatternHandler(cfg domain.NodePatternConfiguration) *NodePatternHandler {
	labels := labelsFragment(cfg.Labels)
	match := keyPattern("event.keys", cfg.Keys)

	set := "SET n = event.properties SET n += event.keys"
	if cfg.MergeProperties {
		set = "SET n += event.properties SET n += event.keys"
	}

	return &NodePatternHandler{
		cfg:             cfg,
		mergeStatement:  unwindPrelude + "MERGE (n" + labels + " " + match + ") " + set,
		deleteStatement: unwindPrelude + "MATCH (n" + labels + " " + match + ") DETACH DELETE n",
	}
}

func (h *NodePatternHandler) Handle(records []domain.Record) ([]domain.QueryEvents, error) {
	var merges, deletes []map[string]any

	for _, r := range records {
		if r.IsTombstone() {
			keys, err := h.projectKeys(r, r.Key)
			if err != nil {
				return nil, err
			}
			deletes = append(deletes, map[string]any{"keys": keys})
			continue
		}

		value, err := r.ValueMap()
		if err != nil {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}
		flat := flattenMap(value)

		keys, err := h.projectKeys(r, flat)
		if err != nil {
			return nil, err
		}
		merges = append(merges, map[string]any{
			"keys":       keys,
			"properties": projectProperties(flat, h.cfg.Keys, h.cfg.Type, h.cfg.Properties),
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

// projectKeys extracts the configured key fields from a flattened value map,
// a key map, or a scalar key when a single key is configured.
func (h *NodePatternHandler) projectKeys(r domain.Record, source any) (map[string]any, error) {
	var flat map[string]any
	switch src := source.(type) {
	case map[string]any:
		flat = flattenMap(src)
	default:
		if len(h.cfg.Keys) == 1 && src != nil {
			return map[string]any{h.cfg.Keys[0]: src}, nil
		}
		return nil, fmt.Errorf("topic %s partition %d offset %d: %w: cannot derive keys from %T", r.Topic, r.Partition, r.Offset, domain.ErrMalformedRecord, source)
	}

	keys := make(map[string]any, len(h.cfg.Keys))
	for _, key := range h.cfg.Keys {
		value, ok := flat[key]
		if !ok {
			return nil, fmt.Errorf("topic %s partition %d offset %d: %w: missing key field %q", r.Topic, r.Partition, r.Offset, domain.ErrMalformedRecord, key)
		}
		keys[key] = value
	}
	return keys, nil
}

// projectProperties selects the non-key properties a pattern projects from a
// flattened value.
func projectProperties(flat map[string]any, keys []string, typ domain.PatternConfigurationType, listed []string) map[string]any {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	out := make(map[string]any)
	switch typ {
	case domain.PatternTypeAll:
		for field, value := range flat {
			if !keySet[field] {
				out[field] = value
			}
		}
	case domain.PatternTypeInclude:
		for _, field := range listed {
			if value, ok := flat[field]; ok && !keySet[field] {
				out[field] = value
			}
		}
	case domain.PatternTypeExclude:
		excluded := make(map[string]bool, len(listed))
		for _, field := range listed {
			excluded[field] = true
		}
		for field, value := range flat {
			if !keySet[field] && !excluded[field] {
				out[field] = value
			}
		}
	}
	return out
}
