package schema

import (
	"sort"
	"strings"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// FilterUniqueConstraints restricts the declared constraints to the ones that
// can serve as node identity: UNIQUE or NODE_KEY rules on one of the node's
// labels. Order of the input is preserved.
func FilterUniqueConstraints(labels []string, constraints []domain.Constraint) []domain.Constraint {
	labelSet := make(map[string]bool, len(labels))
	for _, label := range labels {
		labelSet[label] = true
	}

	var filtered []domain.Constraint
	for _, c := range constraints {
		if !labelSet[c.Label] {
			continue
		}
		if c.Type != domain.ConstraintUnique && c.Type != domain.ConstraintNodeKey {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// ChooseNodeKeyConstraint picks the constraint whose properties become the
// node's merge key: the smallest-cardinality qualifying constraint whose
// properties are all present in propertyKeys. Ties break by the label order
// in labels, then lexicographically by the sorted property tuple.
func ChooseNodeKeyConstraint(labels, propertyKeys []string, constraints []domain.Constraint) (domain.Constraint, bool) {
	available := make(map[string]bool, len(propertyKeys))
	for _, key := range propertyKeys {
		available[key] = true
	}
	labelRank := make(map[string]int, len(labels))
	for i, label := range labels {
		if _, ok := labelRank[label]; !ok {
			labelRank[label] = i
		}
	}

	best := domain.Constraint{}
	found := false
	bestTuple := ""
	for _, c := range FilterUniqueConstraints(labels, constraints) {
		if len(c.Properties) == 0 || !containsAll(available, c.Properties) {
			continue
		}
		tuple := sortedTuple(c.Properties)
		if !found ||
			len(c.Properties) < len(best.Properties) ||
			(len(c.Properties) == len(best.Properties) && labelRank[c.Label] < labelRank[best.Label]) ||
			(len(c.Properties) == len(best.Properties) && labelRank[c.Label] == labelRank[best.Label] && tuple < bestTuple) {
			best = c
			bestTuple = tuple
			found = true
		}
	}
	return best, found
}

// GetNodeKeys returns the property keys that form the node's identity, sorted
// for determinism. Empty when no constraint qualifies.
func GetNodeKeys(labels, propertyKeys []string, constraints []domain.Constraint) []string {
	chosen, ok := ChooseNodeKeyConstraint(labels, propertyKeys, constraints)
	if !ok {
		return nil
	}
	keys := append([]string(nil), chosen.Properties...)
	sort.Strings(keys)
	return keys
}

func containsAll(available map[string]bool, properties []string) bool {
	for _, p := range properties {
		if !available[p] {
			return false
		}
	}
	return true
}

func sortedTuple(properties []string) string {
	sorted := append([]string(nil), properties...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
