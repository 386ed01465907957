package domain

import (
	"sort"
	"strings"
)

// ConstraintType is the declared kind of a graph constraint.
type ConstraintType string

const (
	ConstraintUnique  ConstraintType = "UNIQUE"
	ConstraintNodeKey ConstraintType = "NODE_KEY"
)

// Constraint is a uniqueness or key rule declared on a label's properties,
// sourced from CDC schema metadata.
type Constraint struct {
	Label      string         `json:"label"`
	Type       ConstraintType `json:"type"`
	Properties []string       `json:"properties"`
}

// groupKey renders the constraint in a stable textual form.
func (c Constraint) groupKey() string {
	props := append([]string(nil), c.Properties...)
	sort.Strings(props)
	return c.Label + "/" + string(c.Type) + "/" + strings.Join(props, ",")
}

// NodeSchemaMetadata groups CDC node events that induce the same mutation
// shape. Equality is structural.
type NodeSchemaMetadata struct {
	Constraints    []Constraint
	LabelsToAdd    []string
	LabelsToDelete []string
	Keys           []string
}

// GroupKey hashes the metadata fields in a stable order so the value can be
// used as a grouping key.
func (m NodeSchemaMetadata) GroupKey() string {
	parts := make([]string, 0, len(m.Constraints)+3)
	for _, c := range m.Constraints {
		parts = append(parts, c.groupKey())
	}
	sort.Strings(parts)
	parts = append(parts,
		strings.Join(m.LabelsToAdd, ":"),
		strings.Join(m.LabelsToDelete, ":"),
		strings.Join(m.Keys, ","),
	)
	return strings.Join(parts, "|")
}

// RelationshipSchemaMetadata groups CDC relationship events that induce the
// same mutation shape. Equality is structural.
type RelationshipSchemaMetadata struct {
	Label       string
	StartLabels []string
	EndLabels   []string
	StartKeys   []string
	EndKeys     []string
}

// GroupKey hashes the metadata fields in a stable order.
func (m RelationshipSchemaMetadata) GroupKey() string {
	return strings.Join([]string{
		m.Label,
		strings.Join(m.StartLabels, ":"),
		strings.Join(m.EndLabels, ":"),
		strings.Join(m.StartKeys, ","),
		strings.Join(m.EndKeys, ","),
	}, "|")
}
