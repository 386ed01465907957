package pattern

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// ParseNode parses a node pattern DSL string into its configuration.
//
// Two surface forms are accepted: the rich form "(:LabelA:LabelB{!id,prop})"
// and the simple form "LabelA:LabelB{!id,prop}". The rich form requires the
// leading ':' before the first label; the simple form tolerates its absence.
// Key tokens are prefixed '!', excluded tokens '-', and '*' selects all
// non-key properties.
func ParseNode(pattern string, mergeProperties bool) (domain.NodePatternConfiguration, error) {
	return parseNode(pattern, mergeProperties)
}

// ParseRelationship parses a relationship pattern DSL string. The rich form
// "(:Start{!sid})-[:TYPE{props}]->(:End{!eid})" admits a reversed arrow, in
// which case start and end swap. The simple form is "Start{!sid} TYPE End{!eid}".
func ParseRelationship(pattern string, mergeProperties bool) (domain.RelationshipPatternConfiguration, error) {
	s := strings.TrimSpace(pattern)
	if s == "" {
		return domain.RelationshipPatternConfiguration{}, fmt.Errorf("%w: empty relationship pattern", domain.ErrInvalidPattern)
	}
	if strings.Contains(s, "[") {
		return parseRichRelationship(s, mergeProperties)
	}
	return parseSimpleRelationship(s, mergeProperties)
}

func parseRichRelationship(s string, mergeProperties bool) (domain.RelationshipPatternConfiguration, error) {
	var zero domain.RelationshipPatternConfiguration

	open := strings.Index(s, "[")
	end := strings.Index(s, "]")
	if end < open {
		return zero, fmt.Errorf("%w: unbalanced relationship brackets in %q", domain.ErrInvalidPattern, s)
	}

	left := strings.TrimSpace(s[:open])
	rel := strings.TrimSpace(s[open+1 : end])
	right := strings.TrimSpace(s[end+1:])

	reversed := false
	switch {
	case strings.HasSuffix(left, "<-"):
		if !strings.HasPrefix(right, "-") || strings.HasPrefix(right, "->") {
			return zero, fmt.Errorf("%w: malformed arrow in %q", domain.ErrInvalidPattern, s)
		}
		reversed = true
		left = strings.TrimSpace(strings.TrimSuffix(left, "<-"))
		right = strings.TrimSpace(strings.TrimPrefix(right, "-"))
	case strings.HasSuffix(left, "-"):
		if !strings.HasPrefix(right, "->") {
			return zero, fmt.Errorf("%w: malformed arrow in %q", domain.ErrInvalidPattern, s)
		}
		left = strings.TrimSpace(strings.TrimSuffix(left, "-"))
		right = strings.TrimSpace(strings.TrimPrefix(right, "->"))
	default:
		return zero, fmt.Errorf("%w: missing arrow in %q", domain.ErrInvalidPattern, s)
	}

	if !strings.HasPrefix(rel, ":") {
		return zero, fmt.Errorf("%w: relationship type requires a leading ':' in %q", domain.ErrInvalidPattern, s)
	}
	relType := strings.TrimSpace(rel[1:])
	relProps := ""
	if brace := strings.Index(relType, "{"); brace >= 0 {
		if !strings.HasSuffix(relType, "}") {
			return zero, fmt.Errorf("%w: unbalanced property braces in %q", domain.ErrInvalidPattern, s)
		}
		relProps = relType[brace+1 : len(relType)-1]
		relType = strings.TrimSpace(relType[:brace])
	}
	if relType == "" {
		return zero, fmt.Errorf("%w: empty relationship type in %q", domain.ErrInvalidPattern, s)
	}

	leftCfg, err := parseNode(left, mergeProperties)
	if err != nil {
		return zero, err
	}
	rightCfg, err := parseNode(right, mergeProperties)
	if err != nil {
		return zero, err
	}

	typ, props, err := buildRelationshipProperties(relProps, s)
	if err != nil {
		return zero, err
	}

	cfg := domain.RelationshipPatternConfiguration{
		Start:           leftCfg,
		End:             rightCfg,
		RelType:         relType,
		Properties:      props,
		Type:            typ,
		MergeProperties: mergeProperties,
	}
	if reversed {
		cfg.Start, cfg.End = cfg.End, cfg.Start
	}
	return cfg, nil
}

func parseSimpleRelationship(s string, mergeProperties bool) (domain.RelationshipPatternConfiguration, error) {
	var zero domain.RelationshipPatternConfiguration

	fields := splitOutsideBraces(s)
	if len(fields) != 3 {
		return zero, fmt.Errorf("%w: simple relationship form requires 'Start TYPE End', got %q", domain.ErrInvalidPattern, s)
	}

	relType := fields[1]
	relProps := ""
	if brace := strings.Index(relType, "{"); brace >= 0 {
		if !strings.HasSuffix(relType, "}") {
			return zero, fmt.Errorf("%w: unbalanced property braces in %q", domain.ErrInvalidPattern, s)
		}
		relProps = relType[brace+1 : len(relType)-1]
		relType = relType[:brace]
	}
	if relType == "" {
		return zero, fmt.Errorf("%w: empty relationship type in %q", domain.ErrInvalidPattern, s)
	}

	startCfg, err := parseNode(fields[0], mergeProperties)
	if err != nil {
		return zero, err
	}
	endCfg, err := parseNode(fields[2], mergeProperties)
	if err != nil {
		return zero, err
	}

	typ, props, err := buildRelationshipProperties(relProps, s)
	if err != nil {
		return zero, err
	}

	return domain.RelationshipPatternConfiguration{
		Start:           startCfg,
		End:             endCfg,
		RelType:         relType,
		Properties:      props,
		Type:            typ,
		MergeProperties: mergeProperties,
	}, nil
}

func parseNode(pattern string, mergeProperties bool) (domain.NodePatternConfiguration, error) {
	var zero domain.NodePatternConfiguration

	s := strings.TrimSpace(pattern)
	if s == "" {
		return zero, fmt.Errorf("%w: empty node pattern", domain.ErrInvalidPattern)
	}

	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return zero, fmt.Errorf("%w: unbalanced parentheses in %q", domain.ErrInvalidPattern, pattern)
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
		// The rich form demands the leading ':'; the simple form below does not.
		if !strings.HasPrefix(s, ":") {
			return zero, fmt.Errorf("%w: rich node form requires ':' before the first label in %q", domain.ErrInvalidPattern, pattern)
		}
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, ":")
	}

	labelPart := s
	propsPart := ""
	if brace := strings.Index(s, "{"); brace >= 0 {
		if !strings.HasSuffix(s, "}") {
			return zero, fmt.Errorf("%w: unbalanced property braces in %q", domain.ErrInvalidPattern, pattern)
		}
		labelPart = s[:brace]
		propsPart = s[brace+1 : len(s)-1]
	}

	labels, err := splitLabels(labelPart, pattern)
	if err != nil {
		return zero, err
	}

	keys, rest, err := tokenizeProperties(propsPart, pattern)
	if err != nil {
		return zero, err
	}
	if len(keys) == 0 {
		return zero, fmt.Errorf("%w: %q", domain.ErrMissingKey, pattern)
	}

	typ, props, err := classifyProperties(rest, pattern)
	if err != nil {
		return zero, err
	}

	return domain.NodePatternConfiguration{
		Keys:            keys,
		Type:            typ,
		Labels:          labels,
		Properties:      props,
		MergeProperties: mergeProperties,
	}, nil
}

func splitLabels(s, pattern string) ([]string, error) {
	var labels []string
	for _, part := range strings.Split(s, ":") {
		label := strings.TrimSpace(part)
		if label == "" {
			return nil, fmt.Errorf("%w: empty label in %q", domain.ErrInvalidPattern, pattern)
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: missing label in %q", domain.ErrInvalidPattern, pattern)
	}
	return labels, nil
}

// tokenizeProperties splits a prop_list into key tokens and remaining tokens.
// Keys are deduplicated preserving first appearance.
func tokenizeProperties(s, pattern string) (keys, rest []string, err error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil, nil
	}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			return nil, nil, fmt.Errorf("%w: empty property token in %q", domain.ErrInvalidPattern, pattern)
		}
		if strings.HasPrefix(token, "!") {
			key := strings.TrimSpace(token[1:])
			if key == "" {
				return nil, nil, fmt.Errorf("%w: empty key token in %q", domain.ErrInvalidPattern, pattern)
			}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
			continue
		}
		rest = append(rest, token)
	}
	return keys, rest, nil
}

// classifyProperties determines the selection type induced by the non-key
// tokens. The type must be homogeneous: all bare, all '-'-prefixed, or a
// single '*'.
func classifyProperties(rest []string, pattern string) (domain.PatternConfigurationType, []string, error) {
	if len(rest) == 0 {
		return domain.PatternTypeAll, nil, nil
	}

	wildcards, excluded, included := 0, 0, 0
	for _, token := range rest {
		switch {
		case token == "*":
			wildcards++
		case strings.HasPrefix(token, "-"):
			excluded++
		default:
			included++
		}
	}

	switch {
	case wildcards > 0 && len(rest) == wildcards && wildcards == 1:
		return domain.PatternTypeAll, nil, nil
	case wildcards > 0:
		return 0, nil, fmt.Errorf("%w: '*' cannot be combined with other property tokens in %q", domain.ErrNotHomogeneous, pattern)
	case excluded == len(rest):
		props := make([]string, 0, len(rest))
		for _, token := range rest {
			name := strings.TrimSpace(token[1:])
			if name == "" {
				return 0, nil, fmt.Errorf("%w: empty excluded property in %q", domain.ErrInvalidPattern, pattern)
			}
			props = append(props, name)
		}
		return domain.PatternTypeExclude, props, nil
	case included == len(rest):
		return domain.PatternTypeInclude, append([]string(nil), rest...), nil
	}
	return 0, nil, fmt.Errorf("%w: %q", domain.ErrNotHomogeneous, pattern)
}

// buildRelationshipProperties applies the homogeneity rules to the
// relationship's own property section, which admits no key tokens.
func buildRelationshipProperties(s, pattern string) (domain.PatternConfigurationType, []string, error) {
	keys, rest, err := tokenizeProperties(s, pattern)
	if err != nil {
		return 0, nil, err
	}
	if len(keys) > 0 {
		return 0, nil, fmt.Errorf("%w: relationship properties cannot declare keys in %q", domain.ErrInvalidPattern, pattern)
	}
	return classifyProperties(rest, pattern)
}

// splitOutsideBraces splits on whitespace runs that are not inside a
// property brace section.
func splitOutsideBraces(s string) []string {
	var fields []string
	var current strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '{':
			depth++
			current.WriteRune(r)
		case r == '}':
			depth--
			current.WriteRune(r)
		case unicode.IsSpace(r) && depth == 0:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields
}
