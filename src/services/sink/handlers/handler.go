package handlers

import (
	"regexp"
	"strings"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// Handler translates a batch of records from one topic into parameterized
// query events. Implementations are pure functions of the records and their
// immutable configuration: they never block, never synchronize and never
// retain record references beyond the call.
type Handler interface {
	Handle(records []domain.Record) ([]domain.QueryEvents, error)
}

// unwindPrelude is the iteration prelude every emitted statement starts with.
const unwindPrelude = "UNWIND $events AS event "

var plainIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// quoteLabel renders a label or relationship type, always backtick-quoted
// with embedded backticks doubled.
func quoteLabel(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// quoteProperty renders a property identifier, quoting only when the name is
// not a plain identifier.
func quoteProperty(identifier string) string {
	if plainIdentifier.MatchString(identifier) {
		return identifier
	}
	return quoteLabel(identifier)
}

// labelsFragment renders ":`A`:`B`" for a label sequence.
func labelsFragment(labels []string) string {
	var b strings.Builder
	for _, label := range labels {
		b.WriteString(":")
		b.WriteString(quoteLabel(label))
	}
	return b.String()
}

// keyPattern renders "{id: event.keys.id, name: event.keys.name}" binding the
// given keys against an event accessor such as "event.keys".
func keyPattern(accessor string, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, quoteProperty(key)+": "+accessor+"."+quoteProperty(key))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// grouping coalesces events that share a statement shape while preserving the
// order in which shapes first appeared, which keeps per-key parameter order
// aligned with record order.
type grouping struct {
	order  []string
	groups map[string]*domain.QueryEvents
}

func newGrouping() *grouping {
	return &grouping{groups: make(map[string]*domain.QueryEvents)}
}

func (g *grouping) add(key, statement string, event map[string]any) {
	group, ok := g.groups[key]
	if !ok {
		group = &domain.QueryEvents{Statement: statement}
		g.groups[key] = group
		g.order = append(g.order, key)
	}
	group.Events = append(group.Events, event)
}

func (g *grouping) queryEvents() []domain.QueryEvents {
	out := make([]domain.QueryEvents, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, *g.groups[key])
	}
	return out
}

// flattenMap collapses nested mappings into dot-joined property names, the
// shape the pattern strategies project properties from.
func flattenMap(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if nested, ok := v.(map[string]any); ok {
				walk(key, nested)
				continue
			}
			out[key] = v
		}
	}
	walk("", value)
	return out
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
