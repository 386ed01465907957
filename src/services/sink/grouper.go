package sink

import (
	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// GroupQueryEvents coalesces query events that share an identical statement
// string, appending their parameter lists in input order. Statements keep the
// order in which they first appeared, so parameters for the same logical key
// never reorder within a partition. The operation is idempotent: grouping an
// already-grouped list returns an equal list.
func GroupQueryEvents(events []domain.QueryEvents) []domain.QueryEvents {
	if len(events) == 0 {
		return nil
	}

	var order []string
	grouped := make(map[string]*domain.QueryEvents, len(events))

	for _, qe := range events {
		group, ok := grouped[qe.Statement]
		if !ok {
			group = &domain.QueryEvents{Statement: qe.Statement}
			grouped[qe.Statement] = group
			order = append(order, qe.Statement)
		}
		group.Events = append(group.Events, qe.Events...)
	}

	out := make([]domain.QueryEvents, 0, len(order))
	for _, statement := range order {
		out = append(out, *grouped[statement])
	}
	return out
}
