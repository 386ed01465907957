package domain

// QueryEvents pairs one parameterized Cypher statement with the ordered list
// of parameter maps it should be invoked with. The order of Events must
// reflect source record order for each logical key.
type QueryEvents struct {
	Statement string
	Events    []map[string]any
}
