package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the decoded input unit handed to the sink pipeline. Key and Value
// carry already-deserialized structured values: nil, a scalar, a []any or a
// map[string]any with string keys. Handlers must not retain a Record beyond
// the handler call.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       any
	Value     any
	Timestamp time.Time
	Headers   map[string]string
}

// IsTombstone reports whether the record signals deletion of the keyed entity.
func (r Record) IsTombstone() bool {
	return r.Value == nil
}

// ValueMap returns the record value as a keyed mapping.
func (r Record) ValueMap() (map[string]any, error) {
	m, ok := r.Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: value is %T, expected a keyed mapping", ErrMalformedRecord, r.Value)
	}
	return m, nil
}

// KeyMap returns the record key as a keyed mapping.
func (r Record) KeyMap() (map[string]any, error) {
	m, ok := r.Key.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: key is %T, expected a keyed mapping", ErrMalformedRecord, r.Key)
	}
	return m, nil
}

// DecodeValue re-shapes the decoded record value into the given target
// structure. Used by the CDC handlers, which receive transaction events as
// generic mappings.
func DecodeValue(value any, target any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
