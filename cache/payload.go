package cache

import (
	"fmt"
	"strconv"

	"github.com/TheShubhendra/marriagebot/relay"
)

// Payload field coercion. JSON decodes numbers as float64, msgpack as
// int64/uint64, and some publishers send IDs as strings; handlers accept all
// of them rather than depending on the wire format.

func payloadUint64(payload relay.Payload, field string) (uint64, error) {
	v, ok := payload[field]
	if !ok {
		return 0, fmt.Errorf("payload is missing field %q", field)
	}
	return coerceUint64(v, field)
}

func coerceUint64(v interface{}, field string) (uint64, error) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, fmt.Errorf("field %q is negative: %v", field, n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("field %q is negative: %v", field, n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("field %q is negative: %v", field, n)
		}
		return uint64(n), nil
	case string:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not a numeric string: %w", field, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("field %q has unexpected type %T", field, v)
	}
}

func payloadString(payload relay.Payload, field string) (string, error) {
	v, ok := payload[field]
	if !ok {
		return "", fmt.Errorf("payload is missing field %q", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has unexpected type %T", field, v)
	}
	return s, nil
}

func payloadUint64Slice(payload relay.Payload, field string) ([]uint64, error) {
	v, ok := payload[field]
	if !ok {
		return nil, fmt.Errorf("payload is missing field %q", field)
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q has unexpected type %T", field, v)
	}

	out := make([]uint64, 0, len(raw))
	for i, item := range raw {
		id, err := coerceUint64(item, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
