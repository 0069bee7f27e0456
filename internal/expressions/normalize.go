package expressions

import (
	"encoding/json"
)

// Normalize converts v into plain JSON values: map[string]any, []any,
// strings, bools, numbers and nil. Go-typed containers such as
// map[string]string or []map[string]any are re-encoded through JSON so that
// path lookups and result inspection see the same shapes a decoded JSON
// document would have. Scalars are returned unchanged.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
