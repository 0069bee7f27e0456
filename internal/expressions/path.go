package expressions

import (
	"strconv"
	"strings"
)

// Path is a dotted reference split into segments. "items[0].name" and
// "items.0.name" produce the same segments.
type Path []string

// ParsePath splits a dotted expression. An empty string yields an empty path.
func ParsePath(expr string) Path {
	if expr == "" {
		return Path{}
	}
	expr = strings.ReplaceAll(expr, "[", ".")
	expr = strings.ReplaceAll(expr, "]", "")
	return Path(strings.Split(expr, "."))
}

// Head returns the first segment and the rest of the path.
func (p Path) Head() (string, Path) {
	if len(p) == 0 {
		return "", nil
	}
	return p[0], p[1:]
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Lookup walks root along the path. Maps are indexed by key and slices by
// non-negative integer segments. found is false as soon as a segment cannot
// be followed; a present JSON null is found.
func (p Path) Lookup(root any) (value any, found bool) {
	current := root
	for _, seg := range p {
		if seg == "" {
			return nil, false
		}
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
