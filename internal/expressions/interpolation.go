package expressions

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// Namespaces with a dedicated resolution tier.
const (
	nsVariables = "variables"
	nsTrigger   = "trigger"
	nsNodes     = "nodes"
)

// Interpolate replaces {{ expr }} placeholders in every string reachable from
// value. Arrays and objects are rebuilt element by element with keys left
// untouched; other JSON values pass through. Neither value nor ec is mutated.
func Interpolate(value any, ec *ExecutionContext) any {
	switch v := value.(type) {
	case string:
		return InterpolateString(v, ec)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Interpolate(item, ec)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Interpolate(item, ec)
		}
		return out
	default:
		return value
	}
}

// InterpolateConfig is Interpolate specialised to a node config object.
func InterpolateConfig(config map[string]any, ec *ExecutionContext) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	return Interpolate(config, ec).(map[string]any)
}

// InterpolateString substitutes each placeholder in s. Strings without
// placeholders are returned unchanged. Unresolved references become "".
func InterpolateString(s string, ec *ExecutionContext) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		expr := strings.TrimSpace(placeholderRe.FindStringSubmatch(match)[1])
		val, ok := Resolve(expr, ec)
		if !ok {
			return ""
		}
		return stringify(val)
	})
}

// Resolve looks up a placeholder expression. Tiers, first hit wins:
//  1. the expression as a path into the whole context
//  2. variables.<path> against the variables
//  3. trigger.<path> against the trigger payload
//  4. nodes.<path> against the node outputs
//  5. <nodeId>.<path> into that node's output
func Resolve(expr string, ec *ExecutionContext) (any, bool) {
	if ec == nil || expr == "" {
		return nil, false
	}
	path := ParsePath(expr)

	if v, ok := path.Lookup(ec.View()); ok {
		return v, true
	}

	head, rest := path.Head()
	switch head {
	case nsVariables:
		if v, ok := rest.Lookup(ec.Variables); ok {
			return v, true
		}
	case nsTrigger:
		if v, ok := rest.Lookup(ec.Trigger); ok {
			return v, true
		}
	case nsNodes:
		if v, ok := rest.Lookup(ec.Nodes); ok {
			return v, true
		}
	}

	output, ok := ec.Nodes[head]
	if !ok {
		return nil, false
	}
	return rest.Lookup(output)
}

// stringify renders a resolved value: strings raw, everything else as JSON.
func stringify(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprintf("%v", val)
	}
	return string(b)
}

// HasPlaceholders reports whether any string inside value contains a placeholder.
func HasPlaceholders(value any) bool {
	return len(References(value)) > 0
}

// References lists the distinct placeholder expressions inside value, in
// the order they first appear. Object keys are visited in sorted order.
func References(value any) []string {
	seen := make(map[string]bool)
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, m := range placeholderRe.FindAllStringSubmatch(val, -1) {
				expr := strings.TrimSpace(m[1])
				if !seen[expr] {
					seen[expr] = true
					refs = append(refs, expr)
				}
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		case map[string]any:
			for _, k := range mapKeys(val) {
				walk(val[k])
			}
		}
	}
	walk(value)
	return refs
}

// NodeReference returns the node id a placeholder expression reads from, if
// it reads from a node output at all.
func NodeReference(expr string) (string, bool) {
	head, rest := ParsePath(expr).Head()
	switch head {
	case "", nsVariables, nsTrigger:
		return "", false
	case nsNodes:
		id, _ := rest.Head()
		return id, id != ""
	default:
		return head, true
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
