package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// AssertApp is the app key of the assertion provider.
const AssertApp = "assert"

// AssertProvider checks values mid-workflow and fails the node when a check
// does not hold. Placeholders always interpolate to strings, so string
// operands that hold JSON are decoded before comparing: "{{A.count}}"
// rendered as "3" equals a literal 3.
type AssertProvider struct{}

func (AssertProvider) Describe() Info {
	return Info{
		AppID:       AssertApp,
		Description: "Equality, containment, regex and JSON Schema checks that fail the node when they do not hold.",
		Actions:     []string{"equals", "contains", "matches", "schema"},
	}
}

func (AssertProvider) Execute(_ context.Context, in Input) (any, error) {
	switch in.ActionID {
	case "equals":
		return assertEquals(in)
	case "contains":
		return assertContains(in)
	case "matches":
		return assertMatches(in)
	case "schema":
		return assertSchema(in)
	default:
		return unsupportedAction(AssertApp, in.ActionID), nil
	}
}

func assertEquals(in Input) (any, error) {
	expected, ok := in.Config["expected"]
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'expected' is required")
	}
	actual, ok := in.Config["actual"]
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'actual' is required")
	}
	if reflect.DeepEqual(asJSONValue(expected), asJSONValue(actual)) {
		return map[string]any{"pass": true}, nil
	}
	return nil, assertionFailed(in, "values are not equal", map[string]any{"expected": expected, "actual": actual})
}

func assertContains(in Input) (any, error) {
	haystack, ok := in.Config["haystack"]
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'haystack' is required")
	}
	needle, ok := in.Config["needle"]
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'needle' is required")
	}
	details := map[string]any{"haystack": haystack, "needle": needle}

	decoded := asJSONValue(haystack)
	if _, isList := decoded.([]any); !isList {
		if s, isString := haystack.(string); isString {
			decoded = s
		}
	}
	switch hs := decoded.(type) {
	case string:
		n, isString := needle.(string)
		if !isString {
			n = stringifyValue(needle)
		}
		if strings.Contains(hs, n) {
			return map[string]any{"pass": true}, nil
		}
	case []any:
		want := asJSONValue(needle)
		for _, item := range hs {
			if reflect.DeepEqual(asJSONValue(item), want) {
				return map[string]any{"pass": true}, nil
			}
		}
	default:
		return nil, providerError(AssertApp, in.ActionID, "'haystack' must be a string or an array, got %T", haystack)
	}
	return nil, assertionFailed(in, "value not found", details)
}

func assertMatches(in Input) (any, error) {
	value, ok := in.Config["value"].(string)
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'value' must be a string")
	}
	pattern, ok := in.Config["pattern"].(string)
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'pattern' must be a string")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, providerError(AssertApp, in.ActionID, "invalid pattern: %v", err)
	}
	if !re.MatchString(value) {
		return nil, assertionFailed(in, "value does not match pattern", map[string]any{"value": value, "pattern": pattern})
	}
	return map[string]any{"pass": true, "matches": re.FindString(value)}, nil
}

func assertSchema(in Input) (any, error) {
	data, ok := in.Config["data"]
	if !ok {
		return nil, providerError(AssertApp, in.ActionID, "'data' is required")
	}
	doc := asJSONValue(in.Config["schema"])
	if _, isObject := doc.(map[string]any); !isObject {
		return nil, providerError(AssertApp, in.ActionID, "'schema' must be a JSON Schema object")
	}

	// The validator wants documents produced by its own decoder.
	schemaDoc, err := toSchemaDoc(doc)
	if err != nil {
		return nil, providerError(AssertApp, in.ActionID, "schema is not JSON-encodable").WithCause(err)
	}
	compiled, err := compileSchema("flowrun://assert/schema.json", schemaDoc)
	if err != nil {
		return nil, providerError(AssertApp, in.ActionID, "invalid schema: %v", err).WithCause(err)
	}
	instance, err := toSchemaDoc(asJSONValue(data))
	if err != nil {
		return nil, providerError(AssertApp, in.ActionID, "data is not JSON-encodable").WithCause(err)
	}

	if err := compiled.Validate(instance); err != nil {
		violations := []string{err.Error()}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			violations = collectViolations(verr)
		}
		return nil, assertionFailed(in, "data does not match schema", map[string]any{"violations": violations})
	}
	return map[string]any{"pass": true}, nil
}

// assertionFailed builds the PROVIDER_ERROR a failed check returns. A
// non-empty config "message" replaces the default text.
func assertionFailed(in Input, defaultMsg string, details map[string]any) error {
	msg := stringParam(in.Config, "message", "")
	if msg == "" {
		msg = "assertion failed: " + defaultMsg
	}
	details["assertion"] = in.ActionID
	return providerError(AssertApp, in.ActionID, "%s", msg).WithDetails(details)
}

// asJSONValue decodes strings that hold a JSON document and folds numeric
// kinds to float64 so values from literals and placeholders compare alike.
// Strings that are not JSON come back unchanged.
func asJSONValue(v any) any {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return val
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return val
		}
		return foldNumbers(decoded)
	default:
		return foldNumbers(v)
	}
}

func foldNumbers(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = foldNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = foldNumbers(item)
		}
		return out
	default:
		return v
	}
}

func stringifyValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func toSchemaDoc(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}
