package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

func stringParam(m map[string]any, key, defaultVal string) string {
	s, ok := m[key].(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	b, ok := m[key].(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func intParam(m map[string]any, key string, defaultVal int) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

func floatParam(m map[string]any, key string, defaultVal float64) float64 {
	switch n := m[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return defaultVal
		}
		return f
	default:
		return defaultVal
	}
}

func mapParam(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// compileConfigSchema compiles a static config schema. It panics on a bad
// schema, which only happens on a programming error.
func compileConfigSchema(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("config schema %s: %v", name, err))
	}
	s, err := compileSchema("flowrun://providers/"+name+".json", doc)
	if err != nil {
		panic(fmt.Sprintf("config schema %s: %v", name, err))
	}
	return s
}

// compileSchema compiles an already decoded schema document under url.
func compileSchema(url string, doc any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// checkConfig validates an interpolated node config against s. Violations
// come back as PROVIDER_ERROR with the individual messages in the details.
func checkConfig(s *jsonschema.Schema, appID, actionID string, config map[string]any) error {
	b, err := json.Marshal(config)
	if err != nil {
		return providerError(appID, actionID, "config is not JSON-encodable").WithCause(err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
	if err != nil {
		return providerError(appID, actionID, "config is not JSON-encodable").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		violations := []string{err.Error()}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			violations = collectViolations(verr)
		}
		return providerError(appID, actionID, "invalid config: %s", strings.Join(violations, "; ")).
			WithDetails(map[string]any{"violations": violations})
	}
	return nil
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{"/" + strings.Join(verr.InstanceLocation, "/") + ": " + verr.Error()}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
