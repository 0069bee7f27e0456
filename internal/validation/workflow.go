package validation

import "github.com/rendis/flowrun/pkg/schema"

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (node ids, types, app keys, placeholder references)
// 3. Graph (trigger, dangling edges, reachability, cycles)
//
// Findings never block the engine; callers decide what to do with errors.
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	apps       AppLookup
}

// NewWorkflowValidator creates a WorkflowValidator.
// lookup may be nil to skip app registration checks.
func NewWorkflowValidator(lookup AppLookup) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv, apps: lookup}, nil
}

// Validate runs the full pipeline over a decoded definition.
// Structural errors short-circuit the later stages.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}
	result := structural(wv.jsonSchema.ValidateDefinition(def))
	if !result.Valid() {
		return result
	}
	return wv.analyze(def, result)
}

// ValidateJSON validates a raw document and decodes it. The definition is
// nil when the document does not pass the structural stage.
func (wv *WorkflowValidator) ValidateJSON(raw []byte) (*schema.WorkflowDefinition, *schema.ValidationResult) {
	result := structural(wv.jsonSchema.ValidateDocument(raw))
	if !result.Valid() {
		return nil, result
	}
	def, err := schema.ParseDefinition(raw)
	if err != nil {
		result.AddError("/", schema.CodeOf(err), err.Error())
		return nil, result
	}
	return def, wv.analyze(def, result)
}

func (wv *WorkflowValidator) analyze(def *schema.WorkflowDefinition, result *schema.ValidationResult) *schema.ValidationResult {
	result.Merge(validateSemantic(def, wv.apps))
	result.Merge(validateGraph(def))
	return result
}

// structural converts a JSON Schema failure into validation issues, one per
// violation.
func structural(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}

var _ Validator = (*WorkflowValidator)(nil)
