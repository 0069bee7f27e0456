package validation

import "github.com/rendis/flowrun/pkg/schema"

// Validator checks workflow definitions before they are run.
type Validator interface {
	Validate(def *schema.WorkflowDefinition) *schema.ValidationResult
	ValidateJSON(raw []byte) (*schema.WorkflowDefinition, *schema.ValidationResult)
}

// AppLookup reports whether a provider is registered for an app key.
// providers.Registry satisfies it.
type AppLookup interface {
	Has(appID string) bool
}
