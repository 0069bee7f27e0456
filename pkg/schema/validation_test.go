package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_Severity(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())

	r.AddWarning("connections[2]", IssueDanglingEdge, "edge A -> ghost points at a missing node")
	assert.True(t, r.Valid(), "lint warnings never block a run")
	assert.NoError(t, r.ToError())

	r.AddError("nodes[1].id", IssueEmptyNodeID, "node id is empty")
	assert.False(t, r.Valid())
	assert.Equal(t, ValidationIssue{
		Path:     "nodes[1].id",
		Code:     IssueEmptyNodeID,
		Message:  "node id is empty",
		Severity: SeverityError,
	}, r.Errors[0])
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	structural := &ValidationResult{}
	structural.AddError("nodes", ErrCodeValidation, "nodes must be an array")

	graph := &ValidationResult{}
	graph.AddWarning("nodes[island]", IssueUnreachable, "unreachable from trigger")
	graph.AddWarning("nodes", IssueCycle, "cycle among T, A, B")

	structural.Merge(graph)
	structural.Merge(nil)
	assert.Len(t, structural.Errors, 1)
	assert.Len(t, structural.Warnings, 2)
}

func TestValidationResult_ToError(t *testing.T) {
	tests := []struct {
		name     string
		errors   [][2]string
		warnings int
		code     string
		message  string
	}{
		{
			name:    "single structural error",
			errors:  [][2]string{{ErrCodeValidation, "node without type"}},
			code:    ErrCodeValidation,
			message: "node without type",
		},
		{
			name:     "counts errors and warnings",
			errors:   [][2]string{{IssueEmptyNodeID, "empty id"}, {ErrCodeValidation, "bad config"}},
			warnings: 1,
			code:     ErrCodeValidation,
			message:  "2 errors",
		},
		{
			name:    "trigger code wins when first",
			errors:  [][2]string{{ErrCodeMultipleTriggers, "2 trigger nodes"}, {ErrCodeValidation, "other"}},
			code:    ErrCodeMultipleTriggers,
			message: "2 errors",
		},
		{
			name:    "missing trigger",
			errors:  [][2]string{{ErrCodeNoTrigger, "no trigger node"}},
			code:    ErrCodeNoTrigger,
			message: "no trigger node",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ValidationResult{}
			for _, e := range tt.errors {
				r.AddError("/", e[0], e[1])
			}
			for i := 0; i < tt.warnings; i++ {
				r.AddWarning("/", IssueUnknownApp, "no provider")
			}

			err := r.ToError()
			var fe *FlowError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.code, fe.Code)
			assert.Contains(t, fe.Message, tt.message)
			assert.Equal(t, len(tt.errors), fe.Details["error_count"])
			assert.Equal(t, tt.warnings, fe.Details["warning_count"])
		})
	}
}
