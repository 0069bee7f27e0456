package validation

import (
	"fmt"

	"github.com/rendis/flowrun/internal/expressions"
	"github.com/rendis/flowrun/pkg/schema"
)

// validateSemantic checks node-level facts: ids, node types, app keys and
// the node ids placeholders read from. lookup may be nil to skip the
// registration check.
func validateSemantic(def *schema.WorkflowDefinition, lookup AppLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	ids := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		ids[n.ID] = true
	}

	seen := make(map[string]bool, len(def.Nodes))
	for i, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if n.ID == "" {
			result.AddError(path+".id", schema.IssueEmptyNodeID, "node id is empty")
		} else if seen[n.ID] {
			result.AddWarning(path+".id", schema.IssueDuplicateNode,
				fmt.Sprintf("node id %q is defined more than once; only the first definition is used", n.ID))
		}
		seen[n.ID] = true

		switch n.Type.Kind() {
		case schema.NodeKindUnknown:
			result.AddWarning(path+".type", schema.IssueUnknownNodeType,
				fmt.Sprintf("node %q has unknown type %q and will not be executed", n.ID, n.Type))
		case schema.NodeKindAction:
			switch {
			case n.AppID == "":
				result.AddWarning(path+".appId", schema.IssueMissingApp,
					fmt.Sprintf("action node %q has no appId and will be skipped", n.ID))
			case lookup != nil && !lookup.Has(n.AppID):
				result.AddWarning(path+".appId", schema.IssueUnknownApp,
					fmt.Sprintf("no provider registered for app %q; node %q will be skipped", n.AppID, n.ID))
			}
		}

		for _, ref := range expressions.References(n.Config) {
			id, ok := expressions.NodeReference(ref)
			if !ok || id == expressions.TriggerAlias || ids[id] {
				continue
			}
			result.AddWarning(path+".config", schema.IssueUnknownReference,
				fmt.Sprintf("placeholder {{%s}} references unknown node %q and will render empty", ref, id))
		}
	}
	return result
}
