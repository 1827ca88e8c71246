package policy

import "github.com/loomworks/ctc/pkg/primitives"

// Rebind records a routing-policy primitive whose rp_to_attach value
// must be re-written through the per-policy PATCH path after a graph
// import. The batch import stores rp_to_attach as a plain attribute but
// does not create the graph edge the UI reads; the follow-up PATCH of
// the same value does.
type Rebind struct {
	PolicyID        string
	RoutingPolicyID string
}

// RoutingPolicyRebinds collects the rebinds needed for a freshly
// imported policy graph.
func RoutingPolicyRebinds(policies []Policy) []Rebind {
	rpType, _ := primitives.PolicyTypeName(primitives.RoutingPolicy)

	var out []Rebind
	for _, p := range policies {
		if p.PolicyTypeName != rpType {
			continue
		}
		rp, _ := p.Attributes["rp_to_attach"].(string)
		if rp == "" {
			continue
		}
		out = append(out, Rebind{PolicyID: p.ID, RoutingPolicyID: rp})
	}
	return out
}

// Attributes returns the attribute patch that re-writes the binding.
func (r Rebind) Attributes() map[string]any {
	return map[string]any{"rp_to_attach": r.RoutingPolicyID}
}
