package policy

import (
	"sort"
	"strings"
)

// AssignmentStates walks an application-points tree, as returned by the
// application-points endpoint, and returns the assignment state of ctID
// per interface node id.
//
// The tree nests in two ways: every node may carry a "children" list,
// and the top-level response wraps the root under an "application_points"
// object. Both are followed. Nodes of type "interface" hold a "policies"
// list whose entries pair a policy id with a state string.
func AssignmentStates(tree any, ctID string) map[string]string {
	states := make(map[string]string)
	walkPoints(tree, ctID, states)
	return states
}

// AssignedPoints returns the sorted interface node ids on which ctID is
// currently applied. A state counts as applied when it starts with
// "used"; the backend reports variants such as "used-by-intent".
func AssignedPoints(tree any, ctID string) []string {
	var out []string
	for id, state := range AssignmentStates(tree, ctID) {
		if strings.HasPrefix(state, "used") {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func walkPoints(v any, ctID string, states map[string]string) {
	node, ok := v.(map[string]any)
	if !ok {
		return
	}

	if node["type"] == "interface" {
		id, _ := node["id"].(string)
		if policies, ok := node["policies"].([]any); ok && id != "" {
			for _, raw := range policies {
				pol, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if pol["policy"] != ctID {
					continue
				}
				state, _ := pol["state"].(string)
				if state == "" {
					state = "unused"
				}
				states[id] = state
			}
		}
	}

	if children, ok := node["children"].([]any); ok {
		for _, child := range children {
			walkPoints(child, ctID, states)
		}
	}

	if ap, ok := node["application_points"].(map[string]any); ok {
		if children, ok := ap["children"].([]any); ok {
			for _, child := range children {
				walkPoints(child, ctID, states)
			}
		}
	}
}
