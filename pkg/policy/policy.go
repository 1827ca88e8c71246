// Package policy defines the wire representation of endpoint policies:
// the flat batch/pipeline/primitive node records exchanged with the
// backend, and the request payloads built from them.
package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Node roles discriminated by PolicyTypeName. Anything else is a
// primitive backend type identifier.
const (
	TypeBatch    = "batch"
	TypePipeline = "pipeline"
)

// Attribute keys that reference other nodes. They carry graph structure,
// not primitive configuration, and are stripped when parsing.
const (
	AttrSubpolicies     = "subpolicies"
	AttrFirstSubpolicy  = "first_subpolicy"
	AttrSecondSubpolicy = "second_subpolicy"
	AttrResolver        = "resolver"
)

// ErrNotFound is returned by API implementations when a referenced
// policy object does not exist.
var ErrNotFound = errors.New("policy not found")

// Policy is one node of the flat policy graph.
//
// Exactly one node in a well-formed graph has Visible set, and it is
// always a batch: the template root carrying the display name (Label),
// Description and Tags.
type Policy struct {
	ID             string         `json:"id"`
	PolicyTypeName string         `json:"policy_type_name"`
	Label          string         `json:"label"`
	Description    string         `json:"description,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Visible        bool           `json:"visible,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// IsPrimitive reports whether p is a leaf node rather than a batch or
// pipeline wrapper.
func (p Policy) IsPrimitive() bool {
	return p.PolicyTypeName != TypeBatch && p.PolicyTypeName != TypePipeline
}

// SubpolicyIDs returns the ordered pipeline ids referenced by a batch
// node. Non-string entries are dropped.
func (p Policy) SubpolicyIDs() []string {
	raw, ok := p.Attributes[AttrSubpolicies]
	if !ok {
		return nil
	}
	switch t := raw.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SubpolicyRef returns the node id stored under key (first_subpolicy or
// second_subpolicy) on a pipeline node, or "" when absent or null.
func (p Policy) SubpolicyRef(key string) string {
	s, _ := p.Attributes[key].(string)
	return s
}

// ImportPayload is the request body for a full-graph policy import.
type ImportPayload struct {
	Policies []Policy `json:"policies"`
}

// WrapPolicies wraps a flat policy graph in the import envelope.
func WrapPolicies(policies []Policy) ImportPayload {
	return ImportPayload{Policies: policies}
}

// DecodePolicies reads a policy graph from r. Accepts either a bare JSON
// array or an object with a "policies" field, which is what the export
// endpoint returns. Numbers are kept as json.Number so attribute values
// survive a round trip without losing their textual form.
func DecodePolicies(r io.Reader) ([]Policy, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Policies json.RawMessage `json:"policies"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode policy envelope: %w", err)
		}
		if envelope.Policies == nil {
			return nil, fmt.Errorf("decode policies: object has no policies field")
		}
		raw = envelope.Policies
	}

	var policies []Policy
	arr := json.NewDecoder(bytes.NewReader(raw))
	arr.UseNumber()
	if err := arr.Decode(&policies); err != nil {
		return nil, fmt.Errorf("decode policy list: %w", err)
	}
	return policies, nil
}

// DecodePolicyBytes is DecodePolicies over a byte slice.
func DecodePolicyBytes(data []byte) ([]Policy, error) {
	return DecodePolicies(bytes.NewReader(data))
}

// Index builds an id lookup over a policy graph. Later duplicates win,
// matching backend behavior for malformed exports.
func Index(policies []Policy) map[string]Policy {
	idx := make(map[string]Policy, len(policies))
	for _, p := range policies {
		idx[p.ID] = p
	}
	return idx
}

// VisibleRoot returns the visible batch node of a graph, the template
// root. ok is false when the graph holds no template.
func VisibleRoot(policies []Policy) (Policy, bool) {
	for _, p := range policies {
		if p.Visible && p.PolicyTypeName == TypeBatch {
			return p, true
		}
	}
	return Policy{}, false
}
