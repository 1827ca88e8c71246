// Package parse reconstructs connectivity templates from the flat
// policy list returned by the export endpoint. The walk is tolerant:
// references that cannot be resolved are skipped and reported as
// diagnostics instead of failing the whole parse.
package parse

import (
	"encoding/json"
	"fmt"

	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/policy"
	"github.com/loomworks/ctc/pkg/primitives"
)

// Diagnostic codes for references the walk could not follow.
const (
	DiagDanglingPipeline     = "DIAG_DANGLING_PIPELINE"
	DiagDanglingPrimitive    = "DIAG_DANGLING_PRIMITIVE"
	DiagDanglingChildBatch   = "DIAG_DANGLING_CHILD_BATCH"
	DiagUnknownPrimitiveType = "DIAG_UNKNOWN_PRIMITIVE_TYPE"
	DiagPolicyCycle          = "DIAG_POLICY_CYCLE"
)

// Diagnostic records one skipped reference.
type Diagnostic struct {
	Code     string `json:"code"`
	PolicyID string `json:"policy_id,omitempty"`
	Message  string `json:"message"`
}

// Parse walks the batch -> pipeline -> primitive hierarchy of an
// exported policy list and rebuilds the template document. It returns
// nil when the list is empty or has no visible batch. The template
// type is not recorded in the export and is left empty. Instance
// names come from primitive labels, so two primitives of one type
// sharing a label collapse into one instance, the later one winning.
func Parse(policies []policy.Policy) (*ct.Template, []Diagnostic) {
	if len(policies) == 0 {
		return nil, nil
	}
	root, ok := policy.VisibleRoot(policies)
	if !ok {
		return nil, nil
	}

	p := &parser{idx: policy.Index(policies), visiting: map[string]bool{}}
	prims := p.batchChildren(root)

	tags := root.Tags
	if tags == nil {
		tags = []string{}
	}
	return &ct.Template{
		ID:          root.ID,
		Name:        root.Label,
		Description: root.Description,
		Tags:        tags,
		Primitives:  prims,
	}, p.diags
}

type parser struct {
	idx      map[string]policy.Policy
	visiting map[string]bool
	diags    []Diagnostic
}

// batchChildren walks one batch. The visiting set is scoped to the
// current descent so shared subtrees still expand everywhere they are
// referenced while true cycles are cut.
func (p *parser) batchChildren(batch policy.Policy) ct.Primitives {
	prims := ct.Primitives{}
	if p.visiting[batch.ID] {
		p.diag(DiagPolicyCycle, batch.ID,
			fmt.Sprintf("batch %q is part of a reference cycle and was not expanded again", batch.ID))
		return prims
	}
	p.visiting[batch.ID] = true
	defer delete(p.visiting, batch.ID)

	for _, pipeID := range batch.SubpolicyIDs() {
		pipe, ok := p.idx[pipeID]
		if !ok {
			p.diag(DiagDanglingPipeline, pipeID,
				fmt.Sprintf("batch %q references subpolicy %q which is missing from the export", batch.ID, pipeID))
			continue
		}
		if pipe.PolicyTypeName != policy.TypePipeline {
			p.diag(DiagDanglingPipeline, pipeID,
				fmt.Sprintf("batch %q references subpolicy %q which is a %s, not a pipeline", batch.ID, pipeID, pipe.PolicyTypeName))
			continue
		}

		firstID := pipe.SubpolicyRef(policy.AttrFirstSubpolicy)
		prim, ok := p.idx[firstID]
		if !ok {
			p.diag(DiagDanglingPrimitive, firstID,
				fmt.Sprintf("pipeline %q references primitive %q which is missing from the export", pipe.ID, firstID))
			continue
		}

		typ, ok := primitives.FromPolicyTypeName(prim.PolicyTypeName)
		if !ok {
			p.diag(DiagUnknownPrimitiveType, prim.ID,
				fmt.Sprintf("policy %q has unknown policy type %q", prim.ID, prim.PolicyTypeName))
			continue
		}
		plural, _ := primitives.Plural(typ)

		cfg := cleanAttributes(prim.Attributes)
		p.mergeChildren(pipe, cfg)

		name := prim.Label
		if name == "" {
			name = "unnamed"
		}
		if prims[plural] == nil {
			prims[plural] = ct.Instances{}
		}
		prims[plural][name] = cfg
	}
	return prims
}

// mergeChildren resolves a pipeline's second subpolicy, a child batch
// holding nested primitives, and merges its groups into cfg under
// their plural keys.
func (p *parser) mergeChildren(pipe policy.Policy, cfg ct.Config) {
	secondID := pipe.SubpolicyRef(policy.AttrSecondSubpolicy)
	if secondID == "" {
		return
	}
	child, ok := p.idx[secondID]
	if !ok {
		p.diag(DiagDanglingChildBatch, secondID,
			fmt.Sprintf("pipeline %q references child batch %q which is missing from the export", pipe.ID, secondID))
		return
	}
	if child.PolicyTypeName != policy.TypeBatch {
		p.diag(DiagDanglingChildBatch, secondID,
			fmt.Sprintf("pipeline %q references child batch %q which is a %s, not a batch", pipe.ID, secondID, child.PolicyTypeName))
		return
	}
	for plural, instances := range p.batchChildren(child) {
		cfg[plural] = instances
	}
}

func (p *parser) diag(code, policyID, msg string) {
	p.diags = append(p.diags, Diagnostic{Code: code, PolicyID: policyID, Message: msg})
}

// internalAttrs are policy graph plumbing, not user attributes.
var internalAttrs = map[string]bool{
	policy.AttrSubpolicies:     true,
	policy.AttrFirstSubpolicy:  true,
	policy.AttrSecondSubpolicy: true,
	policy.AttrResolver:        true,
}

// cleanAttributes copies attrs dropping nulls and internal keys, and
// turns json.Number values back into native numbers so re-encoding the
// template (YAML in particular) renders them unquoted. Deep null
// handling belongs to the normalize package.
func cleanAttributes(attrs map[string]any) ct.Config {
	cfg := ct.Config{}
	for k, v := range attrs {
		if v == nil || internalAttrs[k] {
			continue
		}
		cfg[k] = nativeNumbers(v)
	}
	return cfg
}

// nativeNumbers converts json.Number leaves to int64 or float64,
// recursively. Values that fit neither keep their textual form.
func nativeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = nativeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = nativeNumbers(val)
		}
		return out
	default:
		return v
	}
}
