// Package compile materializes connectivity templates into the flat
// policy graph the import endpoint expects. Each primitive instance
// becomes a primitive node plus a pipeline node; nested children become
// a batch referenced by the pipeline's second subpolicy; the top-level
// pipelines are collected under a single visible batch whose label is
// the template name.
package compile

import (
	"sort"

	"github.com/google/uuid"

	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/policy"
	"github.com/loomworks/ctc/pkg/primitives"
)

// Builder turns templates into policy graphs.
type Builder struct {
	// NewID mints policy node ids. Defaults to uuid.NewString.
	NewID func() string
}

// NewBuilder returns a Builder with random ids.
func NewBuilder() *Builder {
	return &Builder{NewID: uuid.NewString}
}

// Build materializes tpl into policy nodes and returns them together
// with the id of the visible root batch, which becomes the template id
// once imported. Nodes are emitted depth first with plural keys and
// instance names walked in sorted order, so the same template always
// produces the same graph shape. The template is assumed valid; call
// (*ct.Template).Validate first. Keys that are not known plural
// primitive types are carried as plain attributes.
func (b *Builder) Build(tpl *ct.Template) ([]policy.Policy, string) {
	r := &run{newID: b.NewID}

	group := make(map[string]any, len(tpl.Primitives))
	for k, v := range tpl.Primitives {
		group[k] = v
	}
	pipelines := r.group(group)

	rootID := r.newID()
	tags := tpl.Tags
	if tags == nil {
		tags = []string{}
	}
	r.out = append(r.out, policy.Policy{
		ID:             rootID,
		PolicyTypeName: policy.TypeBatch,
		Label:          tpl.Name,
		Description:    tpl.Description,
		Tags:           tags,
		Visible:        true,
		Attributes:     map[string]any{policy.AttrSubpolicies: pipelines},
	})
	return r.out, rootID
}

type run struct {
	newID func() string
	out   []policy.Policy
}

// group emits the nodes for one plural-keyed group of instances and
// returns the pipeline ids in emission order.
func (r *run) group(prims map[string]any) []string {
	pipelines := []string{}

	plurals := make([]string, 0, len(prims))
	for k := range prims {
		plurals = append(plurals, k)
	}
	sort.Strings(plurals)

	for _, plural := range plurals {
		typ, ok := primitives.FromPlural(plural)
		if !ok {
			continue
		}
		backend, _ := primitives.PolicyTypeName(typ)

		insts, ok := ct.AsInstances(prims[plural])
		if !ok {
			continue
		}
		names := make([]string, 0, len(insts))
		for name := range insts {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			pipelines = append(pipelines, r.instance(backend, name, insts[name]))
		}
	}
	return pipelines
}

// instance emits one primitive node, its child subtree if any, and the
// pipeline tying them together. Returns the pipeline id.
func (r *run) instance(backend, name string, cfg ct.Config) string {
	attrs, children := splitConfig(cfg)

	primID := r.newID()
	r.out = append(r.out, policy.Policy{
		ID:             primID,
		PolicyTypeName: backend,
		Label:          name,
		Attributes:     attrs,
	})

	var childBatch any
	if len(children) > 0 {
		childPipelines := r.group(children)
		id := r.newID()
		r.out = append(r.out, policy.Policy{
			ID:             id,
			PolicyTypeName: policy.TypeBatch,
			Label:          name + " (batch)",
			Attributes:     map[string]any{policy.AttrSubpolicies: childPipelines},
		})
		childBatch = id
	}

	pipeID := r.newID()
	r.out = append(r.out, policy.Policy{
		ID:             pipeID,
		PolicyTypeName: policy.TypePipeline,
		Label:          name + " (pipeline)",
		Attributes: map[string]any{
			policy.AttrFirstSubpolicy:  primID,
			policy.AttrSecondSubpolicy: childBatch,
		},
	})
	return pipeID
}

// splitConfig separates a config into plain attributes and child
// primitive groups. Keys matching a known plural primitive type are
// children, everything else is an attribute.
func splitConfig(cfg ct.Config) (map[string]any, map[string]any) {
	attrs := map[string]any{}
	children := map[string]any{}
	for k, v := range cfg {
		if primitives.IsPlural(k) {
			children[k] = v
		} else {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	return attrs, children
}
