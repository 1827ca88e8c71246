// Package reconcile drives a blueprint toward a desired template state.
//
// Templates are replaced, not edited in place: an update unassigns the
// existing template from its application points, deletes it, imports
// the freshly compiled graph under new ids, and re-applies the saved
// assignments. The server has no partial-update path for policy graphs,
// so this sequence is the unit of change.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomworks/ctc/pkg/compile"
	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/parse"
	"github.com/loomworks/ctc/pkg/plan"
	"github.com/loomworks/ctc/pkg/policy"
)

// API is the server surface reconciliation needs. *client.Client
// satisfies it.
type API interface {
	ListPolicies(ctx context.Context, blueprint string) ([]policy.Policy, error)
	ExportPolicies(ctx context.Context, blueprint, ctID string) ([]policy.Policy, error)
	ImportPolicies(ctx context.Context, blueprint string, payload policy.ImportPayload) error
	DeletePolicy(ctx context.Context, blueprint, policyID string) error
	PatchPolicyAttributes(ctx context.Context, blueprint, policyID string, attrs map[string]any) error
	BatchApply(ctx context.Context, blueprint string, payload policy.BatchApplyPayload) error
	ApplicationPoints(ctx context.Context, blueprint, ctID string) (any, error)
}

// Result reports what a reconciliation did.
type Result struct {
	Action   plan.Action  `json:"action"`
	CTID     string       `json:"ct_id,omitempty"`
	Reasons  []string     `json:"reasons,omitempty"`
	Template *ct.Template `json:"template,omitempty"`
}

// Reconciler compares desired templates against a blueprint and applies
// the difference.
type Reconciler struct {
	API     API
	Builder *compile.Builder
	Log     *slog.Logger
}

func New(api API) *Reconciler {
	return &Reconciler{
		API:     api,
		Builder: compile.NewBuilder(),
		Log:     slog.Default(),
	}
}

// FindByName returns the visible batch node labeled name, the root of
// an existing template.
func (r *Reconciler) FindByName(ctx context.Context, blueprint, name string) (policy.Policy, bool, error) {
	policies, err := r.API.ListPolicies(ctx, blueprint)
	if err != nil {
		return policy.Policy{}, false, err
	}
	for _, p := range policies {
		if p.Visible && p.PolicyTypeName == policy.TypeBatch && p.Label == name {
			return p, true, nil
		}
	}
	return policy.Policy{}, false, nil
}

// Pull fetches the template named name and parses it back to nested
// form. Diagnostics report policy objects the parse skipped.
func (r *Reconciler) Pull(ctx context.Context, blueprint, name string) (*ct.Template, []parse.Diagnostic, error) {
	root, found, err := r.FindByName(ctx, blueprint, name)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("connectivity template %q: %w", name, policy.ErrNotFound)
	}
	export, err := r.API.ExportPolicies(ctx, blueprint, root.ID)
	if err != nil {
		return nil, nil, err
	}
	tpl, diags := parse.Parse(export)
	if tpl == nil {
		return nil, diags, fmt.Errorf("export of %q holds no visible template", name)
	}
	return tpl, diags, nil
}

// Diff evaluates desired against the blueprint without changing
// anything. The returned template is the current state, nil when the
// template does not exist yet.
func (r *Reconciler) Diff(ctx context.Context, blueprint string, desired *ct.Template) (*plan.Diff, *ct.Template, error) {
	current, found, err := r.FindByName(ctx, blueprint, desired.Name)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		diff, err := plan.Evaluate(desired, nil)
		return diff, nil, err
	}
	export, err := r.API.ExportPolicies(ctx, blueprint, current.ID)
	if err != nil {
		return nil, nil, err
	}
	currentTpl, _ := parse.Parse(export)
	diff, err := plan.Evaluate(desired, currentTpl)
	if err != nil {
		return nil, nil, err
	}
	return diff, currentTpl, nil
}

// EnsurePresent creates or replaces the template so the blueprint
// matches desired. No server state changes when the template already
// matches.
func (r *Reconciler) EnsurePresent(ctx context.Context, blueprint string, desired *ct.Template) (*Result, error) {
	if desired.Name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if err := desired.Validate(); err != nil {
		return nil, err
	}

	current, found, err := r.FindByName(ctx, blueprint, desired.Name)
	if err != nil {
		return nil, err
	}
	if !found {
		return r.create(ctx, blueprint, desired)
	}

	export, err := r.API.ExportPolicies(ctx, blueprint, current.ID)
	if err != nil {
		return nil, err
	}
	currentTpl, diags := parse.Parse(export)
	for _, d := range diags {
		r.Log.Warn("reconcile: skipped policy object", "code", d.Code, "policy_id", d.PolicyID, "detail", d.Message)
	}

	var reasons []string
	if currentTpl == nil {
		reasons = []string{"current state not parseable"}
	} else {
		diff, err := plan.Evaluate(desired, currentTpl)
		if err != nil {
			return nil, err
		}
		if !diff.Changed() {
			return &Result{Action: plan.ActionNone, CTID: current.ID, Template: currentTpl}, nil
		}
		reasons = diff.Reasons
	}
	return r.update(ctx, blueprint, current.ID, desired, reasons)
}

// EnsureAbsent removes the template named name, releasing its
// application point assignments first.
func (r *Reconciler) EnsureAbsent(ctx context.Context, blueprint, name string) (*Result, error) {
	current, found, err := r.FindByName(ctx, blueprint, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Result{Action: plan.ActionNone}, nil
	}

	saved, err := r.savedAssignments(ctx, blueprint, current.ID)
	if err != nil {
		return nil, err
	}
	if len(saved) > 0 {
		if err := r.API.BatchApply(ctx, blueprint, policy.NewBatchApply(current.ID, nil, saved)); err != nil {
			return nil, fmt.Errorf("unassign %s: %w", current.ID, err)
		}
	}
	if err := r.API.DeletePolicy(ctx, blueprint, current.ID); err != nil {
		return nil, fmt.Errorf("delete %s: %w", current.ID, err)
	}

	r.Log.Info("reconcile: deleted connectivity template",
		"blueprint", blueprint, "name", name, "ct_id", current.ID, "released_points", len(saved))
	return &Result{Action: plan.ActionDelete, CTID: current.ID}, nil
}

func (r *Reconciler) create(ctx context.Context, blueprint string, desired *ct.Template) (*Result, error) {
	graph, rootID := r.Builder.Build(desired)
	if err := r.API.ImportPolicies(ctx, blueprint, policy.WrapPolicies(graph)); err != nil {
		return nil, fmt.Errorf("import policy graph: %w", err)
	}
	if err := r.rebindRoutingPolicies(ctx, blueprint, graph); err != nil {
		return nil, err
	}
	tpl, err := r.readBack(ctx, blueprint, rootID)
	if err != nil {
		return nil, err
	}

	r.Log.Info("reconcile: created connectivity template",
		"blueprint", blueprint, "name", desired.Name, "ct_id", rootID)
	return &Result{Action: plan.ActionCreate, CTID: rootID, Template: tpl}, nil
}

func (r *Reconciler) update(ctx context.Context, blueprint, currentID string, desired *ct.Template, reasons []string) (*Result, error) {
	// Assignments survive the replacement: save them, release them so
	// the delete is allowed, and re-apply them to the new root.
	saved, err := r.savedAssignments(ctx, blueprint, currentID)
	if err != nil {
		return nil, err
	}
	if len(saved) > 0 {
		if err := r.API.BatchApply(ctx, blueprint, policy.NewBatchApply(currentID, nil, saved)); err != nil {
			return nil, fmt.Errorf("unassign %s: %w", currentID, err)
		}
	}
	if err := r.API.DeletePolicy(ctx, blueprint, currentID); err != nil {
		return nil, fmt.Errorf("delete %s: %w", currentID, err)
	}

	graph, rootID := r.Builder.Build(desired)
	if err := r.API.ImportPolicies(ctx, blueprint, policy.WrapPolicies(graph)); err != nil {
		return nil, fmt.Errorf("import policy graph: %w", err)
	}
	if err := r.rebindRoutingPolicies(ctx, blueprint, graph); err != nil {
		return nil, err
	}
	if len(saved) > 0 {
		if err := r.API.BatchApply(ctx, blueprint, policy.NewBatchApply(rootID, saved, nil)); err != nil {
			return nil, fmt.Errorf("reassign %s: %w", rootID, err)
		}
	}

	tpl, err := r.readBack(ctx, blueprint, rootID)
	if err != nil {
		return nil, err
	}

	r.Log.Info("reconcile: replaced connectivity template",
		"blueprint", blueprint, "name", desired.Name, "old_ct_id", currentID, "ct_id", rootID,
		"reasons", reasons, "restored_points", len(saved))
	return &Result{Action: plan.ActionUpdate, CTID: rootID, Reasons: reasons, Template: tpl}, nil
}

func (r *Reconciler) savedAssignments(ctx context.Context, blueprint, ctID string) ([]string, error) {
	points, err := r.API.ApplicationPoints(ctx, blueprint, ctID)
	if err != nil {
		return nil, fmt.Errorf("application points of %s: %w", ctID, err)
	}
	return policy.AssignedPoints(points, ctID), nil
}

// rebindRoutingPolicies re-writes rp_to_attach on freshly imported
// routing policy primitives. The import stores the attribute but does
// not create the graph edge; the per-policy PATCH does.
func (r *Reconciler) rebindRoutingPolicies(ctx context.Context, blueprint string, graph []policy.Policy) error {
	for _, rb := range policy.RoutingPolicyRebinds(graph) {
		if err := r.API.PatchPolicyAttributes(ctx, blueprint, rb.PolicyID, rb.Attributes()); err != nil {
			return fmt.Errorf("rebind routing policy %s: %w", rb.PolicyID, err)
		}
	}
	return nil
}

func (r *Reconciler) readBack(ctx context.Context, blueprint, ctID string) (*ct.Template, error) {
	export, err := r.API.ExportPolicies(ctx, blueprint, ctID)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", ctID, err)
	}
	tpl, _ := parse.Parse(export)
	if tpl == nil {
		return nil, fmt.Errorf("read back %s: export holds no visible template", ctID)
	}
	return tpl, nil
}
