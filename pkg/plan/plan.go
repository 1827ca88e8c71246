// Package plan decides whether a desired template needs to be created,
// replaced, or left alone, given the current state parsed from an
// export. Primitives are compared canonically, so attribute order,
// null noise, and number formatting never cause spurious updates.
package plan

import (
	"fmt"
	"sort"

	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/normalize"
)

// Action is the outcome of a comparison.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNone   Action = "none"
)

// Diff describes what Evaluate decided and why.
type Diff struct {
	Action  Action   `json:"action"`
	Reasons []string `json:"reasons,omitempty"`
}

// Changed reports whether applying the diff would modify anything.
func (d *Diff) Changed() bool {
	return d.Action != ActionNone
}

// Evaluate compares desired against current. A nil current means the
// template does not exist yet. Reasons are ordered primitives,
// description, tags.
func Evaluate(desired, current *ct.Template) (*Diff, error) {
	if current == nil {
		return &Diff{Action: ActionCreate}, nil
	}

	var reasons []string

	eq, err := normalize.Equal(primsOf(desired), primsOf(current))
	if err != nil {
		return nil, fmt.Errorf("compare primitives: %w", err)
	}
	if !eq {
		reasons = append(reasons, "primitives")
	}
	if desired.Description != current.Description {
		reasons = append(reasons, "description")
	}
	if !equalTags(desired.Tags, current.Tags) {
		reasons = append(reasons, "tags")
	}

	if len(reasons) == 0 {
		return &Diff{Action: ActionNone}, nil
	}
	return &Diff{Action: ActionUpdate, Reasons: reasons}, nil
}

// primsOf treats an absent primitives map as empty so that nil and {}
// compare equal.
func primsOf(t *ct.Template) ct.Primitives {
	if t.Primitives == nil {
		return ct.Primitives{}
	}
	return t.Primitives
}

// equalTags compares tag sets ignoring order, nil equal to empty.
func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
