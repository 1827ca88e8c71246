// Package ct models connectivity templates the way users author them:
// a named document whose primitives are keyed first by plural primitive
// type and then by instance name, with child primitives nested inside
// their parent's config under the child's plural key.
package ct

import (
	"fmt"
	"strings"

	"github.com/loomworks/ctc/pkg/primitives"
)

// Config holds one primitive instance's attributes. Plural primitive
// type keys inside a Config introduce nested child instances; every
// other key is a plain attribute passed through to the policy graph.
type Config map[string]any

// Instances maps instance name to config for one primitive type.
type Instances map[string]Config

// Primitives maps plural primitive type key to its named instances.
type Primitives map[string]Instances

// Template is a connectivity template document.
type Template struct {
	ID          string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string            `json:"name" yaml:"name"`
	Type        primitives.CTType `json:"type" yaml:"type"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Primitives  Primitives        `json:"primitives,omitempty" yaml:"primitives,omitempty"`
}

// Validate checks the template type and the primitive nesting rules.
// Document shape (required name, known top-level keys) is enforced by
// the schema at decode time, not here.
func (t *Template) Validate() error {
	if !t.Type.Valid() {
		names := make([]string, 0, len(primitives.CTTypes()))
		for _, c := range primitives.CTTypes() {
			names = append(names, string(c))
		}
		return &ValidationError{
			Code:    ErrUnknownType,
			Message: fmt.Sprintf("unknown connectivity template type %q, valid types: %s", string(t.Type), strings.Join(names, ", ")),
			Path:    "type",
		}
	}
	return ValidatePrimitives(t.Type, t.Primitives)
}

// AsConfig coerces a decoded or programmatically built value into a
// Config. It accepts the types the YAML and JSON decoders produce as
// well as the package's own named types.
func AsConfig(v any) (Config, bool) {
	switch m := v.(type) {
	case Config:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// AsInstances coerces a value into Instances. Every value in the map
// must itself coerce to a Config.
func AsInstances(v any) (Instances, bool) {
	switch m := v.(type) {
	case Instances:
		return m, true
	case Config:
		return configsOf(m)
	case map[string]any:
		return configsOf(m)
	default:
		return nil, false
	}
}

func configsOf(m map[string]any) (Instances, bool) {
	out := make(Instances, len(m))
	for name, v := range m {
		cfg, ok := AsConfig(v)
		if !ok {
			return nil, false
		}
		out[name] = cfg
	}
	return out, true
}
