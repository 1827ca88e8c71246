package ct

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loomworks/ctc/pkg/primitives"
)

// Deterministic error codes for template validation failures.
const (
	ErrUnknownType         = "ERR_CT_UNKNOWN_TYPE"
	ErrMalformedPrimitives = "ERR_CT_MALFORMED_PRIMITIVES"
	ErrUnknownPrimitiveKey = "ERR_CT_UNKNOWN_PRIMITIVE_KEY"
	ErrPrimitiveNotAllowed = "ERR_CT_PRIMITIVE_NOT_ALLOWED"
	ErrChildNotAllowed     = "ERR_CT_CHILD_NOT_ALLOWED"
	ErrMalformedInstances  = "ERR_CT_MALFORMED_INSTANCES"
)

// ValidationError is a typed template validation error.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidatePrimitives checks a primitives tree against the nesting rules
// for ctType. It accepts the raw shapes the decoders produce as well as
// the package's named types, and walks keys in sorted order so the
// first error reported is deterministic.
func ValidatePrimitives(ctType primitives.CTType, prims any) error {
	root, ok := asRawMap(prims)
	if !ok {
		return &ValidationError{
			Code:    ErrMalformedPrimitives,
			Message: fmt.Sprintf("primitives must be a map keyed by plural primitive type name, got %T", prims),
			Path:    "primitives",
		}
	}

	for _, key := range sortedKeys(root) {
		typ, known := primitives.FromPlural(key)
		if !known {
			return &ValidationError{
				Code:    ErrUnknownPrimitiveKey,
				Message: fmt.Sprintf("unknown primitive type key %q, valid keys: %s", key, strings.Join(primitives.PluralKeys(), ", ")),
				Path:    "primitives",
			}
		}
		if !primitives.TopLevelAllowed(ctType, typ) {
			return &ValidationError{
				Code: ErrPrimitiveNotAllowed,
				Message: fmt.Sprintf("primitive %q is not allowed for connectivity template type %q, allowed top-level primitives: %s",
					key, string(ctType), joinOrNone(primitives.TopLevelPlurals(ctType))),
				Path: "primitives",
			}
		}
		if err := validateInstances(typ, root[key], "primitives."+key); err != nil {
			return err
		}
	}
	return nil
}

func validateInstances(typ primitives.Type, v any, path string) error {
	insts, ok := asRawMap(v)
	if !ok {
		return &ValidationError{
			Code:    ErrMalformedInstances,
			Message: fmt.Sprintf("must be a map of named instances, got %T", v),
			Path:    path,
		}
	}
	for _, name := range sortedKeys(insts) {
		cfg, ok := asRawMap(insts[name])
		if !ok {
			return &ValidationError{
				Code:    ErrMalformedInstances,
				Message: fmt.Sprintf("must be a map, got %T", insts[name]),
				Path:    path + "." + name,
			}
		}
		if err := validateChildren(typ, cfg, path+"."+name); err != nil {
			return err
		}
	}
	return nil
}

// validateChildren walks a config's keys. Keys that are not plural
// primitive type names are plain attributes and pass through.
func validateChildren(parent primitives.Type, cfg map[string]any, path string) error {
	for _, key := range sortedKeys(cfg) {
		child, known := primitives.FromPlural(key)
		if !known {
			continue
		}
		if !primitives.ChildAllowed(parent, child) {
			return &ValidationError{
				Code: ErrChildNotAllowed,
				Message: fmt.Sprintf("child primitive %q is not allowed inside %q, allowed children: %s",
					key, string(parent), joinOrNone(primitives.ChildPlurals(parent))),
				Path: path,
			}
		}
		if err := validateInstances(child, cfg[key], path+"."+key); err != nil {
			return err
		}
	}
	return nil
}

// asRawMap unifies the map shapes a primitives tree can carry. A typed
// nil map is an empty map, an untyped nil is not a map at all.
func asRawMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Config:
		return m, true
	case Instances:
		out := make(map[string]any, len(m))
		for k, c := range m {
			out[k] = c
		}
		return out, true
	case Primitives:
		out := make(map[string]any, len(m))
		for k, i := range m {
			out[k] = i
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinOrNone(keys []string) string {
	if len(keys) == 0 {
		return "(none)"
	}
	return strings.Join(keys, ", ")
}
