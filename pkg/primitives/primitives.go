// Package primitives is the connectivity template primitive catalog.
//
// It maps user-facing primitive names (singular and plural forms) to the
// policy_type_name identifiers used by the Apstra API, and carries the two
// rule tables that govern template structure: which primitives may appear
// at the top level of each template type, and which primitives may nest
// inside which parents.
//
// All tables are fixed at init and never mutated afterwards, so every
// function in this package is safe for concurrent use. The identifier
// strings are API contracts; changing any of them breaks interoperability
// with the backend.
package primitives

import "sort"

// Type is the singular name of a primitive type.
type Type string

const (
	IPLink                  Type = "ip_link"
	VirtualNetworkSingle    Type = "virtual_network_single"
	VirtualNetworkMultiple  Type = "virtual_network_multiple"
	BGPPeeringGenericSystem Type = "bgp_peering_generic_system"
	BGPPeeringIPEndpoint    Type = "bgp_peering_ip_endpoint"
	RoutingPolicy           Type = "routing_policy"
	StaticRoute             Type = "static_route"
	CustomStaticRoute       Type = "custom_static_route"
	DynamicBGPPeering       Type = "dynamic_bgp_peering"
	RoutingZoneConstraint   Type = "routing_zone_constraint"
)

// CTType is the class of application point a connectivity template
// targets. It gates which primitives are legal at the top level.
type CTType string

const (
	CTInterface        CTType = "interface"
	CTSVI              CTType = "svi"
	CTLoopback         CTType = "loopback"
	CTProtocolEndpoint CTType = "protocol_endpoint"
	CTSystem           CTType = "system"
)

var policyTypeNames = map[Type]string{
	IPLink:                  "AttachLogicalLink",
	VirtualNetworkSingle:    "AttachSingleVLAN",
	VirtualNetworkMultiple:  "AttachMultipleVLAN",
	BGPPeeringGenericSystem: "AttachBgpOverSubinterfacesOrSvi",
	BGPPeeringIPEndpoint:    "AttachIpEndpointWithBgpNsxt",
	RoutingPolicy:           "AttachExistingRoutingPolicy",
	StaticRoute:             "AttachStaticRoute",
	CustomStaticRoute:       "AttachCustomStaticRoute",
	DynamicBGPPeering:       "AttachBgpWithPrefixPeeringForSviOrSubinterface",
	RoutingZoneConstraint:   "AttachRoutingZoneConstraint",
}

var pluralToSingular = map[string]Type{
	"ip_links":                    IPLink,
	"virtual_network_singles":     VirtualNetworkSingle,
	"virtual_network_multiples":   VirtualNetworkMultiple,
	"bgp_peering_generic_systems": BGPPeeringGenericSystem,
	"bgp_peering_ip_endpoints":    BGPPeeringIPEndpoint,
	"routing_policies":            RoutingPolicy,
	"static_routes":               StaticRoute,
	"custom_static_routes":        CustomStaticRoute,
	"dynamic_bgp_peerings":        DynamicBGPPeering,
	"routing_zone_constraints":    RoutingZoneConstraint,
}

// ctTypes is kept in declaration order, matching the order the backend
// documents template types in.
var ctTypes = []CTType{CTInterface, CTSVI, CTLoopback, CTProtocolEndpoint, CTSystem}

var allowedTopLevel = map[CTType][]Type{
	CTInterface: {
		IPLink,
		VirtualNetworkSingle,
		VirtualNetworkMultiple,
		RoutingZoneConstraint,
		CustomStaticRoute,
	},
	CTSVI: {
		VirtualNetworkSingle,
		BGPPeeringGenericSystem,
		DynamicBGPPeering,
		RoutingZoneConstraint,
		StaticRoute,
	},
	CTLoopback: {
		BGPPeeringIPEndpoint,
		RoutingZoneConstraint,
		StaticRoute,
	},
	CTProtocolEndpoint: {
		BGPPeeringIPEndpoint,
		RoutingZoneConstraint,
	},
	CTSystem: {
		CustomStaticRoute,
	},
}

var allowedChildren = map[Type][]Type{
	IPLink: {
		BGPPeeringGenericSystem,
		StaticRoute,
		RoutingPolicy,
		CustomStaticRoute,
	},
	VirtualNetworkSingle:    {},
	VirtualNetworkMultiple:  {},
	BGPPeeringGenericSystem: {RoutingPolicy},
	BGPPeeringIPEndpoint:    {RoutingPolicy},
	RoutingPolicy:           {},
	StaticRoute:             {RoutingPolicy},
	CustomStaticRoute:       {RoutingPolicy},
	DynamicBGPPeering:       {RoutingPolicy},
	RoutingZoneConstraint:   {},
}

// Derived reverse maps, built once at init.
var (
	reverseTypes     = make(map[string]Type, len(policyTypeNames))
	singularToPlural = make(map[Type]string, len(pluralToSingular))
	pluralKeys       []string
)

func init() {
	for t, name := range policyTypeNames {
		reverseTypes[name] = t
	}
	for plural, t := range pluralToSingular {
		singularToPlural[t] = plural
		pluralKeys = append(pluralKeys, plural)
	}
	sort.Strings(pluralKeys)
}

// PolicyTypeName returns the backend policy_type_name for t.
func PolicyTypeName(t Type) (string, bool) {
	name, ok := policyTypeNames[t]
	return name, ok
}

// FromPolicyTypeName maps a backend policy_type_name back to its
// singular primitive type.
func FromPolicyTypeName(name string) (Type, bool) {
	t, ok := reverseTypes[name]
	return t, ok
}

// FromPlural resolves a plural grouping key (e.g. "ip_links") to its
// singular primitive type.
func FromPlural(key string) (Type, bool) {
	t, ok := pluralToSingular[key]
	return t, ok
}

// Plural returns the plural grouping key for t.
func Plural(t Type) (string, bool) {
	p, ok := singularToPlural[t]
	return p, ok
}

// IsPlural reports whether key is a known plural grouping key. Any
// configuration key that collides with a plural key is always treated
// as a nested primitive group, never as a literal attribute.
func IsPlural(key string) bool {
	_, ok := pluralToSingular[key]
	return ok
}

// PluralKeys returns all plural grouping keys in sorted order.
func PluralKeys() []string {
	out := make([]string, len(pluralKeys))
	copy(out, pluralKeys)
	return out
}

// CTTypes returns the known connectivity template types.
func CTTypes() []CTType {
	out := make([]CTType, len(ctTypes))
	copy(out, ctTypes)
	return out
}

// Valid reports whether c is a known connectivity template type.
func (c CTType) Valid() bool {
	_, ok := allowedTopLevel[c]
	return ok
}

// TopLevelAllowed reports whether t may appear at the top level of a
// template of type c.
func TopLevelAllowed(c CTType, t Type) bool {
	for _, a := range allowedTopLevel[c] {
		if a == t {
			return true
		}
	}
	return false
}

// ChildAllowed reports whether child may nest directly inside parent.
func ChildAllowed(parent, child Type) bool {
	for _, a := range allowedChildren[parent] {
		if a == child {
			return true
		}
	}
	return false
}

// TopLevelPlurals returns the sorted plural keys legal at the top level
// of a template of type c.
func TopLevelPlurals(c CTType) []string {
	return pluralsOf(allowedTopLevel[c])
}

// ChildPlurals returns the sorted plural keys legal directly inside a
// primitive of type parent. The result is empty for leaf-only parents.
func ChildPlurals(parent Type) []string {
	return pluralsOf(allowedChildren[parent])
}

func pluralsOf(types []Type) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if p, ok := singularToPlural[t]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
