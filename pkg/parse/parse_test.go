package parse_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/loomworks/ctc/pkg/compile"
	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/normalize"
	"github.com/loomworks/ctc/pkg/parse"
	"github.com/loomworks/ctc/pkg/policy"
	"github.com/loomworks/ctc/pkg/primitives"
)

// TestParse_RoundTrip: building a template and parsing the resulting
// graph yields the same primitives, name, description, and tags.
func TestParse_RoundTrip(t *testing.T) {
	tpl := &ct.Template{
		Name:        "l3-edge",
		Type:        primitives.CTInterface,
		Description: "Edge links with BGP",
		Tags:        []string{"edge", "l3"},
		Primitives: ct.Primitives{
			"ip_links": {
				"link1": {
					"routing_zone_id": "rz-1",
					"interface_type":  "tagged",
					"vlan_id":         101,
					"bgp_peering_generic_systems": map[string]any{
						"peer1": map[string]any{
							"ttl": 2,
							"routing_policies": map[string]any{
								"rp1": map[string]any{"rp_to_attach": "rp-a"},
							},
						},
					},
				},
			},
			"virtual_network_singles": {
				"vn1": {"vn_node_id": "vn-1", "tagged": true},
			},
		},
	}

	policies, rootID := compile.NewBuilder().Build(tpl)
	parsed, diags := parse.Parse(policies)
	require.NotNil(t, parsed)
	assert.Empty(t, diags)

	assert.Equal(t, rootID, parsed.ID)
	assert.Equal(t, "l3-edge", parsed.Name)
	assert.Equal(t, "Edge links with BGP", parsed.Description)
	assert.Equal(t, []string{"edge", "l3"}, parsed.Tags)

	eq, err := normalize.Equal(tpl.Primitives, parsed.Primitives)
	require.NoError(t, err)
	assert.True(t, eq, "parsed primitives differ from the built ones")
}

// TestParse_WireRoundTrip runs the same comparison through a JSON
// encode and decode, the way an export actually arrives.
func TestParse_WireRoundTrip(t *testing.T) {
	tpl := &ct.Template{
		Name: "default-route",
		Type: primitives.CTSystem,
		Primitives: ct.Primitives{
			"custom_static_routes": {
				"r1": {"network": "10.0.0.0/8", "next_hop": "192.168.1.1"},
			},
		},
	}

	built, _ := compile.NewBuilder().Build(tpl)
	data, err := json.Marshal(policy.WrapPolicies(built))
	require.NoError(t, err)

	decoded, err := policy.DecodePolicyBytes(data)
	require.NoError(t, err)

	parsed, diags := parse.Parse(decoded)
	require.NotNil(t, parsed)
	assert.Empty(t, diags)

	eq, err := normalize.Equal(tpl.Primitives, parsed.Primitives)
	require.NoError(t, err)
	assert.True(t, eq)
}

// Wire decoding keeps numbers as json.Number for fidelity; the parsed
// template must carry native numbers again so YAML output renders
// them unquoted.
func TestParse_WireNumbersComeBackNative(t *testing.T) {
	tpl := &ct.Template{
		Name: "numbered",
		Type: primitives.CTInterface,
		Primitives: ct.Primitives{
			"ip_links": {
				"link1": {"vlan_id": 101, "mtu": 9100.5, "untagged_vn_ids": []any{1, 2}},
			},
		},
	}

	built, _ := compile.NewBuilder().Build(tpl)
	data, err := json.Marshal(policy.WrapPolicies(built))
	require.NoError(t, err)
	decoded, err := policy.DecodePolicyBytes(data)
	require.NoError(t, err)

	parsed, diags := parse.Parse(decoded)
	require.NotNil(t, parsed)
	require.Empty(t, diags)

	cfg := parsed.Primitives["ip_links"]["link1"]
	assert.Equal(t, int64(101), cfg["vlan_id"])
	assert.Equal(t, 9100.5, cfg["mtu"])
	assert.Equal(t, []any{int64(1), int64(2)}, cfg["untagged_vn_ids"])
}

func TestParse_EmptyAndNoRoot(t *testing.T) {
	tpl, diags := parse.Parse(nil)
	assert.Nil(t, tpl)
	assert.Empty(t, diags)

	tpl, diags = parse.Parse([]policy.Policy{
		{ID: "p", PolicyTypeName: policy.TypePipeline, Visible: true},
		{ID: "b", PolicyTypeName: policy.TypeBatch},
	})
	assert.Nil(t, tpl)
	assert.Empty(t, diags)
}

func graphFixture() []policy.Policy {
	return []policy.Policy{
		{ID: "root", PolicyTypeName: policy.TypeBatch, Label: "fixture", Visible: true,
			Attributes: map[string]any{policy.AttrSubpolicies: []any{"pipe-1"}}},
		{ID: "pipe-1", PolicyTypeName: policy.TypePipeline,
			Attributes: map[string]any{
				policy.AttrFirstSubpolicy:  "prim-1",
				policy.AttrSecondSubpolicy: nil,
			}},
		{ID: "prim-1", PolicyTypeName: "AttachLogicalLink", Label: "link1",
			Attributes: map[string]any{"routing_zone_id": "rz-1"}},
	}
}

func TestParse_DanglingPipeline(t *testing.T) {
	graph := graphFixture()
	graph[0].Attributes[policy.AttrSubpolicies] = []any{"pipe-1", "ghost"}

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Contains(t, tpl.Primitives, "ip_links")

	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagDanglingPipeline, diags[0].Code)
	assert.Equal(t, "ghost", diags[0].PolicyID)
	assert.Contains(t, diags[0].Message, "missing from the export")
}

// TestParse_SubpolicyNotAPipeline: a batch entry pointing straight at
// a primitive is skipped, not followed.
func TestParse_SubpolicyNotAPipeline(t *testing.T) {
	graph := graphFixture()
	graph[0].Attributes[policy.AttrSubpolicies] = []any{"prim-1"}

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Empty(t, tpl.Primitives)

	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagDanglingPipeline, diags[0].Code)
	assert.Contains(t, diags[0].Message, "not a pipeline")
}

func TestParse_DanglingPrimitive(t *testing.T) {
	graph := graphFixture()
	graph[1].Attributes[policy.AttrFirstSubpolicy] = "ghost"

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Empty(t, tpl.Primitives)

	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagDanglingPrimitive, diags[0].Code)
}

func TestParse_UnknownPrimitiveType(t *testing.T) {
	graph := graphFixture()
	graph[2].PolicyTypeName = "AttachFancyNewThing"

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Empty(t, tpl.Primitives)

	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagUnknownPrimitiveType, diags[0].Code)
	assert.Contains(t, diags[0].Message, `"AttachFancyNewThing"`)
}

func TestParse_DanglingChildBatch(t *testing.T) {
	graph := graphFixture()
	graph[1].Attributes[policy.AttrSecondSubpolicy] = "ghost"

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)

	// The primitive itself still parses, only the children are lost.
	link := tpl.Primitives["ip_links"]["link1"]
	assert.Equal(t, "rz-1", link["routing_zone_id"])

	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagDanglingChildBatch, diags[0].Code)

	// Same when the reference resolves to something that is no batch.
	graph[1].Attributes[policy.AttrSecondSubpolicy] = "prim-1"
	_, diags = parse.Parse(graph)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "not a batch")
}

// TestParse_AttributeCleaning: nulls and graph plumbing keys are not
// user attributes.
func TestParse_AttributeCleaning(t *testing.T) {
	graph := graphFixture()
	graph[2].Attributes = map[string]any{
		"routing_zone_id":  "rz-1",
		"ipv4_addressing":  nil,
		"resolver":         "some-resolver",
		"second_subpolicy": "bogus",
	}

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Empty(t, diags)

	link := tpl.Primitives["ip_links"]["link1"]
	assert.Equal(t, ct.Config{"routing_zone_id": "rz-1"}, link)
}

func TestParse_LabelDefaults(t *testing.T) {
	graph := graphFixture()
	graph[0].Label = ""
	graph[2].Label = ""

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Empty(t, diags)

	assert.Equal(t, "", tpl.Name)
	assert.Contains(t, tpl.Primitives["ip_links"], "unnamed")
	assert.NotNil(t, tpl.Tags)
}

// TestParse_CyclicGraph: a child batch pointing back at its own
// ancestry must not loop the walk.
func TestParse_CyclicGraph(t *testing.T) {
	graph := []policy.Policy{
		{ID: "root", PolicyTypeName: policy.TypeBatch, Label: "cycle", Visible: true,
			Attributes: map[string]any{policy.AttrSubpolicies: []any{"pipe-1"}}},
		{ID: "pipe-1", PolicyTypeName: policy.TypePipeline,
			Attributes: map[string]any{
				policy.AttrFirstSubpolicy:  "prim-1",
				policy.AttrSecondSubpolicy: "root",
			}},
		{ID: "prim-1", PolicyTypeName: "AttachLogicalLink", Label: "link1",
			Attributes: map[string]any{"routing_zone_id": "rz-1"}},
	}

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Contains(t, tpl.Primitives, "ip_links")

	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagPolicyCycle, diags[0].Code)
	assert.Equal(t, "root", diags[0].PolicyID)
}

// TestParse_WireMutations corrupts the export at the JSON level, the
// way a drifted server export would arrive, and checks the parse
// degrades with diagnostics instead of failing.
func TestParse_WireMutations(t *testing.T) {
	built, _ := compile.NewBuilder().Build(&ct.Template{
		Name: "mutate-me",
		Type: primitives.CTInterface,
		Primitives: ct.Primitives{
			"ip_links": {"link1": {"routing_zone_id": "rz-1"}},
		},
	})
	data, err := json.Marshal(policy.WrapPolicies(built))
	require.NoError(t, err)

	pipeIdx, rootIdx := -1, -1
	for i, p := range gjson.GetBytes(data, "policies").Array() {
		switch {
		case p.Get("policy_type_name").String() == "pipeline":
			pipeIdx = i
		case p.Get("visible").Bool():
			rootIdx = i
		}
	}
	require.GreaterOrEqual(t, pipeIdx, 0)
	require.GreaterOrEqual(t, rootIdx, 0)

	// Point the pipeline at a node missing from the export.
	mutated, err := sjson.SetBytes(data, fmt.Sprintf("policies.%d.attributes.first_subpolicy", pipeIdx), "ghost")
	require.NoError(t, err)

	decoded, err := policy.DecodePolicyBytes(mutated)
	require.NoError(t, err)
	tpl, diags := parse.Parse(decoded)
	require.NotNil(t, tpl)
	assert.Empty(t, tpl.Primitives)
	require.Len(t, diags, 1)
	assert.Equal(t, parse.DiagDanglingPrimitive, diags[0].Code)

	// Strip the visible flag: the export no longer holds a template.
	unrooted, err := sjson.DeleteBytes(data, fmt.Sprintf("policies.%d.visible", rootIdx))
	require.NoError(t, err)

	decoded, err = policy.DecodePolicyBytes(unrooted)
	require.NoError(t, err)
	tpl, _ = parse.Parse(decoded)
	assert.Nil(t, tpl)
}

func TestParse_DuplicateLabelsCollapse(t *testing.T) {
	graph := graphFixture()
	graph[0].Attributes[policy.AttrSubpolicies] = []any{"pipe-1", "pipe-2"}
	graph = append(graph,
		policy.Policy{ID: "pipe-2", PolicyTypeName: policy.TypePipeline,
			Attributes: map[string]any{policy.AttrFirstSubpolicy: "prim-2"}},
		policy.Policy{ID: "prim-2", PolicyTypeName: "AttachLogicalLink", Label: "link1",
			Attributes: map[string]any{"routing_zone_id": "rz-2"}},
	)

	tpl, diags := parse.Parse(graph)
	require.NotNil(t, tpl)
	assert.Empty(t, diags)

	require.Len(t, tpl.Primitives["ip_links"], 1)
	assert.Equal(t, "rz-2", tpl.Primitives["ip_links"]["link1"]["routing_zone_id"])
}
