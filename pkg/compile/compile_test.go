package compile_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/ctc/pkg/compile"
	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/policy"
	"github.com/loomworks/ctc/pkg/primitives"
)

// seqBuilder returns a Builder minting id-1, id-2, ... so tests can
// assert the emitted graph exactly.
func seqBuilder() *compile.Builder {
	b := compile.NewBuilder()
	n := 0
	b.NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return b
}

func TestBuild_FlatTemplate(t *testing.T) {
	tpl := &ct.Template{
		Name:        "default-route",
		Type:        primitives.CTSystem,
		Description: "Default route for leaf systems",
		Tags:        []string{"routing"},
		Primitives: ct.Primitives{
			"custom_static_routes": {
				"r1": {"network": "10.0.0.0/8", "next_hop": "192.168.1.1"},
			},
		},
	}

	policies, rootID := seqBuilder().Build(tpl)
	require.Len(t, policies, 3)
	assert.Equal(t, "id-3", rootID)

	prim, pipe, root := policies[0], policies[1], policies[2]

	assert.Equal(t, "AttachCustomStaticRoute", prim.PolicyTypeName)
	assert.Equal(t, "r1", prim.Label)
	assert.Equal(t, map[string]any{"network": "10.0.0.0/8", "next_hop": "192.168.1.1"}, prim.Attributes)
	assert.False(t, prim.Visible)

	assert.Equal(t, policy.TypePipeline, pipe.PolicyTypeName)
	assert.Equal(t, "r1 (pipeline)", pipe.Label)
	assert.Equal(t, "id-1", pipe.Attributes[policy.AttrFirstSubpolicy])
	assert.Nil(t, pipe.Attributes[policy.AttrSecondSubpolicy])

	assert.Equal(t, policy.TypeBatch, root.PolicyTypeName)
	assert.True(t, root.Visible)
	assert.Equal(t, "default-route", root.Label)
	assert.Equal(t, "Default route for leaf systems", root.Description)
	assert.Equal(t, []string{"routing"}, root.Tags)
	assert.Equal(t, []string{"id-2"}, root.Attributes[policy.AttrSubpolicies])
}

func TestBuild_NestedChildren(t *testing.T) {
	tpl := &ct.Template{
		Name: "l3-edge",
		Type: primitives.CTInterface,
		Primitives: ct.Primitives{
			"ip_links": {
				"link1": {
					"routing_zone_id": "rz-1",
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
		},
	}

	policies, rootID := seqBuilder().Build(tpl)
	require.Len(t, policies, 9)

	byID := policy.Index(policies)
	root := byID[rootID]
	require.True(t, root.Visible)

	// Root batch -> link1 pipeline -> link1 primitive + child batch.
	rootSubs := root.SubpolicyIDs()
	require.Len(t, rootSubs, 1)
	linkPipe := byID[rootSubs[0]]
	assert.Equal(t, policy.TypePipeline, linkPipe.PolicyTypeName)

	link := byID[linkPipe.SubpolicyRef(policy.AttrFirstSubpolicy)]
	assert.Equal(t, "AttachLogicalLink", link.PolicyTypeName)
	assert.Equal(t, "link1", link.Label)
	assert.Equal(t, "rz-1", link.Attributes["routing_zone_id"])
	assert.NotContains(t, link.Attributes, "bgp_peering_generic_systems")

	linkBatch := byID[linkPipe.SubpolicyRef(policy.AttrSecondSubpolicy)]
	require.Equal(t, policy.TypeBatch, linkBatch.PolicyTypeName)
	assert.Equal(t, "link1 (batch)", linkBatch.Label)
	assert.False(t, linkBatch.Visible)

	// Child batch -> peer1 pipeline -> peer1 primitive + its own batch.
	peerSubs := linkBatch.SubpolicyIDs()
	require.Len(t, peerSubs, 1)
	peerPipe := byID[peerSubs[0]]
	peer := byID[peerPipe.SubpolicyRef(policy.AttrFirstSubpolicy)]
	assert.Equal(t, "AttachBgpOverSubinterfacesOrSvi", peer.PolicyTypeName)
	assert.Equal(t, 2, peer.Attributes["ttl"])

	peerBatch := byID[peerPipe.SubpolicyRef(policy.AttrSecondSubpolicy)]
	rpSubs := peerBatch.SubpolicyIDs()
	require.Len(t, rpSubs, 1)
	rpPipe := byID[rpSubs[0]]
	rp := byID[rpPipe.SubpolicyRef(policy.AttrFirstSubpolicy)]
	assert.Equal(t, "AttachExistingRoutingPolicy", rp.PolicyTypeName)
	assert.Equal(t, "rp-a", rp.Attributes["rp_to_attach"])
	assert.Equal(t, "", rpPipe.SubpolicyRef(policy.AttrSecondSubpolicy))

	// Exactly one visible node in the whole graph.
	visible := 0
	for _, p := range policies {
		if p.Visible {
			visible++
		}
	}
	assert.Equal(t, 1, visible)
}

// TestBuild_Deterministic: plural keys and instance names are walked in
// sorted order, so two builds with the same id sequence agree.
func TestBuild_Deterministic(t *testing.T) {
	tpl := &ct.Template{
		Name: "multi",
		Type: primitives.CTInterface,
		Primitives: ct.Primitives{
			"virtual_network_singles": {
				"vn-b": {"vn_node_id": "b"},
				"vn-a": {"vn_node_id": "a"},
			},
			"ip_links": {
				"link1": {"routing_zone_id": "rz-1"},
			},
		},
	}

	first, _ := seqBuilder().Build(tpl)
	second, _ := seqBuilder().Build(tpl)
	assert.Equal(t, first, second)

	// ip_links sorts before virtual_network_singles, vn-a before vn-b.
	var labels []string
	for _, p := range first {
		if p.IsPrimitive() {
			labels = append(labels, p.Label)
		}
	}
	assert.Equal(t, []string{"link1", "vn-a", "vn-b"}, labels)
}

func TestBuild_EmptyTemplate(t *testing.T) {
	tpl := &ct.Template{Name: "empty", Type: primitives.CTInterface}

	policies, rootID := seqBuilder().Build(tpl)
	require.Len(t, policies, 1)

	root := policies[0]
	assert.Equal(t, rootID, root.ID)
	assert.True(t, root.Visible)
	assert.Equal(t, []string{}, root.Attributes[policy.AttrSubpolicies])

	// Tags default to an empty list on the root, never nil.
	assert.NotNil(t, root.Tags)
	assert.Empty(t, root.Tags)
}

func TestBuild_RandomIDsAreUnique(t *testing.T) {
	tpl := &ct.Template{
		Name: "uniq",
		Type: primitives.CTInterface,
		Primitives: ct.Primitives{
			"ip_links": {"a": {}, "b": {}, "c": {}},
		},
	}

	policies, _ := compile.NewBuilder().Build(tpl)
	seen := map[string]bool{}
	for _, p := range policies {
		require.NotEmpty(t, p.ID)
		require.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
}
