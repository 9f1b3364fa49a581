package spf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/rib"
)

func routerID(b byte) ospf2.ID { return ospf2.ID{b, b, b, b} }

func TestRunDirectLink(t *testing.T) {
	g := NewGraph()
	root := VertexID{Kind: RouterVertex, ID: routerID(1)}
	other := VertexID{Kind: RouterVertex, ID: routerID(2)}

	rootNH := rib.NextHop{Phyint: 1}
	g.AddVertex(&Vertex{ID: root, Links: []Link{{To: other, Cost: 10}}})
	g.AddVertex(&Vertex{ID: other, Links: []Link{{To: root, Cost: 10}}, RootInterface: &rootNH})

	nht := rib.NewTable()
	result := Run(g, root, nht)

	assert.Equal(t, uint32(10), result.Cost[other])
	assert.True(t, result.OnTree[other])
	if assert.NotNil(t, result.NextHops[other]) {
		assert.Equal(t, []rib.NextHop{rootNH}, result.NextHops[other].Paths())
	}
}

func TestRunRequiresBidirectionalLink(t *testing.T) {
	g := NewGraph()
	root := VertexID{Kind: RouterVertex, ID: routerID(1)}
	other := VertexID{Kind: RouterVertex, ID: routerID(2)}

	// one-way link only: other has no link back to root.
	g.AddVertex(&Vertex{ID: root, Links: []Link{{To: other, Cost: 10}}})
	g.AddVertex(&Vertex{ID: other})

	nht := rib.NewTable()
	result := Run(g, root, nht)

	assert.False(t, result.OnTree[other], "a one-way link must not be followed")
}

func TestRunPicksShorterOfTwoPaths(t *testing.T) {
	g := NewGraph()
	root := VertexID{Kind: RouterVertex, ID: routerID(1)}
	mid := VertexID{Kind: RouterVertex, ID: routerID(2)}
	far := VertexID{Kind: RouterVertex, ID: routerID(3)}

	rootToMid := rib.NextHop{Phyint: 1}
	rootToFar := rib.NextHop{Phyint: 2}

	g.AddVertex(&Vertex{ID: root, Links: []Link{
		{To: mid, Cost: 100},
		{To: far, Cost: 1},
	}})
	g.AddVertex(&Vertex{ID: mid, Links: []Link{{To: root, Cost: 100}, {To: far, Cost: 1}}, RootInterface: &rootToMid})
	g.AddVertex(&Vertex{ID: far, Links: []Link{{To: root, Cost: 1}, {To: mid, Cost: 1}}, RootInterface: &rootToFar})

	nht := rib.NewTable()
	result := Run(g, root, nht)

	assert.Equal(t, uint32(1), result.Cost[far])
	assert.Equal(t, uint32(2), result.Cost[mid], "via far (1+1) beats the direct 100-cost link")
}

func TestRunSkipsStubLinks(t *testing.T) {
	g := NewGraph()
	root := VertexID{Kind: RouterVertex, ID: routerID(1)}
	other := VertexID{Kind: RouterVertex, ID: routerID(2)}

	g.AddVertex(&Vertex{ID: root, Links: []Link{{To: other, Cost: 5, Stub: true}}})

	nht := rib.NewTable()
	result := Run(g, root, nht)

	assert.False(t, result.OnTree[other], "stub links describe leaf prefixes, not graph edges")
}

func TestBetterExternalPrefersType1OverType2(t *testing.T) {
	current := &ExternalCandidate{Type: Type2, Type2Cost: 1}
	candidate := &ExternalCandidate{Type: Type1, Type2Cost: 1000, ASBRCost: 1}

	assert.True(t, BetterExternal(current, candidate))
}

func TestBetterExternalType2TieBreaksOnAdvertisedCost(t *testing.T) {
	current := &ExternalCandidate{Type: Type2, Type2Cost: 20, ASBRCost: 1}
	cheaper := &ExternalCandidate{Type: Type2, Type2Cost: 10, ASBRCost: 100}

	assert.True(t, BetterExternal(current, cheaper), "type-2 ties break on advertised cost, not ASBR cost")
}

func TestBetterExternalPrefersNonBackboneExit(t *testing.T) {
	current := &ExternalCandidate{Type: Type1, Type2Cost: 5, ASBRCost: 5, ExitsBackbone: true}
	candidate := &ExternalCandidate{Type: Type1, Type2Cost: 5, ASBRCost: 5, ExitsBackbone: false}

	assert.True(t, BetterExternal(current, candidate))
}

func TestBetterExternalNilCurrentAlwaysLoses(t *testing.T) {
	candidate := &ExternalCandidate{Type: Type2, Type2Cost: 1}
	assert.True(t, BetterExternal(nil, candidate))
}

func TestBetterExternalFinalTieBreakOnTotalCost(t *testing.T) {
	current := &ExternalCandidate{Type: Type1, Type2Cost: 10, ASBRCost: 10}
	cheaper := &ExternalCandidate{Type: Type1, Type2Cost: 5, ASBRCost: 10}

	assert.True(t, BetterExternal(current, cheaper))
	assert.Equal(t, uint32(15), cheaper.TotalCost())
}
