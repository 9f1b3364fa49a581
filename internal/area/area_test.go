package area

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/config"
	"github.com/openospf/ospfd/internal/rib"
	"github.com/openospf/ospfd/internal/spf"
)

func routerID(b byte) ospf2.ID { return ospf2.ID{10, 0, 0, b} }

func TestFindAndDeleteLSA(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)

	lsa := OriginateRouterLSA(routerID(1), a.ID, false, false, nil, 1)
	a.AddLSA(lsa, true)

	key := lsa.Header.Key()
	e, ok := a.FindLSA(key)
	require.True(t, ok)
	assert.True(t, e.WeOriginated)

	a.DeleteLSA(key)
	_, ok = a.FindLSA(key)
	assert.False(t, ok)
}

func TestSnapshotIsSortedAndStable(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)
	a.AddLSA(OriginateRouterLSA(routerID(2), a.ID, false, false, nil, 1), true)
	a.AddLSA(OriginateRouterLSA(routerID(1), a.ID, false, false, nil, 1), true)

	snap := a.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, routerID(1), snap[0].AdvertisingRouter)
	assert.Equal(t, routerID(2), snap[1].AdvertisingRouter)
}

func TestNextLSAWalksEveryEntryOnce(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)
	a.AddLSA(OriginateRouterLSA(routerID(1), a.ID, false, false, nil, 1), true)
	a.AddLSA(OriginateRouterLSA(routerID(2), a.ID, false, false, nil, 1), true)

	var keys []ospf2.LSAID
	cur, ok := a.NextLSA(ospf2.LSAID{}, false)
	for ok {
		keys = append(keys, cur)
		cur, ok = a.NextLSA(cur, true)
	}
	assert.Len(t, keys, 2)
}

func TestFindNetworkLSAMatchesByLinkStateID(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)
	dr := routerID(1)
	lsid := ospf2.ID{192, 0, 2, 1}
	lsa := ospf2.LSA{
		Header: ospf2.LSAHeader{Type: ospf2.NetworkLSA, LinkStateID: lsid, AdvertisingRouter: dr},
		Body:   &ospf2.NetworkLSABody{NetworkMask: [4]byte{255, 255, 255, 0}, AttachedRouters: []ospf2.ID{dr}},
	}
	a.AddLSA(lsa, true)

	e, ok := a.FindNetworkLSA(lsid)
	require.True(t, ok)
	assert.Equal(t, dr, e.LSA.Header.AdvertisingRouter)
}

func TestOriginateSummaryEncodesMaskAndCost(t *testing.T) {
	dest := netip.MustParsePrefix("10.1.2.0/24")
	lsa := OriginateSummary(routerID(1), dest, 42, 1)

	body, ok := lsa.Body.(*ospf2.SummaryLSABody)
	require.True(t, ok)
	assert.Equal(t, uint32(42), body.Cost)
	assert.Equal(t, [4]byte{255, 255, 255, 0}, body.NetworkMask)
	assert.Equal(t, ospf2.ID{10, 1, 2, 0}, lsa.Header.LinkStateID)
}

func TestOriginateASBRSummary(t *testing.T) {
	asbr := routerID(9)
	lsa := OriginateASBRSummary(routerID(1), asbr, 7, 1)

	assert.Equal(t, ospf2.ASBRSummaryLSA, lsa.Header.Type)
	assert.Equal(t, asbr, lsa.Header.LinkStateID)
	body, ok := lsa.Body.(*ospf2.SummaryLSABody)
	require.True(t, ok)
	assert.Equal(t, uint32(7), body.Cost)
}

func TestDeriveIntraAreaRoutesStubAndTransit(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)
	self := routerID(1)

	stubLink := ospf2.RouterLink{
		LinkID:   ospf2.ID{10, 0, 1, 0},
		LinkData: [4]byte{255, 255, 255, 0},
		Type:     ospf2.StubNetLink,
		Metric:   10,
	}
	a.AddLSA(OriginateRouterLSA(self, a.ID, false, false, []ospf2.RouterLink{stubLink}, 1), true)

	netID := ospf2.ID{10, 0, 2, 1}
	a.AddLSA(ospf2.LSA{
		Header: ospf2.LSAHeader{Type: ospf2.NetworkLSA, LinkStateID: netID, AdvertisingRouter: self},
		Body:   &ospf2.NetworkLSABody{NetworkMask: [4]byte{255, 255, 255, 0}, AttachedRouters: []ospf2.ID{self}},
	}, true)

	nht := rib.NewTable()
	result := spf.Result{
		Cost:     map[spf.VertexID]uint32{},
		NextHops: map[spf.VertexID]*rib.NextHopSet{},
		OnTree:   map[spf.VertexID]bool{},
	}
	routerVid := spf.VertexID{Kind: spf.RouterVertex, ID: self}
	netVid := spf.VertexID{Kind: spf.NetworkVertex, ID: netID}
	result.OnTree[routerVid] = true
	result.Cost[routerVid] = 5
	result.NextHops[routerVid] = nht.Intern([]rib.NextHop{{Phyint: 1}})
	result.OnTree[netVid] = true
	result.Cost[netVid] = 5
	result.NextHops[netVid] = nht.Intern([]rib.NextHop{{Phyint: 1}})

	candidates := a.DeriveIntraAreaRoutes(result)

	var sawStub, sawTransit bool
	for _, c := range candidates {
		if c.Prefix == netip.MustParsePrefix("10.0.1.0/24") {
			sawStub = true
			assert.Equal(t, uint32(15), c.Cost)
		}
		if c.Prefix == netip.MustParsePrefix("10.0.2.0/24") {
			sawTransit = true
			assert.Equal(t, uint32(5), c.Cost)
		}
	}
	assert.True(t, sawStub, "stub link prefix must be derived from the router-LSA")
	assert.True(t, sawTransit, "transit network prefix must be derived from the network-LSA")
}

func TestAggregateRangesSuppressesConstituentsAndEmitsOneAggregate(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)
	a.Ranges = []config.Range{{Net: "10.0.0.0", Mask: "255.0.0.0", Cost: 100}}

	candidates := []Candidate{
		{Prefix: netip.MustParsePrefix("10.0.1.0/24"), Cost: 5},
		{Prefix: netip.MustParsePrefix("10.0.2.0/24"), Cost: 8},
		{Prefix: netip.MustParsePrefix("192.168.0.0/24"), Cost: 3},
	}

	out := a.AggregateRanges(candidates)

	require.Len(t, out, 2)
	var sawAggregate, sawUnrelated bool
	for _, c := range out {
		if c.Prefix == netip.MustParsePrefix("10.0.0.0/8") {
			sawAggregate = true
			assert.Equal(t, uint32(100), c.Cost)
		}
		if c.Prefix == netip.MustParsePrefix("192.168.0.0/24") {
			sawUnrelated = true
		}
	}
	assert.True(t, sawAggregate)
	assert.True(t, sawUnrelated)
}

func TestAggregateRangesNoAdvertiseSuppressesAggregateToo(t *testing.T) {
	a := New(ospf2.ID{0, 0, 0, 0}, false, nil)
	a.Ranges = []config.Range{{Net: "10.0.0.0", Mask: "255.0.0.0", NoAdvertise: true}}

	candidates := []Candidate{{Prefix: netip.MustParsePrefix("10.0.1.0/24"), Cost: 5}}
	out := a.AggregateRanges(candidates)

	assert.Empty(t, out)
}
