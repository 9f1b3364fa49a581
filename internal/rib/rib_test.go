package rib

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openospf/ospfd"
)

func TestTableInternDedups(t *testing.T) {
	nt := NewTable()

	a := netip.MustParseAddr("10.0.0.1")
	paths := []NextHop{{IfAddr: a, Phyint: 1, Gateway: ospf2.ID{1, 1, 1, 1}}}

	s1 := nt.Intern(paths)
	s2 := nt.Intern(paths)

	assert.Same(t, s1, s2, "equal next-hop sets must intern to the same pointer")
}

func TestTableInternSortsAndBounds(t *testing.T) {
	nt := NewTable()

	a1 := netip.MustParseAddr("10.0.0.2")
	a2 := netip.MustParseAddr("10.0.0.1")

	unsorted := []NextHop{
		{IfAddr: a1, Phyint: 1, Gateway: ospf2.ID{2, 2, 2, 2}},
		{IfAddr: a2, Phyint: 1, Gateway: ospf2.ID{1, 1, 1, 1}},
	}
	sorted := []NextHop{
		{IfAddr: a2, Phyint: 1, Gateway: ospf2.ID{1, 1, 1, 1}},
		{IfAddr: a1, Phyint: 1, Gateway: ospf2.ID{2, 2, 2, 2}},
	}

	got := nt.Intern(unsorted)
	require.Equal(t, sorted, got.Paths())

	var many []NextHop
	for i := 0; i < MaxPath+5; i++ {
		many = append(many, NextHop{Phyint: i})
	}
	bounded := nt.Intern(many)
	assert.LessOrEqual(t, bounded.Len(), MaxPath)
}

func TestTableMergeStopsAtFullSet(t *testing.T) {
	nt := NewTable()

	full := make([]NextHop, MaxPath)
	for i := range full {
		full[i] = NextHop{Phyint: i}
	}
	a := nt.Intern(full)
	b := nt.Intern([]NextHop{{Phyint: 999}})

	merged := nt.Merge(a, b)
	assert.Same(t, a, merged, "a full set must absorb no further paths")
}

func TestRouteTableLongestPrefixMatch(t *testing.T) {
	rt := NewRouteTable()

	wide := &Entry{Type: SPFIntra, Cost: 10}
	narrow := &Entry{Type: SPFIntra, Cost: 5}

	rt.Insert(netip.MustParsePrefix("10.0.0.0/16"), wide)
	rt.Insert(netip.MustParsePrefix("10.0.1.0/24"), narrow)

	got, ok := rt.Lookup(netip.MustParseAddr("10.0.1.5"))
	require.True(t, ok)
	assert.Equal(t, narrow, got)

	got, ok = rt.Lookup(netip.MustParseAddr("10.0.2.5"))
	require.True(t, ok)
	assert.Equal(t, wide, got)
}

func TestBetterPrefersAdministrativeOverSPF(t *testing.T) {
	existing := &Entry{Type: SPFIntra, Cost: 1}
	candidate := &Entry{Type: Static, Cost: 1000}

	assert.True(t, Better(existing, candidate))
	assert.False(t, Better(candidate, existing))
}

func TestBetterBreaksTiesOnCost(t *testing.T) {
	existing := &Entry{Type: SPFInter, Cost: 20}
	cheaper := &Entry{Type: SPFInter, Cost: 10}

	assert.True(t, Better(existing, cheaper))
}
