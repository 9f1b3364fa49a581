// Package area implements one area's link-state database operations:
// installing and retrieving LSAs, originating this router's own
// router-LSA and the summary/ASBR-summary LSAs an area border router
// advertises into other areas, and turning a completed SPF run into
// candidate routing table entries (including the range-aggregation step
// that collapses a configured summary range into a single advertisement).
package area

import (
	"net/netip"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/config"
	"github.com/openospf/ospfd/internal/lsdb"
	"github.com/openospf/ospfd/internal/rib"
	"github.com/openospf/ospfd/internal/spf"
)

// Area is one configured area's link-state database plus the summary
// ranges it aggregates on the way out to other areas.
type Area struct {
	ID     ospf2.ID
	Stub   bool
	LSDB   *lsdb.Database
	Ranges []config.Range
}

// New returns an empty area database.
func New(id ospf2.ID, stub bool, log *logrus.Entry) *Area {
	return &Area{ID: id, Stub: stub, LSDB: lsdb.New(log)}
}

// FindLSA returns the installed entry for id, if any.
func (a *Area) FindLSA(id ospf2.LSAID) (*lsdb.Entry, bool) {
	return a.LSDB.Get(id)
}

// FindNetworkLSA locates the network-LSA for the transit network whose
// Designated-Router interface address is linkStateID, regardless of which
// router currently originates it (the advertising router changes across a
// DR re-election, but the network's identity does not).
func (a *Area) FindNetworkLSA(linkStateID ospf2.ID) (*lsdb.Entry, bool) {
	var found *lsdb.Entry
	a.LSDB.All(func(e *lsdb.Entry) bool {
		if e.LSA.Header.Type == ospf2.NetworkLSA && e.LSA.Header.LinkStateID == linkStateID {
			found = e
			return false
		}
		return true
	})
	return found, found != nil
}

// NextLSA returns the installed key that sorts immediately after cur in
// the area's canonical (Type, LinkStateID, AdvertisingRouter) order, for
// callers that need a stable walk of the database (e.g. a Database
// Description exchange resuming after a partial snapshot). ok is false
// once the walk has exhausted every entry.
func (a *Area) NextLSA(cur ospf2.LSAID, started bool) (ospf2.LSAID, bool) {
	keys := a.sortedKeys()
	if len(keys) == 0 {
		return ospf2.LSAID{}, false
	}
	if !started {
		return keys[0], true
	}
	for i, k := range keys {
		if k == cur && i+1 < len(keys) {
			return keys[i+1], true
		}
	}
	return ospf2.LSAID{}, false
}

// Snapshot returns every installed LSA's header in canonical order, the
// database summary a neighbor's Database-Description exchange consumes.
func (a *Area) Snapshot() []ospf2.LSAHeader {
	keys := a.sortedKeys()
	out := make([]ospf2.LSAHeader, 0, len(keys))
	for _, k := range keys {
		if e, ok := a.LSDB.Get(k); ok {
			out = append(out, e.LSA.Header)
		}
	}
	return out
}

func (a *Area) sortedKeys() []ospf2.LSAID {
	var keys []ospf2.LSAID
	a.LSDB.All(func(e *lsdb.Entry) bool {
		keys = append(keys, e.Key())
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return lessLSAID(keys[i], keys[j]) })
	return keys
}

func lessLSAID(a, b ospf2.LSAID) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.LinkStateID != b.LinkStateID {
		return lessID(a.LinkStateID, b.LinkStateID)
	}
	return lessID(a.AdvertisingRouter, b.AdvertisingRouter)
}

func lessID(a, b ospf2.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// AddLSA installs lsa into the area database.
func (a *Area) AddLSA(lsa ospf2.LSA, weOriginated bool) *lsdb.Entry {
	return a.LSDB.Install(lsa, weOriginated)
}

// DeleteLSA removes the entry keyed by id.
func (a *Area) DeleteLSA(id ospf2.LSAID) {
	a.LSDB.Remove(id)
}

// OriginateRouterLSA builds this router's own type-1 Router-LSA for the
// area from its current set of fully adjacent links, per RFC 2328
// section 12.4.1. seq is the sequence number TryOriginate selected.
func OriginateRouterLSA(self ospf2.ID, areaID ospf2.ID, borderRouter, asBoundary bool, links []ospf2.RouterLink, seq int32) ospf2.LSA {
	var flags ospf2.RouterLSAFlags
	if borderRouter {
		flags |= ospf2.BBit
	}
	if asBoundary {
		flags |= ospf2.EBitRouter
	}
	return ospf2.LSA{
		Header: ospf2.LSAHeader{
			Type:              ospf2.RouterLSA,
			LinkStateID:       self,
			AdvertisingRouter: self,
			SequenceNumber:    seq,
			Options:           ospf2.EBit,
		},
		Body: &ospf2.RouterLSABody{Flags: flags, Links: links},
	}
}

// OriginateSummary builds a type-3 Summary-LSA advertising dest into the
// area at cost, per RFC 2328 section 12.4.3. originator is this router
// (only an area border router calls this).
func OriginateSummary(originator ospf2.ID, dest netip.Prefix, cost uint32, seq int32) ospf2.LSA {
	return ospf2.LSA{
		Header: ospf2.LSAHeader{
			Type:              ospf2.SummaryLSA,
			LinkStateID:       prefixNetworkID(dest),
			AdvertisingRouter: originator,
			SequenceNumber:    seq,
			Options:           ospf2.EBit,
		},
		Body: &ospf2.SummaryLSABody{NetworkMask: maskBytes(dest), Cost: cost},
	}
}

// OriginateASBRSummary builds a type-4 ASBR-Summary-LSA advertising the
// cost to reach asbr, per RFC 2328 section 12.4.3.
func OriginateASBRSummary(originator, asbr ospf2.ID, cost uint32, seq int32) ospf2.LSA {
	return ospf2.LSA{
		Header: ospf2.LSAHeader{
			Type:              ospf2.ASBRSummaryLSA,
			LinkStateID:       asbr,
			AdvertisingRouter: originator,
			SequenceNumber:    seq,
			Options:           ospf2.EBit,
		},
		Body: &ospf2.SummaryLSABody{NetworkMask: [4]byte{}, Cost: cost},
	}
}

func prefixNetworkID(p netip.Prefix) ospf2.ID {
	return ospf2.ID(p.Masked().Addr().As4())
}

func maskBytes(p netip.Prefix) [4]byte {
	ones := p.Bits()
	var m [4]byte
	for i := 0; i < ones; i++ {
		m[i/8] |= 1 << (7 - uint(i%8))
	}
	return m
}

// Candidate is one intra-area route derived from a completed SPF run,
// before range aggregation.
type Candidate struct {
	Prefix   netip.Prefix
	Cost     uint32
	NextHops *rib.NextHopSet
}

// DeriveIntraAreaRoutes walks every on-tree vertex of result and recovers
// the stub and transit-network prefixes it advertises, implementing RFC
// 2328 section 16.1 step 3's transit-network special case: a network
// vertex's own prefix is reachable at exactly the network vertex's SPF
// cost (no additional router-to-network increment), while a router
// vertex's stub links each add their own metric on top of the router's
// SPF cost.
func (a *Area) DeriveIntraAreaRoutes(result spf.Result) []Candidate {
	var out []Candidate

	for vid := range result.Cost {
		if !result.OnTree[vid] {
			continue
		}
		nh := result.NextHops[vid]
		if nh == nil {
			continue
		}

		switch vid.Kind {
		case spf.RouterVertex:
			key := ospf2.LSAID{Type: ospf2.RouterLSA, LinkStateID: vid.ID, AdvertisingRouter: vid.ID}
			e, ok := a.FindLSA(key)
			if !ok {
				continue
			}
			body, ok := e.LSA.Body.(*ospf2.RouterLSABody)
			if !ok {
				continue
			}
			cost := result.Cost[vid]
			for _, link := range body.Links {
				if link.Type != ospf2.StubNetLink {
					continue
				}
				prefix, ok := stubPrefix(link)
				if !ok {
					continue
				}
				out = append(out, Candidate{Prefix: prefix, Cost: cost + uint32(link.Metric), NextHops: nh})
			}

		case spf.NetworkVertex:
			e, ok := a.FindNetworkLSA(vid.ID)
			if !ok {
				continue
			}
			body, ok := e.LSA.Body.(*ospf2.NetworkLSABody)
			if !ok {
				continue
			}
			prefix, ok := networkPrefix(vid.ID, body.NetworkMask)
			if !ok {
				continue
			}
			out = append(out, Candidate{Prefix: prefix, Cost: result.Cost[vid], NextHops: nh})
		}
	}

	return out
}

func stubPrefix(link ospf2.RouterLink) (netip.Prefix, bool) {
	return networkPrefix(link.LinkID, link.LinkData)
}

func networkPrefix(network ospf2.ID, mask [4]byte) (netip.Prefix, bool) {
	ones, ok := maskOnes(mask)
	if !ok {
		return netip.Prefix{}, false
	}
	addr := netip.AddrFrom4(network)
	return netip.PrefixFrom(addr, ones).Masked(), true
}

func maskOnes(mask [4]byte) (int, bool) {
	var v uint32
	for _, b := range mask {
		v = v<<8 | uint32(b)
	}
	ones := 0
	for v&0x80000000 != 0 {
		ones++
		v <<= 1
	}
	if v != 0 {
		return 0, false // non-contiguous mask
	}
	return ones, true
}

// AggregateRanges applies this area's configured summary ranges to
// candidates, per spec.md §4.2's range-aggregation rule: every candidate
// prefix contained by a range is suppressed from individual advertisement
// and replaced by a single aggregate candidate at the range's own cost (or
// the maximum constituent cost, if the range left Cost unset); a range
// marked NoAdvertise suppresses its constituents without emitting any
// aggregate at all.
func (a *Area) AggregateRanges(candidates []Candidate) []Candidate {
	if len(a.Ranges) == 0 {
		return candidates
	}

	type agg struct {
		prefix   netip.Prefix
		cost     uint32
		costSet  bool
		suppress bool
		any      bool
	}
	aggs := make([]agg, len(a.Ranges))
	for i, rg := range a.Ranges {
		addr, err := netip.ParseAddr(rg.Net)
		if err != nil {
			continue
		}
		maskAddr, err := netip.ParseAddr(rg.Mask)
		if err != nil {
			continue
		}
		ones, ok := maskOnes([4]byte(maskAddr.As4()))
		if !ok {
			continue
		}
		pfx := netip.PrefixFrom(addr, ones).Masked()
		aggs[i] = agg{prefix: pfx, cost: rg.Cost, costSet: rg.Cost > 0, suppress: rg.NoAdvertise}
	}

	var out []Candidate
	for _, c := range candidates {
		matched := -1
		for i := range aggs {
			if !aggs[i].prefix.IsValid() {
				continue
			}
			if aggs[i].prefix.Contains(c.Prefix.Addr()) {
				matched = i
				break
			}
		}
		if matched < 0 {
			out = append(out, c)
			continue
		}
		aggs[matched].any = true
		if !aggs[matched].costSet && c.Cost > aggs[matched].cost {
			aggs[matched].cost = c.Cost
		}
	}

	for _, ag := range aggs {
		if !ag.any || ag.suppress {
			continue
		}
		out = append(out, Candidate{Prefix: ag.prefix, Cost: ag.cost})
	}

	return out
}
