// Package rib implements the routing table entry (RTE) storage and
// next-hop interning described for the route-calculation core: a
// longest-prefix-match table of RTEs keyed by destination prefix, and a
// process-wide table that canonicalizes multipath next-hop sets so that
// pointer equality implies structural equality.
package rib

import (
	"net/netip"
	"sort"

	"github.com/gaissmai/bart"

	"github.com/openospf/ospfd"
)

// MaxPath bounds the cardinality of a multipath next-hop set. The original
// engine this design is grounded on (XORP's ospfd, contrib/ospfd/src/rte.C)
// sizes its merge scratch arrays as NH paths[MAXPATH] throughout MPath::merge
// and MPath::addgw, but the header defining the constant itself was not part
// of the retrieved source tree; 16 is chosen as a conventional ECMP fan-out
// bound consistent with those call sites (merge loops stop adding paths once
// n_paths reaches this cap, silently dropping any additional equal-cost
// paths rather than growing unbounded).
const MaxPath = 16

// Type is the kind of route a routing table entry represents, ordered from
// least to most preferred except for None, which denotes "no route".
type Type int

const (
	None Type = iota
	Direct
	SPFIntra
	SPFInter
	ExternalT1
	ExternalT2
	Reject
	Static
)

func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Direct:
		return "Direct"
	case SPFIntra:
		return "SPF"
	case SPFInter:
		return "SPFIA"
	case ExternalT1:
		return "SPFE1"
	case ExternalT2:
		return "SPFE2"
	case Reject:
		return "Reject"
	case Static:
		return "Static"
	default:
		return "Deleted"
	}
}

// NextHop is a single path in a multipath next-hop set: the local interface
// address and physical index to send on, and the gateway address of the
// next router (the zero ID for directly attached stub destinations).
type NextHop struct {
	IfAddr  netip.Addr
	Phyint  int
	Gateway ospf2.ID
}

func (n NextHop) less(o NextHop) bool {
	if n.IfAddr != o.IfAddr {
		return n.IfAddr.Less(o.IfAddr)
	}
	if n.Phyint != o.Phyint {
		return n.Phyint < o.Phyint
	}
	return lessID(n.Gateway, o.Gateway)
}

func lessID(a, b ospf2.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// NextHopSet is an ordered, bounded set of NextHop values. The zero value is
// an empty set. NextHopSet values are always obtained from a Table's intern
// method so that equal sets share a single pointer.
type NextHopSet struct {
	paths []NextHop
}

// Paths returns the next hops in canonical (sorted) order. The slice must
// not be mutated by the caller.
func (s *NextHopSet) Paths() []NextHop {
	if s == nil {
		return nil
	}
	return s.paths
}

// Len reports the number of paths in the set.
func (s *NextHopSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

func sortedCopy(paths []NextHop) []NextHop {
	out := make([]NextHop, len(paths))
	copy(out, paths)
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func equalPaths(a, b []NextHop) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Table is the process-wide next-hop interning table. Distinct calls to
// Intern with structurally equal path sets return the same *NextHopSet, so
// "did the next-hop set change?" reduces to a pointer comparison. Entries
// are never evicted: the number of distinct multipath sets in a running
// network is bounded by topology, not churn, so this is not a leak in
// practice.
type Table struct {
	sets []*NextHopSet
}

// NewTable returns an empty next-hop interning table.
func NewTable() *Table {
	return &Table{}
}

// Intern canonicalizes paths (sorting and bounding it to MaxPath entries)
// and returns the shared *NextHopSet for that canonical value, creating one
// if this is the first time it has been seen.
func (t *Table) Intern(paths []NextHop) *NextHopSet {
	sorted := sortedCopy(paths)
	if len(sorted) > MaxPath {
		sorted = sorted[:MaxPath]
	}

	for _, s := range t.sets {
		if equalPaths(s.paths, sorted) {
			return s
		}
	}

	s := &NextHopSet{paths: sorted}
	t.sets = append(t.sets, s)
	return s
}

// Merge combines two interned next-hop sets, keeping every distinct path
// from both up to MaxPath, mirroring MPath::merge: a full set absorbs no
// further paths from its counterpart.
func (t *Table) Merge(a, b *NextHopSet) *NextHopSet {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Len() >= MaxPath {
		return a
	}
	if b.Len() >= MaxPath {
		return b
	}

	merged := make([]NextHop, 0, a.Len()+b.Len())
	merged = append(merged, a.paths...)
	merged = append(merged, b.paths...)
	return t.Intern(merged)
}

// Entry is a routing table entry: the best known route to a destination
// prefix, plus enough provenance to decide when it must be re-examined.
type Entry struct {
	Prefix      netip.Prefix
	Type        Type
	Cost        uint32
	CostType2   uint32
	Area        ospf2.ID
	NextHops    *NextHopSet
	Changed     bool
	DijkstraGen uint64
}

// Table above is the next-hop intern table; RouteTable is the
// longest-prefix-match store of RTEs, keyed by destination prefix.
type RouteTable struct {
	t *bart.Table[*Entry]
}

// NewRouteTable returns an empty routing table.
func NewRouteTable() *RouteTable {
	return &RouteTable{t: new(bart.Table[*Entry])}
}

// Insert installs or replaces the RTE for prefix.
func (r *RouteTable) Insert(prefix netip.Prefix, e *Entry) {
	e.Prefix = prefix
	r.t.Insert(prefix, e)
}

// Delete removes the RTE for prefix, if present.
func (r *RouteTable) Delete(prefix netip.Prefix) {
	r.t.Delete(prefix)
}

// Get returns the RTE installed for the exact prefix, if any.
func (r *RouteTable) Get(prefix netip.Prefix) (*Entry, bool) {
	return r.t.Get(prefix)
}

// Lookup performs a longest-prefix match for ip, as the FIB-sync path and
// any future data-plane lookup would.
func (r *RouteTable) Lookup(ip netip.Addr) (*Entry, bool) {
	return r.t.Lookup(ip)
}

// All iterates every RTE currently installed, in no particular order.
func (r *RouteTable) All(yield func(netip.Prefix, *Entry) bool) {
	for pfx, e := range r.t.All() {
		if !yield(pfx, e) {
			return
		}
	}
}

// Better reports whether this entry should win over existing when both
// claim the same prefix, applying the RTE type preference order from most
// to least preferred (Reject and Static are administrative and always
// outrank SPF-derived types; among SPF types, intra-area beats inter-area
// beats external type-1 beats external type-2; ties break on cost).
func Better(existing, candidate *Entry) bool {
	if existing == nil {
		return true
	}
	if candidate.Type != existing.Type {
		return routePreference(candidate.Type) > routePreference(existing.Type)
	}
	return candidate.Cost < existing.Cost
}

func routePreference(t Type) int {
	switch t {
	case Static, Reject:
		return 6
	case Direct:
		return 5
	case SPFIntra:
		return 4
	case SPFInter:
		return 3
	case ExternalT1:
		return 2
	case ExternalT2:
		return 1
	default:
		return 0
	}
}
