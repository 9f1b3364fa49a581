// Package spf implements the Dijkstra shortest-path-first calculation
// over a single area's router/network-LSA graph, plus the tie-break
// rules for inter-area (summary) and AS-external route candidates.
package spf

import (
	"container/heap"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/rib"
)

// VertexKind distinguishes router-LSA vertices from network-LSA (transit
// network / pseudo-node) vertices in the SPF graph.
type VertexKind int

const (
	RouterVertex VertexKind = iota
	NetworkVertex
)

// VertexID identifies a vertex: a router-LSA is keyed by its originating
// Router-ID, a network-LSA by its Designated Router's interface address
// (carried as the LinkStateID in RFC 2328 terms).
type VertexID struct {
	Kind VertexKind
	ID   ospf2.ID
}

// Link is one edge out of a vertex toward a neighbor vertex, carrying
// enough to reproduce the next-hop computation of spec.md §4.8.
type Link struct {
	To          VertexID
	Cost        uint32
	GatewayAddr ospf2.ID // the neighbor's unicast address on a broadcast segment (link-data)
	Stub        bool
	StubPrefix  rib.NextHop // reserved for stub-link prefix/next-hop derivation by callers
}

// Vertex is one router-LSA or network-LSA node in the area graph.
type Vertex struct {
	ID    VertexID
	Links []Link

	// RootInterface is set only for links directly attached to the root
	// (this router): the local interface/physical index to use as the
	// next hop when this vertex is a direct child of root.
	RootInterface *rib.NextHop
}

// Graph is one area's SPF graph: every router-LSA and network-LSA vertex
// reachable from the root, keyed by VertexID. It is rebuilt from the
// area's LSDB before each Dijkstra run (step 1 of spec.md §4.8: reset
// every vertex to Uninitialized is implicit in building a fresh Graph).
type Graph struct {
	Vertices map[VertexID]*Vertex
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{Vertices: make(map[VertexID]*Vertex)}
}

// AddVertex installs v, replacing any existing vertex with the same ID.
func (g *Graph) AddVertex(v *Vertex) {
	g.Vertices[v.ID] = v
}

// hasReverseLink reports whether to has a link back to from, implementing
// the bidirectionality requirement of spec.md §4.8 step 3.
func (g *Graph) hasReverseLink(from, to VertexID) bool {
	v, ok := g.Vertices[to]
	if !ok {
		return false
	}
	for _, l := range v.Links {
		if l.To == from {
			return true
		}
	}
	return false
}

// node is a Dijkstra work item: a vertex at a tentative distance, used by
// the binary heap.
type node struct {
	id        VertexID
	cost      uint32
	parent    VertexID
	hasParent bool
	nextHops  []rib.NextHop
}

type queue []*node

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(*node)) }
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Result is the outcome of running Dijkstra over one area: for every
// vertex reached, its final cost and interned next-hop set.
type Result struct {
	Cost     map[VertexID]uint32
	NextHops map[VertexID]*rib.NextHopSet
	Parent   map[VertexID]VertexID
	OnTree   map[VertexID]bool
}

// Run executes Dijkstra from root over g, per spec.md §4.8 steps 2-3. nht
// is the shared next-hop interning table (spec.md §3.1); passing the same
// table across areas and ticks is what makes multipath-set identity an
// O(1) pointer comparison elsewhere in the engine.
func Run(g *Graph, root VertexID, nht *rib.Table) Result {
	result := Result{
		Cost:     make(map[VertexID]uint32),
		NextHops: make(map[VertexID]*rib.NextHopSet),
		Parent:   make(map[VertexID]VertexID),
		OnTree:   make(map[VertexID]bool),
	}

	best := make(map[VertexID]*node)
	q := &queue{}
	heap.Init(q)

	rootNode := &node{id: root, cost: 0}
	best[root] = rootNode
	heap.Push(q, rootNode)

	for q.Len() > 0 {
		cur := heap.Pop(q).(*node)
		if result.OnTree[cur.id] {
			continue
		}
		result.OnTree[cur.id] = true
		result.Cost[cur.id] = cur.cost
		if cur.hasParent {
			result.Parent[cur.id] = cur.parent
		}
		if len(cur.nextHops) > 0 {
			result.NextHops[cur.id] = nht.Intern(cur.nextHops)
		}

		v, ok := g.Vertices[cur.id]
		if !ok {
			continue
		}

		for _, link := range v.Links {
			if link.Stub {
				continue
			}
			if result.OnTree[link.To] {
				continue
			}
			if !g.hasReverseLink(cur.id, link.To) {
				continue
			}

			newCost := cur.cost + link.Cost
			var nextHops []rib.NextHop
			switch {
			case cur.id == root:
				// The local egress toward a direct neighbor of root is carried
				// on the neighbor's own vertex (it may differ per interface on
				// a multi-homed router), not on root's own vertex.
				if target, ok := g.Vertices[link.To]; ok && target.RootInterface != nil {
					nextHops = []rib.NextHop{*target.RootInterface}
				}
			case cur.parent == root || (cur.hasParent && isRootChildTransit(g, root, cur.id)):
				nextHops = []rib.NextHop{{Gateway: link.GatewayAddr}}
			default:
				nextHops = cur.nextHops
			}

			existing, seen := best[link.To]
			if !seen || newCost < existing.cost {
				n := &node{id: link.To, cost: newCost, parent: cur.id, hasParent: true, nextHops: nextHops}
				best[link.To] = n
				heap.Push(q, n)
			} else if newCost == existing.cost {
				existing.nextHops = mergeNextHops(existing.nextHops, nextHops)
			}
		}
	}

	return result
}

func isRootChildTransit(g *Graph, root, id VertexID) bool {
	v, ok := g.Vertices[id]
	return ok && v.ID.Kind == NetworkVertex && g.hasReverseLink(id, root)
}

func mergeNextHops(a, b []rib.NextHop) []rib.NextHop {
	out := append([]rib.NextHop{}, a...)
	for _, nh := range b {
		dup := false
		for _, existing := range out {
			if existing == nh {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, nh)
		}
	}
	return out
}

// ExternalType distinguishes AS-external metric types for tie-breaking.
type ExternalType int

const (
	Type1 ExternalType = iota
	Type2
)

// ExternalCandidate is one reachable AS-external (or AS-external-like
// static) route competing for a prefix, per spec.md §4.8's AS-external
// calculation.
type ExternalCandidate struct {
	Type          ExternalType
	Type2Cost     uint32
	ASBRCost      uint32 // cost to reach the advertising ASBR (or the static route's own cost)
	ExitsBackbone bool   // true if the path exits via a non-backbone area (preferred)
	IsStatic      bool
}

// TotalCost returns the comparable cost for c: ASBR cost plus advertised
// cost for type-1, or just the advertised cost for type-2 (ASBR cost only
// breaks ties between type-2 candidates).
func (c ExternalCandidate) TotalCost() uint32 {
	if c.Type == Type1 {
		return c.ASBRCost + c.Type2Cost
	}
	return c.Type2Cost
}

// BetterExternal reports whether candidate should be preferred over
// current under the tie-break order from spec.md §4.8: type-1 beats
// type-2; lower type-2 cost; exits to a non-backbone area; lower total
// cost. current may be nil, in which case candidate always wins.
func BetterExternal(current, candidate *ExternalCandidate) bool {
	if current == nil {
		return true
	}
	if candidate.Type != current.Type {
		return candidate.Type == Type1
	}
	if candidate.Type == Type2 && candidate.Type2Cost != current.Type2Cost {
		return candidate.Type2Cost < current.Type2Cost
	}
	if candidate.ExitsBackbone != current.ExitsBackbone {
		return !candidate.ExitsBackbone
	}
	return candidate.TotalCost() < current.TotalCost()
}
