// Package router ties every other internal package into the single
// top-level container described for the engine: per-area databases and
// SPF graphs, the global interface and next-hop tables, the AS-external
// database, graceful-restart helper state, and the public operations
// (receive_ip_packet, tick, configure, shutdown, hitless_restart_*) that
// drive it.
package router

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/area"
	"github.com/openospf/ospfd/internal/config"
	"github.com/openospf/ospfd/internal/fibclient"
	"github.com/openospf/ospfd/internal/flood"
	"github.com/openospf/ospfd/internal/iface"
	"github.com/openospf/ospfd/internal/lsdb"
	"github.com/openospf/ospfd/internal/neighbor"
	"github.com/openospf/ospfd/internal/restart"
	"github.com/openospf/ospfd/internal/rib"
	"github.com/openospf/ospfd/internal/spf"
)

// Interface is one configured OSPF interface's runtime state: its FSM
// state, its neighbor table, and the timers that drive Hello generation
// and DR election.
type Interface struct {
	Config   config.Interface
	Kind     iface.Kind
	State    iface.State
	Phyint   int
	Area     ospf2.ID
	LocalAddr netip.Addr
	DR        ospf2.ID
	Backup    ospf2.ID
	Priority  uint8

	HelloInterval time.Duration
	DeadInterval  time.Duration
	RxmtInterval  time.Duration
	LastHelloSent time.Time
	WaitDeadline  time.Time

	Neighbors map[ospf2.ID]*Neighbor
}

// Neighbor is one neighbor's runtime state: FSM state, flooding lists,
// the DR/Backup it last declared, and the ExStart negotiation outcome.
type Neighbor struct {
	RouterID ospf2.ID
	IfAddr   netip.Addr
	State    neighbor.State
	Lists    *neighbor.Lists
	Priority uint8

	DeclaredDR     ospf2.ID
	DeclaredBackup ospf2.ID

	DD            neighbor.DDNegotiation
	LastHelloRecv time.Time
}

// OutboundPacket is one packet queued for transmission. A zero ToNeighbor
// means flood/multicast on Phyint; otherwise the caller resolves
// ToNeighbor to a unicast destination address.
type OutboundPacket struct {
	Phyint     int
	ToNeighbor ospf2.ID
	Msg        ospf2.Message
}

// Router is the top-level container: every area, every interface, the
// AS-external LSDB, the shared next-hop intern table, the RIB, the
// graceful-restart helper manager, and the FIB collaborator.
type Router struct {
	log *logrus.Entry

	config config.Config

	areas      map[ospf2.ID]*area.Area
	interfaces map[int]*Interface

	ifPhyints  map[string]int
	nextPhyint int
	md5Keys    map[string][]config.MD5Key

	externalLSDB *lsdb.Database
	nht          *rib.Table
	routes       *rib.RouteTable

	restart *restart.Manager
	fib     fibclient.FibConfig

	outbound chan OutboundPacket

	overflowUntil time.Time
	dijkstraGen   uint64

	pendingSPF bool
}

// New constructs a Router from an initial configuration. fib may be nil in
// tests that do not exercise FIB synchronization.
func New(cfg config.Config, fib fibclient.FibConfig, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Router{
		log:          log,
		areas:        make(map[ospf2.ID]*area.Area),
		interfaces:   make(map[int]*Interface),
		ifPhyints:    make(map[string]int),
		externalLSDB: lsdb.New(log.WithField("lsdb", "external")),
		nht:          rib.NewTable(),
		routes:       rib.NewRouteTable(),
		restart:      restart.NewManager(),
		fib:          fib,
		outbound:     make(chan OutboundPacket, 256),
	}

	r.reconcileAreas(cfg.Areas)
	r.reconcileInterfaces(cfg.Interfaces)
	r.reconcileRanges(cfg.Ranges)
	r.reconcileStaticNeighbors(cfg.StaticNeighbors)
	r.reconcileVirtualLinks(cfg.VirtualLinks)
	r.reconcileMD5Keys(cfg.MD5Keys)
	r.config = cfg

	return r
}

// Area returns the area database for id, if any.
func (r *Router) Area(id ospf2.ID) (*area.Area, bool) {
	a, ok := r.areas[id]
	return a, ok
}

// Interfaces returns every configured interface keyed by its phyint, the
// identity the daemon entrypoint uses to open one socket per interface and
// correlate inbound packets back to ReceiveIPPacket. Callers must not
// mutate the returned Interface values; Router owns them.
func (r *Router) Interfaces() map[int]*Interface {
	return r.interfaces
}

// Outbound returns the channel of packets queued for transmission. The
// caller (the daemon entrypoint, which owns the sockets) drains this
// channel and resolves each packet's destination address.
func (r *Router) Outbound() <-chan OutboundPacket {
	return r.outbound
}

func (r *Router) enqueue(phyint int, to ospf2.ID, msg ospf2.Message) {
	select {
	case r.outbound <- OutboundPacket{Phyint: phyint, ToNeighbor: to, Msg: msg}:
	default:
		r.log.WithField("phyint", phyint).Warn("outbound queue full, dropping packet")
	}
}

// Configure commits tx against the router's running configuration,
// reconciling every field a committed transaction touched (spec.md §6.2's
// transactional configuration interface). A failed commit leaves the
// router's configuration and runtime state untouched.
func (r *Router) Configure(tx *config.Transaction) (config.Diff, error) {
	next, diff, err := tx.Commit()
	if err != nil {
		return config.Diff{}, fmt.Errorf("configure router: %w", err)
	}

	if diff.Changed("Areas") {
		r.reconcileAreas(next.Areas)
	}
	if diff.Changed("Interfaces") {
		r.reconcileInterfaces(next.Interfaces)
	}
	if diff.Changed("Ranges") {
		r.reconcileRanges(next.Ranges)
	}
	if diff.Changed("StaticNeighbors") {
		r.reconcileStaticNeighbors(next.StaticNeighbors)
	}
	if diff.Changed("VirtualLinks") {
		r.reconcileVirtualLinks(next.VirtualLinks)
	}
	if diff.Changed("MD5Keys") {
		r.reconcileMD5Keys(next.MD5Keys)
	}

	r.config = next
	return diff, nil
}

func (r *Router) reconcileAreas(areas []config.Area) {
	seen := make(map[ospf2.ID]bool, len(areas))
	for _, a := range areas {
		seen[a.ID] = true
		if existing, ok := r.areas[a.ID]; ok {
			existing.Stub = a.Stub
			continue
		}
		r.areas[a.ID] = area.New(a.ID, a.Stub, r.log.WithField("area", a.ID.String()))
	}
	for id := range r.areas {
		if !seen[id] {
			delete(r.areas, id)
		}
	}
}

func (r *Router) reconcileInterfaces(next []config.Interface) {
	for _, ifcCfg := range next {
		phyint := r.phyintFor(ifcCfg)
		existing, ok := r.interfaces[phyint]
		if !ok {
			existing = &Interface{Neighbors: make(map[ospf2.ID]*Neighbor)}
			r.interfaces[phyint] = existing
		}

		existing.Config = ifcCfg
		existing.Phyint = phyint
		existing.Area = ifcCfg.Area
		existing.Kind = kindFromConfig(ifcCfg.Type)
		existing.Priority = ifcCfg.DRPriority
		existing.HelloInterval = time.Duration(ifcCfg.Hello) * time.Second
		existing.DeadInterval = time.Duration(ifcCfg.Dead) * time.Second
		existing.RxmtInterval = time.Duration(ifcCfg.Rxmt) * time.Second
		if addr, err := netip.ParseAddr(ifcCfg.Addr); err == nil {
			existing.LocalAddr = addr
		}

		if !ok {
			r.runInterfaceEvent(existing, iface.PhyUp)
		}
	}
}

func (r *Router) reconcileRanges(ranges []config.Range) {
	byArea := make(map[ospf2.ID][]config.Range, len(ranges))
	for _, rg := range ranges {
		byArea[rg.Area] = append(byArea[rg.Area], rg)
	}
	for id, a := range r.areas {
		a.Ranges = byArea[id]
	}
}

func (r *Router) reconcileStaticNeighbors(neighbors []config.StaticNeighbor) {
	for _, sn := range neighbors {
		ifc := r.interfaceByAddr(sn.IfAddr)
		if ifc == nil {
			continue
		}
		nbAddr, err := netip.ParseAddr(sn.NbrAddr)
		if err != nil {
			continue
		}
		id := ospf2.ID(nbAddr.As4())
		nb, ok := ifc.Neighbors[id]
		if !ok {
			nb = &Neighbor{RouterID: id, Lists: neighbor.NewLists()}
			ifc.Neighbors[id] = nb
		}
		nb.IfAddr = nbAddr
		if sn.Eligible {
			nb.Priority = 1
		}
	}
}

func (r *Router) reconcileVirtualLinks(links []config.VirtualLink) {
	for _, vl := range links {
		key := fmt.Sprintf("vl|%s|%s", vl.TransitArea, vl.EndpointRtrID)
		phyint := r.phyintForKey(key)
		existing, ok := r.interfaces[phyint]
		if !ok {
			existing = &Interface{Neighbors: make(map[ospf2.ID]*Neighbor)}
			r.interfaces[phyint] = existing
		}
		existing.Phyint = phyint
		existing.Kind = iface.VirtualLink
		// Virtual links are configured against the backbone but tunnel
		// through the named transit area; treat the transit area as the
		// link's owning area so its Hello/DD traffic reconciles against
		// that area's database.
		existing.Area = vl.TransitArea
		existing.HelloInterval = time.Duration(vl.HelloInterval) * time.Second
		existing.DeadInterval = time.Duration(vl.DeadInterval) * time.Second
		existing.RxmtInterval = time.Duration(vl.RxmtInterval) * time.Second
		if _, ok := existing.Neighbors[vl.EndpointRtrID]; !ok {
			existing.Neighbors[vl.EndpointRtrID] = &Neighbor{RouterID: vl.EndpointRtrID, Lists: neighbor.NewLists()}
		}
		if !ok {
			r.runInterfaceEvent(existing, iface.PhyUp)
		}
	}
}

func (r *Router) reconcileMD5Keys(keys []config.MD5Key) {
	m := make(map[string][]config.MD5Key, len(keys))
	for _, k := range keys {
		m[k.Iface] = append(m[k.Iface], k)
	}
	r.md5Keys = m
}

func (r *Router) phyintFor(ifcCfg config.Interface) int {
	return r.phyintForKey(ifcCfg.Phy + "|" + ifcCfg.Addr)
}

func (r *Router) phyintForKey(key string) int {
	if id, ok := r.ifPhyints[key]; ok {
		return id
	}
	r.nextPhyint++
	r.ifPhyints[key] = r.nextPhyint
	return r.nextPhyint
}

func (r *Router) interfaceByAddr(addr string) *Interface {
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		return nil
	}
	for _, ifc := range r.interfaces {
		if ifc.LocalAddr == parsed {
			return ifc
		}
	}
	return nil
}

func kindFromConfig(t string) iface.Kind {
	switch t {
	case "nbma":
		return iface.NBMA
	case "point-to-point":
		return iface.PointToPointKind
	case "point-to-multipoint":
		return iface.PointToMultiPoint
	case "virtual-link":
		return iface.VirtualLink
	case "loopback":
		return iface.LoopbackKind
	default:
		return iface.Broadcast
	}
}

// electsDR reports whether kind runs DR/BDR election, mirroring
// internal/iface's own unexported Kind.electsDR rule (Broadcast and NBMA
// only).
func electsDR(k iface.Kind) bool {
	return k == iface.Broadcast || k == iface.NBMA
}

// Tick advances the clock by one second (spec.md §5's single-threaded
// cooperative schedule): aging work for every LSDB, graceful-restart
// expiry, interface wait timers and Hello generation, then SPF, then
// AS-external recalculation, then the FIB sync — in that order, since
// LSAs freed during aging must not still be referenced by a stale SPF
// run, and FIB updates must reflect the post-SPF routing table.
func (r *Router) Tick(now time.Time) error {
	for _, a := range r.areas {
		r.ageArea(a, now)
	}
	r.ageExternal(now)

	for _, s := range r.restart.Expired(now) {
		r.restart.EndHelping(s.AreaID, s.Neighbor)
		if ifc, nb := r.findNeighbor(s.AreaID, s.Neighbor); nb != nil {
			next, actions := neighbor.Transition(nb.State, neighbor.Inactivity, nil)
			nb.State = next
			r.runNeighborActions(ifc, nb, actions, now)
		}
	}

	r.checkWaitTimers(now)
	r.sendDueHellos(now)

	if r.pendingSPF {
		r.runSPF()
		r.pendingSPF = false
	}

	return r.syncFIB(now)
}

func (r *Router) findNeighbor(areaID, neighborID ospf2.ID) (*Interface, *Neighbor) {
	for _, ifc := range r.interfaces {
		if ifc.Area != areaID {
			continue
		}
		if nb, ok := ifc.Neighbors[neighborID]; ok {
			return ifc, nb
		}
	}
	return nil, nil
}

func (r *Router) ageArea(a *area.Area, now time.Time) {
	actions := a.LSDB.Tick(func(e *lsdb.Entry) bool {
		return e.RefCount == 0
	})
	for _, e := range actions.Reoriginate {
		r.reoriginateAreaLSA(a, e, now)
	}
	for _, e := range actions.VerifyChecksum {
		if err := lsdb.VerifyChecksum(e); err != nil {
			r.log.WithError(err).Error("LSDB checksum verification failed")
		}
	}
	if len(actions.Flush) > 0 {
		r.pendingSPF = true
		for _, e := range actions.Flush {
			r.floodLSA(a, e.LSA)
		}
	}
	for _, id := range actions.Free {
		a.LSDB.Remove(id)
	}
}

func (r *Router) ageExternal(now time.Time) {
	actions := r.externalLSDB.Tick(func(e *lsdb.Entry) bool {
		return e.RefCount == 0
	})
	for _, e := range actions.Reoriginate {
		r.reoriginateExternalLSA(e, now)
	}
	if len(actions.Flush) > 0 {
		r.pendingSPF = true
		for _, e := range actions.Flush {
			r.floodExternal(e.LSA)
		}
	}
	for _, id := range actions.Free {
		r.externalLSDB.Remove(id)
	}
}

func (r *Router) reoriginateAreaLSA(a *area.Area, e *lsdb.Entry, now time.Time) {
	seq, _, defer_ := lsdb.TryOriginate(e, now, false)
	if defer_ {
		return
	}
	lsa := e.LSA
	lsa.Header.SequenceNumber = seq
	lsa.Header.Age = 0
	installed := a.AddLSA(lsa, true)
	r.ScheduleSPF()
	r.floodLSA(a, installed.LSA)
}

func (r *Router) reoriginateExternalLSA(e *lsdb.Entry, now time.Time) {
	seq, _, defer_ := lsdb.TryOriginate(e, now, false)
	if defer_ {
		return
	}
	lsa := e.LSA
	lsa.Header.SequenceNumber = seq
	lsa.Header.Age = 0
	installed := r.externalLSDB.Install(lsa, true)
	r.floodExternal(installed.LSA)
}

func (r *Router) floodLSA(a *area.Area, lsa ospf2.LSA) {
	for _, ifc := range r.interfaces {
		if ifc.Area != a.ID {
			continue
		}
		r.enqueue(ifc.Phyint, ospf2.ID{}, &ospf2.LinkStateUpdate{
			Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: a.ID},
			LSAs:   []ospf2.LSA{lsa},
		})
	}
}

func (r *Router) floodExternal(lsa ospf2.LSA) {
	for _, ifc := range r.interfaces {
		if a, ok := r.areas[ifc.Area]; ok && a.Stub {
			continue
		}
		r.enqueue(ifc.Phyint, ospf2.ID{}, &ospf2.LinkStateUpdate{
			Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area},
			LSAs:   []ospf2.LSA{lsa},
		})
	}
}

// floodReceived forwards a just-installed LSA out every interface the
// flooding procedure reaches, per its type's flooding scope, excluding
// the interface it arrived on.
func (r *Router) floodReceived(a *area.Area, receivingIfc *Interface, lsa ospf2.LSA) {
	if lsa.Header.Type.FloodingScope() == ospf2.ASScope {
		for _, ifc := range r.interfaces {
			if ifc == receivingIfc {
				continue
			}
			if owner, ok := r.areas[ifc.Area]; ok && owner.Stub {
				continue
			}
			r.enqueue(ifc.Phyint, ospf2.ID{}, &ospf2.LinkStateUpdate{
				Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area},
				LSAs:   []ospf2.LSA{lsa},
			})
		}
		return
	}
	for _, ifc := range r.interfaces {
		if ifc.Area != a.ID || ifc == receivingIfc {
			continue
		}
		r.enqueue(ifc.Phyint, ospf2.ID{}, &ospf2.LinkStateUpdate{
			Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: a.ID},
			LSAs:   []ospf2.LSA{lsa},
		})
	}
}

func (r *Router) checkWaitTimers(now time.Time) {
	for _, ifc := range r.interfaces {
		if ifc.State == iface.Waiting && !ifc.WaitDeadline.IsZero() && !now.Before(ifc.WaitDeadline) {
			r.runInterfaceEvent(ifc, iface.WaitTimer)
		}
	}
}

func (r *Router) sendDueHellos(now time.Time) {
	for _, ifc := range r.interfaces {
		if ifc.State == iface.Down || ifc.Kind == iface.LoopbackKind || ifc.Config.Passive {
			continue
		}
		if ifc.HelloInterval <= 0 {
			continue
		}
		if !ifc.LastHelloSent.IsZero() && now.Sub(ifc.LastHelloSent) < ifc.HelloInterval {
			continue
		}
		ifc.LastHelloSent = now
		r.enqueue(ifc.Phyint, ospf2.ID{}, r.buildHello(ifc))
	}
}

func (r *Router) buildHello(ifc *Interface) *ospf2.Hello {
	h := &ospf2.Hello{
		Header:             ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area, AuType: r.authTypeFor(ifc)},
		HelloInterval:      ifc.HelloInterval,
		Options:            ospf2.EBit,
		RouterPriority:     ifc.Priority,
		RouterDeadInterval: ifc.DeadInterval,
		DesignatedRouter:   ifc.DR,
		BackupDesignated:   ifc.Backup,
	}
	for id, nb := range ifc.Neighbors {
		if nb.State.Active() {
			h.NeighborIDs = append(h.NeighborIDs, id)
		}
	}
	return h
}

func (r *Router) authTypeFor(ifc *Interface) ospf2.AuType {
	switch ifc.Config.AuthType {
	case "md5":
		return ospf2.AuMD5
	case "simple":
		return ospf2.AuCleartext
	default:
		return ospf2.AuNone
	}
}

// ScheduleSPF marks a full SPF+AS-external recalculation as due on the
// next Tick, the coalescing behavior spec.md §5 requires so that a burst
// of LSA installations triggers one recalculation, not one per LSA.
func (r *Router) ScheduleSPF() {
	r.pendingSPF = true
}

func (r *Router) runSPF() {
	r.dijkstraGen++

	perArea := make(map[ospf2.ID][]area.Candidate, len(r.areas))
	for id, a := range r.areas {
		graph := r.buildGraph(a)
		root := spf.VertexID{Kind: spf.RouterVertex, ID: r.config.RouterID}
		result := spf.Run(graph, root, r.nht)
		candidates := a.DeriveIntraAreaRoutes(result)
		r.installIntraAreaRoutes(a, candidates)
		perArea[id] = candidates
	}

	if len(r.areas) > 1 {
		r.originateSummaries(perArea)
	}

	r.runASExternalCalc()
}

// buildGraph translates an area's installed router/network-LSAs into a
// spf.Graph: router-LSA point-to-point and virtual links become direct
// router-to-router edges, transit-network links become router-to-network
// edges, and each network-LSA's attached-router list becomes the
// zero-cost reverse edges RFC 2328 appendix A.4.3 describes. Every fully
// adjacent neighbor this router itself has on the area is recorded as the
// relevant vertex's RootInterface so Run can derive a next hop without
// walking the graph twice.
func (r *Router) buildGraph(a *area.Area) *spf.Graph {
	g := spf.NewGraph()
	vertices := make(map[spf.VertexID]*spf.Vertex)

	getVertex := func(id spf.VertexID) *spf.Vertex {
		v, ok := vertices[id]
		if !ok {
			v = &spf.Vertex{ID: id}
			vertices[id] = v
		}
		return v
	}

	a.LSDB.All(func(e *lsdb.Entry) bool {
		switch body := e.LSA.Body.(type) {
		case *ospf2.RouterLSABody:
			v := getVertex(spf.VertexID{Kind: spf.RouterVertex, ID: e.LSA.Header.AdvertisingRouter})
			for _, link := range body.Links {
				switch link.Type {
				case ospf2.PointToPointLink, ospf2.VirtualLink:
					v.Links = append(v.Links, spf.Link{
						To:          spf.VertexID{Kind: spf.RouterVertex, ID: link.LinkID},
						Cost:        uint32(link.Metric),
						GatewayAddr: link.LinkData,
					})
				case ospf2.TransitNetLink:
					v.Links = append(v.Links, spf.Link{
						To:   spf.VertexID{Kind: spf.NetworkVertex, ID: link.LinkID},
						Cost: uint32(link.Metric),
					})
				}
			}
		case *ospf2.NetworkLSABody:
			v := getVertex(spf.VertexID{Kind: spf.NetworkVertex, ID: e.LSA.Header.LinkStateID})
			for _, rtr := range body.AttachedRouters {
				v.Links = append(v.Links, spf.Link{
					To:          spf.VertexID{Kind: spf.RouterVertex, ID: rtr},
					GatewayAddr: gatewayOnNetwork(a, e.LSA.Header.LinkStateID, rtr),
				})
			}
		}
		return true
	})

	for _, ifc := range r.interfaces {
		if ifc.Area != a.ID {
			continue
		}
		for id, nb := range ifc.Neighbors {
			if nb.State != neighbor.Full {
				continue
			}
			nh := rib.NextHop{Phyint: ifc.Phyint, Gateway: id}
			if ifc.LocalAddr.IsValid() {
				nh.IfAddr = ifc.LocalAddr
			}
			if electsDR(ifc.Kind) {
				if netID := r.networkIDFor(ifc); netID != (ospf2.ID{}) {
					getVertex(spf.VertexID{Kind: spf.NetworkVertex, ID: netID}).RootInterface = &nh
				}
			} else {
				getVertex(spf.VertexID{Kind: spf.RouterVertex, ID: id}).RootInterface = &nh
			}
		}
	}

	for _, v := range vertices {
		g.AddVertex(v)
	}
	return g
}

// networkIDFor returns the transit network's vertex identity for ifc: the
// Designated Router's own interface address on that segment.
func (r *Router) networkIDFor(ifc *Interface) ospf2.ID {
	if ifc.DR == r.config.RouterID {
		if ifc.LocalAddr.IsValid() {
			return ospf2.ID(ifc.LocalAddr.As4())
		}
		return ospf2.ID{}
	}
	if nb, ok := ifc.Neighbors[ifc.DR]; ok && nb.IfAddr.IsValid() {
		return ospf2.ID(nb.IfAddr.As4())
	}
	return ospf2.ID{}
}

// gatewayOnNetwork recovers routerID's own interface address on the
// transit network networkID, by searching its router-LSA for the
// matching transit-network link, per RFC 2328 appendix A.4.3.
func gatewayOnNetwork(a *area.Area, networkID, routerID ospf2.ID) ospf2.ID {
	key := ospf2.LSAID{Type: ospf2.RouterLSA, LinkStateID: routerID, AdvertisingRouter: routerID}
	e, ok := a.FindLSA(key)
	if !ok {
		return ospf2.ID{}
	}
	body, ok := e.LSA.Body.(*ospf2.RouterLSABody)
	if !ok {
		return ospf2.ID{}
	}
	for _, link := range body.Links {
		if link.Type == ospf2.TransitNetLink && link.LinkID == networkID {
			return link.LinkData
		}
	}
	return ospf2.ID{}
}

func (r *Router) installIntraAreaRoutes(a *area.Area, candidates []area.Candidate) {
	for _, c := range candidates {
		candidate := &rib.Entry{Type: rib.SPFIntra, Cost: c.Cost, Area: a.ID, NextHops: c.NextHops, Changed: true, DijkstraGen: r.dijkstraGen}
		existing, _ := r.routes.Get(c.Prefix)
		if rib.Better(existing, candidate) {
			r.routes.Insert(c.Prefix, candidate)
		}
	}
}

// originateSummaries runs the area-border-router summary-origination
// step: for every non-stub area, aggregate every other area's intra-area
// candidates through that area's configured ranges and originate a
// Summary-LSA for whatever survives, per RFC 2328 section 12.4.3.
func (r *Router) originateSummaries(perArea map[ospf2.ID][]area.Candidate) {
	for id, a := range r.areas {
		if a.Stub {
			continue
		}
		var foreign []area.Candidate
		for otherID, candidates := range perArea {
			if otherID == id {
				continue
			}
			foreign = append(foreign, candidates...)
		}

		for _, c := range a.AggregateRanges(foreign) {
			key := ospf2.LSAID{Type: ospf2.SummaryLSA, LinkStateID: prefixToID(c.Prefix), AdvertisingRouter: r.config.RouterID}
			prev, _ := a.FindLSA(key)
			seq, _, defer_ := lsdb.TryOriginate(prev, time.Now(), false)
			if defer_ {
				continue
			}
			installed := a.AddLSA(area.OriginateSummary(r.config.RouterID, c.Prefix, c.Cost, seq), true)
			r.floodLSA(a, installed.LSA)
		}
	}
}

func prefixToID(p netip.Prefix) ospf2.ID {
	return ospf2.ID(p.Masked().Addr().As4())
}

// runASExternalCalc implements spec.md §4.8's AS-external calculation:
// every AS-external-LSA is turned into a candidate keyed by its
// advertised prefix (ASBR cost resolved from the RIB's existing route to
// the advertising router), every configured static external route is
// added as its own always-available candidate, spf.BetterExternal picks
// the winner per prefix, and the result is arbitrated against any
// existing RTE via rib.Better.
func (r *Router) runASExternalCalc() {
	type winner struct {
		candidate spf.ExternalCandidate
		nextHops  *rib.NextHopSet
	}
	best := make(map[netip.Prefix]winner)

	consider := func(prefix netip.Prefix, cand spf.ExternalCandidate, nh *rib.NextHopSet) {
		cur, ok := best[prefix]
		var curPtr *spf.ExternalCandidate
		if ok {
			curPtr = &cur.candidate
		}
		if spf.BetterExternal(curPtr, &cand) {
			best[prefix] = winner{candidate: cand, nextHops: nh}
		}
	}

	r.externalLSDB.All(func(e *lsdb.Entry) bool {
		body, ok := e.LSA.Body.(*ospf2.ASExternalLSABody)
		if !ok {
			return true
		}
		ones, ok := maskOnesFromBytes(body.NetworkMask)
		if !ok {
			return true
		}
		prefix := netip.PrefixFrom(netip.AddrFrom4(e.LSA.Header.LinkStateID), ones).Masked()

		asbrEntry, ok := r.routes.Lookup(netip.AddrFrom4(e.LSA.Header.AdvertisingRouter))
		if !ok {
			return true
		}

		for _, entry := range body.Entries {
			cand := spf.ExternalCandidate{ASBRCost: asbrEntry.Cost, Type2Cost: entry.Metric}
			if entry.MetricType2 {
				cand.Type = spf.Type2
			} else {
				cand.Type = spf.Type1
			}
			cand.ExitsBackbone = asbrEntry.Area != (ospf2.ID{})
			consider(prefix, cand, asbrEntry.NextHops)
		}
		return true
	})

	for _, route := range r.config.ExternalRoutes {
		if route.NoAdvertise {
			continue
		}
		addr, err := netip.ParseAddr(route.Net)
		if err != nil {
			continue
		}
		maskAddr, err := netip.ParseAddr(route.Mask)
		if err != nil {
			continue
		}
		ones, ok := maskOnesFromBytes(maskAddr.As4())
		if !ok {
			continue
		}
		prefix := netip.PrefixFrom(addr, ones).Masked()

		var nh *rib.NextHopSet
		if gw, err := netip.ParseAddr(route.NextHop); err == nil {
			nh = r.nht.Intern([]rib.NextHop{{Gateway: ospf2.ID(gw.As4())}})
		}

		cand := spf.ExternalCandidate{Type2Cost: route.Metric, IsStatic: true}
		if route.Type2 {
			cand.Type = spf.Type2
		} else {
			cand.Type = spf.Type1
		}
		consider(prefix, cand, nh)
	}

	for prefix, w := range best {
		t := rib.ExternalT1
		if w.candidate.Type == spf.Type2 {
			t = rib.ExternalT2
		}
		candidate := &rib.Entry{Type: t, Cost: w.candidate.TotalCost(), CostType2: w.candidate.Type2Cost, NextHops: w.nextHops, Changed: true, DijkstraGen: r.dijkstraGen}
		existing, _ := r.routes.Get(prefix)
		if rib.Better(existing, candidate) {
			r.routes.Insert(prefix, candidate)
		}
	}
}

func maskOnesFromBytes(mask [4]byte) (int, bool) {
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
		return 0, false
	}
	return ones, true
}

// syncFIB pushes every changed RTE since the last sync to the FIB
// collaborator, per spec.md §4.8's FIB-sync step. It also drains any
// kernel-desync notifications and, once the 5 s quiet period has passed,
// reinstalls routes the kernel removed out from under us.
func (r *Router) syncFIB(now time.Time) error {
	if r.fib == nil {
		return nil
	}

	var errs []error
	r.routes.All(func(prefix netip.Prefix, e *rib.Entry) bool {
		if !e.Changed {
			return true
		}
		if err := r.fib.AddRoute(context.Background(), prefix, e); err != nil {
			errs = append(errs, err)
		} else {
			e.Changed = false
		}
		return true
	})

	ch := r.fib.KrtDeleteNotifications()
drain:
	for {
		select {
		case prefix := <-ch:
			if e, found := r.routes.Get(prefix); found {
				e.Changed = true
			}
		default:
			break drain
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sync FIB: %d route(s) failed: %w", len(errs), errs[0])
	}
	return nil
}

// Shutdown implements spec.md §4.2's multi-phase drain: flush every
// self-originated non-network LSA, then AS-external LSAs, then
// network-LSAs, withdraw FIB routes, and return once graceSeconds has
// elapsed or the drain completes, whichever is first. The caller is
// responsible for ceasing to call Tick after Shutdown returns.
func (r *Router) Shutdown(graceSeconds int) error {
	for _, a := range r.areas {
		r.flushSelfOriginated(a, false)
	}
	r.flushSelfOriginatedExternal()
	for _, a := range r.areas {
		r.flushSelfOriginated(a, true)
	}

	if r.fib == nil {
		return nil
	}
	var errs []error
	r.routes.All(func(prefix netip.Prefix, e *rib.Entry) bool {
		if err := r.fib.DeleteRoute(context.Background(), prefix); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %d route withdrawal(s) failed: %w", len(errs), errs[0])
	}
	return nil
}

func (r *Router) flushSelfOriginated(a *area.Area, networkOnly bool) {
	var toFlush []ospf2.LSA
	a.LSDB.All(func(e *lsdb.Entry) bool {
		if !e.WeOriginated {
			return true
		}
		if (e.LSA.Header.Type == ospf2.NetworkLSA) != networkOnly {
			return true
		}
		toFlush = append(toFlush, e.LSA)
		return true
	})
	for _, lsa := range toFlush {
		lsa.Header.Age = lsdb.MaxAge
		installed := a.AddLSA(lsa, true)
		r.floodLSA(a, installed.LSA)
	}
}

func (r *Router) flushSelfOriginatedExternal() {
	var toFlush []ospf2.LSA
	r.externalLSDB.All(func(e *lsdb.Entry) bool {
		if e.WeOriginated {
			toFlush = append(toFlush, e.LSA)
		}
		return true
	})
	for _, lsa := range toFlush {
		lsa.Header.Age = lsdb.MaxAge
		installed := r.externalLSDB.Install(lsa, true)
		r.floodExternal(installed.LSA)
	}
}

// HitlessRestartBegin starts this router's own graceful restart, per
// spec.md §4.9: originate a Grace-LSA on every addressed interface and
// begin waiting for acks before halting.
func (r *Router) HitlessRestartBegin(period time.Duration, now time.Time) *restart.SelfRestart {
	var ids []ospf2.ID
	for _, ifc := range r.interfaces {
		if !ifc.LocalAddr.IsValid() {
			continue
		}
		ids = append(ids, ospf2.ID(ifc.LocalAddr.As4()))
	}
	sr := restart.NewSelfRestart(ids, period, now)
	r.originateGraceLSAs(period, restart.ReasonSoftwareRestart)
	return sr
}

func (r *Router) originateGraceLSAs(period time.Duration, reason restart.Reason) {
	for _, ifc := range r.interfaces {
		a, ok := r.areas[ifc.Area]
		if !ok || !ifc.LocalAddr.IsValid() {
			continue
		}
		local := ospf2.ID(ifc.LocalAddr.As4())
		grace := restart.GraceLSA{GracePeriod: period, Reason: reason, InterfaceAddr: local}
		lsa := ospf2.LSA{
			Header: ospf2.LSAHeader{
				Type:              ospf2.LinkOpaqueLSA,
				LinkStateID:       ospf2.ID{restart.GraceLSAOpaqueType, 0, 0, 0},
				AdvertisingRouter: r.config.RouterID,
				Options:           ospf2.EBit | ospf2.OpaqueBit,
			},
			Body: ospf2.OpaqueBody(grace.Encode()),
		}
		installed := a.AddLSA(lsa, true)
		r.enqueue(ifc.Phyint, ospf2.ID{}, &ospf2.LinkStateUpdate{
			Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area},
			LSAs:   []ospf2.LSA{installed.LSA},
		})
	}
}

// HitlessRestartEnd exits the grace period immediately (a caller-driven
// override of the normal Stabilized/timer exit conditions, e.g. when an
// operator cancels a restart in progress).
func (r *Router) HitlessRestartEnd(sr *restart.SelfRestart) {
	sr.ExitGrace()
}

// ReceiveIPPacket is the entry point for OSPF datagrams: demultiplex by
// phyint to the owning Interface and area, then dispatch by message type
// to the appropriate FSM-driving handler.
func (r *Router) ReceiveIPPacket(phyint int, srcAddr netip.Addr, msg ospf2.Message) error {
	ifc, ok := r.interfaces[phyint]
	if !ok {
		return fmt.Errorf("receive packet on unconfigured interface %d", phyint)
	}
	a, ok := r.areas[ifc.Area]
	if !ok {
		return fmt.Errorf("interface %d belongs to unconfigured area %s", phyint, ifc.Area)
	}

	switch m := msg.(type) {
	case *ospf2.Hello:
		r.receiveHello(ifc, srcAddr, m)
	case *ospf2.DatabaseDescription:
		r.receiveDD(ifc, a, m)
	case *ospf2.LinkStateRequest:
		r.receiveLSR(ifc, a, m)
	case *ospf2.LinkStateUpdate:
		for _, lsa := range m.LSAs {
			r.receiveLSA(ifc, ifc.Neighbors[m.Header.RouterID], a, lsa)
		}
	case *ospf2.LinkStateAcknowledgement:
		r.receiveLSAck(ifc, m)
	}
	return nil
}

func (r *Router) receiveHello(ifc *Interface, srcAddr netip.Addr, h *ospf2.Hello) {
	if ifc.State == iface.Down {
		return
	}
	now := time.Now()

	id := h.Header.RouterID
	nb, ok := ifc.Neighbors[id]
	if !ok {
		nb = &Neighbor{RouterID: id, Lists: neighbor.NewLists()}
		ifc.Neighbors[id] = nb
	}
	if srcAddr.IsValid() {
		nb.IfAddr = srcAddr
	}
	nb.Priority = h.RouterPriority
	nb.DeclaredDR = h.DesignatedRouter
	nb.DeclaredBackup = h.BackupDesignated
	nb.LastHelloRecv = now

	next, actions := neighbor.Transition(nb.State, neighbor.HelloReceived, nil)
	nb.State = next
	r.runNeighborActions(ifc, nb, actions, now)

	sawSelf := false
	for _, n := range h.NeighborIDs {
		if n == r.config.RouterID {
			sawSelf = true
			break
		}
	}
	event := neighbor.OneWayHello
	if sawSelf {
		event = neighbor.TwoWayHello
	}
	next, actions = neighbor.Transition(nb.State, event, func() bool { return r.adjacencyDesired(ifc, nb) })
	nb.State = next
	r.runNeighborActions(ifc, nb, actions, now)

	if electsDR(ifc.Kind) {
		r.runInterfaceEvent(ifc, iface.NeighborChange)
		if ifc.State == iface.Waiting && h.DesignatedRouter != (ospf2.ID{}) {
			r.runInterfaceEvent(ifc, iface.BackupSeen)
		}
	}
}

func (r *Router) adjacencyDesired(ifc *Interface, nb *Neighbor) bool {
	if !electsDR(ifc.Kind) {
		return true
	}
	self := r.config.RouterID
	return ifc.DR == self || ifc.Backup == self || ifc.DR == nb.RouterID || ifc.Backup == nb.RouterID
}

func (r *Router) receiveDD(ifc *Interface, a *area.Area, dd *ospf2.DatabaseDescription) {
	now := time.Now()
	nb, ok := ifc.Neighbors[dd.Header.RouterID]
	if !ok || !nb.State.Bidirectional() {
		return
	}

	switch nb.State {
	case neighbor.ExStart:
		if dd.Flags&ospf2.IBit == 0 || dd.Flags&ospf2.MBit == 0 || dd.Flags&ospf2.MSBit == 0 || len(dd.LSAs) != 0 {
			return
		}
		master := neighbor.Negotiate(r.config.RouterID, nb.RouterID)
		nb.DD = neighbor.DDNegotiation{Master: master, SequenceNumber: dd.SequenceNumber}
		next, actions := neighbor.Transition(nb.State, neighbor.NegotiationDone, nil)
		nb.State = next
		r.runNeighborActions(ifc, nb, actions, now)
		if !master {
			r.sendDDReply(ifc, nb)
		}

	case neighbor.Exchange, neighbor.Loading, neighbor.Full:
		for _, h := range dd.LSAs {
			if _, have := a.FindLSA(h.Key()); !have {
				nb.Lists.AddRequest(h.Key())
			}
		}
		if dd.Flags&ospf2.MBit != 0 || len(nb.Lists.DatabaseSummary) != 0 {
			return
		}
		next, actions := neighbor.Transition(nb.State, neighbor.ExchangeDone, nil)
		nb.State = next
		r.runNeighborActions(ifc, nb, actions, now)
		if len(nb.Lists.Request) == 0 {
			next, actions = neighbor.Transition(nb.State, neighbor.LoadingDone, nil)
			nb.State = next
			r.runNeighborActions(ifc, nb, actions, now)
		} else {
			r.sendLSR(ifc, nb)
		}
	}
}

func (r *Router) sendDDReply(ifc *Interface, nb *Neighbor) {
	r.enqueue(ifc.Phyint, nb.RouterID, &ospf2.DatabaseDescription{
		Header:         ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area, AuType: r.authTypeFor(ifc)},
		InterfaceMTU:   ifc.Config.MTU,
		Options:        ospf2.EBit,
		Flags:          ospf2.MBit,
		SequenceNumber: nb.DD.SequenceNumber,
		LSAs:           nb.Lists.DatabaseSummary,
	})
}

func (r *Router) sendLSR(ifc *Interface, nb *Neighbor) {
	r.enqueue(ifc.Phyint, nb.RouterID, &ospf2.LinkStateRequest{
		Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area, AuType: r.authTypeFor(ifc)},
		LSAs:   nb.Lists.Request,
	})
}

func (r *Router) receiveLSR(ifc *Interface, a *area.Area, lsr *ospf2.LinkStateRequest) {
	nb, ok := ifc.Neighbors[lsr.Header.RouterID]
	if !ok || !nb.State.Flooding() {
		return
	}

	var lsas []ospf2.LSA
	for _, id := range lsr.LSAs {
		e, ok := a.FindLSA(id)
		if !ok {
			next, actions := neighbor.Transition(nb.State, neighbor.BadLSReq, nil)
			nb.State = next
			r.runNeighborActions(ifc, nb, actions, time.Now())
			return
		}
		lsas = append(lsas, e.LSA)
	}
	if len(lsas) > 0 {
		r.enqueue(ifc.Phyint, nb.RouterID, &ospf2.LinkStateUpdate{
			Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area, AuType: r.authTypeFor(ifc)},
			LSAs:   lsas,
		})
	}
}

func (r *Router) receiveLSAck(ifc *Interface, ack *ospf2.LinkStateAcknowledgement) {
	nb, ok := ifc.Neighbors[ack.Header.RouterID]
	if !ok {
		return
	}
	for _, h := range ack.LSAs {
		if acked, empty := nb.Lists.Ack(h.Key()); acked && empty {
			nb.Lists.GrowWindow()
		}
	}
}

func (r *Router) receiveLSA(ifc *Interface, nb *Neighbor, a *area.Area, lsa ospf2.LSA) {
	key := lsa.Header.Key()
	existing, haveCopy := a.FindLSA(key)

	if err := flood.Validate(lsa.Header, true, true, a.Stub, haveCopy, false); err != flood.ErrNone {
		return
	}

	var dbHeader ospf2.LSAHeader
	if haveCopy {
		dbHeader = existing.LSA.Header
	}
	onRetransmission := false
	if nb != nil {
		_, onRetransmission = nb.Lists.Retransmission[key]
	}

	switch flood.Decide(haveCopy, lsa.Header, dbHeader, onRetransmission, false) {
	case flood.Install:
		installed := a.AddLSA(lsa, false)
		r.ScheduleSPF()
		r.handleGraceLSA(a, ifc, nb, installed.LSA)
		if lsa.Header.Type == ospf2.RouterLSA || lsa.Header.Type == ospf2.NetworkLSA {
			r.restart.CancelArea(a.ID)
		}
		r.floodReceived(a, ifc, installed.LSA)

	case flood.TreatAsImpliedAck:
		if nb != nil {
			if acked, empty := nb.Lists.Ack(key); acked && empty {
				nb.Lists.GrowWindow()
			}
		}

	case flood.SendDirectAck, flood.SendOurCopy:
		if ifc != nil {
			r.enqueue(ifc.Phyint, ospf2.ID{}, &ospf2.LinkStateAcknowledgement{
				Header: ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area},
				LSAs:   []ospf2.LSAHeader{lsa.Header},
			})
		}

	case flood.Discard:
	}

	if nb != nil {
		if empty := nb.Lists.SatisfyRequest(key); empty && nb.State == neighbor.Loading {
			next, actions := neighbor.Transition(nb.State, neighbor.LoadingDone, nil)
			nb.State = next
			r.runNeighborActions(ifc, nb, actions, time.Now())
		}
	}
}

func (r *Router) handleGraceLSA(a *area.Area, ifc *Interface, nb *Neighbor, lsa ospf2.LSA) {
	if lsa.Header.Type != ospf2.LinkOpaqueLSA || lsa.Header.LinkStateID[0] != restart.GraceLSAOpaqueType {
		return
	}
	body, ok := lsa.Body.(ospf2.OpaqueBody)
	if !ok {
		return
	}
	grace, ok := restart.DecodeGraceLSA(body)
	if !ok || nb == nil || nb.State != neighbor.Full {
		return
	}
	r.restart.BeginHelping(a.ID, lsa.Header.AdvertisingRouter, grace, ifc != nil && ifc.DR == nb.RouterID, time.Now())
}

func (r *Router) runNeighborActions(ifc *Interface, nb *Neighbor, actions []neighbor.Action, now time.Time) {
	for _, act := range actions {
		switch act {
		case neighbor.ResetInactivityTimer, neighbor.StartInactivityTimer:
			nb.LastHelloRecv = now

		case neighbor.StartDDExchange:
			master := neighbor.Negotiate(r.config.RouterID, nb.RouterID)
			nb.DD = neighbor.DDNegotiation{Master: master, SequenceNumber: uint32(now.Unix())}
			r.enqueue(ifc.Phyint, nb.RouterID, &ospf2.DatabaseDescription{
				Header:         ospf2.Header{RouterID: r.config.RouterID, AreaID: ifc.Area, AuType: r.authTypeFor(ifc)},
				InterfaceMTU:   ifc.Config.MTU,
				Options:        ospf2.EBit,
				Flags:          ospf2.IBit | ospf2.MBit | ospf2.MSBit,
				SequenceNumber: nb.DD.SequenceNumber,
			})

		case neighbor.SnapshotLSDB:
			if a, ok := r.areas[ifc.Area]; ok {
				nb.Lists.DatabaseSummary = a.Snapshot()
			}

		case neighbor.FinishExchange:
			// Exchange's completion is evaluated by the caller
			// (receiveDD), which already knows whether the request list
			// is empty and can fire LoadingDone in the same pass.

		case neighbor.ClearLists:
			nb.Lists.Clear()

		case neighbor.DeleteNeighbor:
			delete(ifc.Neighbors, nb.RouterID)

		case neighbor.RestartDD:
		}
	}

	if nb.State == neighbor.Full {
		if a, ok := r.areas[ifc.Area]; ok {
			r.originateRouterLSA(a)
		}
		if electsDR(ifc.Kind) {
			r.runInterfaceEvent(ifc, iface.NeighborChange)
		}
	}
}

func (r *Router) runInterfaceEvent(ifc *Interface, event iface.Event) {
	next, actions := iface.Transition(ifc.State, ifc.Kind, event)
	ifc.State = next

	for _, act := range actions {
		switch act {
		case iface.StartHellos:
			ifc.LastHelloSent = time.Time{}
		case iface.StopHellos:
		case iface.StartWaitTimer:
			ifc.WaitDeadline = time.Now().Add(ifc.DeadInterval)
		case iface.StopWaitTimer:
			ifc.WaitDeadline = time.Time{}
		case iface.ElectDR:
			r.electDR(ifc)
		case iface.DestroyNeighbors:
			ifc.Neighbors = make(map[ospf2.ID]*Neighbor)
		case iface.ClearDRBDR:
			ifc.DR, ifc.Backup = ospf2.ID{}, ospf2.ID{}
		case iface.ReoriginateRouterLSA:
			if a, ok := r.areas[ifc.Area]; ok {
				r.originateRouterLSA(a)
			}
		case iface.ReoriginateNetworkLSA:
			if a, ok := r.areas[ifc.Area]; ok {
				r.originateNetworkLSA(ifc, a)
			}
		}
	}
}

func (r *Router) electDR(ifc *Interface) {
	if !electsDR(ifc.Kind) {
		return
	}
	prevDR, prevBackup := ifc.DR, ifc.Backup

	result := r.runElection(ifc)
	ifc.DR, ifc.Backup = result.DR, result.Backup
	ifc.State = iface.StateAfterElection(result, r.config.RouterID)

	self := r.config.RouterID
	selfChanged := (ifc.DR == self) != (prevDR == self) || (ifc.Backup == self) != (prevBackup == self)
	if selfChanged {
		// spec.md §4.3's "repeat once" rule: re-run the election exactly
		// once more if our own DR/Backup membership just changed.
		result = r.runElection(ifc)
		ifc.DR, ifc.Backup = result.DR, result.Backup
		ifc.State = iface.StateAfterElection(result, r.config.RouterID)
	}

	if a, ok := r.areas[ifc.Area]; ok {
		r.originateRouterLSA(a)
		if ifc.DR == r.config.RouterID {
			r.originateNetworkLSA(ifc, a)
		}
	}
}

func (r *Router) runElection(ifc *Interface) iface.Result {
	candidates := []iface.Candidate{{RouterID: r.config.RouterID, Priority: ifc.Priority, DeclaredDR: ifc.DR, DeclaredBackup: ifc.Backup}}
	for _, nb := range ifc.Neighbors {
		if !nb.State.Bidirectional() {
			continue
		}
		candidates = append(candidates, iface.Candidate{
			RouterID:       nb.RouterID,
			Priority:       nb.Priority,
			DeclaredDR:     nb.DeclaredDR,
			DeclaredBackup: nb.DeclaredBackup,
		})
	}
	return iface.Elect(candidates, r.config.RouterID)
}

// originateRouterLSA rebuilds this router's type-1 Router-LSA for a from
// its current set of up interfaces and fully adjacent neighbors, per RFC
// 2328 section 12.4.1, and floods it unless origination is deferred.
func (r *Router) originateRouterLSA(a *area.Area) {
	var links []ospf2.RouterLink
	borderRouter := len(r.areas) > 1
	asBoundary := len(r.config.ExternalRoutes) > 0

	for _, ifc := range r.interfaces {
		if ifc.Area != a.ID || ifc.State == iface.Down || !ifc.LocalAddr.IsValid() {
			continue
		}
		local := ospf2.ID(ifc.LocalAddr.As4())
		cost := ifc.Config.Cost
		if cost == 0 {
			cost = 1
		}

		fullNeighbors := 0
		for _, nb := range ifc.Neighbors {
			if nb.State != neighbor.Full {
				continue
			}
			fullNeighbors++
			if ifc.Kind == iface.PointToPointKind || ifc.Kind == iface.VirtualLink {
				links = append(links, ospf2.RouterLink{LinkID: nb.RouterID, LinkData: local, Type: ospf2.PointToPointLink, Metric: cost})
			}
		}

		switch ifc.Kind {
		case iface.Broadcast, iface.NBMA:
			if netID := r.networkIDFor(ifc); fullNeighbors > 0 && netID != (ospf2.ID{}) {
				links = append(links, ospf2.RouterLink{LinkID: netID, LinkData: local, Type: ospf2.TransitNetLink, Metric: cost})
				continue
			}
			// No adjacency yet (or we have not learned the DR's
			// address): advertise the interface itself as a stub host
			// route. config.Interface carries no subnet mask, so a
			// full transit-network prefix cannot be derived here.
			links = append(links, ospf2.RouterLink{LinkID: local, LinkData: [4]byte{255, 255, 255, 255}, Type: ospf2.StubNetLink, Metric: cost})
		case iface.PointToPointKind, iface.VirtualLink, iface.PointToMultiPoint:
			if fullNeighbors == 0 {
				links = append(links, ospf2.RouterLink{LinkID: local, LinkData: [4]byte{255, 255, 255, 255}, Type: ospf2.StubNetLink, Metric: cost})
			}
		}
	}

	key := ospf2.LSAID{Type: ospf2.RouterLSA, LinkStateID: r.config.RouterID, AdvertisingRouter: r.config.RouterID}
	prev, _ := a.FindLSA(key)
	seq, _, defer_ := lsdb.TryOriginate(prev, time.Now(), false)
	if defer_ {
		return
	}

	installed := a.AddLSA(area.OriginateRouterLSA(r.config.RouterID, a.ID, borderRouter, asBoundary, links, seq), true)
	r.floodLSA(a, installed.LSA)
	r.ScheduleSPF()
}

// originateNetworkLSA rebuilds the Network-LSA for ifc's transit segment
// if this router is DR there, or withdraws it if the segment no longer
// has any other fully adjacent router attached.
func (r *Router) originateNetworkLSA(ifc *Interface, a *area.Area) {
	if ifc.DR != r.config.RouterID || !ifc.LocalAddr.IsValid() {
		return
	}
	netID := ospf2.ID(ifc.LocalAddr.As4())

	attached := []ospf2.ID{r.config.RouterID}
	for id, nb := range ifc.Neighbors {
		if nb.State == neighbor.Full {
			attached = append(attached, id)
		}
	}
	if len(attached) < 2 {
		a.DeleteLSA(ospf2.LSAID{Type: ospf2.NetworkLSA, LinkStateID: netID, AdvertisingRouter: r.config.RouterID})
		r.ScheduleSPF()
		return
	}

	lsa := ospf2.LSA{
		Header: ospf2.LSAHeader{Type: ospf2.NetworkLSA, LinkStateID: netID, AdvertisingRouter: r.config.RouterID, Options: ospf2.EBit},
		// config.Interface carries no subnet mask; a host mask is used
		// as a documented simplification (see DESIGN.md).
		Body: &ospf2.NetworkLSABody{NetworkMask: [4]byte{255, 255, 255, 255}, AttachedRouters: attached},
	}
	installed := a.AddLSA(lsa, true)
	r.floodLSA(a, installed.LSA)
	r.ScheduleSPF()
}
