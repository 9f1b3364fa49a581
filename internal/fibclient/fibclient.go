// Package fibclient implements the router's FIB-synchronization
// collaborator: the FibConfig interface it calls to push routes into the
// kernel, a concrete client backed by rtnetlink, and the kernel-desync
// retry discipline described for FIB sync.
package fibclient

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/rib"
)

// FibConfig is the collaborator interface the router calls to install and
// withdraw routes, and through which it learns about kernel-side route
// deletions it did not itself request (spec.md §6.2's FibConfig
// collaborator: add_route/delete_route/krt_delete_notification).
type FibConfig interface {
	AddRoute(ctx context.Context, prefix netip.Prefix, e *rib.Entry) error
	DeleteRoute(ctx context.Context, prefix netip.Prefix) error
	KrtDeleteNotifications() <-chan netip.Prefix
}

// QuietPeriod is the minimum interval the router waits after a kernel
// desync before re-attempting a route installation it believes should
// already be present, per spec.md §4.8's FIB-sync description.
const QuietPeriod = 5 * time.Second

// NetlinkFibClient implements FibConfig using github.com/jsimonetti/rtnetlink.
type NetlinkFibClient struct {
	conn   *rtnetlink.Conn
	table  uint8
	notify chan netip.Prefix

	lastDesync map[netip.Prefix]time.Time
}

// NewNetlinkFibClient dials the kernel's rtnetlink socket and returns a
// FibConfig backed by it. table selects the kernel routing table (0 means
// the main table, unix.RT_TABLE_MAIN).
func NewNetlinkFibClient(table uint8) (*NetlinkFibClient, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("dial rtnetlink: %w", err)
	}
	return &NetlinkFibClient{
		conn:       conn,
		table:      table,
		notify:     make(chan netip.Prefix, 64),
		lastDesync: make(map[netip.Prefix]time.Time),
	}, nil
}

// Close releases the underlying rtnetlink socket.
func (c *NetlinkFibClient) Close() error {
	return c.conn.Close()
}

// AddRoute installs or replaces the kernel route for prefix with the
// next-hops from e, using RTM_NEWROUTE with the Replace flag so a prior
// OSPF-installed route for the same prefix is updated in place.
func (c *NetlinkFibClient) AddRoute(ctx context.Context, prefix netip.Prefix, e *rib.Entry) error {
	msg, err := toRouteMessage(prefix, e, c.table)
	if err != nil {
		return fmt.Errorf("build route message for %s: %w", prefix, err)
	}
	if err := c.conn.Route.Replace(msg); err != nil {
		return fmt.Errorf("install route %s: %w", prefix, err)
	}
	return nil
}

// DeleteRoute withdraws the kernel route for prefix.
func (c *NetlinkFibClient) DeleteRoute(ctx context.Context, prefix netip.Prefix) error {
	msg, err := toRouteMessage(prefix, nil, c.table)
	if err != nil {
		return fmt.Errorf("build route message for %s: %w", prefix, err)
	}
	if err := c.conn.Route.Delete(msg); err != nil {
		return fmt.Errorf("delete route %s: %w", prefix, err)
	}
	return nil
}

// KrtDeleteNotifications returns the channel on which prefixes the
// kernel removed out from under us (not via our own DeleteRoute) are
// reported, so the router can decide whether to reinstall them.
func (c *NetlinkFibClient) KrtDeleteNotifications() <-chan netip.Prefix {
	return c.notify
}

// ShouldRetryAfterDesync implements the 5 s quiet-period rule: after
// observing prefix desynced from the kernel at observedAt, a
// reinstallation attempt should wait until at least observedAt+QuietPeriod
// before trying again, to avoid fighting another process that keeps
// removing the same route.
func (c *NetlinkFibClient) ShouldRetryAfterDesync(prefix netip.Prefix, now time.Time) bool {
	last, ok := c.lastDesync[prefix]
	if !ok {
		c.lastDesync[prefix] = now
		return false
	}
	if now.Sub(last) < QuietPeriod {
		return false
	}
	delete(c.lastDesync, prefix)
	return true
}

func toRouteMessage(prefix netip.Prefix, e *rib.Entry, table uint8) (*rtnetlink.RouteMessage, error) {
	family := uint8(unix.AF_INET)
	if prefix.Addr().Is6() {
		family = unix.AF_INET6
	}

	msg := &rtnetlink.RouteMessage{
		Family:    family,
		DstLength: uint8(prefix.Bits()),
		Table:     table,
		Protocol: unix.RTPROT_OSPF,
		Scope:    unix.RT_SCOPE_UNIVERSE,
		Type:     unix.RTN_UNICAST,
		Attributes: rtnetlink.RouteAttributes{
			Dst:   prefix.Addr().AsSlice(),
			Table: uint32(table),
		},
	}

	if e == nil {
		return msg, nil
	}

	if e.Type == rib.Reject {
		msg.Type = unix.RTN_UNREACHABLE
		return msg, nil
	}

	paths := e.NextHops.Paths()
	if len(paths) == 1 {
		gw := paths[0].Gateway
		if gw != (ospf2.ID{}) {
			msg.Attributes.Gateway = netip.AddrFrom4(gw).AsSlice()
		}
		msg.Attributes.OutIface = uint32(paths[0].Phyint)
	} else if len(paths) > 1 {
		mp := make(rtnetlink.RTMultiPath, 0, len(paths))
		for _, p := range paths {
			mp = append(mp, rtnetlink.NextHop{
				Hop:     rtnetlink.RTNextHop{IfIndex: uint32(p.Phyint)},
				Gateway: netip.AddrFrom4(p.Gateway).AsSlice(),
			})
		}
		msg.Attributes.MultiPath = mp
	}

	return msg, nil
}

// IfTree is the collaborator interface the interface manager uses to tell
// the router about physical link state changes (spec.md §6.2's IfTree
// observer: phy_up/phy_down/addr_changed).
type IfTree interface {
	PhyUp(phyint int)
	PhyDown(phyint int)
	AddrChanged(phyint int, addr netip.Addr, mtu uint16)
}
