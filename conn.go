package ospf2

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// Fixed IPv4 header parameters for Conn use, per RFC 2328 appendix A.1.
const (
	tos      = 0xc0 // Internetwork control.
	ttl      = 1
	protocol = 89 // OSPF IP protocol number.
)

var (
	// AllSPFRouters is the IPv4 multicast group address that all routers
	// running OSPFv2 must participate in.
	AllSPFRouters = &net.IPAddr{IP: net.ParseIP("224.0.0.5")}

	// AllDRouters is the IPv4 multicast group address that the Designated
	// Router and Backup Designated Router running OSPFv2 must participate
	// in.
	AllDRouters = &net.IPAddr{IP: net.ParseIP("224.0.0.6")}
)

// A Conn can send and receive OSPFv2 packets which implement the Message
// interface, over a raw IPv4 socket bound to a single interface.
type Conn struct {
	c      *ipv4.PacketConn
	ifi    *net.Interface
	groups []*net.IPAddr
}

// Listen creates a *Conn using the specified network interface. joinDR, if
// true, also joins AllDRouters; callers that are not DR-election-capable
// (virtual links) should pass false.
func Listen(ifi *net.Interface, joinDR bool) (*Conn, error) {
	conn, err := net.ListenPacket("ip4:89", "0.0.0.0")
	if err != nil {
		return nil, err
	}
	c := ipv4.NewPacketConn(conn)

	if err := c.SetControlMessage(^ipv4.ControlFlags(0), true); err != nil {
		return nil, err
	}
	if err := c.SetTTL(ttl); err != nil {
		return nil, err
	}
	if err := c.SetMulticastTTL(ttl); err != nil {
		return nil, err
	}
	if err := c.SetTOS(tos); err != nil {
		return nil, err
	}
	if err := c.SetMulticastInterface(ifi); err != nil {
		return nil, err
	}

	groups := []*net.IPAddr{AllSPFRouters}
	if joinDR && ifi.Flags&net.FlagPointToPoint == 0 {
		groups = append(groups, AllDRouters)
	}
	for _, g := range groups {
		if err := c.JoinGroup(ifi, g); err != nil {
			return nil, err
		}
	}

	// Don't read our own multicast packets during concurrent read/write.
	if err := c.SetMulticastLoopback(false); err != nil {
		return nil, err
	}

	return &Conn{c: c, ifi: ifi, groups: groups}, nil
}

// Close closes the Conn's underlying network connection.
func (c *Conn) Close() error {
	for _, g := range c.groups {
		if err := c.c.LeaveGroup(c.ifi, g); err != nil {
			return err
		}
	}
	return c.c.Close()
}

// SetReadDeadline sets the read deadline associated with the Conn.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

// ReadFrom reads a single OSPFv2 packet and returns a Message along with its
// associated IPv4 control message and source address. ReadFrom blocks until
// a timeout occurs or a valid OSPFv2 packet is read; malformed packets are
// silently skipped per spec.md §4.5 ("parse errors ... drop the packet").
func (c *Conn) ReadFrom() (Message, *ipv4.ControlMessage, *net.IPAddr, error) {
	b := make([]byte, c.ifi.MTU)
	for {
		n, cm, src, err := c.c.ReadFrom(b)
		if err != nil {
			return nil, nil, nil, err
		}

		m, err := ParseMessage(b[:n])
		if err != nil {
			continue
		}

		addr, _ := src.(*net.IPAddr)
		return m, cm, addr, nil
	}
}

// WriteTo writes a single OSPFv2 Message to the specified destination
// address or multicast group.
func (c *Conn) WriteTo(m Message, dst *net.IPAddr) error {
	b, err := MarshalMessage(m)
	if err != nil {
		return err
	}

	_, err = c.c.WriteTo(b, nil, dst)
	return err
}
