package fibclient

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/rib"
)

func TestToRouteMessageReject(t *testing.T) {
	prefix := netip.MustParsePrefix("10.0.0.0/24")
	e := &rib.Entry{Type: rib.Reject}

	msg, err := toRouteMessage(prefix, e, 254)
	require.NoError(t, err)
	assert.Equal(t, uint8(unix.RTN_UNREACHABLE), msg.Type)
	assert.Equal(t, uint8(24), msg.DstLength)
}

func TestToRouteMessageSinglePath(t *testing.T) {
	nht := rib.NewTable()
	nhs := nht.Intern([]rib.NextHop{{Phyint: 3, Gateway: ospf2.ID{10, 0, 0, 2}}})
	e := &rib.Entry{Type: rib.SPFIntra, NextHops: nhs}

	msg, err := toRouteMessage(netip.MustParsePrefix("192.0.2.0/24"), e, 254)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), msg.Attributes.OutIface)
	assert.Equal(t, net.IP(netip.MustParseAddr("10.0.0.2").AsSlice()), msg.Attributes.Gateway)
}

func TestToRouteMessageMultiPath(t *testing.T) {
	nht := rib.NewTable()
	nhs := nht.Intern([]rib.NextHop{
		{Phyint: 1, Gateway: ospf2.ID{10, 0, 0, 1}},
		{Phyint: 2, Gateway: ospf2.ID{10, 0, 0, 2}},
	})
	e := &rib.Entry{Type: rib.SPFIntra, NextHops: nhs}

	msg, err := toRouteMessage(netip.MustParsePrefix("192.0.2.0/24"), e, 254)
	require.NoError(t, err)
	assert.Len(t, msg.Attributes.MultiPath, 2)
}

func TestShouldRetryAfterDesyncEnforcesQuietPeriod(t *testing.T) {
	c := &NetlinkFibClient{lastDesync: make(map[netip.Prefix]time.Time)}
	prefix := netip.MustParsePrefix("10.0.0.0/24")
	start := time.Unix(0, 0)

	assert.False(t, c.ShouldRetryAfterDesync(prefix, start), "first observation only starts the quiet period")
	assert.False(t, c.ShouldRetryAfterDesync(prefix, start.Add(time.Second)))
	assert.True(t, c.ShouldRetryAfterDesync(prefix, start.Add(QuietPeriod+time.Second)))
}
