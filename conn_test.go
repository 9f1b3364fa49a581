package ospf2

import (
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConn(t *testing.T) {
	c1, c2 := testConns(t)

	const n = 3
	type msg struct {
		ID ID
		IP net.IP
	}

	var (
		id   = ID{192, 0, 2, 1}
		msgC = make(chan msg, n)
	)

	var wg sync.WaitGroup
	wg.Add(2)
	defer wg.Wait()

	go func() {
		defer wg.Done()

		for i := 0; i < n; i++ {
			err := c1.WriteTo(&Hello{Header: Header{RouterID: id}}, AllSPFRouters)
			if err != nil {
				panicf("failed to write Hello: %v", err)
			}
		}
	}()

	go func() {
		defer func() {
			close(msgC)
			wg.Done()
		}()

		for i := 0; i < n; i++ {
			m, cm, _, err := c2.ReadFrom()
			if err != nil {
				panicf("failed to read Message: %v", err)
			}

			if cm.TTL != ttl || cm.TOS != tos || cm.IfIndex != c2.ifi.Index {
				panicf("invalid IPv4 control message: %+v", cm)
			}

			h := m.(*Hello).Header
			if h.Checksum == 0 {
				panicf("no Header checksum set: %#04x", h.Checksum)
			}

			msgC <- msg{ID: h.RouterID, IP: cm.Dst}
		}
	}()

	for m := range msgC {
		if diff := cmp.Diff(msg{ID: id, IP: AllSPFRouters.IP}, m); diff != "" {
			t.Fatalf("unexpected message (-want +got):\n%s", diff)
		}
	}
}

// testConns sets up a pair of *Conns pointed at each other using a fixed
// set of veth interfaces for integration testing purposes.
func testConns(t *testing.T) (c1, c2 *Conn) {
	t.Helper()

	var veths [2]*net.Interface
	for i, v := range []string{"vethospf0", "vethospf1"} {
		ifi, err := net.InterfaceByName(v)
		if err != nil {
			var nerr *net.OpError
			if errors.As(err, &nerr) && nerr.Err.Error() == "no such network interface" {
				t.Skipf("skipping, interface %q does not exist", v)
			}

			t.Fatalf("failed to get interface %q: %v", v, err)
		}

		veths[i] = ifi
	}

	waitInterfacesReady(t, veths[0], veths[1])

	var conns [2]*Conn
	for i, v := range veths {
		c, err := Listen(v, true)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				t.Skipf("skipping, permission denied while trying to listen OSPFv2 on %q", v.Name)
			}

			t.Fatalf("failed to listen OSPFv2 on %q: %v", v.Name, err)
		}

		conns[i] = c
		t.Cleanup(func() { c.Close() })
	}

	return conns[0], conns[1]
}

func waitInterfacesReady(t *testing.T, a, b *net.Interface) {
	t.Helper()

	for i := 0; i < 5; i++ {
		if i > 0 {
			time.Sleep(1 * time.Second)
			t.Log("waiting for interface readiness...")
		}

		aaddrs, err := a.Addrs()
		if err != nil {
			t.Fatalf("failed to get first addresses: %v", err)
		}

		baddrs, err := b.Addrs()
		if err != nil {
			t.Fatalf("failed to get second addresses: %v", err)
		}

		if len(aaddrs) > 0 && len(baddrs) > 0 {
			return
		}
	}

	t.Skip("skipping, interfaces never became ready with addresses assigned")
}
