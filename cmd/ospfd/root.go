package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/config"
	"github.com/openospf/ospfd/internal/fibclient"
	"github.com/openospf/ospfd/internal/router"
)

type rootOptions struct {
	configPath string
	stateDir   string
	logLevel   string
	routeTable uint8
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ospfd",
		Short: "Run the OSPFv2 routing daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts)
		},
	}

	flags := cmd.Flags()
	addDaemonFlags(flags, opts)

	return cmd
}

func addDaemonFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVarP(&opts.configPath, "config", "c", "/etc/ospfd/ospfd.toml", "path to the TOML configuration file")
	flags.StringVar(&opts.stateDir, "state-dir", "/var/lib/ospfd", "directory for persisted graceful-restart state")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.Uint8Var(&opts.routeTable, "route-table", 254, "kernel routing table to install routes into")
}

// inboundPacket is one datagram a socket's read loop has parsed, on its
// way to the single-threaded router loop.
type inboundPacket struct {
	phyint int
	src    *net.IPAddr
	msg    ospf2.Message
}

// socketSet is every open raw-IP socket this process holds, one per
// configured physical interface, keyed by the same phyint Router uses.
type socketSet struct {
	conns map[int]*ospf2.Conn
}

func (s *socketSet) closeAll() {
	for _, conn := range s.conns {
		conn.Close()
	}
}

// openSockets opens one ospf2.Conn per real physical interface the router
// knows about. Virtual links have no device of their own (their
// Config.Phy is empty; RFC 2328 routes their traffic through an existing
// area adjacency rather than a dedicated link), so they are left without
// a socket — this daemon does not yet unicast-route virtual-link traffic
// through the backbone.
func openSockets(r *router.Router, log *logrus.Entry) (*socketSet, error) {
	set := &socketSet{conns: make(map[int]*ospf2.Conn)}
	for phyint, ifc := range r.Interfaces() {
		if ifc.Config.Phy == "" {
			continue
		}
		ifi, err := net.InterfaceByName(ifc.Config.Phy)
		if err != nil {
			set.closeAll()
			return nil, fmt.Errorf("look up interface %s: %w", ifc.Config.Phy, err)
		}
		joinDR := ifc.Config.Type != "point-to-point" && ifc.Config.Type != "virtual-link"
		conn, err := ospf2.Listen(ifi, joinDR)
		if err != nil {
			set.closeAll()
			return nil, fmt.Errorf("listen on %s: %w", ifc.Config.Phy, err)
		}
		set.conns[phyint] = conn
		log.WithFields(logrus.Fields{"phyint": phyint, "device": ifc.Config.Phy}).Info("opened OSPF socket")
	}
	return set, nil
}

// readLoop feeds every packet conn receives into out, tagged with phyint,
// until conn errors out (which happens once closeAll runs at shutdown).
func readLoop(phyint int, conn *ospf2.Conn, out chan<- inboundPacket, log *logrus.Entry) {
	for {
		msg, _, src, err := conn.ReadFrom()
		if err != nil {
			log.WithError(err).WithField("phyint", phyint).Debug("read loop stopped")
			return
		}
		out <- inboundPacket{phyint: phyint, src: src, msg: msg}
	}
}

// messageRouterID extracts the advertising router ID common to every
// OSPF message type, so the daemon can maintain a neighbor address book
// without reaching into router-package internals.
func messageRouterID(msg ospf2.Message) ospf2.ID {
	switch m := msg.(type) {
	case *ospf2.Hello:
		return m.Header.RouterID
	case *ospf2.DatabaseDescription:
		return m.Header.RouterID
	case *ospf2.LinkStateRequest:
		return m.Header.RouterID
	case *ospf2.LinkStateUpdate:
		return m.Header.RouterID
	case *ospf2.LinkStateAcknowledgement:
		return m.Header.RouterID
	default:
		return ospf2.ID{}
	}
}

func runDaemon(opts *rootOptions) error {
	log := newLogger(opts.logLevel)

	data, err := os.ReadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("read configuration %s: %w", opts.configPath, err)
	}
	cfg, err := config.Load(data)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	fib, err := fibclient.NewNetlinkFibClient(opts.routeTable)
	if err != nil {
		return fmt.Errorf("connect to kernel routing table: %w", err)
	}
	defer fib.Close()

	r := router.New(cfg, fib, log)

	sockets, err := openSockets(r, log)
	if err != nil {
		return err
	}
	defer sockets.closeAll()

	inbound := make(chan inboundPacket, 256)
	for phyint, conn := range sockets.conns {
		go readLoop(phyint, conn, inbound, log)
	}

	// neighborAddrs remembers each neighbor's observed source address so
	// unicast replies (Database Description, LSR, directed acks) can be
	// addressed; it is only ever touched by this single loop goroutine.
	neighborAddrs := make(map[ospf2.ID]*net.IPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.WithField("config", opts.configPath).Info("ospfd started")

	for {
		select {
		case now := <-ticker.C:
			if err := r.Tick(now); err != nil {
				log.WithError(err).Warn("tick failed")
			}

		case pkt := <-inbound:
			if pkt.src == nil {
				continue
			}
			neighborAddrs[messageRouterID(pkt.msg)] = pkt.src
			srcAddr, ok := netip.AddrFromSlice(pkt.src.IP.To4())
			if !ok {
				continue
			}
			if err := r.ReceiveIPPacket(pkt.phyint, srcAddr, pkt.msg); err != nil {
				log.WithError(err).WithField("phyint", pkt.phyint).Warn("receive packet failed")
			}

		case out := <-r.Outbound():
			conn, ok := sockets.conns[out.Phyint]
			if !ok {
				continue
			}
			dst := ospf2.AllSPFRouters
			if out.ToNeighbor != (ospf2.ID{}) {
				if addr, ok := neighborAddrs[out.ToNeighbor]; ok {
					dst = addr
				}
			}
			if err := conn.WriteTo(out.Msg, dst); err != nil {
				log.WithError(err).WithField("phyint", out.Phyint).Warn("write packet failed")
			}

		case <-ctx.Done():
			log.Info("shutting down")
			return r.Shutdown(5)
		}
	}
}
