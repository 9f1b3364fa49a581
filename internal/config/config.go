// Package config implements the transactional configuration layer: the
// option table from spec.md §6.3 expressed as a Go struct, a TOML file
// format for it, and a begin/add/commit/abort transaction that either
// applies every staged change atomically or leaves the running
// configuration untouched.
package config

import (
	"fmt"

	"github.com/pelletier/go-toml"

	"github.com/openospf/ospfd"
)

// Area is one configured OSPF area.
type Area struct {
	ID              ospf2.ID `toml:"id"`
	Stub            bool     `toml:"stub"`
	DefaultCost     uint32   `toml:"default_cost"`
	ImportSummaries bool     `toml:"import_summaries"`
}

// Interface is one configured OSPF interface.
type Interface struct {
	Addr        string        `toml:"addr"`
	Phy         string        `toml:"phy"`
	Area        ospf2.ID      `toml:"area"`
	Type        string        `toml:"type"` // broadcast, nbma, point-to-point, point-to-multipoint
	MTU         uint16        `toml:"mtu"`
	Cost        uint16        `toml:"cost"`
	Hello       uint16        `toml:"hello"`
	Dead        uint32        `toml:"dead"`
	Rxmt        uint16        `toml:"rxmt"`
	XmitDelay   uint16        `toml:"xmit_delay"`
	DRPriority  uint8         `toml:"dr_pri"`
	AuthType    string        `toml:"authtype"`
	Password    string        `toml:"password"`
	Passive     bool          `toml:"passive"`
	Demand      bool          `toml:"demand"`
	MCForwarded bool          `toml:"mc_fwd"`
}

// Range is one area summary-aggregation range.
type Range struct {
	Area         ospf2.ID `toml:"area"`
	Net          string   `toml:"net"`
	Mask         string   `toml:"mask"`
	NoAdvertise  bool     `toml:"no_advertise"`
	Cost         uint32   `toml:"cost"`
}

// StaticNeighbor seeds an NBMA or point-to-multipoint interface's
// neighbor table.
type StaticNeighbor struct {
	IfAddr   string `toml:"ifaddr"`
	NbrAddr  string `toml:"nbr_addr"`
	Eligible bool   `toml:"eligible"`
}

// VirtualLink instantiates a virtual link through a transit area.
type VirtualLink struct {
	TransitArea    ospf2.ID `toml:"transit_area"`
	EndpointRtrID  ospf2.ID `toml:"endpoint_rtrid"`
	HelloInterval  uint16   `toml:"hello"`
	DeadInterval   uint32   `toml:"dead"`
	RxmtInterval   uint16   `toml:"rxmt"`
	TransitDelay   uint16   `toml:"xmit_delay"`
}

// MD5Key is one rolling authentication key.
type MD5Key struct {
	Iface        string `toml:"iface"`
	KeyID        uint8  `toml:"id"`
	Key          string `toml:"key"`
	StartAccept  int64  `toml:"start_accept"`
	StopAccept   int64  `toml:"stop_accept"`
	StartGenerate int64 `toml:"start_generate"`
	StopGenerate  int64 `toml:"stop_generate"`
}

// ExternalRoute is one locally originated AS-external route.
type ExternalRoute struct {
	Net         string `toml:"net"`
	Mask        string `toml:"mask"`
	NextHop     string `toml:"nh"`
	Metric      uint32 `toml:"metric"`
	Type2       bool   `toml:"type2"`
	Tag         uint32 `toml:"tag"`
	NoAdvertise bool   `toml:"no_advertise"`
}

// Config is the complete running configuration, per spec.md §6.3.
type Config struct {
	RouterID ospf2.ID `toml:"router_id"`

	Areas           []Area           `toml:"area"`
	Interfaces      []Interface      `toml:"interface"`
	Ranges          []Range          `toml:"range"`
	StaticNeighbors []StaticNeighbor `toml:"static_neighbor"`
	VirtualLinks    []VirtualLink    `toml:"virtual_link"`
	MD5Keys         []MD5Key         `toml:"md5_key"`
	ExternalRoutes  []ExternalRoute  `toml:"external_route"`

	LSDBLimit       int `toml:"lsdb_limit"`
	OverflowInterval int `toml:"overflow_interval"`

	NewFloodRate  int `toml:"new_flood_rate"`
	MaxRxmtWindow int `toml:"max_rxmt_window"`
	MaxDDs        int `toml:"max_dds"`
	RefreshRate   int `toml:"refresh_rate"`

	PPAdjLimit int  `toml:"pp_adj_limit"`
	HostMode   bool `toml:"host_mode"`
}

// Load parses a TOML configuration file's contents into a Config.
func Load(data []byte) (Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse configuration: %w", err)
	}
	return c, nil
}

// Marshal renders c as TOML, the format chosen in SPEC_FULL.md §6.3.
func Marshal(c Config) ([]byte, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("render configuration: %w", err)
	}
	return b, nil
}

// OpKind enumerates the transactional operation kinds from spec.md §6.2's
// configuration interface.
type OpKind int

const (
	SetGlobalParams OpKind = iota
	AddArea
	ModifyArea
	DeleteArea
	AddInterface
	ModifyInterface
	DeleteInterface
	AddStaticNeighbor
	DeleteStaticNeighbor
	AddHostRoute
	DeleteHostRoute
	AddRange
	DeleteRange
	AddVirtualLink
	DeleteVirtualLink
	AddMD5Key
	DeleteMD5Key
	AddExternalRoute
	DeleteExternalRoute
)

// Op is one staged change within a Transaction. Apply receives a working
// copy of the configuration and mutates it in place; Field names the
// config field the op touches, recorded in ValuesSet on commit (mirroring
// moby-moby's daemon.Reload ValuesSet pattern for reporting exactly which
// options changed).
type Op struct {
	Kind  OpKind
	Field string
	Apply func(*Config) error
}

// Transaction stages a sequence of Ops against a base Config and either
// commits all of them atomically or discards them, per spec.md §6.2's
// begin/add/commit/abort configuration interface.
type Transaction struct {
	base Config
	ops  []Op
}

// Begin starts a new transaction against the current configuration. base
// is copied defensively so staged ops never mutate the live Config until
// Commit succeeds.
func Begin(base Config) *Transaction {
	return &Transaction{base: cloneConfig(base)}
}

// Add stages op for this transaction. Staged ops are not applied until
// Commit.
func (t *Transaction) Add(op Op) {
	t.ops = append(t.ops, op)
}

// Commit applies every staged op in order against a working copy of the
// base configuration. If any op returns an error, the transaction is
// abandoned and the original base configuration is returned unchanged
// along with the error — spec.md §6.2's "commits atomically" guarantee.
// On success it returns the new configuration and a Diff describing which
// fields changed.
func (t *Transaction) Commit() (Config, Diff, error) {
	working := cloneConfig(t.base)
	touched := make(map[string]bool)

	for _, op := range t.ops {
		if op.Apply == nil {
			continue
		}
		if err := op.Apply(&working); err != nil {
			return t.base, Diff{}, fmt.Errorf("commit configuration op on %s: %w", op.Field, err)
		}
		if op.Field != "" {
			touched[op.Field] = true
		}
	}

	return working, diffFields(t.base, working, touched), nil
}

// Abort discards every staged op without touching the base configuration.
func (t *Transaction) Abort() {
	t.ops = nil
}

// Diff describes the result of a committed transaction: which top-level
// fields the caller should treat as having changed, mirroring
// moby-moby's daemon.Reload ValuesSet map used to decide which subsystems
// need to react to a reload.
type Diff struct {
	ValuesSet map[string]bool
}

// Changed reports whether field was touched by the committed transaction.
func (d Diff) Changed(field string) bool {
	return d.ValuesSet[field]
}

func diffFields(before, after Config, touched map[string]bool) Diff {
	set := make(map[string]bool, len(touched))
	for field := range touched {
		set[field] = true
	}
	return Diff{ValuesSet: set}
}

func cloneConfig(c Config) Config {
	clone := c
	clone.Areas = append([]Area(nil), c.Areas...)
	clone.Interfaces = append([]Interface(nil), c.Interfaces...)
	clone.Ranges = append([]Range(nil), c.Ranges...)
	clone.StaticNeighbors = append([]StaticNeighbor(nil), c.StaticNeighbors...)
	clone.VirtualLinks = append([]VirtualLink(nil), c.VirtualLinks...)
	clone.MD5Keys = append([]MD5Key(nil), c.MD5Keys...)
	clone.ExternalRoutes = append([]ExternalRoute(nil), c.ExternalRoutes...)
	return clone
}
