// Package restart implements the graceful-restart helper mechanism: a
// neighbor receiving a grace-LSA from a restarting router freezes its view
// of that neighbor as Full and keeps advertising the adjacency for the
// duration of the grace period, and the router-side persistence that lets
// a self-restarting process resume without a routing disruption.
package restart

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openospf/ospfd"
)

// GraceLSAOpaqueType is the opaque-type byte (the top octet of the
// Link-State-ID) identifying a Grace-LSA among Link-Opaque-LSAs, per RFC
// 3623 section 2.2.
const GraceLSAOpaqueType = 3

// graceLSALen is the wire length of an encoded GraceLSA body: a 4-byte
// grace period, a 1-byte reason, and the 4-byte restarting interface
// address.
const graceLSALen = 9

// Reason is the grace-LSA's advertised restart reason.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonSoftwareRestart
	ReasonSoftwareUpgrade
	ReasonSwitchToRedundant
)

// GraceLSA is the opaque link-local LSA body carrying the restart request,
// per spec.md §4.9.
type GraceLSA struct {
	GracePeriod    time.Duration
	Reason         Reason
	InterfaceAddr  ospf2.ID // zero if the restarting router omitted it
}

// Encode serializes g to the fixed 9-byte layout this engine uses for a
// Grace-LSA's opaque body: grace period seconds (4), reason (1),
// restarting interface address (4). RFC 3623 defines these as independent
// TLVs; this engine only ever emits all three together, so a fixed layout
// carries the same information without a TLV parser.
func (g GraceLSA) Encode() []byte {
	b := make([]byte, graceLSALen)
	binary.BigEndian.PutUint32(b[0:4], uint32(g.GracePeriod/time.Second))
	b[4] = byte(g.Reason)
	copy(b[5:9], g.InterfaceAddr[:])
	return b
}

// DecodeGraceLSA parses a Grace-LSA opaque body previously produced by
// Encode. ok is false if b is too short to be a Grace-LSA.
func DecodeGraceLSA(b []byte) (g GraceLSA, ok bool) {
	if len(b) < graceLSALen {
		return GraceLSA{}, false
	}
	g.GracePeriod = time.Duration(binary.BigEndian.Uint32(b[0:4])) * time.Second
	g.Reason = Reason(b[4])
	copy(g.InterfaceAddr[:], b[5:9])
	return g, true
}

// HelperSession tracks one neighbor this router is helping through a
// graceful restart.
type HelperSession struct {
	Neighbor  ospf2.ID
	AreaID    ospf2.ID
	Deadline  time.Time
	Reason    Reason
	WasDR     bool // freeze the neighbor as DR on this interface if it was DR
}

// Manager tracks every in-progress helper session, keyed by (area, neighbor).
type Manager struct {
	sessions map[sessionKey]*HelperSession
}

type sessionKey struct {
	area     ospf2.ID
	neighbor ospf2.ID
}

// NewManager returns an empty helper-session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[sessionKey]*HelperSession)}
}

// BeginHelping starts a helper session for neighbor in area, per spec.md
// §4.9: called only when the neighbor is Full and the caller has confirmed
// no topology change is pending for this area. now + grace.GracePeriod is
// the deadline at which the session fails if it hasn't already exited.
func (m *Manager) BeginHelping(area, neighbor ospf2.ID, grace GraceLSA, neighborWasDR bool, now time.Time) *HelperSession {
	key := sessionKey{area: area, neighbor: neighbor}
	s := &HelperSession{
		Neighbor: neighbor,
		AreaID:   area,
		Deadline: now.Add(grace.GracePeriod),
		Reason:   grace.Reason,
		WasDR:    neighborWasDR,
	}
	m.sessions[key] = s
	return s
}

// Helping reports whether this router is currently helping neighbor in
// area, and if so, whether that neighbor should be frozen as DR.
func (m *Manager) Helping(area, neighbor ospf2.ID) (*HelperSession, bool) {
	s, ok := m.sessions[sessionKey{area: area, neighbor: neighbor}]
	return s, ok
}

// EndHelping exits the helper session for neighbor in area, whether the
// cause was a successful grace-LSA flush or a timer expiry.
func (m *Manager) EndHelping(area, neighbor ospf2.ID) {
	delete(m.sessions, sessionKey{area: area, neighbor: neighbor})
}

// CancelArea exits every helper session in area at once: spec.md §4.9
// requires that any topology-changing LSA received within a helper's area
// cancels all helper sessions in that area, since the helper can no longer
// promise the frozen topology it advertised is still accurate.
func (m *Manager) CancelArea(area ospf2.ID) []*HelperSession {
	var cancelled []*HelperSession
	for key, s := range m.sessions {
		if key.area == area {
			cancelled = append(cancelled, s)
			delete(m.sessions, key)
		}
	}
	return cancelled
}

// Expired returns every session whose deadline has passed as of now, for
// the caller to exit (a failed restart) and remove from ongoing helping.
func (m *Manager) Expired(now time.Time) []*HelperSession {
	var out []*HelperSession
	for _, s := range m.sessions {
		if !now.Before(s.Deadline) {
			out = append(out, s)
		}
	}
	return out
}

// InterfaceMD5State is the persisted cryptographic-sequence-number state
// for one interface's MD5 authentication, carried across a self-restart so
// a restarting router never reuses a sequence number a neighbor has
// already accepted (RFC 2328 section D.3's anti-replay requirement).
type InterfaceMD5State struct {
	InterfaceName string
	KeyID         uint8
	SequenceNumber uint32
}

// PersistedState is the cross-restart state that Save and Load convert to
// and from JSON: the grace period the router is advertising, and every
// interface's MD5 sequence number. Nothing in the router or the daemon
// calls Save or Load, so no state file is written or read (see spec.md
// §4.9 and SPEC_FULL.md's encoding/json persistence note).
type PersistedState struct {
	GracePeriodSeconds int
	Interfaces         []InterfaceMD5State
}

// Save serializes state as JSON, the format chosen in SPEC_FULL.md's
// persistence supplement (no pack dependency covers small-file state
// persistence; encoding/json is the stdlib idiom this corpus reaches for).
func Save(state PersistedState) ([]byte, error) {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graceful-restart state: %w", err)
	}
	return b, nil
}

// Load deserializes state previously written by Save.
func Load(data []byte) (PersistedState, error) {
	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return PersistedState{}, fmt.Errorf("unmarshal graceful-restart state: %w", err)
	}
	return state, nil
}

// SelfRestart tracks this router's own post-reboot grace period, per
// spec.md §4.9's second paragraph: re-originate grace-LSAs on every
// interface, wait for acks, then during the grace period suppress FIB
// churn and divergent self-origination until the database stabilizes or
// the timer fires.
type SelfRestart struct {
	Deadline           time.Time
	pendingAcks        map[ospf2.ID]bool // interface ID -> ack still outstanding
	FreezeFIBUpdates   bool
	FreezeOrigination  bool
}

// NewSelfRestart begins a self-restart grace period ending at
// now+period, awaiting an ack from every interface in ifaces before it is
// considered safe to start processing normally (the caller still applies
// FreezeFIBUpdates/FreezeOrigination for the full deadline regardless).
func NewSelfRestart(ifaces []ospf2.ID, period time.Duration, now time.Time) *SelfRestart {
	pending := make(map[ospf2.ID]bool, len(ifaces))
	for _, id := range ifaces {
		pending[id] = true
	}
	return &SelfRestart{
		Deadline:          now.Add(period),
		pendingAcks:       pending,
		FreezeFIBUpdates:  true,
		FreezeOrigination: true,
	}
}

// AckReceived records that interface received an ack for its grace-LSA.
// ReadyToProceed reports whether every interface has now acked.
func (r *SelfRestart) AckReceived(iface ospf2.ID) (readyToProceed bool) {
	delete(r.pendingAcks, iface)
	return len(r.pendingAcks) == 0
}

// Stabilized reports whether the database has stabilized per spec.md
// §4.9: every neighbor has fully resumed and every router-LSA this router
// would originate now matches what is already in the database (the caller
// computes routerLSAsMatch by comparing its would-be origination against
// the installed copy, since that comparison needs the live LSDB). It also
// reports true once now reaches the grace deadline, whether or not the
// database has stabilized.
func (r *SelfRestart) Stabilized(allNeighborsFull, routerLSAsMatch bool, now time.Time) bool {
	if allNeighborsFull && routerLSAsMatch {
		return true
	}
	return !now.Before(r.Deadline)
}

// ExitGrace clears the freeze flags once Stabilized reports true.
func (r *SelfRestart) ExitGrace() {
	r.FreezeFIBUpdates = false
	r.FreezeOrigination = false
}
