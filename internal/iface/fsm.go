// Package iface implements the OSPFv2 interface finite state machine and
// Designated Router election, as pure (state, event) -> (state, actions)
// functions: the FSM itself holds no timers or sockets, so it can be
// driven and tested without a network.
package iface

import "github.com/openospf/ospfd"

// State is an interface FSM state, RFC 2328 section 9.1.
type State int

const (
	Down State = iota
	Loopback
	Waiting
	PointToPoint
	DROther
	Backup
	DR
)

func (s State) String() string {
	switch s {
	case Down:
		return "Down"
	case Loopback:
		return "Loopback"
	case Waiting:
		return "Waiting"
	case PointToPoint:
		return "Point-to-point"
	case DROther:
		return "DR Other"
	case Backup:
		return "Backup"
	case DR:
		return "DR"
	default:
		return "unknown"
	}
}

// Event is an interface FSM event, RFC 2328 section 9.2.
type Event int

const (
	PhyUp Event = iota
	WaitTimer
	BackupSeen
	NeighborChange
	LoopInd
	UnloopInd
	PhyDown
)

// Kind is the interface's data-link type, which governs whether DR
// election runs on it at all.
type Kind int

const (
	Broadcast Kind = iota
	NBMA
	PointToPointKind
	PointToMultiPoint
	VirtualLink
	LoopbackKind
)

func (k Kind) electsDR() bool {
	return k == Broadcast || k == NBMA
}

// Action is a side effect the caller must carry out after a transition;
// the FSM itself never touches timers, sockets, or neighbor state.
type Action int

const (
	StartHellos Action = iota
	StopHellos
	StartWaitTimer
	StopWaitTimer
	ElectDR
	DestroyNeighbors
	ClearDRBDR
	ReoriginateRouterLSA
	ReoriginateNetworkLSA
)

// Transition applies event to (state, kind) and returns the new state and
// the ordered list of actions the caller must perform, per spec.md §4.3.
// An unrecognized (state, event) pair is a no-op: new == old and actions
// is nil.
func Transition(state State, kind Kind, event Event) (next State, actions []Action) {
	switch event {
	case PhyUp:
		if state != Down {
			return state, nil
		}
		if kind == LoopbackKind {
			return Loopback, nil
		}
		if kind == VirtualLink || kind == PointToPointKind || kind == PointToMultiPoint {
			return PointToPoint, []Action{StartHellos}
		}
		if kind.electsDR() {
			return Waiting, []Action{StartHellos, StartWaitTimer}
		}
		return DROther, []Action{StartHellos}

	case WaitTimer, BackupSeen:
		if state != Waiting {
			return state, nil
		}
		// The caller runs Elect and StateAfterElection, then transitions
		// to whatever state that yields (DR, Backup, or DROther).
		return state, []Action{ElectDR}

	case NeighborChange:
		switch state {
		case DR, Backup, DROther:
			return state, []Action{ElectDR}
		default:
			return state, nil
		}

	case LoopInd:
		if state == Down || state == Loopback {
			return Loopback, nil
		}
		return Loopback, []Action{StopHellos, DestroyNeighbors, ClearDRBDR}

	case UnloopInd:
		if state != Loopback {
			return state, nil
		}
		return Down, nil

	case PhyDown:
		if state == Down {
			return Down, nil
		}
		return Down, []Action{StopHellos, StopWaitTimer, DestroyNeighbors, ClearDRBDR}
	}

	return state, nil
}

// Candidate is one router's view of itself (or a neighbor) for the
// purposes of DR election: its Router-ID, configured priority, and the
// DR/BDR it currently declares. Only bidirectional neighbors (and the
// local router) should be passed to Elect.
type Candidate struct {
	RouterID         ospf2.ID
	Priority         uint8
	DeclaredDR       ospf2.ID
	DeclaredBackup   ospf2.ID
}

var zeroID ospf2.ID

func lessID(a, b ospf2.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Result is the outcome of an election pass.
type Result struct {
	DR, Backup ospf2.ID
}

// Elect runs the two-pass DR/BDR election described in spec.md §4.3 over
// candidates (which must include the local router, self, to represent its
// own candidacy). It does not repeat the election when self's DR/Backup
// membership changes; the caller is responsible for re-invoking Elect a
// second time (and no more) if that happens, per the spec's "repeat once"
// rule.
func Elect(candidates []Candidate, self ospf2.ID) Result {
	backup := electBackup(candidates)
	dr := electDR(candidates, backup)
	if dr == zeroID {
		dr = backup
	}
	return Result{DR: dr, Backup: backup}
}

func electBackup(candidates []Candidate) ospf2.ID {
	var (
		winner       ospf2.ID
		winnerPrio   uint8
		winnerIsSelf bool // "declares itself Backup" preference
		found        bool
	)

	for _, c := range candidates {
		if c.Priority == 0 || c.DeclaredDR == c.RouterID {
			continue
		}
		declaresBackup := c.DeclaredBackup == c.RouterID

		if !found {
			winner, winnerPrio, winnerIsSelf, found = c.RouterID, c.Priority, declaresBackup, true
			continue
		}

		if declaresBackup != winnerIsSelf {
			if declaresBackup {
				winner, winnerPrio, winnerIsSelf = c.RouterID, c.Priority, true
			}
			continue
		}

		if c.Priority > winnerPrio || (c.Priority == winnerPrio && lessID(winner, c.RouterID)) {
			winner, winnerPrio = c.RouterID, c.Priority
		}
	}

	return winner
}

// StateAfterElection derives the interface state implied by an election
// Result for the local router self: DR if self won the DR role, Backup if
// self won Backup, else DROther.
func StateAfterElection(r Result, self ospf2.ID) State {
	switch self {
	case r.DR:
		return DR
	case r.Backup:
		return Backup
	default:
		return DROther
	}
}

func electDR(candidates []Candidate, backup ospf2.ID) ospf2.ID {
	var (
		winner     ospf2.ID
		winnerPrio uint8
		found      bool
	)

	for _, c := range candidates {
		if c.Priority == 0 || c.DeclaredDR != c.RouterID {
			continue
		}

		if !found {
			winner, winnerPrio, found = c.RouterID, c.Priority, true
			continue
		}

		if c.Priority > winnerPrio || (c.Priority == winnerPrio && lessID(winner, c.RouterID)) {
			winner, winnerPrio = c.RouterID, c.Priority
		}
	}

	return winner
}
