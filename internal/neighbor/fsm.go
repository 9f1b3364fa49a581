// Package neighbor implements the OSPFv2 neighbor finite state machine,
// modeled as a pure (state, event) -> (state, actions) function, plus the
// database-summary/link-state-request/retransmission list bookkeeping
// that drives adjacency formation and flooding.
package neighbor

import "github.com/openospf/ospfd"

// State is a neighbor FSM state, RFC 2328 section 10.1.
type State int

const (
	Down State = iota
	Attempt
	Init
	TwoWay
	ExStart
	Exchange
	Loading
	Full
)

func (s State) String() string {
	switch s {
	case Down:
		return "Down"
	case Attempt:
		return "Attempt"
	case Init:
		return "Init"
	case TwoWay:
		return "2-Way"
	case ExStart:
		return "ExStart"
	case Exchange:
		return "Exchange"
	case Loading:
		return "Loading"
	case Full:
		return "Full"
	default:
		return "unknown"
	}
}

// Active reports whether the state counts as "active" for the purposes of
// the HelloReceived inactivity-timer reset rule (every state but Down and
// Attempt).
func (s State) Active() bool {
	return s != Down && s != Attempt
}

// Bidirectional reports whether the state implies two-way communication
// has been established (TwoWay and every adjacency-forming state).
func (s State) Bidirectional() bool {
	return s >= TwoWay
}

// Flooding reports whether the state participates in reliable flooding
// (Exchange, Loading, Full).
func (s State) Flooding() bool {
	return s == Exchange || s == Loading || s == Full
}

// Event is a neighbor FSM event, RFC 2328 section 10.2.
type Event int

const (
	HelloReceived Event = iota
	StartDirective
	TwoWayHello
	NegotiationDone
	ExchangeDone
	BadLSReq
	LoadingDone
	Evaluate
	DDReceived
	BadDDSequence
	OneWayHello
	Destroy
	Inactivity
	LLDown
	AdjacencyTimeout
)

// Action is a side effect the caller must perform after a transition.
type Action int

const (
	ResetInactivityTimer Action = iota
	StartInactivityTimer
	StartDDExchange
	SnapshotLSDB
	FinishExchange
	ClearLists
	DeleteNeighbor
	RestartDD
)

// AdjacencyDecider reports whether this neighbor is one we want to form a
// full adjacency with, per spec.md §4.4: always true on point-to-point,
// virtual-link, and point-to-multipoint interfaces; on broadcast/NBMA,
// true iff either endpoint is DR or BDR.
type AdjacencyDecider func() bool

// Transition applies event to state and returns the new state and the
// ordered actions the caller must perform. adjacencyDesired is consulted
// only for the Init+TwoWayHello transition, where it decides whether to
// proceed to ExStart or settle for TwoWay.
func Transition(state State, event Event, adjacencyDesired AdjacencyDecider) (next State, actions []Action) {
	// HelloReceived resets the inactivity timer for already-active
	// neighbors; Down/Attempt+HelloReceived instead moves to Init, since
	// this is the neighbor's first sign of life.
	if event == HelloReceived && state.Active() {
		return state, []Action{ResetInactivityTimer}
	}

	switch event {
	case HelloReceived:
		if state != Down && state != Attempt {
			return state, nil
		}
		return Init, []Action{ResetInactivityTimer}

	case StartDirective:
		if state != Down {
			return state, nil
		}
		return Attempt, []Action{StartInactivityTimer}

	case TwoWayHello:
		if state != Init {
			return state, nil
		}
		if adjacencyDesired != nil && adjacencyDesired() {
			return ExStart, []Action{StartDDExchange}
		}
		return TwoWay, nil

	case NegotiationDone:
		if state != ExStart {
			return state, nil
		}
		return Exchange, []Action{SnapshotLSDB}

	case ExchangeDone:
		if state != Exchange {
			return state, nil
		}
		return Loading, []Action{FinishExchange} // caller moves Loading->Full if the request list is already empty

	case LoadingDone:
		if state != Loading {
			return state, nil
		}
		return Full, nil

	case BadDDSequence, BadLSReq:
		if state < ExStart {
			return state, nil
		}
		return ExStart, []Action{ClearLists, RestartDD}

	case OneWayHello:
		if !state.Bidirectional() {
			return state, nil
		}
		return Init, []Action{ClearLists}

	case Inactivity, LLDown, Destroy, AdjacencyTimeout:
		if state == Down {
			return state, nil
		}
		actions = []Action{ClearLists}
		if event == Destroy {
			actions = append(actions, DeleteNeighbor)
		}
		return Down, actions

	case Evaluate, DDReceived:
		return state, nil
	}

	return state, nil
}

// DDNegotiation tracks the master/slave and sequence-number state of a
// Database Description exchange, per spec.md §4.4's ExStart negotiation
// rule: the router with the numerically greater Router-ID is master
// (spec.md §3.2 invariant 6).
type DDNegotiation struct {
	Master         bool
	SequenceNumber uint32
}

// Negotiate decides master/slave for an adjacency between self and peer,
// per invariant 6.
func Negotiate(self, peer ospf2.ID) (master bool) {
	return lessID(peer, self)
}

func lessID(a, b ospf2.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
