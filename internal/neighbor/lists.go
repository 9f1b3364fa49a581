package neighbor

import "github.com/openospf/ospfd"

// MaxRxmtWindow bounds the per-neighbor retransmission window's growth.
// RFC 2328 leaves the window discipline unspecified beyond "retransmit
// unacknowledged LSAs"; a bounded, doubling-on-ack/halving-on-timeout
// window is the standard TCP-like discipline spec.md §4.4 describes.
const MaxRxmtWindow = 16

// RxmtIntervalSeconds is the default retransmission period for unacknowledged
// LSAs (spec.md glossary).
const RxmtIntervalSeconds = 5

// Lists holds the three LSA lists a neighbor carries during adjacency
// formation and flooding, plus the pending/failed retransmission lists,
// per spec.md §3.1's Neighbor entity and §4.4's list-management rules.
type Lists struct {
	// DatabaseSummary is the snapshot of this area's LSDB (plus
	// AS-external/opaque/group-membership LSAs as negotiated) taken at
	// NegotiationDone, consumed one DD packet's worth at a time.
	DatabaseSummary []ospf2.LSAHeader

	// Request is the link-state request list: LSAs this neighbor's DD
	// advertised that our database lacks or holds an older instance of.
	Request []ospf2.LSAID

	// Retransmission is the set of LSAs sent to this neighbor expecting
	// an ack, keyed for O(1) ack removal.
	Retransmission map[ospf2.LSAID]ospf2.LSA

	// Pending and Failed track in-flight vs. timed-out retransmissions;
	// a timer fire moves Pending entries to Failed and halves the window.
	Pending []ospf2.LSAID
	Failed  []ospf2.LSAID

	rxmtWindow int
}

// NewLists returns an empty Lists with the initial retransmission window.
func NewLists() *Lists {
	return &Lists{Retransmission: make(map[ospf2.LSAID]ospf2.LSA), rxmtWindow: 1}
}

// AddRequest appends id to the link-state request list if not already
// present, returning true if the list was empty before (the caller should
// start the request retransmission timer in that case).
func (l *Lists) AddRequest(id ospf2.LSAID) (becameNonEmpty bool) {
	for _, r := range l.Request {
		if r == id {
			return false
		}
	}
	becameNonEmpty = len(l.Request) == 0
	l.Request = append(l.Request, id)
	return becameNonEmpty
}

// SatisfyRequest removes id from the request list, returning true if the
// list is now empty (the caller should fire LoadingDone in that case).
func (l *Lists) SatisfyRequest(id ospf2.LSAID) (becameEmpty bool) {
	for i, r := range l.Request {
		if r == id {
			l.Request = append(l.Request[:i], l.Request[i+1:]...)
			break
		}
	}
	return len(l.Request) == 0
}

// Retransmit adds lsa to the retransmission list, to be acked by this
// neighbor.
func (l *Lists) Retransmit(lsa ospf2.LSA) {
	l.Retransmission[lsa.Header.Key()] = lsa
}

// Ack removes id from the retransmission list on receipt of an
// acknowledgment. acked reports whether id was on the list; wasOnlyEntry
// reports whether the list is now empty, in which case the caller may
// assume the pipeline is empty and open the retransmission window
// (spec.md §4.4).
func (l *Lists) Ack(id ospf2.LSAID) (acked, wasOnlyEntry bool) {
	if _, ok := l.Retransmission[id]; !ok {
		return false, false
	}
	delete(l.Retransmission, id)
	return true, len(l.Retransmission) == 0
}

// Window returns the current retransmission window size.
func (l *Lists) Window() int {
	if l.rxmtWindow == 0 {
		return 1
	}
	return l.rxmtWindow
}

// GrowWindow doubles the retransmission window up to MaxRxmtWindow, called
// on successful ack receipt.
func (l *Lists) GrowWindow() {
	w := l.Window() * 2
	if w > MaxRxmtWindow {
		w = MaxRxmtWindow
	}
	l.rxmtWindow = w
}

// TimeoutWindow moves every currently pending retransmission to the
// failed list and halves the window back to 1, called when the
// retransmission timer fires with entries still unacknowledged.
func (l *Lists) TimeoutWindow() {
	l.Failed = append(l.Failed, l.Pending...)
	l.Pending = nil
	l.rxmtWindow = 1
}

// Clear empties every list, as the BadDDSequence/BadLSReq/OneWayHello
// transitions require.
func (l *Lists) Clear() {
	l.DatabaseSummary = nil
	l.Request = nil
	l.Retransmission = make(map[ospf2.LSAID]ospf2.LSA)
	l.Pending = nil
	l.Failed = nil
	l.rxmtWindow = 1
}
