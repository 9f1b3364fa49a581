// Package flood implements the reliable flooding algorithm: comparing a
// received LSA instance against the database copy, deciding whether to
// install/forward/ack it, and picking which interfaces a flooded LSA goes
// out on given its flooding scope.
package flood

import (
	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/lsdb"
)

// Order is the result of comparing two LSA instances.
type Order int

const (
	Older Order = -1
	Same  Order = 0
	Newer Order = 1
)

// CompareInstance implements the cmp_instance total order from spec.md
// §8: sequence number first, then checksum, then age, with MaxAge always
// sorting as the newest possible instance (a purposeful flush always wins
// over any non-MaxAge copy, matching spec.md §4.7's MaxAge-takes-priority
// install rule).
func CompareInstance(a, b ospf2.LSAHeader) Order {
	aMaxAge := a.Age >= lsdb.MaxAge
	bMaxAge := b.Age >= lsdb.MaxAge
	if aMaxAge != bMaxAge {
		if aMaxAge {
			return Newer
		}
		return Older
	}

	if a.SequenceNumber != b.SequenceNumber {
		if a.SequenceNumber > b.SequenceNumber {
			return Newer
		}
		return Older
	}

	if a.Checksum != b.Checksum {
		if a.Checksum > b.Checksum {
			return Newer
		}
		return Older
	}

	// Same sequence and checksum: a larger age (short of MaxAge, handled
	// above) means the instance has been resident longer without being
	// refreshed, which RFC 2328 section 13.1 treats as the same instance,
	// not grounds for preferring one side — but for tie-breaking receipt
	// order, prefer whichever has aged less (it arrived more recently).
	if a.Age != b.Age {
		if a.Age < b.Age {
			return Newer
		}
		return Older
	}

	return Same
}

// ValidationError classifies why a received LSA was rejected outright,
// per spec.md §4.7 step 1 and §7 error kind 2.
type ValidationError int

const (
	ErrNone ValidationError = iota
	ErrChecksum
	ErrUnknownType
	ErrExternalInStub
	ErrMaxAgeDiscard // age == MaxAge, no copy, no neighbor in Database-Exchange: ack and discard
)

// Validate implements spec.md §4.7 step 1: checksum, LS-type, and the
// stub-area/external-LSA rule, plus the MaxAge-with-no-interest shortcut.
// haveCopy and anyInExchange describe the receiving area/router's current
// state; checksumOK is supplied by the caller since verifying it requires
// the full wire bytes, not just the header.
func Validate(h ospf2.LSAHeader, checksumOK, knownType, stubArea, haveCopy, anyInExchange bool) ValidationError {
	if !checksumOK {
		return ErrChecksum
	}
	if !knownType {
		return ErrUnknownType
	}
	if h.Type.FloodingScope() == ospf2.ASScope && stubArea {
		return ErrExternalInStub
	}
	if h.Age >= lsdb.MaxAge && !haveCopy && !anyInExchange {
		return ErrMaxAgeDiscard
	}
	return ErrNone
}

// Scope is an alias of ospf2.FloodingScope, the flooding scope of an LSA
// type: link-scope LSAs stay on one interface; area-scope LSAs are flooded
// within the owning area; AS-scope LSAs are flooded into every non-stub
// area.
type Scope = ospf2.FloodingScope

// AckPolicy is the acknowledgment decision for one received LSA on
// interface I, per spec.md §4.7's acknowledgment policy list.
type AckPolicy int

const (
	NoAckNeeded   AckPolicy = iota // forwarded back out I carries an implicit ack
	DelayedAck                     // append to I's delayed-ack packet
	ImpliedAck                     // was on the neighbor's retransmission list; remove it, no packet sent
	DirectAck                      // send a standalone LSAck now
)

// DecideAck implements the acknowledgment policy matrix: whether the LSA
// was forwarded back out the receiving interface I, whether this router is
// DR on I, whether the sender is Backup-DR, and whether the instance was
// found on the neighbor's own retransmission list (an implied ack of our
// prior flood to them).
func DecideAck(forwardedBackOutI, weAreDR, senderIsBDR, onNeighborRetransmission bool) AckPolicy {
	if onNeighborRetransmission {
		return ImpliedAck
	}
	if forwardedBackOutI && weAreDR && !senderIsBDR {
		return NoAckNeeded
	}
	if forwardedBackOutI {
		return NoAckNeeded
	}
	return DelayedAck
}

// Decision is the outcome of running the Section 13 comparison (spec.md
// §4.7 step 2) between a received instance and the database copy.
type Decision int

const (
	Install         Decision = iota // received is strictly newer: install, flood, possibly ack
	TreatAsImpliedAck                // same instance, was on our retransmission list to this neighbor
	SendDirectAck                    // same instance, not on retransmission list
	SendOurCopy                       // received is older and ours is not stale: send our copy back
	Discard                           // received is older and nothing useful to do
)

// Decide implements spec.md §4.7 step 2. haveCopy is false when this is
// the first instance of this LSA ever seen (Install always follows).
// onRetransmission reports whether the sending neighbor's retransmission
// list already holds this instance. dbSeqIsMax reports whether our
// database copy's sequence number is MaxLSSeq (recently replied guard is
// the caller's responsibility, since it requires a clock).
func Decide(haveCopy bool, received, db ospf2.LSAHeader, onRetransmission, dbSeqIsMax bool) Decision {
	if !haveCopy {
		return Install
	}

	switch CompareInstance(received, db) {
	case Newer:
		return Install
	case Same:
		if onRetransmission {
			return TreatAsImpliedAck
		}
		return SendDirectAck
	default: // Older
		if dbSeqIsMax {
			return Discard
		}
		return SendOurCopy
	}
}
