package ospf2

import (
	"encoding/binary"
	"fmt"
	"time"
)

// An LSType is the type of an OSPFv2 Link State Advertisement, as described
// in RFC 2328 section 12.1.1, extended per RFC 2370 for opaque LSAs.
type LSType uint8

// Possible LSType values.
const (
	RouterLSA          LSType = 1
	NetworkLSA         LSType = 2
	SummaryLSA         LSType = 3
	ASBRSummaryLSA     LSType = 4
	ASExternalLSA      LSType = 5
	GroupMembershipLSA LSType = 6
	LinkOpaqueLSA      LSType = 9
	AreaOpaqueLSA      LSType = 10
	ASOpaqueLSA        LSType = 11
)

// A FloodingScope is the flooding extent of an LSA, as described in
// spec.md §4.7.
type FloodingScope uint8

// Possible FloodingScope values.
const (
	LinkScope FloodingScope = iota
	AreaScope
	ASScope
)

// FloodingScope returns the flooding scope implied by an LSA's type.
func (t LSType) FloodingScope() FloodingScope {
	switch t {
	case ASExternalLSA, ASOpaqueLSA:
		return ASScope
	case LinkOpaqueLSA:
		return LinkScope
	default:
		return AreaScope
	}
}

func (s FloodingScope) String() string {
	switch s {
	case LinkScope:
		return "link"
	case AreaScope:
		return "area"
	case ASScope:
		return "AS"
	default:
		return fmt.Sprintf("FloodingScope(%d)", uint8(s))
	}
}

// doNotAgeBit marks an LSA as exempt from normal aging, per RFC 2370
// section 2.2 (used by demand-circuit flooding, spec.md §4.7).
const doNotAgeBit uint16 = 1 << 15

// maxAgeSeconds is the age, in seconds, at which an LSA is flushed from the
// database (spec.md glossary: MaxAge).
const maxAgeSeconds = 3600

// InitLSSeq and MaxLSSeq bound the signed 32-bit LSA sequence number space,
// per RFC 2328 section 12.1.6. Two implementations that disagree on these
// constants will not interoperate (spec.md §9 open question).
const (
	InitLSSeq int32 = -0x7fffffff // 0x80000001
	MaxLSSeq  int32 = 0x7fffffff
)

// An LSAHeader is the 20-byte header common to every LSA, as described in
// RFC 2328, appendix A.4.1.
type LSAHeader struct {
	Age               time.Duration
	DoNotAge          bool
	Options           Options
	Type              LSType
	LinkStateID       ID
	AdvertisingRouter ID
	SequenceNumber    int32
	Checksum          uint16
	Length            uint16
}

// Key returns the (Type, LinkStateID, AdvertisingRouter) triple that
// uniquely identifies the LSA this header describes within its scope, per
// spec.md §3.1.
func (h LSAHeader) Key() LSAID {
	return LSAID{Type: h.Type, LinkStateID: h.LinkStateID, AdvertisingRouter: h.AdvertisingRouter}
}

func (h LSAHeader) marshal(b []byte) {
	age := uint16(h.Age / time.Second)
	if h.DoNotAge {
		age |= doNotAgeBit
	}
	binary.BigEndian.PutUint16(b[0:2], age)
	b[2] = byte(h.Options)
	b[3] = byte(h.Type)
	copy(b[4:8], h.LinkStateID[:])
	copy(b[8:12], h.AdvertisingRouter[:])
	binary.BigEndian.PutUint32(b[12:16], uint32(h.SequenceNumber))
	binary.BigEndian.PutUint16(b[16:18], h.Checksum)
	binary.BigEndian.PutUint16(b[18:20], h.Length)
}

func parseLSAHeader(b []byte) LSAHeader {
	rawAge := binary.BigEndian.Uint16(b[0:2])
	h := LSAHeader{
		DoNotAge:       rawAge&doNotAgeBit != 0,
		Age:            time.Duration(rawAge&^doNotAgeBit) * time.Second,
		Options:        Options(b[2]),
		Type:           LSType(b[3]),
		SequenceNumber: int32(binary.BigEndian.Uint32(b[12:16])),
		Checksum:       binary.BigEndian.Uint16(b[16:18]),
		Length:         binary.BigEndian.Uint16(b[18:20]),
	}
	copy(h.LinkStateID[:], b[4:8])
	copy(h.AdvertisingRouter[:], b[8:12])
	return h
}

// A LSABody is the type-specific payload following an LSAHeader.
type LSABody interface {
	bodyLen() int
	marshalBody(b []byte) error
}

// An LSA pairs an LSAHeader with its decoded, type-specific body.
type LSA struct {
	Header LSAHeader
	Body   LSABody
}

func (l LSA) len() int {
	if l.Body == nil {
		return lsaHeaderLen
	}
	return lsaHeaderLen + l.Body.bodyLen()
}

func (l LSA) marshal(b []byte) error {
	// The Length field reflects the header plus body.
	l.Header.Length = uint16(l.len())
	l.Header.marshal(b[:lsaHeaderLen])
	if l.Body == nil {
		return nil
	}
	return l.Body.marshalBody(b[lsaHeaderLen:])
}

// Len reports the number of bytes MarshalLSA(l) would produce.
func (l LSA) Len() int {
	return l.len()
}

// MarshalLSA serializes a full LSA (header and type-specific body), the
// counterpart to ParseLSA. It is used by the aging checksum-check pass to
// re-derive the wire form of a database-resident LSA for Fletcher
// verification.
func MarshalLSA(l LSA) ([]byte, error) {
	b := make([]byte, l.len())
	if err := l.marshal(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseLSA parses a full LSA (header and type-specific body) from b.
func ParseLSA(b []byte) (LSA, error) {
	if len(b) < lsaHeaderLen {
		return LSA{}, fmt.Errorf("not enough bytes for LSA header: %d: %w", len(b), errParse)
	}
	h := parseLSAHeader(b)
	if int(h.Length) > len(b) {
		return LSA{}, fmt.Errorf("LSA length %d exceeds available %d bytes: %w", h.Length, len(b), errParse)
	}

	body, err := parseLSABody(h.Type, b[lsaHeaderLen:h.Length])
	if err != nil {
		return LSA{}, fmt.Errorf("failed to parse LSA body of type %d: %w", h.Type, err)
	}

	return LSA{Header: h, Body: body}, nil
}

func parseLSABody(t LSType, b []byte) (LSABody, error) {
	switch t {
	case RouterLSA:
		return parseRouterLSABody(b)
	case NetworkLSA:
		return parseNetworkLSABody(b)
	case SummaryLSA, ASBRSummaryLSA:
		return parseSummaryLSABody(b)
	case ASExternalLSA:
		return parseASExternalLSABody(b)
	default:
		// Group-membership and opaque LSAs are out of scope (spec.md §1);
		// the raw bytes are preserved verbatim so flooding can still
		// forward them unmodified.
		return OpaqueBody(append([]byte(nil), b...)), nil
	}
}

// OpaqueBody carries an unparsed LSA body for types this engine floods but
// does not interpret (group-membership, opaque). Flooding only needs the
// header and checksum; it never inspects the body.
type OpaqueBody []byte

func (o OpaqueBody) bodyLen() int { return len(o) }

func (o OpaqueBody) marshalBody(b []byte) error {
	copy(b, o)
	return nil
}

// A RouterLink is one entry in a RouterLSABody, per RFC 2328 appendix A.4.2.
type RouterLink struct {
	LinkID   ID
	LinkData [4]byte
	Type     RouterLinkType
	Metric   uint16
}

// RouterLinkType identifies the kind of a RouterLink.
type RouterLinkType uint8

// Possible RouterLinkType values.
const (
	PointToPointLink RouterLinkType = 1
	TransitNetLink   RouterLinkType = 2
	StubNetLink      RouterLinkType = 3
	VirtualLink      RouterLinkType = 4
)

// RouterLSAFlags are the B/E/V/W flag bits in a RouterLSABody, per RFC 2328
// appendix A.4.2.
type RouterLSAFlags uint8

// Possible RouterLSAFlags bits.
const (
	BBit       RouterLSAFlags = 1 << 0 // Area border router
	EBitRouter RouterLSAFlags = 1 << 1 // AS boundary router
	VBit       RouterLSAFlags = 1 << 2 // Virtual link endpoint
	WBit       RouterLSAFlags = 1 << 3 // Wildcard multicast receiver
)

// A RouterLSABody is the body of a type-1 Router-LSA.
type RouterLSABody struct {
	Flags RouterLSAFlags
	Links []RouterLink
}

func (r *RouterLSABody) bodyLen() int { return 4 + 12*len(r.Links) }

func (r *RouterLSABody) marshalBody(b []byte) error {
	b[0] = byte(r.Flags)
	b[1] = 0
	binary.BigEndian.PutUint16(b[2:4], uint16(len(r.Links)))

	off := 4
	for _, link := range r.Links {
		copy(b[off:off+4], link.LinkID[:])
		copy(b[off+4:off+8], link.LinkData[:])
		b[off+8] = byte(link.Type)
		b[off+9] = 0 // number of TOS metrics, always 0 (spec.md §6.1)
		binary.BigEndian.PutUint16(b[off+10:off+12], link.Metric)
		off += 12
	}
	return nil
}

func parseRouterLSABody(b []byte) (*RouterLSABody, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("not enough bytes for router-LSA body: %d: %w", len(b), errParse)
	}
	r := &RouterLSABody{Flags: RouterLSAFlags(b[0])}
	n := int(binary.BigEndian.Uint16(b[2:4]))

	off := 4
	for i := 0; i < n; i++ {
		if off+12 > len(b) {
			return nil, fmt.Errorf("router-LSA link %d truncated: %w", i, errParse)
		}
		var link RouterLink
		copy(link.LinkID[:], b[off:off+4])
		copy(link.LinkData[:], b[off+4:off+8])
		link.Type = RouterLinkType(b[off+8])
		numTOS := int(b[off+9])
		link.Metric = binary.BigEndian.Uint16(b[off+10 : off+12])
		r.Links = append(r.Links, link)
		off += 12 + 4*numTOS
	}
	return r, nil
}

// A NetworkLSABody is the body of a type-2 Network-LSA.
type NetworkLSABody struct {
	NetworkMask     [4]byte
	AttachedRouters []ID
}

func (n *NetworkLSABody) bodyLen() int { return 4 + 4*len(n.AttachedRouters) }

func (n *NetworkLSABody) marshalBody(b []byte) error {
	copy(b[0:4], n.NetworkMask[:])
	off := 4
	for _, rtr := range n.AttachedRouters {
		copy(b[off:off+4], rtr[:])
		off += 4
	}
	return nil
}

func parseNetworkLSABody(b []byte) (*NetworkLSABody, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("malformed network-LSA body: %d bytes: %w", len(b), errParse)
	}
	n := &NetworkLSABody{}
	copy(n.NetworkMask[:], b[0:4])
	for off := 4; off < len(b); off += 4 {
		var id ID
		copy(id[:], b[off:off+4])
		n.AttachedRouters = append(n.AttachedRouters, id)
	}
	return n, nil
}

// A SummaryLSABody is the body of a type-3 Summary-LSA or type-4
// ASBR-Summary-LSA; both share the same wire layout per RFC 2328
// appendix A.4.3/A.4.4.
type SummaryLSABody struct {
	NetworkMask [4]byte
	Cost        uint32 // 24 significant bits
}

func (s *SummaryLSABody) bodyLen() int { return 8 }

func (s *SummaryLSABody) marshalBody(b []byte) error {
	copy(b[0:4], s.NetworkMask[:])
	binary.BigEndian.PutUint32(b[4:8], s.Cost&0x00ffffff)
	return nil
}

func parseSummaryLSABody(b []byte) (*SummaryLSABody, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("not enough bytes for summary-LSA body: %d: %w", len(b), errParse)
	}
	s := &SummaryLSABody{Cost: binary.BigEndian.Uint32(b[4:8]) & 0x00ffffff}
	copy(s.NetworkMask[:], b[0:4])
	return s, nil
}

// An ASExternalEntry is one metric entry within an ASExternalLSABody, per
// RFC 2328 appendix A.4.5.
type ASExternalEntry struct {
	MetricType2      bool // E-bit: true for type-2 external metric
	Metric           uint32
	ForwardingAddress [4]byte
	RouteTag          uint32
}

// An ASExternalLSABody is the body of a type-5 AS-External-LSA.
type ASExternalLSABody struct {
	NetworkMask [4]byte
	Entries     []ASExternalEntry
}

func (a *ASExternalLSABody) bodyLen() int { return 4 + 12*len(a.Entries) }

func (a *ASExternalLSABody) marshalBody(b []byte) error {
	copy(b[0:4], a.NetworkMask[:])
	off := 4
	for _, e := range a.Entries {
		tosMetric := e.Metric & 0x00ffffff
		if e.MetricType2 {
			tosMetric |= 0x80000000
		}
		binary.BigEndian.PutUint32(b[off:off+4], tosMetric)
		copy(b[off+4:off+8], e.ForwardingAddress[:])
		binary.BigEndian.PutUint32(b[off+8:off+12], e.RouteTag)
		off += 12
	}
	return nil
}

func parseASExternalLSABody(b []byte) (*ASExternalLSABody, error) {
	if len(b) < 4 || (len(b)-4)%12 != 0 {
		return nil, fmt.Errorf("malformed AS-external-LSA body: %d bytes: %w", len(b), errParse)
	}
	a := &ASExternalLSABody{}
	copy(a.NetworkMask[:], b[0:4])
	for off := 4; off < len(b); off += 12 {
		raw := binary.BigEndian.Uint32(b[off : off+4])
		var e ASExternalEntry
		e.MetricType2 = raw&0x80000000 != 0
		e.Metric = raw & 0x00ffffff
		copy(e.ForwardingAddress[:], b[off+4:off+8])
		e.RouteTag = binary.BigEndian.Uint32(b[off+8 : off+12])
		a.Entries = append(a.Entries, e)
	}
	return a, nil
}

var _ Message = &LinkStateUpdate{}

// A LinkStateUpdate is an OSPFv2 Link State Update message as described in
// RFC 2328, appendix A.3.5.
type LinkStateUpdate struct {
	Header Header
	LSAs   []LSA
}

func (u *LinkStateUpdate) len() int {
	n := headerLen + 4
	for _, l := range u.LSAs {
		n += l.len()
	}
	return n
}

func (u *LinkStateUpdate) marshal(b []byte) error {
	const n = headerLen
	u.Header.marshal(b[:n], linkStateUpdate, uint16(u.len()))
	binary.BigEndian.PutUint32(b[n:n+4], uint32(len(u.LSAs)))

	off := n + 4
	for _, l := range u.LSAs {
		if err := l.marshal(b[off : off+l.len()]); err != nil {
			return err
		}
		off += l.len()
	}
	return nil
}

func (u *LinkStateUpdate) unmarshal(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("not enough bytes for LinkStateUpdate: %d: %w", len(b), errParse)
	}
	count := int(binary.BigEndian.Uint32(b[0:4]))

	off := 4
	u.LSAs = make([]LSA, 0, count)
	for i := 0; i < count; i++ {
		if off+lsaHeaderLen > len(b) {
			return fmt.Errorf("LinkStateUpdate truncated before LSA %d: %w", i, errParse)
		}
		h := parseLSAHeader(b[off : off+lsaHeaderLen])
		if int(h.Length) < lsaHeaderLen || off+int(h.Length) > len(b) {
			return fmt.Errorf("LSA %d has invalid length %d: %w", i, h.Length, errParse)
		}

		lsa, err := ParseLSA(b[off : off+int(h.Length)])
		if err != nil {
			return fmt.Errorf("failed to parse LSA %d: %w", i, err)
		}
		u.LSAs = append(u.LSAs, lsa)
		off += int(h.Length)
	}

	return nil
}
