package ospf2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// version is the OSPF version supported by this package.
	version = 2

	// Fixed length structures. Some messages have no constant of their own
	// because they consist entirely of trailing variable length data.
	headerLen    = 24
	lsaTripleLen = 12
	lsaHeaderLen = 20
	helloLen     = 20 // No trailing array of neighbor IDs.
	ddLen        = 8  // No trailing array of LSA headers.
	authDataLen  = 8
)

// Sentinel errors used to differentiate various types of errors in tests.
var (
	errMarshal = errors.New("failed to marshal bytes")
	errParse   = errors.New("failed to parse bytes")
)

// A packetType is the type of an OSPFv2 packet, per RFC 2328 appendix A.3.1.
type packetType uint8

// Possible OSPFv2 packet types.
const (
	hello                    packetType = 1
	databaseDescription      packetType = 2
	linkStateRequest         packetType = 3
	linkStateUpdate          packetType = 4
	linkStateAcknowledgement packetType = 5
)

// An ID is a four byte identifier used for OSPFv2 Router IDs, Area IDs, and
// Link State IDs, conventionally displayed in dotted-decimal IPv4 format.
type ID [4]byte

func (id ID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", id[0], id[1], id[2], id[3])
}

// Less reports whether id is numerically less than other, treating both as
// big-endian unsigned 32-bit integers. Used to pick the master in the
// neighbor database-exchange negotiation (the greater Router-ID wins).
func (id ID) Less(other ID) bool {
	return binary.BigEndian.Uint32(id[:]) < binary.BigEndian.Uint32(other[:])
}

// AuType identifies the authentication scheme carried by a Header.
type AuType uint16

// Possible AuType values, per RFC 2328 appendix D.
const (
	AuNone      AuType = 0
	AuCleartext AuType = 1
	AuMD5       AuType = 2
)

// Options is a bitmask of OSPFv2 options as described in RFC 2328, appendix
// A.2, extended per RFC 1587 (NSSA, unused here) and RFC 2370 (Opaque LSAs).
type Options uint8

// Possible OSPFv2 options bits relevant to this implementation.
const (
	// EBit indicates the router/area will accept AS-external LSAs.
	EBit Options = 1 << 1
	// MCBit indicates multicast extensions (MOSPF) support.
	MCBit Options = 1 << 2
	// NPBit is the NSSA bit; unused (NSSA is out of scope) but preserved
	// for bit-exact wire compatibility with peers that set it.
	NPBit Options = 1 << 3
	// DCBit indicates demand-circuit support.
	DCBit Options = 1 << 5
	// OpaqueBit indicates opaque-LSA support (RFC 2370).
	OpaqueBit Options = 1 << 6
)

// String returns the string representation of an Options bitmask.
func (o Options) String() string {
	return flagsString(uint(o), []string{
		"0x1",
		"E-bit",
		"MC-bit",
		"NP-bit",
		"0x10",
		"DC-bit",
		"Opaque-bit",
		"0x80",
	})
}

// A Header is the OSPFv2 packet header as described in RFC 2328, appendix
// A.3.1. It accompanies every Message implementation. Version, packet type,
// and packet length are computed automatically by MarshalMessage/marshal.
type Header struct {
	RouterID ID
	AreaID   ID
	Checksum uint16
	AuType   AuType
	AuData   [authDataLen]byte
}

// marshal packs a Header's bytes into b while also setting packet type and
// length. It assumes b has allocated enough space for a Header to avoid a
// panic.
func (h *Header) marshal(b []byte, ptyp packetType, plen uint16) {
	b[0] = version
	b[1] = byte(ptyp)
	binary.BigEndian.PutUint16(b[2:4], plen)
	copy(b[4:8], h.RouterID[:])
	copy(b[8:12], h.AreaID[:])
	binary.BigEndian.PutUint16(b[12:14], h.Checksum)
	binary.BigEndian.PutUint16(b[14:16], uint16(h.AuType))
	copy(b[16:24], h.AuData[:])
}

// parseHeader parses an OSPFv2 Header and the offset of the end of an OSPF
// packet from bytes.
func parseHeader(b []byte) (Header, packetType, int, error) {
	if l := len(b); l < headerLen {
		return Header{}, 0, 0, fmt.Errorf("not enough bytes for OSPFv2 header: %d: %w", l, errParse)
	}

	if v := b[0]; v != version {
		return Header{}, 0, 0, fmt.Errorf("unrecognized OSPF version: %d: %w", v, errParse)
	}

	h := Header{
		Checksum: binary.BigEndian.Uint16(b[12:14]),
		AuType:   AuType(binary.BigEndian.Uint16(b[14:16])),
	}
	copy(h.RouterID[:], b[4:8])
	copy(h.AreaID[:], b[8:12])
	copy(h.AuData[:], b[16:24])

	// Make sure the input buffer has enough data as indicated by the packet
	// length field so we know how much to pass to Message.unmarshal.
	plen := int(binary.BigEndian.Uint16(b[2:4]))
	if plen < headerLen {
		return Header{}, 0, 0, fmt.Errorf("header packet length %d is too short for a valid packet: %w", plen, errParse)
	}
	if l := len(b); l < plen {
		return Header{}, 0, 0, fmt.Errorf("header packet length is %d bytes but only %d bytes are available: %w",
			plen, l, errParse)
	}

	return h, packetType(b[1]), plen, nil
}

// A Message is an OSPFv2 message.
type Message interface {
	len() int
	marshal(b []byte) error
	unmarshal(b []byte) error
}

// MarshalMessage turns a Message into OSPFv2 packet bytes. The checksum
// field is computed over the header and body with AuData zeroed, per RFC
// 2328 appendix D.4.3. Callers using MD5 authentication must leave the
// checksum as zero and append the trailing digest separately (see
// AppendMD5Digest); this function detects AuMD5 and skips checksumming.
func MarshalMessage(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("ospf2: cannot marshal nil Message: %w", errMarshal)
	}

	b := make([]byte, m.len())
	if err := m.marshal(b); err != nil {
		return nil, fmt.Errorf("ospf2: failed to marshal Message: %w", err)
	}

	if messageHeader(m).AuType != AuMD5 {
		binary.BigEndian.PutUint16(b[12:14], ipChecksum(zeroAuth(b)))
	}

	return b, nil
}

// messageHeader extracts the embedded Header from any concrete Message.
func messageHeader(m Message) Header {
	switch v := m.(type) {
	case *Hello:
		return v.Header
	case *DatabaseDescription:
		return v.Header
	case *LinkStateRequest:
		return v.Header
	case *LinkStateUpdate:
		return v.Header
	case *LinkStateAcknowledgement:
		return v.Header
	default:
		return Header{}
	}
}

// zeroAuth returns a copy of b with the 64-bit authentication field zeroed,
// as required before computing the standard checksum.
func zeroAuth(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	for i := 16; i < 24 && i < len(cp); i++ {
		cp[i] = 0
	}
	return cp
}

// ipChecksum computes the standard Internet 16-bit one's-complement
// checksum over b.
func ipChecksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// ParseMessage parses an OSPFv2 Header and trailing Message from bytes.
func ParseMessage(b []byte) (Message, error) {
	h, ptyp, plen, err := parseHeader(b)
	if err != nil {
		return nil, fmt.Errorf("ospf2: failed to parse Header: %w", err)
	}

	var m Message
	switch ptyp {
	case hello:
		m = &Hello{Header: h}
	case databaseDescription:
		m = &DatabaseDescription{Header: h}
	case linkStateRequest:
		m = &LinkStateRequest{Header: h}
	case linkStateUpdate:
		m = &LinkStateUpdate{Header: h}
	case linkStateAcknowledgement:
		m = &LinkStateAcknowledgement{Header: h}
	default:
		return nil, fmt.Errorf("ospf2: unrecognized packet type: %d", ptyp)
	}

	if err := m.unmarshal(b[headerLen:plen]); err != nil {
		return nil, fmt.Errorf("ospf2: failed to parse Message: %w", err)
	}

	return m, nil
}

var _ Message = &Hello{}

// A Hello is an OSPFv2 Hello message as described in RFC 2328, appendix
// A.3.2.
type Hello struct {
	Header             Header
	NetworkMask        [4]byte
	HelloInterval      time.Duration
	Options            Options
	RouterPriority     uint8
	RouterDeadInterval time.Duration
	DesignatedRouter   ID
	BackupDesignated   ID
	NeighborIDs        []ID
}

func (h *Hello) len() int {
	return headerLen + helloLen + (4 * len(h.NeighborIDs))
}

func (h *Hello) marshal(b []byte) error {
	const n = headerLen
	h.Header.marshal(b[:n], hello, uint16(h.len()))

	copy(b[n:n+4], h.NetworkMask[:])
	putUint16Seconds(b[n+4:n+6], h.HelloInterval)
	b[n+6] = byte(h.Options)
	b[n+7] = h.RouterPriority
	binary.BigEndian.PutUint32(b[n+8:n+12], uint32(h.RouterDeadInterval/time.Second))
	copy(b[n+12:n+16], h.DesignatedRouter[:])
	copy(b[n+16:n+20], h.BackupDesignated[:])

	nn := n + helloLen
	for i := range h.NeighborIDs {
		copy(b[nn:nn+4], h.NeighborIDs[i][:])
		nn += 4
	}

	return nil
}

func (h *Hello) unmarshal(b []byte) error {
	if l := len(b); l < helloLen {
		return fmt.Errorf("not enough bytes for Hello: %d: %w", l, errParse)
	}
	if l := len(b); l%4 != 0 {
		return fmt.Errorf("Hello message must end on a 4 byte boundary, got %d bytes: %w", l, errParse)
	}

	copy(h.NetworkMask[:], b[0:4])
	h.HelloInterval = uint16Seconds(b[4:6])
	h.Options = Options(b[6])
	h.RouterPriority = b[7]
	h.RouterDeadInterval = time.Duration(binary.BigEndian.Uint32(b[8:12])) * time.Second
	copy(h.DesignatedRouter[:], b[12:16])
	copy(h.BackupDesignated[:], b[16:20])

	h.NeighborIDs = make([]ID, 0, len(b[helloLen:])/4)
	for i := helloLen; i < len(b); i += 4 {
		var id ID
		copy(id[:], b[i:i+4])
		h.NeighborIDs = append(h.NeighborIDs, id)
	}

	return nil
}

// DDFlags are flags which may appear in an OSPFv2 Database Description
// message as described in RFC 2328, appendix A.3.3.
type DDFlags uint8

// Possible DDFlags values.
const (
	MSBit DDFlags = 1 << 0 // Master/Slave
	MBit  DDFlags = 1 << 1 // More
	IBit  DDFlags = 1 << 2 // Init
)

func (f DDFlags) String() string {
	return flagsString(uint(f), []string{"MS-bit", "M-bit", "I-bit"})
}

var _ Message = &DatabaseDescription{}

// A DatabaseDescription is an OSPFv2 Database Description message as
// described in RFC 2328, appendix A.3.3.
type DatabaseDescription struct {
	Header         Header
	InterfaceMTU   uint16
	Options        Options
	Flags          DDFlags
	SequenceNumber uint32
	LSAs           []LSAHeader
}

func (dd *DatabaseDescription) len() int {
	return headerLen + ddLen + (lsaHeaderLen * len(dd.LSAs))
}

func (dd *DatabaseDescription) marshal(b []byte) error {
	const n = headerLen
	dd.Header.marshal(b[:n], databaseDescription, uint16(dd.len()))

	binary.BigEndian.PutUint16(b[n:n+2], dd.InterfaceMTU)
	b[n+2] = byte(dd.Options)
	b[n+3] = byte(dd.Flags)
	binary.BigEndian.PutUint32(b[n+4:n+8], dd.SequenceNumber)

	nn := n + ddLen
	for i := range dd.LSAs {
		dd.LSAs[i].marshal(b[nn : nn+lsaHeaderLen])
		nn += lsaHeaderLen
	}

	return nil
}

func (dd *DatabaseDescription) unmarshal(b []byte) error {
	if l := len(b); l < ddLen {
		return fmt.Errorf("not enough bytes for DatabaseDescription: %d: %w", l, errParse)
	}

	dd.InterfaceMTU = binary.BigEndian.Uint16(b[0:2])
	dd.Options = Options(b[2])
	dd.Flags = DDFlags(b[3])
	dd.SequenceNumber = binary.BigEndian.Uint32(b[4:8])

	const lsaOff = ddLen
	if l := len(b[lsaOff:]); l%lsaHeaderLen != 0 {
		return fmt.Errorf("DatabaseDescription message must end on a 20 byte boundary for trailing LSA headers, got %d bytes: %w", l, errParse)
	}

	n := len(b[lsaOff:]) / lsaHeaderLen
	dd.LSAs = make([]LSAHeader, 0, n)
	for i := 0; i < n; i++ {
		start := lsaOff + i*lsaHeaderLen
		end := start + lsaHeaderLen
		dd.LSAs = append(dd.LSAs, parseLSAHeader(b[start:end]))
	}

	return nil
}

// An LSAID identifies an LSA instance by (LS-Type, Link-State-ID,
// Advertising-Router), as carried in Link State Request messages.
type LSAID struct {
	Type              LSType
	LinkStateID       ID
	AdvertisingRouter ID
}

func (l LSAID) marshal(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], uint32(l.Type))
	copy(b[4:8], l.LinkStateID[:])
	copy(b[8:12], l.AdvertisingRouter[:])
}

func parseLSAID(b []byte) LSAID {
	l := LSAID{Type: LSType(binary.BigEndian.Uint32(b[0:4]))}
	copy(l.LinkStateID[:], b[4:8])
	copy(l.AdvertisingRouter[:], b[8:12])
	return l
}

var _ Message = &LinkStateRequest{}

// A LinkStateRequest is an OSPFv2 Link State Request message as described
// in RFC 2328, appendix A.3.4.
type LinkStateRequest struct {
	Header Header
	LSAs   []LSAID
}

func (lsr *LinkStateRequest) len() int {
	return headerLen + (lsaTripleLen * len(lsr.LSAs))
}

func (lsr *LinkStateRequest) marshal(b []byte) error {
	const n = headerLen
	lsr.Header.marshal(b[:n], linkStateRequest, uint16(lsr.len()))

	nn := n
	for i := range lsr.LSAs {
		lsr.LSAs[i].marshal(b[nn : nn+lsaTripleLen])
		nn += lsaTripleLen
	}

	return nil
}

func (lsr *LinkStateRequest) unmarshal(b []byte) error {
	if l := len(b); l%lsaTripleLen != 0 {
		return fmt.Errorf("LinkStateRequest message must end on a 12 byte boundary, got %d bytes: %w", l, errParse)
	}

	n := len(b) / lsaTripleLen
	lsr.LSAs = make([]LSAID, 0, n)
	for i := 0; i < n; i++ {
		start := i * lsaTripleLen
		end := start + lsaTripleLen
		lsr.LSAs = append(lsr.LSAs, parseLSAID(b[start:end]))
	}

	return nil
}

var _ Message = &LinkStateAcknowledgement{}

// A LinkStateAcknowledgement is an OSPFv2 Link State Acknowledgment message
// as described in RFC 2328, appendix A.3.6.
type LinkStateAcknowledgement struct {
	Header Header
	LSAs   []LSAHeader
}

func (a *LinkStateAcknowledgement) len() int {
	return headerLen + (lsaHeaderLen * len(a.LSAs))
}

func (a *LinkStateAcknowledgement) marshal(b []byte) error {
	const n = headerLen
	a.Header.marshal(b[:n], linkStateAcknowledgement, uint16(a.len()))

	nn := n
	for i := range a.LSAs {
		a.LSAs[i].marshal(b[nn : nn+lsaHeaderLen])
		nn += lsaHeaderLen
	}

	return nil
}

func (a *LinkStateAcknowledgement) unmarshal(b []byte) error {
	if l := len(b); l%lsaHeaderLen != 0 {
		return fmt.Errorf("LinkStateAcknowledgement message must end on a 20 byte boundary, got %d bytes: %w", l, errParse)
	}

	n := len(b) / lsaHeaderLen
	a.LSAs = make([]LSAHeader, 0, n)
	for i := 0; i < n; i++ {
		start := i * lsaHeaderLen
		end := start + lsaHeaderLen
		a.LSAs = append(a.LSAs, parseLSAHeader(b[start:end]))
	}

	return nil
}

// uint16Seconds interprets big endian uint16 bytes as a number of seconds.
func uint16Seconds(b []byte) time.Duration {
	return time.Duration(binary.BigEndian.Uint16(b)) * time.Second
}

// putUint16Seconds stores d in b as big endian uint16 bytes, rounded to the
// nearest whole second.
func putUint16Seconds(b []byte, d time.Duration) {
	binary.BigEndian.PutUint16(b, uint16(d.Round(time.Second).Seconds()))
}

// flagsString generates a pretty-printed flags bitmask using the input value
// and sequence of names.
func flagsString(f uint, names []string) string {
	var s string
	left := f
	for i, name := range names {
		if f&(1<<uint(i)) != 0 {
			if s != "" {
				s += "|"
			}
			s += name
			left ^= (1 << uint(i))
		}
	}

	if s == "" && left == 0 {
		s = "0"
	}
	if left > 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("%#x", left)
	}

	return s
}
