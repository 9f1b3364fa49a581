package ospf2

import (
	"encoding/binary"
	"fmt"
)

// An Md5Digester computes the MD5 digest appended to an authenticated
// OSPFv2 packet. Production key material handling (the MD5 cryptographic
// primitive itself, per spec.md §1) is an external collaborator; this
// interface only lets the engine exercise the replay-sequence and digest
// placement logic deterministically.
type Md5Digester interface {
	// Sum returns the 16-byte MD5 digest of packet with key appended, per
	// RFC 2328 appendix D.3: MD5(packet || key).
	Sum(key, packet []byte) [16]byte
}

// ParseMD5Auth extracts the key ID and anti-replay sequence number from an
// OSPFv2 Header with AuType == AuMD5, per RFC 2328 appendix D.3. AuData
// layout: reserved(2), KeyID(1), DigestLength(1), Sequence(4).
func ParseMD5Auth(h Header) (keyID uint8, digestLen uint8, sequence uint32) {
	keyID = h.AuData[2]
	digestLen = h.AuData[3]
	sequence = binary.BigEndian.Uint32(h.AuData[4:8])
	return
}

// SetMD5Auth populates the AuData field of h for MD5 authentication.
func SetMD5Auth(h *Header, keyID, digestLen uint8, sequence uint32) {
	h.AuType = AuMD5
	h.AuData[0], h.AuData[1] = 0, 0
	h.AuData[2] = keyID
	h.AuData[3] = digestLen
	binary.BigEndian.PutUint32(h.AuData[4:8], sequence)
}

// AppendMD5Digest marshals m, zeroes its checksum field (as required when
// AuType is MD5), and appends the MD5 digest computed by d over the packet
// and key.
func AppendMD5Digest(m Message, key []byte, d Md5Digester) ([]byte, error) {
	b, err := MarshalMessage(m)
	if err != nil {
		return nil, fmt.Errorf("ospf2: failed to marshal message for MD5 auth: %w", err)
	}

	// Checksum is not used with MD5 authentication; it must be zero.
	binary.BigEndian.PutUint16(b[12:14], 0)

	digest := d.Sum(key, b)
	return append(b, digest[:]...), nil
}

// VerifyMD5Sequence enforces the anti-replay rule from spec.md §4.5: a
// received packet from a live neighbor must not have a sequence number
// lower than the last one accepted from that neighbor. lastAccepted is the
// previously stored sequence number (0 if none yet received).
func VerifyMD5Sequence(lastAccepted, received uint32) bool {
	return received >= lastAccepted
}
