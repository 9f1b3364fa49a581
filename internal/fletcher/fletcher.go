// Package fletcher implements the Fletcher checksum algorithm used by
// OSPFv2 LSAs, as described in RFC 905, Annex B (also ISO 8473 Annex C).
package fletcher

// Checksum16 computes the 16-bit Fletcher checksum of b and returns it as
// two checksum bytes (c0, c1) suitable for splicing into a buffer at a
// chosen offset, per RFC 905 Annex B. offset is the position within the
// logical buffer (0-based) where the two checksum bytes will be stored;
// the algorithm needs this to place the result so that a subsequent
// Fletcher checksum of the buffer (with the checksum bytes in place)
// verifies to zero.
func Checksum16(b []byte, offset int) (c0, c1 byte) {
	var c0Sum, c1Sum int32

	for _, x := range b {
		c0Sum += int32(x)
		if c0Sum >= 255 {
			c0Sum -= 255
		}
		c1Sum += c0Sum
		if c1Sum >= 255 {
			c1Sum -= 255
		}
	}

	n := int32(len(b))
	mul := n - int32(offset) - 1

	x := (mul*c0Sum - c1Sum) % 255
	if x <= 0 {
		x += 255
	}
	y := 510 - c0Sum - x
	if y > 255 {
		y -= 255
	}

	return byte(x), byte(y)
}

// Verify returns true if b, which contains a previously computed checksum,
// still checksums to zero under the Fletcher algorithm.
func Verify(b []byte) bool {
	var c0Sum, c1Sum int32
	for _, x := range b {
		c0Sum += int32(x)
		if c0Sum >= 255 {
			c0Sum -= 255
		}
		c1Sum += c0Sum
		if c1Sum >= 255 {
			c1Sum -= 255
		}
	}
	return c0Sum == 0 && c1Sum == 0
}
