package fletcher

import "testing"

func TestChecksum16RoundTrip(t *testing.T) {
	tests := [][]byte{
		{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
		{0xff, 0xff, 0xff, 0xff},
		{0x01},
		make([]byte, 64),
	}

	for _, body := range tests {
		// LSA checksum is computed over the body with the two checksum
		// bytes zeroed, then spliced in at a fixed offset (here: the end).
		buf := append([]byte{}, body...)
		buf = append(buf, 0, 0)
		offset := len(body)

		c0, c1 := Checksum16(buf[:offset], offset)
		buf[offset] = c0
		buf[offset+1] = c1

		if !Verify(buf) {
			t.Errorf("checksum for %x did not verify after splicing at %d", body, offset)
		}
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	body := []byte{0xde, 0xad, 0xbe, 0xef, 0, 0}
	c0, c1 := Checksum16(body[:4], 4)
	body[4], body[5] = c0, c1

	if !Verify(body) {
		t.Fatal("expected checksum to verify before corruption")
	}

	body[0] ^= 0xff
	if Verify(body) {
		t.Fatal("expected checksum to fail to verify after corruption")
	}
}
