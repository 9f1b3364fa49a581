package ospf2

import (
	"crypto/md5"
	"testing"
)

type fakeMD5 struct{}

func (fakeMD5) Sum(key, packet []byte) [16]byte {
	return md5.Sum(append(append([]byte{}, packet...), key...))
}

func TestAppendMD5Digest(t *testing.T) {
	h := &Hello{Header: Header{RouterID: ID{1, 1, 1, 1}}}
	SetMD5Auth(&h.Header, 1, 16, 100)

	key := []byte("sekrit")
	b, err := AppendMD5Digest(h, key, fakeMD5{})
	if err != nil {
		t.Fatalf("AppendMD5Digest: %v", err)
	}

	// The checksum field must be zero with MD5 authentication.
	if b[12] != 0 || b[13] != 0 {
		t.Fatalf("expected zero checksum, got %#02x%02x", b[12], b[13])
	}

	// A 16-byte digest must be appended after the packet.
	wantLen := h.len() + 16
	if len(b) != wantLen {
		t.Fatalf("len(b) = %d, want %d", len(b), wantLen)
	}

	m, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	keyID, digestLen, seq := ParseMD5Auth(m.(*Hello).Header)
	if keyID != 1 || digestLen != 16 || seq != 100 {
		t.Fatalf("unexpected auth fields: keyID=%d digestLen=%d seq=%d", keyID, digestLen, seq)
	}
}

func TestVerifyMD5Sequence(t *testing.T) {
	tests := []struct {
		last, recv uint32
		want       bool
	}{
		{last: 0, recv: 0, want: true},
		{last: 100, recv: 101, want: true},
		{last: 100, recv: 100, want: true},
		{last: 100, recv: 99, want: false},
	}

	for _, tt := range tests {
		if got := VerifyMD5Sequence(tt.last, tt.recv); got != tt.want {
			t.Errorf("VerifyMD5Sequence(%d, %d) = %v, want %v", tt.last, tt.recv, got, tt.want)
		}
	}
}
