package payload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/faanross/stegocrypt/internal/spec"
)

func TestPackUnpack(t *testing.T) {
	salt := bytes.Repeat([]byte{0xAA}, spec.SALT_SIZE)
	token := []byte("token-bytes")

	p := Pack(salt, token)
	if len(p) != spec.SALT_SIZE+len(token) {
		t.Fatalf("packed length = %d", len(p))
	}

	gotSalt, gotToken, err := Unpack(p)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !bytes.Equal(gotSalt, salt) || !bytes.Equal(gotToken, token) {
		t.Fatalf("Unpack mismatch: salt=%x token=%q", gotSalt, gotToken)
	}
}

func TestUnpackEmptyToken(t *testing.T) {
	salt, token, err := Unpack(make([]byte, spec.SALT_SIZE))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(salt) != spec.SALT_SIZE || len(token) != 0 {
		t.Fatalf("salt=%d token=%d", len(salt), len(token))
	}
}

func TestUnpackTooShort(t *testing.T) {
	_, _, err := Unpack(make([]byte, spec.SALT_SIZE-1))
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"one", 1},
		{"multi-kilobyte", 4096 + spec.PAYLOAD_MINIMUM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := bytes.Repeat([]byte{0x3C}, tt.size)

			h, err := Header(p)
			if err != nil {
				t.Fatalf("Header: %v", err)
			}
			if got := binary.BigEndian.Uint32(h[:4]); got != uint32(tt.size) {
				t.Fatalf("declared length = %d, want %d", got, tt.size)
			}

			declared, rest, err := Unheader(h)
			if err != nil {
				t.Fatalf("Unheader: %v", err)
			}
			if declared != uint32(tt.size) || !bytes.Equal(rest, p) {
				t.Fatalf("Unheader mismatch: declared=%d len(rest)=%d", declared, len(rest))
			}
		})
	}
}

func TestUnheaderTruncated(t *testing.T) {
	h, _ := Header([]byte("0123456789"))

	tests := []struct {
		name string
		b    []byte
	}{
		{"no header", h[:3]},
		{"short body", h[:len(h)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Unheader(tt.b); !errors.Is(err, ErrTruncatedPayload) {
				t.Fatalf("expected ErrTruncatedPayload, got %v", err)
			}
		})
	}
}

func TestBodyIgnoresTrailingBytes(t *testing.T) {
	h, _ := Header([]byte("abc"))
	h = append(h, 0xFF, 0xFF)

	body, err := Body(h)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if string(body) != "abc" {
		t.Fatalf("body = %q", body)
	}
}
