package scrypto

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/faanross/stegocrypt/internal/spec"
)

func testKey(t *testing.T, password string) []byte {
	t.Helper()
	salt := bytes.Repeat([]byte{0x5a}, spec.SALT_SIZE)
	key, err := DeriveKey([]byte(password), salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	return key
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}

	k1, err := DeriveKey([]byte("pw123"), salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey([]byte("pw123"), salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	if len(k1) != spec.KEY_SIZE {
		t.Fatalf("key length = %d, want %d", len(k1), spec.KEY_SIZE)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("same password and salt produced different keys")
	}

	k3, _ := DeriveKey([]byte("pw124"), salt)
	if bytes.Equal(k1, k3) {
		t.Fatalf("different passwords produced the same key")
	}

	other, _ := GenerateSalt()
	k4, _ := DeriveKey([]byte("pw123"), other)
	if bytes.Equal(k1, k4) {
		t.Fatalf("different salts produced the same key")
	}
}

func TestDeriveKeyInvalidSalt(t *testing.T) {
	for _, n := range []int{0, 8, 32} {
		_, err := DeriveKey([]byte("pw"), make([]byte, n))
		if !errors.Is(err, ErrInvalidSaltSize) {
			t.Errorf("salt %d: expected ErrInvalidSaltSize, got %v", n, err)
		}
	}
}

func TestGenerateSaltUnique(t *testing.T) {
	a, _ := GenerateSalt()
	b, _ := GenerateSalt()
	if bytes.Equal(a, b) {
		t.Fatalf("two salts are identical")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t, "pw123")

	tests := []struct {
		name    string
		message []byte
	}{
		{"empty", []byte{}},
		{"simple", []byte("hello")},
		{"multibyte", []byte("héllo wörld, 你好, 👋")},
		{"large", bytes.Repeat([]byte("x"), 8192)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Seal(key, tt.message)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			if len(token) != spec.TOKEN_OVERHEAD+len(tt.message) {
				t.Errorf("token length = %d, want %d", len(token), spec.TOKEN_OVERHEAD+len(tt.message))
			}
			if token[0] != spec.TOKEN_VERSION {
				t.Errorf("version = %#x, want %#x", token[0], spec.TOKEN_VERSION)
			}

			plaintext, err := Open(key, token)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(plaintext, tt.message) {
				t.Errorf("plaintext = %q, want %q", plaintext, tt.message)
			}
		})
	}
}

func TestSealFreshNonce(t *testing.T) {
	key := testKey(t, "pw123")
	a, _ := Seal(key, []byte("same"))
	b, _ := Seal(key, []byte("same"))

	if bytes.Equal(a[9:spec.TOKEN_PREFIX], b[9:spec.TOKEN_PREFIX]) {
		t.Fatalf("nonce reused across Seal calls")
	}
	if bytes.Equal(a, b) {
		t.Fatalf("identical tokens for identical messages")
	}
}

func TestOpenTokenTimestamp(t *testing.T) {
	key := testKey(t, "pw123")
	at := time.Unix(1700000000, 0)

	token, err := sealAt(key, []byte("hi"), at)
	if err != nil {
		t.Fatalf("sealAt: %v", err)
	}

	_, sealed, err := OpenToken(key, token)
	if err != nil {
		t.Fatalf("OpenToken: %v", err)
	}
	if !sealed.Equal(at) {
		t.Errorf("sealed = %v, want %v", sealed, at)
	}
}

func TestOpenWrongKey(t *testing.T) {
	token, _ := Seal(testKey(t, "pw123"), []byte("hello"))

	_, err := Open(testKey(t, "wrong"), token)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestOpenTampered(t *testing.T) {
	key := testKey(t, "pw123")
	token, _ := Seal(key, []byte("sensitive data"))

	// Every byte is covered: version, timestamp, nonce, ciphertext, tag.
	for i := range token {
		tampered := bytes.Clone(token)
		tampered[i] ^= 0x01

		plaintext, err := Open(key, tampered)
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("byte %d: expected ErrAuthentication, got %v", i, err)
		}
		if plaintext != nil {
			t.Fatalf("byte %d: plaintext released on failure", i)
		}
	}
}

func TestOpenTruncated(t *testing.T) {
	key := testKey(t, "pw123")
	token, _ := Seal(key, []byte("hello"))

	for _, n := range []int{0, 1, spec.TOKEN_PREFIX, spec.TOKEN_OVERHEAD - 1, len(token) - 1} {
		_, err := Open(key, token[:n])
		if !errors.Is(err, ErrAuthentication) {
			t.Errorf("len %d: expected ErrAuthentication, got %v", n, err)
		}
	}
}

func TestInvalidKeySize(t *testing.T) {
	if _, err := Seal(make([]byte, 16), []byte("x")); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("Seal: expected ErrInvalidKeySize, got %v", err)
	}
	if _, err := Open(make([]byte, 64), make([]byte, 64)); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("Open: expected ErrInvalidKeySize, got %v", err)
	}
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	Wipe(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Fatalf("Wipe left %v", b)
	}
}

func BenchmarkDeriveKey(b *testing.B) {
	salt := make([]byte, spec.SALT_SIZE)
	for i := 0; i < b.N; i++ {
		_, _ = DeriveKey([]byte("benchmark password"), salt)
	}
}
