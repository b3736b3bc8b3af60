package scrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/faanross/stegocrypt/internal/spec"
)

// Seal encrypts message under key and returns a self-contained token:
//
//	[VERSION(1)][TIMESTAMP(8)][NONCE(12)][CIPHERTEXT][TAG(16)]
//
// The tag covers version, timestamp, nonce and ciphertext. A fresh nonce is
// drawn for every call.
func Seal(key, message []byte) ([]byte, error) {
	return sealAt(key, message, time.Now())
}

func sealAt(key, message []byte, now time.Time) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	prefix := make([]byte, spec.TOKEN_PREFIX)
	prefix[0] = spec.TOKEN_VERSION
	binary.BigEndian.PutUint64(prefix[1:1+spec.TIMESTAMP_SIZE], uint64(now.Unix()))

	nonce := prefix[1+spec.TIMESTAMP_SIZE:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	token := make([]byte, spec.TOKEN_PREFIX, spec.TOKEN_OVERHEAD+len(message))
	copy(token, prefix)

	// The prefix is both the token head and the AAD.
	return gcm.Seal(token, nonce, message, prefix), nil
}

// Open verifies and decrypts a token produced by Seal. No plaintext is
// released unless the tag verifies; every failure is ErrAuthentication.
func Open(key, token []byte) ([]byte, error) {
	plaintext, _, err := OpenToken(key, token)
	return plaintext, err
}

// OpenToken is Open that also returns the authenticated seal time. The
// timestamp is informational; tokens never expire.
func OpenToken(key, token []byte) ([]byte, time.Time, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, time.Time{}, err
	}

	if len(token) < spec.TOKEN_OVERHEAD || token[0] != spec.TOKEN_VERSION {
		return nil, time.Time{}, ErrAuthentication
	}

	prefix := token[:spec.TOKEN_PREFIX]
	nonce := prefix[1+spec.TIMESTAMP_SIZE:]

	plaintext, err := gcm.Open(nil, nonce, token[spec.TOKEN_PREFIX:], prefix)
	if err != nil {
		return nil, time.Time{}, ErrAuthentication
	}

	sealed := time.Unix(int64(binary.BigEndian.Uint64(prefix[1:1+spec.TIMESTAMP_SIZE])), 0)
	return plaintext, sealed, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != spec.KEY_SIZE {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), spec.KEY_SIZE)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return gcm, nil
}
