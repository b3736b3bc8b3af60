package scrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/faanross/stegocrypt/internal/spec"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/term"
)

var (
	// ErrAuthentication is the single outcome of any failed Open: wrong
	// password, tampered bytes, truncated token or unknown version.
	ErrAuthentication = errors.New("scrypto: authentication failed - wrong password or corrupted data")

	// ErrInvalidKeySize is returned when a key is not KEY_SIZE bytes.
	ErrInvalidKeySize = errors.New("scrypto: invalid key size")

	// ErrInvalidSaltSize is returned when a salt is not SALT_SIZE bytes.
	ErrInvalidSaltSize = errors.New("scrypto: invalid salt size")
)

// DeriveKey generates the envelope key from password and salt using
// PBKDF2-HMAC-SHA256. The same inputs always produce the same key.
func DeriveKey(password, salt []byte) ([]byte, error) {
	if len(salt) != spec.SALT_SIZE {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidSaltSize, len(salt), spec.SALT_SIZE)
	}
	return pbkdf2.Key(password, salt, spec.PBKDF2_ITERS, spec.KEY_SIZE, sha256.New), nil
}

// GenerateSalt returns SALT_SIZE bytes from the system CSPRNG.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, spec.SALT_SIZE)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}
	return salt, nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GetSecurePassword prompts for password with hidden input
func GetSecurePassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // New line after password

	if err != nil {
		return nil, fmt.Errorf("password read failed: %w", err)
	}

	if len(password) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}

	return password, nil
}
