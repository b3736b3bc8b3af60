package decoder

import (
	"errors"
	"fmt"
	"time"

	"github.com/faanross/stegocrypt/internal/payload"
	"github.com/faanross/stegocrypt/internal/scrypto"
)

// ExtractedMessage contains decrypted message and metadata
type ExtractedMessage struct {
	Message       []byte
	PayloadSize   int
	SealedAt      time.Time
	Authenticated bool
}

// DecryptPayload decrypts the extracted payload
func (ssd *SecureStegoDecoder) DecryptPayload() (*ExtractedMessage, error) {
	if ssd.securePayload == nil {
		return nil, errors.New("decoder: no payload extracted")
	}

	ssd.printf("\n🔓 Decryption process:\n")

	salt, token, err := payload.Unpack(ssd.securePayload)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	message, sealedAt, err := openToken(ssd.password, salt, token)
	if err != nil {
		ssd.printf("   ❌ Authentication failed\n")
		return nil, err
	}

	ssd.printf("   ✅ Authentication successful!\n")
	ssd.printf("   Decrypted size: %d bytes\n", len(message))

	return &ExtractedMessage{
		Message:       message,
		PayloadSize:   len(ssd.securePayload),
		SealedAt:      sealedAt,
		Authenticated: true,
	}, nil
}

// openToken derives the key for salt and opens token, wiping the key after.
func openToken(password, salt, token []byte) ([]byte, time.Time, error) {
	key, err := scrypto.DeriveKey(password, salt)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer scrypto.Wipe(key)

	message, sealedAt, err := scrypto.OpenToken(key, token)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decryption failed: %w", err)
	}
	return message, sealedAt, nil
}
