package encoder

import (
	"fmt"

	"github.com/faanross/stegocrypt/internal/payload"
	"github.com/faanross/stegocrypt/internal/scrypto"
	"github.com/faanross/stegocrypt/internal/spec"
)

// EncryptMessage derives a key from a fresh salt and seals the message.
// The key is wiped before returning.
func (sse *SecureStegoEncoder) EncryptMessage() (salt, token []byte, err error) {
	sse.printf("\n🔐 Encryption Process:\n")

	salt, err = scrypto.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}

	sse.printf("   Key derivation: PBKDF2-SHA256, %d iterations\n", spec.PBKDF2_ITERS)
	key, err := scrypto.DeriveKey(sse.password, salt)
	if err != nil {
		return nil, nil, err
	}
	defer scrypto.Wipe(key)

	token, err = scrypto.Seal(key, sse.message)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption failed: %w", err)
	}

	sse.printf("   Original size: %d bytes\n", len(sse.message))
	sse.printf("   Token size: %d bytes\n", len(token))

	return salt, token, nil
}

// PrepareSecurePayload creates the framed payload for embedding:
// [LENGTH(4)][SALT(16)][TOKEN]
func (sse *SecureStegoEncoder) PrepareSecurePayload() error {
	salt, token, err := sse.EncryptMessage()
	if err != nil {
		return err
	}

	framed, err := payload.Header(payload.Pack(salt, token))
	if err != nil {
		return err
	}
	sse.securePayload = framed

	sse.printf("\n📦 Secure Payload Structure:\n")
	sse.printf("   Header: %d bytes\n", spec.HEADER_SIZE)
	sse.printf("   Salt: %d bytes\n", spec.SALT_SIZE)
	sse.printf("   Token: %d bytes (nonce %d, tag %d)\n", len(token), spec.NONCE_SIZE, spec.TAG_SIZE)
	sse.printf("   Total: %d bytes\n", len(sse.securePayload))

	return nil
}
