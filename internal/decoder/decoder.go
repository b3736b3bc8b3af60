package decoder

import (
	"fmt"
	"io"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/lsb"
)

// SecureStegoDecoder recovers a message from a carrier in two steps:
// ExtractSecurePayload reads the framed payload out of the LSBs, and
// DecryptPayload authenticates and decrypts it. Errors from the first step
// mean the carrier holds no valid container; the second step only fails
// with scrypto.ErrAuthentication.
type SecureStegoDecoder struct {
	slots         lsb.Slots
	password      []byte
	securePayload []byte

	// Out receives a progress report when non-nil.
	Out io.Writer
}

// NewSecureStegoDecoder creates a decoder instance
func NewSecureStegoDecoder(c carrier.Carrier, password []byte) *SecureStegoDecoder {
	return &SecureStegoDecoder{
		slots:    c.Slots(),
		password: password,
	}
}

// ExtractSecurePayload reads the length header and the salt+token body.
func (ssd *SecureStegoDecoder) ExtractSecurePayload() error {
	ssd.printf("\n🔍 Extracting encrypted data (%d slots):\n", ssd.slots.Len())

	body, err := lsb.ReadFramedPayload(ssd.slots)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	ssd.securePayload = body

	ssd.printf("   Payload length: %d bytes\n", len(body))
	return nil
}

// Extract recovers the message hidden in c under password.
func Extract(c carrier.Carrier, password string) (string, error) {
	ssd := NewSecureStegoDecoder(c, []byte(password))

	if err := ssd.ExtractSecurePayload(); err != nil {
		return "", err
	}

	result, err := ssd.DecryptPayload()
	if err != nil {
		return "", err
	}
	return string(result.Message), nil
}

func (ssd *SecureStegoDecoder) printf(format string, a ...any) {
	if ssd.Out != nil {
		fmt.Fprintf(ssd.Out, format, a...)
	}
}
