package encoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/faanross/stegocrypt/internal/carrier"
	"github.com/faanross/stegocrypt/internal/lsb"
	"github.com/faanross/stegocrypt/internal/spec"
)

// SecureStegoEncoder hides one encrypted message in a carrier. Every Hide
// call draws a new salt and nonce; nothing is cached between calls.
type SecureStegoEncoder struct {
	password      []byte
	message       []byte
	securePayload []byte

	// Out receives a progress report when non-nil.
	Out io.Writer
}

// NewSecureStegoEncoder creates an encoder for message under password
func NewSecureStegoEncoder(message []byte, password []byte) *SecureStegoEncoder {
	return &SecureStegoEncoder{
		password: password,
		message:  message,
	}
}

// RequiredBytes is the number of carrier bytes (slots/8) that hiding a
// message of msgLen bytes takes.
func RequiredBytes(msgLen int) int {
	return spec.HEADER_SIZE + spec.PAYLOAD_MINIMUM + msgLen
}

// MaxMessageLen is the longest message a carrier of the given byte
// capacity can hold, or -1 if even an empty message does not fit.
func MaxMessageLen(capacity int) int {
	n := capacity - RequiredBytes(0)
	if n < 0 {
		return -1
	}
	return n
}

// EmbedInto encrypts the message and writes the framed payload into slots.
// The capacity check runs before key derivation and before any slot is
// written.
func (sse *SecureStegoEncoder) EmbedInto(slots lsb.Slots) error {
	capacity := lsb.Capacity(slots)
	if need := RequiredBytes(len(sse.message)); need > capacity {
		return fmt.Errorf("%w: capacity=%d bytes, need %d bytes", lsb.ErrCapacityExceeded, capacity, need)
	}

	if err := sse.PrepareSecurePayload(); err != nil {
		return err
	}
	defer func() { sse.securePayload = nil }()

	sse.printf("\n🎨 Embedding Encrypted Data:\n")
	if err := lsb.Embed(slots, sse.securePayload); err != nil {
		return err
	}

	bits := len(sse.securePayload) * spec.BITS_PER_BYTE
	sse.printf("   Bits embedded: %d of %d slots\n", bits, slots.Len())
	sse.printf("   Utilization: %.1f%%\n", float64(bits)*100/float64(slots.Len()))
	return nil
}

// HideImage returns a copy of img carrying the message.
func (sse *SecureStegoEncoder) HideImage(img *carrier.Image) (*carrier.Image, error) {
	out := img.Clone()
	if err := sse.EmbedInto(out.Slots()); err != nil {
		return nil, err
	}
	return out, nil
}

// HideAudio returns a copy of a carrying the message.
func (sse *SecureStegoEncoder) HideAudio(a *carrier.Audio) (*carrier.Audio, error) {
	out := a.Clone()
	if err := sse.EmbedInto(out.Slots()); err != nil {
		return nil, err
	}
	return out, nil
}

// Hide returns a copy of c with message hidden under password. The input
// carrier is never modified.
func Hide(c carrier.Carrier, message, password string) (carrier.Carrier, error) {
	sse := NewSecureStegoEncoder([]byte(message), []byte(password))

	var (
		out carrier.Carrier
		err error
	)
	switch v := c.(type) {
	case *carrier.Image:
		out, err = sse.HideImage(v)
	case *carrier.Audio:
		out, err = sse.HideAudio(v)
	default:
		return nil, errors.New("encoder: unsupported carrier type")
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (sse *SecureStegoEncoder) printf(format string, a ...any) {
	if sse.Out != nil {
		fmt.Fprintf(sse.Out, format, a...)
	}
}
