// Package payload builds the byte sequence hidden in a carrier:
//
//	[LENGTH(4, big-endian)][SALT(16)][TOKEN(LENGTH-16)]
//
// LENGTH counts salt and token only, never the header itself.
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/faanross/stegocrypt/internal/spec"
)

var (
	// ErrTruncatedPayload is returned when fewer bytes are present than
	// the header or the fixed salt prefix requires.
	ErrTruncatedPayload = errors.New("payload: truncated payload")

	// ErrPayloadTooLarge is returned when a payload length does not fit
	// the 32-bit header.
	ErrPayloadTooLarge = errors.New("payload: payload too large for header")
)

// Pack concatenates salt and token.
func Pack(salt, token []byte) []byte {
	out := make([]byte, 0, len(salt)+len(token))
	out = append(out, salt...)
	return append(out, token...)
}

// Unpack splits a payload into its fixed-size salt prefix and the token.
func Unpack(payload []byte) (salt, token []byte, err error) {
	if len(payload) < spec.SALT_SIZE {
		return nil, nil, fmt.Errorf("%w: %d bytes, salt alone needs %d",
			ErrTruncatedPayload, len(payload), spec.SALT_SIZE)
	}
	return payload[:spec.SALT_SIZE], payload[spec.SALT_SIZE:], nil
}

// Header prefixes payload with its big-endian 32-bit length.
func Header(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	out := make([]byte, spec.HEADER_SIZE+len(payload))
	binary.BigEndian.PutUint32(out[:spec.HEADER_SIZE], uint32(len(payload)))
	copy(out[spec.HEADER_SIZE:], payload)
	return out, nil
}

// Unheader reads the declared length and returns it with the bytes that
// follow the header. It fails when fewer than the declared number of bytes
// remain. Bytes past the declared length are returned untouched; callers
// slice with the declared length.
func Unheader(b []byte) (uint32, []byte, error) {
	if len(b) < spec.HEADER_SIZE {
		return 0, nil, fmt.Errorf("%w: %d bytes, header needs %d",
			ErrTruncatedPayload, len(b), spec.HEADER_SIZE)
	}

	declared := binary.BigEndian.Uint32(b[:spec.HEADER_SIZE])
	rest := b[spec.HEADER_SIZE:]
	if uint64(len(rest)) < uint64(declared) {
		return declared, nil, fmt.Errorf("%w: header declares %d bytes, %d present",
			ErrTruncatedPayload, declared, len(rest))
	}
	return declared, rest, nil
}

// Body is Unheader followed by slicing to exactly the declared length.
func Body(b []byte) ([]byte, error) {
	declared, rest, err := Unheader(b)
	if err != nil {
		return nil, err
	}
	return rest[:declared], nil
}
