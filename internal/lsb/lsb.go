package lsb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/faanross/stegocrypt/internal/payload"
	"github.com/faanross/stegocrypt/internal/spec"
)

var (
	// ErrCapacityExceeded is returned by Embed before any slot is touched.
	ErrCapacityExceeded = errors.New("lsb: data exceeds carrier capacity")

	// ErrCarrierTooSmall is returned when a carrier has fewer slots than
	// the 32-bit length header.
	ErrCarrierTooSmall = errors.New("lsb: carrier too small for length header")

	// ErrTruncatedPayload is returned when the header declares more bytes
	// than the carrier holds.
	ErrTruncatedPayload = payload.ErrTruncatedPayload
)

// Slots is a flat, ordered sequence of LSB positions.
type Slots interface {
	// Len returns the number of slots.
	Len() int
	// Bit returns bit 0 of slot i.
	Bit(i int) byte
	// SetBit replaces bit 0 of slot i with bit, leaving higher bits alone.
	SetBit(i int, bit byte)
}

// Capacity returns how many whole bytes s can hold.
func Capacity(s Slots) int {
	return s.Len() / spec.BITS_PER_BYTE
}

// Embed writes data into s, MSB first, starting at slot 0.
func Embed(s Slots, data []byte) error {
	if capacity := Capacity(s); len(data) > capacity {
		return fmt.Errorf("%w: capacity=%d bytes, data=%d bytes", ErrCapacityExceeded, capacity, len(data))
	}

	for i, b := range data {
		for j := 0; j < spec.BITS_PER_BYTE; j++ {
			s.SetBit(i*spec.BITS_PER_BYTE+j, (b>>(7-j))&1)
		}
	}
	return nil
}

// Extract reads n bytes starting at slot offset. The caller guarantees
// offset+8n <= s.Len().
func Extract(s Slots, offset, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		var b byte
		for j := 0; j < spec.BITS_PER_BYTE; j++ {
			b = b<<1 | s.Bit(offset+i*spec.BITS_PER_BYTE+j)&1
		}
		out[i] = b
	}
	return out
}

// ReadFramedPayload reads the 32-bit length header from the first 32 slots,
// checks that the carrier holds that many bytes after it, and returns them.
func ReadFramedPayload(s Slots) ([]byte, error) {
	total := s.Len()
	if total < spec.HEADER_BITS {
		return nil, fmt.Errorf("%w: %d slots, need %d", ErrCarrierTooSmall, total, spec.HEADER_BITS)
	}

	length := binary.BigEndian.Uint32(Extract(s, 0, spec.HEADER_SIZE))

	// uint64 so a hostile header cannot overflow the bound.
	need := uint64(spec.HEADER_BITS) + uint64(length)*spec.BITS_PER_BYTE
	if uint64(total) < need {
		return nil, fmt.Errorf("%w: header declares %d bytes, carrier holds %d",
			ErrTruncatedPayload, length, (total-spec.HEADER_BITS)/spec.BITS_PER_BYTE)
	}

	return Extract(s, spec.HEADER_BITS, int(length)), nil
}

// EmbedFramedPayload headers body and embeds it.
func EmbedFramedPayload(s Slots, body []byte) error {
	framed, err := payload.Header(body)
	if err != nil {
		return err
	}
	return Embed(s, framed)
}
