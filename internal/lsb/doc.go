// Package lsb hides bytes in the least significant bit of carrier slots.
//
// A slot is one addressable LSB: one colour channel of one pixel (R, G, B in
// scan order, alpha never used) or one 16-bit PCM sample (interleaved
// channel order, frame order). Bytes are written most significant bit first,
// one bit per slot, starting at slot 0. Only bit 0 of a slot is ever
// changed, and slots past the last data bit are left alone.
//
// Framed payloads carry a 32-bit big-endian length in the first 32 slots
// followed by that many bytes; ReadFramedPayload reads the header to know how
// much body to read and returns the body only.
package lsb
