package lsb

import "github.com/faanross/stegocrypt/internal/spec"

// PixelSlots exposes the R, G and B channels of interleaved 8-bit pixel
// data. Channels is the pixel stride in bytes (3 for RGB, 4 for RGBA);
// anything past the third channel is never addressed.
type PixelSlots struct {
	Pix      []uint8
	Channels int
}

// NewPixelSlots wraps pix, which must hold whole pixels of the given stride.
func NewPixelSlots(pix []uint8, channels int) PixelSlots {
	if channels < spec.CHANNELS {
		panic("lsb: pixel stride smaller than RGB")
	}
	return PixelSlots{Pix: pix, Channels: channels}
}

func (p PixelSlots) Len() int {
	return len(p.Pix) / p.Channels * spec.CHANNELS
}

func (p PixelSlots) index(i int) int {
	return i/spec.CHANNELS*p.Channels + i%spec.CHANNELS
}

func (p PixelSlots) Bit(i int) byte {
	return p.Pix[p.index(i)] & 1
}

func (p PixelSlots) SetBit(i int, bit byte) {
	k := p.index(i)
	p.Pix[k] = p.Pix[k]&0xFE | bit&1
}

// SampleSlots exposes interleaved signed 16-bit PCM samples, one slot each.
type SampleSlots []int16

func (s SampleSlots) Len() int { return len(s) }

func (s SampleSlots) Bit(i int) byte {
	return byte(s[i] & 1)
}

func (s SampleSlots) SetBit(i int, bit byte) {
	s[i] = s[i]&^1 | int16(bit&1)
}
