package lsb

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/faanross/stegocrypt/internal/payload"
)

func randomPixels(n, channels int, seed int64) []uint8 {
	r := rand.New(rand.NewSource(seed))
	pix := make([]uint8, n*channels)
	r.Read(pix)
	return pix
}

func randomSamples(n int, seed int64) SampleSlots {
	r := rand.New(rand.NewSource(seed))
	s := make(SampleSlots, n)
	for i := range s {
		s[i] = int16(r.Intn(1<<16) - 1<<15)
	}
	return s
}

func TestPixelSlotsSkipAlpha(t *testing.T) {
	pix := []uint8{
		10, 20, 30, 255,
		40, 50, 60, 128,
	}
	s := NewPixelSlots(pix, 4)

	if s.Len() != 6 {
		t.Fatalf("Len = %d, want 6", s.Len())
	}
	for i := 0; i < s.Len(); i++ {
		s.SetBit(i, 1)
	}

	want := []uint8{11, 21, 31, 255, 41, 51, 61, 128}
	if !bytes.Equal(pix, want) {
		t.Fatalf("pix = %v, want %v", pix, want)
	}
}

func TestPixelSlotsRGB(t *testing.T) {
	s := NewPixelSlots(make([]uint8, 9), 3)
	if s.Len() != 9 {
		t.Fatalf("Len = %d, want 9", s.Len())
	}
}

func TestSampleSlotsSigned(t *testing.T) {
	s := SampleSlots{-32768, -1, 0, 32767}
	s.SetBit(0, 1)
	s.SetBit(1, 0)
	s.SetBit(2, 1)
	s.SetBit(3, 0)

	want := SampleSlots{-32767, -2, 1, 32766}
	for i := range s {
		if s[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, s[i], want[i])
		}
		if s.Bit(i) != byte(want[i]&1) {
			t.Errorf("Bit(%d) = %d", i, s.Bit(i))
		}
	}
}

func TestEmbedBitOrder(t *testing.T) {
	s := make(SampleSlots, 16)
	if err := Embed(s, []byte{0xA5, 0x01}); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	want := []int16{1, 0, 1, 0, 0, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1}
	for i := range want {
		if s[i] != want[i] {
			t.Fatalf("slot %d = %d, want %d (MSB first)", i, s[i], want[i])
		}
	}
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	carriers := map[string]Slots{
		"pixels-rgba": NewPixelSlots(randomPixels(200, 4, 1), 4),
		"pixels-rgb":  NewPixelSlots(randomPixels(200, 3, 2), 3),
		"samples":     randomSamples(600, 3),
	}

	for name, s := range carriers {
		t.Run(name, func(t *testing.T) {
			if err := Embed(s, data); err != nil {
				t.Fatalf("Embed: %v", err)
			}
			if got := Extract(s, 0, len(data)); !bytes.Equal(got, data) {
				t.Fatalf("Extract = %q, want %q", got, data)
			}
		})
	}
}

func TestEmbedPreservesNonTargetBits(t *testing.T) {
	orig := randomPixels(100, 4, 7)
	pix := bytes.Clone(orig)
	s := NewPixelSlots(pix, 4)

	data := []byte{0xFF, 0x00, 0x5A}
	if err := Embed(s, data); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	used := len(data) * 8
	for i := range pix {
		if pix[i]&^1 != orig[i]&^1 {
			t.Fatalf("byte %d: high bits changed %08b -> %08b", i, orig[i], pix[i])
		}
		if i%4 == 3 && pix[i] != orig[i] {
			t.Fatalf("alpha at %d changed", i)
		}
		slot := i/4*3 + i%4
		if i%4 != 3 && slot >= used && pix[i] != orig[i] {
			t.Fatalf("slot %d past payload changed", slot)
		}
	}
}

func TestEmbedCapacity(t *testing.T) {
	t.Run("exact fit", func(t *testing.T) {
		s := randomSamples(8*5, 11)
		if err := Embed(s, []byte("12345")); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	})

	t.Run("one slot short", func(t *testing.T) {
		orig := randomSamples(8*5-1, 12)
		s := append(SampleSlots(nil), orig...)
		err := Embed(s, []byte("12345"))
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}
		for i := range s {
			if s[i] != orig[i] {
				t.Fatalf("slot %d mutated on failed embed", i)
			}
		}
	})
}

func TestCapacity(t *testing.T) {
	if got := Capacity(make(SampleSlots, 1000)); got != 125 {
		t.Errorf("Capacity = %d, want 125", got)
	}
	if got := Capacity(NewPixelSlots(make([]uint8, 4*10), 4)); got != 3 {
		t.Errorf("Capacity = %d, want 3", got)
	}
}

func TestFramedPayloadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("salt+token")},
		{"kilobyte", bytes.Repeat([]byte{0xC3}, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := randomSamples(32+8*len(tt.body), 21)

			if err := EmbedFramedPayload(s, tt.body); err != nil {
				t.Fatalf("EmbedFramedPayload: %v", err)
			}

			got, err := ReadFramedPayload(s)
			if err != nil {
				t.Fatalf("ReadFramedPayload: %v", err)
			}
			if !bytes.Equal(got, tt.body) {
				t.Fatalf("body mismatch")
			}
		})
	}
}

func TestFramedPayloadHeaderIsAllZeroForEmpty(t *testing.T) {
	s := make(SampleSlots, 32)
	for i := range s {
		s[i] = 1
	}
	if err := EmbedFramedPayload(s, nil); err != nil {
		t.Fatalf("EmbedFramedPayload: %v", err)
	}
	for i := range s {
		if s.Bit(i) != 0 {
			t.Fatalf("header slot %d = 1", i)
		}
	}
}

func TestReadFramedPayloadCarrierTooSmall(t *testing.T) {
	for _, n := range []int{0, 1, 31} {
		_, err := ReadFramedPayload(make(SampleSlots, n))
		if !errors.Is(err, ErrCarrierTooSmall) {
			t.Errorf("%d slots: expected ErrCarrierTooSmall, got %v", n, err)
		}
	}
}

func TestReadFramedPayloadTruncated(t *testing.T) {
	s := make(SampleSlots, 32+8*10)
	h, _ := payload.Header(make([]byte, 10))
	if err := Embed(s, h); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if _, err := ReadFramedPayload(s); err != nil {
		t.Fatalf("exact carrier: %v", err)
	}

	_, err := ReadFramedPayload(s[:len(s)-1])
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestReadFramedPayloadHugeHeader(t *testing.T) {
	s := make(SampleSlots, 64)
	for i := 0; i < 32; i++ {
		s[i] = 1
	}
	_, err := ReadFramedPayload(s)
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func BenchmarkEmbedPixels(b *testing.B) {
	pix := randomPixels(512*512, 4, 1)
	data := make([]byte, 64*1024)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Embed(NewPixelSlots(pix, 4), data)
	}
}
