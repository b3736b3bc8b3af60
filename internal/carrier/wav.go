package carrier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/faanross/stegocrypt/internal/lsb"
	"github.com/faanross/stegocrypt/internal/spec"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavBitsPerSample    = 16
)

// WAVFormat mirrors the fields of a RIFF "fmt " chunk.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type riffChunk struct {
	id   string
	body []byte // nil for the data chunk, rebuilt from samples on write
}

// Audio is a 16-bit PCM WAV carrier. Samples are interleaved by channel.
// Every chunk other than "data" is kept byte for byte.
type Audio struct {
	Format  WAVFormat
	Samples []int16

	chunks []riffChunk
	tail   []byte // data chunk bytes past the last whole frame
}

// ReadWAV parses a RIFF/WAVE stream.
func ReadWAV(r io.Reader) (*Audio, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}

	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformedWAV)
	}

	a := &Audio{}
	var haveFmt, haveData bool

	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8

		if size < 0 || off+size > len(data) {
			return nil, fmt.Errorf("%w: chunk %q overruns file", ErrMalformedWAV, id)
		}
		body := data[off : off+size]
		off += size + size%2 // chunks are word aligned

		switch id {
		case "fmt ":
			if err := a.parseFormat(body); err != nil {
				return nil, err
			}
			haveFmt = true
			a.chunks = append(a.chunks, riffChunk{id: id, body: body})
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformedWAV)
			}
			if haveData {
				return nil, fmt.Errorf("%w: more than one data chunk", ErrMalformedWAV)
			}
			a.parseSamples(body)
			haveData = true
			a.chunks = append(a.chunks, riffChunk{id: id})
		default:
			a.chunks = append(a.chunks, riffChunk{id: id, body: body})
		}
	}

	if !haveFmt || !haveData {
		return nil, fmt.Errorf("%w: fmt or data chunk missing", ErrMalformedWAV)
	}
	if len(a.Samples) == 0 {
		return nil, ErrEmptyCarrier
	}
	return a, nil
}

func (a *Audio) parseFormat(body []byte) error {
	if len(body) < 16 {
		return fmt.Errorf("%w: fmt chunk too short", ErrMalformedWAV)
	}

	f := WAVFormat{
		AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
		Channels:      binary.LittleEndian.Uint16(body[2:4]),
		SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
		ByteRate:      binary.LittleEndian.Uint32(body[8:12]),
		BlockAlign:    binary.LittleEndian.Uint16(body[12:14]),
		BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
	}

	if f.AudioFormat != wavFormatPCM && f.AudioFormat != wavFormatExtensible {
		return fmt.Errorf("%w: audio format %d is not PCM", ErrUnsupportedFormat, f.AudioFormat)
	}
	if f.BitsPerSample != wavBitsPerSample {
		return fmt.Errorf("%w: got %d bits per sample", ErrUnsupportedSampleWidth, f.BitsPerSample)
	}
	if f.Channels == 0 || f.BlockAlign != f.Channels*2 {
		return fmt.Errorf("%w: %d channels with block align %d", ErrMalformedWAV, f.Channels, f.BlockAlign)
	}

	a.Format = f
	return nil
}

func (a *Audio) parseSamples(body []byte) {
	frames := len(body) / int(a.Format.BlockAlign)
	n := frames * int(a.Format.Channels)

	a.Samples = make([]int16, n)
	for i := range a.Samples {
		a.Samples[i] = int16(binary.LittleEndian.Uint16(body[2*i:]))
	}
	a.tail = append([]byte(nil), body[2*n:]...)
}

// WriteWAV serialises a with its original chunk order.
func WriteWAV(w io.Writer, a *Audio) error {
	var body bytes.Buffer
	body.WriteString("WAVE")

	for _, c := range a.chunks {
		payload := c.body
		if c.id == "data" {
			payload = a.dataBytes()
		}

		var hdr [8]byte
		copy(hdr[:4], c.id)
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
		body.Write(hdr[:])
		body.Write(payload)
		if len(payload)%2 == 1 {
			body.WriteByte(0)
		}
	}

	var riff [8]byte
	copy(riff[:4], "RIFF")
	binary.LittleEndian.PutUint32(riff[4:], uint32(body.Len()))

	if _, err := w.Write(riff[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func (a *Audio) dataBytes() []byte {
	out := make([]byte, 0, 2*len(a.Samples)+len(a.tail))
	for _, s := range a.Samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return append(out, a.tail...)
}

// NewAudio builds a PCM carrier from interleaved samples.
func NewAudio(channels uint16, sampleRate uint32, samples []int16) *Audio {
	f := WAVFormat{
		AudioFormat:   wavFormatPCM,
		Channels:      channels,
		SampleRate:    sampleRate,
		BlockAlign:    channels * 2,
		ByteRate:      sampleRate * uint32(channels) * 2,
		BitsPerSample: wavBitsPerSample,
	}

	fmtBody := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtBody[0:2], f.AudioFormat)
	binary.LittleEndian.PutUint16(fmtBody[2:4], f.Channels)
	binary.LittleEndian.PutUint32(fmtBody[4:8], f.SampleRate)
	binary.LittleEndian.PutUint32(fmtBody[8:12], f.ByteRate)
	binary.LittleEndian.PutUint16(fmtBody[12:14], f.BlockAlign)
	binary.LittleEndian.PutUint16(fmtBody[14:16], f.BitsPerSample)

	return &Audio{
		Format:  f,
		Samples: samples,
		chunks:  []riffChunk{{id: "fmt ", body: fmtBody}, {id: "data"}},
	}
}

// Frames returns the number of sample frames.
func (a *Audio) Frames() int { return len(a.Samples) / int(a.Format.Channels) }

func (a *Audio) Slots() lsb.Slots { return lsb.SampleSlots(a.Samples) }

func (a *Audio) Capacity() int { return len(a.Samples) / spec.BITS_PER_BYTE }

func (a *Audio) Kind() Kind { return KindWAV }

// Clone returns a copy with its own sample buffer. Non-data chunks are
// shared since nothing modifies them.
func (a *Audio) Clone() *Audio {
	c := *a
	c.Samples = append([]int16(nil), a.Samples...)
	c.chunks = append([]riffChunk(nil), a.chunks...)
	c.tail = append([]byte(nil), a.tail...)
	return &c
}
