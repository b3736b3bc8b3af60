// Package carrier reads and writes the media that hide payloads: 8-bit
// PNG/BMP images and 16-bit PCM WAV audio. It rejects unsupported shapes
// before any LSB work starts, and hands the codec a flat slot sequence.
package carrier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faanross/stegocrypt/internal/lsb"
)

var (
	ErrUnsupportedFormat      = errors.New("carrier: unsupported format")
	ErrUnsupportedSampleWidth = errors.New("carrier: only 16-bit PCM WAV is supported")
	ErrEmptyCarrier           = errors.New("carrier: carrier has no pixels or samples")
	ErrMalformedWAV           = errors.New("carrier: malformed WAV file")
)

// Kind names a carrier file format.
type Kind string

const (
	KindPNG Kind = "png"
	KindBMP Kind = "bmp"
	KindWAV Kind = "wav"
)

// Carrier is anything the LSB codec can address.
type Carrier interface {
	// Slots returns a view over the carrier's own storage; writes through
	// it modify the carrier.
	Slots() lsb.Slots
	// Capacity returns the number of whole bytes the carrier can hold.
	Capacity() int
	Kind() Kind
}

// Sniff detects the format from the first bytes of a file.
func Sniff(header []byte) (Kind, error) {
	switch {
	case bytes.HasPrefix(header, []byte("\x89PNG\r\n\x1a\n")):
		return KindPNG, nil
	case bytes.HasPrefix(header, []byte("BM")):
		return KindBMP, nil
	case len(header) >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WAVE":
		return KindWAV, nil
	}
	return "", ErrUnsupportedFormat
}

// Load reads a whole carrier from r, detecting its format.
func Load(r io.Reader) (Carrier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read carrier: %w", err)
	}

	kind, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	if kind == KindWAV {
		return ReadWAV(bytes.NewReader(data))
	}
	return DecodeImage(bytes.NewReader(data))
}

// LoadFile opens and loads the carrier at path.
func LoadFile(path string) (Carrier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

// Encode writes c to w. Images are written as kind when it is an image
// kind, otherwise in their source format.
func Encode(w io.Writer, c Carrier, kind Kind) error {
	switch v := c.(type) {
	case *Image:
		if kind != KindPNG && kind != KindBMP {
			kind = v.Format
		}
		return EncodeImage(w, v, kind)
	case *Audio:
		return WriteWAV(w, v)
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedFormat, c)
}

// SaveFile writes c to path, choosing the image format from the file
// extension.
func SaveFile(path string, c Carrier) error {
	var buf bytes.Buffer
	if err := Encode(&buf, c, KindFromPath(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// KindFromPath maps a file extension to a Kind, or "" if unknown.
func KindFromPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return KindPNG
	case ".bmp":
		return KindBMP
	case ".wav", ".wave":
		return KindWAV
	}
	return ""
}
