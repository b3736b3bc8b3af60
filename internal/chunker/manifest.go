package chunker

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const manifestVersion = "1"

// Manifest describes a chunked carrier. It travels as the TXT value of
// the m-<id> record; the message ID itself is taken from the record name.
type Manifest struct {
	MessageID    string
	TotalChunks  int // data + parity
	DataChunks   int
	StripeWidth  int
	Parity       int
	Size         int    // bytes carried by the data chunks, before padding
	OriginalSize int    // carrier file size after decompression
	Checksum     uint32 // CRC-32 of the carrier file
	Compressed   bool
	Encoding     string
	CreatedAt    time.Time
}

// String renders the manifest as a TXT value:
// VERSION:TOTAL:DATA:WIDTH:PARITY:SIZE:ORIGINAL:CRC32:FLAGS:ENCODING:TIMESTAMP
func (m Manifest) String() string {
	flags := "-"
	if m.Compressed {
		flags = "z"
	}
	return strings.Join([]string{
		manifestVersion,
		strconv.Itoa(m.TotalChunks),
		strconv.Itoa(m.DataChunks),
		strconv.Itoa(m.StripeWidth),
		strconv.Itoa(m.Parity),
		strconv.Itoa(m.Size),
		strconv.Itoa(m.OriginalSize),
		fmt.Sprintf("%08x", m.Checksum),
		flags,
		m.Encoding,
		strconv.FormatInt(m.CreatedAt.Unix(), 10),
	}, ":")
}

// ParseManifest parses a TXT value produced by Manifest.String
func ParseManifest(id, value string) (Manifest, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 11 || parts[0] != manifestVersion {
		return Manifest{}, fmt.Errorf("%w: %q", ErrInvalidManifest, value)
	}

	ints := make([]int, 6)
	for i := range ints {
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: field %d: %v", ErrInvalidManifest, i+1, err)
		}
		ints[i] = n
	}

	crc, err := strconv.ParseUint(parts[7], 16, 32)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: checksum: %v", ErrInvalidManifest, err)
	}
	ts, err := strconv.ParseInt(parts[10], 10, 64)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidManifest, err)
	}

	m := Manifest{
		MessageID:    strings.ToLower(id),
		TotalChunks:  ints[0],
		DataChunks:   ints[1],
		StripeWidth:  ints[2],
		Parity:       ints[3],
		Size:         ints[4],
		OriginalSize: ints[5],
		Checksum:     uint32(crc),
		Compressed:   parts[8] == "z",
		Encoding:     parts[9],
		CreatedAt:    time.Unix(ts, 0),
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks that the chunk counts are consistent
func (m Manifest) Validate() error {
	if _, err := ParseID(m.MessageID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Encoding != ENCODE_BASE32 && m.Encoding != ENCODE_HEX {
		return fmt.Errorf("%w: unknown encoding %q", ErrInvalidManifest, m.Encoding)
	}
	if m.StripeWidth <= 0 || m.Parity < 0 || m.StripeWidth+m.Parity > MAX_SHARDS {
		return fmt.Errorf("%w: width=%d parity=%d", ErrInvalidManifest, m.StripeWidth, m.Parity)
	}
	if m.DataChunks < 0 || m.Size < 0 || m.OriginalSize < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidManifest)
	}
	// Sequences are uint16 on the wire
	if m.TotalChunks > math.MaxUint16 || m.DataChunks > math.MaxUint16 {
		return fmt.Errorf("%w: %d chunks (max %d)", ErrInvalidManifest, m.TotalChunks, math.MaxUint16)
	}

	stripes := (m.DataChunks + m.StripeWidth - 1) / m.StripeWidth
	if m.TotalChunks != m.DataChunks+stripes*m.Parity {
		return fmt.Errorf("%w: total %d does not match %d data chunks with %d parity per stripe",
			ErrInvalidManifest, m.TotalChunks, m.DataChunks, m.Parity)
	}
	if m.Size > m.DataChunks*payloadSizeFor(m.Encoding) {
		return fmt.Errorf("%w: size %d exceeds data chunks", ErrInvalidManifest, m.Size)
	}
	return nil
}

// Config returns the chunker configuration that produced the manifest
func (m Manifest) Config() ChunkerConfig {
	return ChunkerConfig{
		Encoding:    m.Encoding,
		Compression: m.Compressed,
		StripeWidth: m.StripeWidth,
		Parity:      m.Parity,
	}
}

// IDString renders a message ID as 32 lowercase hex characters, which is
// a valid DNS label.
func IDString(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

// ParseID parses the output of IDString
func ParseID(s string) (uuid.UUID, error) {
	if len(s) != 32 {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
