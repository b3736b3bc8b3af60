package chunker

import (
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
)

// ================================================================================
// DNS TXT Record Chunking
// ================================================================================
//
// A stego carrier file is split into fixed-size data chunks. Each chunk gets
// a 28-byte header and is encoded into a single TXT string (max 255 bytes).
// Data chunks are grouped into stripes of StripeWidth; each stripe carries
// Parity extra Reed-Solomon chunks so a receiver can lose up to Parity
// answers per stripe and still rebuild the file.
//
// Wire format of one chunk:
//   [MAGIC(4)][MSGID(16)][SEQ(2)][TOTAL(2)][CRC32(4)][PAYLOAD]
// ================================================================================

const (
	// MAX_DNS_STRING_SIZE is the DNS limit for a single TXT string
	MAX_DNS_STRING_SIZE = 255

	// SAFE_CHUNK_SIZE leaves room for resolvers that trim the limit
	SAFE_CHUNK_SIZE = 250

	// METADATA_OVERHEAD: Magic(4) + MessageID(16) + Sequence(2) + Total(2) + Checksum(4)
	METADATA_OVERHEAD = 28

	// PAYLOAD_PER_CHUNK_B32: (128 + 28) bytes encode to 250 base32 chars
	PAYLOAD_PER_CHUNK_B32 = 128

	// PAYLOAD_PER_CHUNK_HEX: (97 + 28) bytes encode to 250 hex chars
	PAYLOAD_PER_CHUNK_HEX = SAFE_CHUNK_SIZE/2 - METADATA_OVERHEAD

	ENCODE_HEX    = "hex"
	ENCODE_BASE32 = "base32"

	CHUNK_MAGIC = 0x53544743 // "STGC"

	DEFAULT_STRIPE_WIDTH = 10

	// Reed-Solomon over GF(2^8) supports at most 256 shards per stripe
	MAX_SHARDS = 256
)

var (
	ErrIncomplete      = errors.New("chunker: not enough chunks to rebuild message")
	ErrChecksum        = errors.New("chunker: checksum mismatch")
	ErrInvalidChunk    = errors.New("chunker: invalid chunk")
	ErrInvalidManifest = errors.New("chunker: invalid manifest")
	ErrInvalidConfig   = errors.New("chunker: invalid stripe configuration")
	ErrInvalidID       = errors.New("chunker: invalid message id")
	ErrInvalidName     = errors.New("chunker: record name not recognised")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ChunkMetadata is the header carried by every chunk
type ChunkMetadata struct {
	Magic       uint32    // Protocol identifier
	MessageID   uuid.UUID // Message this chunk belongs to
	Sequence    uint16    // Chunk number (0-based, parity chunks follow data chunks)
	TotalChunks uint16    // Data plus parity chunks
	Checksum    uint32    // CRC-32 (IEEE) of this chunk's payload
	PayloadSize uint16
}

// Chunk represents a single DNS-ready fragment
type Chunk struct {
	Metadata   ChunkMetadata
	Payload    []byte // Raw data (before encoding)
	Encoded    string // DNS-ready encoded string
	RecordName string // Record label, relative to the relay domain
}

// Message is a chunked carrier ready for publication
type Message struct {
	ID        uuid.UUID
	Data      []byte
	Chunks    []Chunk
	Manifest  Manifest
	Encoding  string
	CreatedAt time.Time
}

// ChunkerConfig allows customization of chunking behavior
type ChunkerConfig struct {
	Encoding    string // hex or base32
	Compression bool   // LZ4 the carrier file before splitting
	StripeWidth int    // Data chunks per Reed-Solomon stripe
	Parity      int    // Parity chunks per stripe, 0 disables recovery
}

// Chunker handles message fragmentation
type Chunker struct {
	config ChunkerConfig
	stats  ChunkingStats
	codecs map[int]*stripeCodec

	// Out receives a progress report when non-nil.
	Out io.Writer
}

// ChunkingStats tracks what the chunker produced
type ChunkingStats struct {
	MessagesChunked  int
	TotalChunks      int
	ParityChunks     int
	TotalBytes       int
	CompressionRatio float64
	LastChunkingTime time.Duration
}

// NewChunker creates a configured chunker instance
func NewChunker(config ChunkerConfig) *Chunker {
	if config.Encoding == "" {
		config.Encoding = ENCODE_BASE32
	}
	if config.StripeWidth <= 0 {
		config.StripeWidth = DEFAULT_STRIPE_WIDTH
	}

	return &Chunker{
		config: config,
		codecs: make(map[int]*stripeCodec),
	}
}

// ChunkCarrier fragments a carrier file into DNS-ready chunks plus parity
func (c *Chunker) ChunkCarrier(data []byte) (*Message, error) {
	startTime := time.Now()

	if c.config.Encoding != ENCODE_BASE32 && c.config.Encoding != ENCODE_HEX {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidConfig, c.config.Encoding)
	}
	if c.config.Parity < 0 || c.config.StripeWidth+c.config.Parity > MAX_SHARDS {
		return nil, fmt.Errorf("%w: width=%d parity=%d", ErrInvalidConfig, c.config.StripeWidth, c.config.Parity)
	}

	id := uuid.New()
	payloadSize := c.calculatePayloadSize()

	body := data
	compressed := false
	if c.config.Compression {
		if z, err := Compress(data); err == nil && len(z) < len(data) {
			body = z
			compressed = true
		}
	}

	dataChunks := c.calculateTotalChunks(len(body), payloadSize)
	stripes := c.calculateTotalChunks(dataChunks, c.config.StripeWidth)
	parityChunks := stripes * c.config.Parity
	totalChunks := dataChunks + parityChunks

	if totalChunks > math.MaxUint16 {
		return nil, fmt.Errorf("message too large: requires %d chunks (max %d)",
			totalChunks, math.MaxUint16)
	}

	c.printf("\n📊 CHUNKING ANALYSIS:\n")
	c.printf("   Data size: %d bytes\n", len(data))
	if compressed {
		c.printf("   Compressed: %d bytes (LZ4)\n", len(body))
	}
	c.printf("   Encoding: %s\n", c.config.Encoding)
	c.printf("   Payload per chunk: %d bytes\n", payloadSize)
	c.printf("   Data chunks: %d\n", dataChunks)
	c.printf("   Parity chunks: %d (%d per stripe of %d)\n", parityChunks, c.config.Parity, c.config.StripeWidth)

	// Every data shard is padded to payloadSize; RS needs equal-size shards.
	shards := make([][]byte, dataChunks, totalChunks)
	for i := range shards {
		shard := make([]byte, payloadSize)
		copy(shard, body[i*payloadSize:])
		shards[i] = shard
	}

	for s := 0; s < stripes && c.config.Parity > 0; s++ {
		lo, hi := c.stripeBounds(s, dataChunks)
		parity, err := c.encodeStripe(shards[lo:hi], payloadSize)
		if err != nil {
			return nil, err
		}
		shards = append(shards, parity...)
	}

	msg := &Message{
		ID:        id,
		Data:      data,
		Chunks:    make([]Chunk, 0, totalChunks),
		Encoding:  c.config.Encoding,
		CreatedAt: time.Now(),
		Manifest: Manifest{
			MessageID:    IDString(id),
			TotalChunks:  totalChunks,
			DataChunks:   dataChunks,
			StripeWidth:  c.config.StripeWidth,
			Parity:       c.config.Parity,
			Size:         len(body),
			OriginalSize: len(data),
			Checksum:     crc32.ChecksumIEEE(data),
			Compressed:   compressed,
			Encoding:     c.config.Encoding,
			CreatedAt:    time.Now().Truncate(time.Second),
		},
	}

	for seq, shard := range shards {
		msg.Chunks = append(msg.Chunks, c.createChunk(id, seq, uint16(totalChunks), shard))
	}

	c.stats.MessagesChunked++
	c.stats.TotalChunks += totalChunks
	c.stats.ParityChunks += parityChunks
	c.stats.TotalBytes += len(data)
	if len(data) > 0 {
		c.stats.CompressionRatio = float64(len(body)) / float64(len(data))
	}
	c.stats.LastChunkingTime = time.Since(startTime)

	c.printf("   Overhead: %.1f%%\n", c.calculateOverhead(len(data), totalChunks))
	c.printf("   Chunking completed in: %v\n", c.stats.LastChunkingTime)

	return msg, nil
}

// createChunk creates a single chunk with all metadata
func (c *Chunker) createChunk(id uuid.UUID, sequence int, total uint16, payload []byte) Chunk {
	metadata := ChunkMetadata{
		Magic:       CHUNK_MAGIC,
		MessageID:   id,
		Sequence:    uint16(sequence),
		TotalChunks: total,
		Checksum:    crc32.ChecksumIEEE(payload),
		PayloadSize: uint16(len(payload)),
	}

	return Chunk{
		Metadata:   metadata,
		Payload:    payload,
		Encoded:    c.encodeChunk(metadata, payload),
		RecordName: ChunkLabel(sequence, IDString(id)),
	}
}

// encodeChunk combines metadata and payload into a DNS-safe string
func (c *Chunker) encodeChunk(metadata ChunkMetadata, payload []byte) string {
	raw := make([]byte, METADATA_OVERHEAD, METADATA_OVERHEAD+len(payload))

	binary.BigEndian.PutUint32(raw[0:4], metadata.Magic)
	copy(raw[4:20], metadata.MessageID[:])
	binary.BigEndian.PutUint16(raw[20:22], metadata.Sequence)
	binary.BigEndian.PutUint16(raw[22:24], metadata.TotalChunks)
	binary.BigEndian.PutUint32(raw[24:28], metadata.Checksum)
	raw = append(raw, payload...)

	if c.config.Encoding == ENCODE_HEX {
		return hex.EncodeToString(raw)
	}
	return b32.EncodeToString(raw)
}

// DecodeChunk parses a TXT string back into a Chunk. The checksum is not
// verified here; see ValidateChunk.
func (c *Chunker) DecodeChunk(encoded string) (*Chunk, error) {
	var raw []byte
	var err error

	switch c.config.Encoding {
	case ENCODE_HEX:
		raw, err = hex.DecodeString(encoded)
	default:
		raw, err = b32.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrInvalidChunk, err)
	}

	if len(raw) < METADATA_OVERHEAD {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidChunk, len(raw))
	}

	metadata := ChunkMetadata{
		Magic:       binary.BigEndian.Uint32(raw[0:4]),
		Sequence:    binary.BigEndian.Uint16(raw[20:22]),
		TotalChunks: binary.BigEndian.Uint16(raw[22:24]),
		Checksum:    binary.BigEndian.Uint32(raw[24:28]),
	}
	if metadata.Magic != CHUNK_MAGIC {
		return nil, fmt.Errorf("%w: magic %08x", ErrInvalidChunk, metadata.Magic)
	}
	copy(metadata.MessageID[:], raw[4:20])

	payload := raw[METADATA_OVERHEAD:]
	metadata.PayloadSize = uint16(len(payload))

	return &Chunk{
		Metadata:   metadata,
		Payload:    payload,
		Encoded:    encoded,
		RecordName: ChunkLabel(int(metadata.Sequence), IDString(metadata.MessageID)),
	}, nil
}

// ValidateChunk checks magic, bounds, size and checksum
func (c *Chunker) ValidateChunk(chunk *Chunk) error {
	if chunk.Metadata.Magic != CHUNK_MAGIC {
		return fmt.Errorf("%w: magic %08x", ErrInvalidChunk, chunk.Metadata.Magic)
	}

	if chunk.Metadata.Sequence >= chunk.Metadata.TotalChunks {
		return fmt.Errorf("%w: sequence %d out of bounds (total: %d)",
			ErrInvalidChunk, chunk.Metadata.Sequence, chunk.Metadata.TotalChunks)
	}

	if len(chunk.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidChunk)
	}

	if maxPayload := c.calculatePayloadSize(); len(chunk.Payload) > maxPayload {
		return fmt.Errorf("%w: payload too large: %d > %d", ErrInvalidChunk, len(chunk.Payload), maxPayload)
	}

	if calculated := crc32.ChecksumIEEE(chunk.Payload); calculated != chunk.Metadata.Checksum {
		return fmt.Errorf("%w: chunk %d expected %08x, got %08x",
			ErrChecksum, chunk.Metadata.Sequence, chunk.Metadata.Checksum, calculated)
	}

	return nil
}

// ================================================================================
// REASSEMBLY
// ================================================================================

// Reassemble rebuilds the carrier file described by manifest. Chunks may
// arrive in any order; duplicates and chunks that fail validation are
// treated as lost. Lost data chunks are rebuilt from their stripe's parity.
func (c *Chunker) Reassemble(manifest Manifest, chunks []Chunk) ([]byte, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	if manifest.Encoding != c.config.Encoding {
		return nil, fmt.Errorf("%w: encoding %s, chunker uses %s", ErrInvalidManifest, manifest.Encoding, c.config.Encoding)
	}
	id, err := ParseID(manifest.MessageID)
	if err != nil {
		return nil, err
	}

	c.printf("\n🔧 REASSEMBLY PROCESS:\n")
	c.printf("   Chunks received: %d of %d\n", len(chunks), manifest.TotalChunks)

	payloadSize := c.calculatePayloadSize()
	shards := make([][]byte, manifest.TotalChunks)
	dropped := 0

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.Metadata.MessageID != id {
			return nil, fmt.Errorf("%w: mixed messages detected: %s vs %s",
				ErrInvalidChunk, manifest.MessageID, IDString(chunk.Metadata.MessageID))
		}
		if err := c.ValidateChunk(chunk); err != nil ||
			int(chunk.Metadata.TotalChunks) != manifest.TotalChunks ||
			len(chunk.Payload) != payloadSize {
			dropped++
			continue
		}
		shards[chunk.Metadata.Sequence] = chunk.Payload
	}

	if dropped > 0 {
		c.printf("   ⚠️  Dropped %d invalid chunks\n", dropped)
	}

	stripes := c.calculateTotalChunks(manifest.DataChunks, manifest.StripeWidth)
	for s := 0; s < stripes; s++ {
		lo, hi := stripeBounds(s, manifest.StripeWidth, manifest.DataChunks)

		missing := missingIn(shards[lo:hi])
		if len(missing) == 0 {
			continue
		}
		if manifest.Parity == 0 {
			return nil, fmt.Errorf("%w: missing chunks %v", ErrIncomplete, offset(missing, lo))
		}

		plo := manifest.DataChunks + s*manifest.Parity
		stripe := make([][]byte, 0, hi-lo+manifest.Parity)
		stripe = append(stripe, shards[lo:hi]...)
		stripe = append(stripe, shards[plo:plo+manifest.Parity]...)

		if err := c.reconstructStripe(stripe, hi-lo, manifest.Parity); err != nil {
			return nil, fmt.Errorf("%w: stripe %d missing chunks %v", err, s, offset(missing, lo))
		}
		copy(shards[lo:hi], stripe[:hi-lo])
		c.printf("   🩹 Stripe %d: rebuilt %d chunks from parity\n", s, len(missing))
	}

	body := make([]byte, 0, manifest.DataChunks*payloadSize)
	for _, shard := range shards[:manifest.DataChunks] {
		body = append(body, shard...)
	}
	if manifest.Size > len(body) {
		return nil, fmt.Errorf("%w: size %d exceeds %d data bytes", ErrInvalidManifest, manifest.Size, len(body))
	}
	body = body[:manifest.Size]

	if manifest.Compressed {
		body, err = Decompress(body, manifest.OriginalSize)
		if err != nil {
			return nil, err
		}
	}

	if len(body) != manifest.OriginalSize || crc32.ChecksumIEEE(body) != manifest.Checksum {
		return nil, fmt.Errorf("%w: reassembled message does not match manifest", ErrChecksum)
	}

	c.printf("   ✅ Successfully reassembled %d bytes\n", len(body))
	return body, nil
}

// ================================================================================
// UTILITY FUNCTIONS
// ================================================================================

// calculatePayloadSize determines bytes per chunk based on encoding
func (c *Chunker) calculatePayloadSize() int {
	return payloadSizeFor(c.config.Encoding)
}

func payloadSizeFor(encoding string) int {
	if encoding == ENCODE_HEX {
		return PAYLOAD_PER_CHUNK_HEX
	}
	return PAYLOAD_PER_CHUNK_B32
}

// calculateTotalChunks is ceiling division
func (c *Chunker) calculateTotalChunks(dataSize, payloadSize int) int {
	return (dataSize + payloadSize - 1) / payloadSize
}

// calculateOverhead determines the efficiency loss from chunking
func (c *Chunker) calculateOverhead(originalSize, totalChunks int) float64 {
	if originalSize == 0 {
		return 0
	}
	wire := totalChunks * (METADATA_OVERHEAD + c.calculatePayloadSize())
	return float64(wire-originalSize) / float64(originalSize) * 100
}

func (c *Chunker) stripeBounds(stripe, dataChunks int) (int, int) {
	return stripeBounds(stripe, c.config.StripeWidth, dataChunks)
}

func stripeBounds(stripe, width, dataChunks int) (int, int) {
	lo := stripe * width
	return lo, min(lo+width, dataChunks)
}

func missingIn(shards [][]byte) []int {
	var missing []int
	for i, s := range shards {
		if s == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

func offset(idx []int, by int) []int {
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = v + by
	}
	return out
}

// GetStats returns chunking statistics
func (c *Chunker) GetStats() ChunkingStats {
	return c.stats
}

func (c *Chunker) printf(format string, a ...any) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, format, a...)
	}
}
