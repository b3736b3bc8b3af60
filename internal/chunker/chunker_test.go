package chunker

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func TestChunkCarrierRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		config ChunkerConfig
		size   int
	}{
		{"base32 single chunk", ChunkerConfig{}, 10},
		{"base32 exact chunk", ChunkerConfig{}, PAYLOAD_PER_CHUNK_B32},
		{"base32 many stripes", ChunkerConfig{Parity: 2}, 5000},
		{"hex with parity", ChunkerConfig{Encoding: ENCODE_HEX, Parity: 3, StripeWidth: 4}, 1234},
		{"compressed", ChunkerConfig{Compression: true, Parity: 1}, 3000},
		{"empty", ChunkerConfig{Parity: 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := randomBytes(tt.size, int64(tt.size))
			chk := NewChunker(tt.config)

			msg, err := chk.ChunkCarrier(data)
			if err != nil {
				t.Fatalf("ChunkCarrier: %v", err)
			}
			if len(msg.Chunks) != msg.Manifest.TotalChunks {
				t.Fatalf("got %d chunks, manifest says %d", len(msg.Chunks), msg.Manifest.TotalChunks)
			}

			got, err := chk.Reassemble(msg.Manifest, msg.Chunks)
			if err != nil {
				t.Fatalf("Reassemble: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("reassembled data differs")
			}
		})
	}
}

func TestEncodedChunksFitTXTString(t *testing.T) {
	for _, enc := range []string{ENCODE_BASE32, ENCODE_HEX} {
		msg, err := NewChunker(ChunkerConfig{Encoding: enc, Parity: 2}).ChunkCarrier(randomBytes(2000, 1))
		if err != nil {
			t.Fatalf("%s: %v", enc, err)
		}
		for _, c := range msg.Chunks {
			if len(c.Encoded) > SAFE_CHUNK_SIZE {
				t.Fatalf("%s chunk %d is %d chars", enc, c.Metadata.Sequence, len(c.Encoded))
			}
		}
		if n := len(msg.Manifest.String()); n > MAX_DNS_STRING_SIZE {
			t.Fatalf("%s manifest is %d chars", enc, n)
		}
	}
}

func TestCompressionOnlyWhenSmaller(t *testing.T) {
	chk := NewChunker(ChunkerConfig{Compression: true})

	flat, err := chk.ChunkCarrier(bytes.Repeat([]byte{0x42}, 4096))
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}
	if !flat.Manifest.Compressed || flat.Manifest.Size >= 4096 {
		t.Fatalf("repetitive data not compressed: %+v", flat.Manifest)
	}

	noise, err := chk.ChunkCarrier(randomBytes(4096, 2))
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}
	if noise.Manifest.Compressed {
		t.Fatalf("random data should be sent uncompressed")
	}
}

func drop(chunks []Chunk, seqs ...int) []Chunk {
	skip := make(map[int]bool)
	for _, s := range seqs {
		skip[s] = true
	}
	var out []Chunk
	for _, c := range chunks {
		if !skip[int(c.Metadata.Sequence)] {
			out = append(out, c)
		}
	}
	return out
}

func TestReassembleRecoversLostChunks(t *testing.T) {
	data := randomBytes(25*PAYLOAD_PER_CHUNK_B32+17, 3)
	chk := NewChunker(ChunkerConfig{StripeWidth: 10, Parity: 2})

	msg, err := chk.ChunkCarrier(data)
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}
	// 26 data chunks in stripes of 10, 10, 6; parity chunks 26..31
	if msg.Manifest.DataChunks != 26 || msg.Manifest.TotalChunks != 32 {
		t.Fatalf("unexpected layout %+v", msg.Manifest)
	}

	tests := []struct {
		name string
		lost []int
	}{
		{"two data chunks in one stripe", []int{0, 9}},
		{"one per stripe", []int{3, 14, 25}},
		{"data and parity", []int{20, 26}},
		{"last short stripe", []int{24, 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chk.Reassemble(msg.Manifest, drop(msg.Chunks, tt.lost...))
			if err != nil {
				t.Fatalf("Reassemble: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("recovered data differs")
			}
		})
	}
}

func TestReassembleIncomplete(t *testing.T) {
	chk := NewChunker(ChunkerConfig{StripeWidth: 5, Parity: 1})
	msg, err := chk.ChunkCarrier(randomBytes(1000, 4))
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}

	_, err = chk.Reassemble(msg.Manifest, drop(msg.Chunks, 0, 1))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}

	plain := NewChunker(ChunkerConfig{})
	msg, err = plain.ChunkCarrier(randomBytes(1000, 5))
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}
	_, err = plain.Reassemble(msg.Manifest, drop(msg.Chunks, 2))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete without parity, got %v", err)
	}
}

func TestReassembleTreatsCorruptChunkAsLost(t *testing.T) {
	data := randomBytes(900, 6)
	chk := NewChunker(ChunkerConfig{Parity: 1})
	msg, err := chk.ChunkCarrier(data)
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}

	chunks := append([]Chunk(nil), msg.Chunks...)
	bad := append([]byte(nil), chunks[2].Payload...)
	bad[0] ^= 0xFF
	chunks[2].Payload = bad

	if err := chk.ValidateChunk(&chunks[2]); !errors.Is(err, ErrChecksum) {
		t.Fatalf("ValidateChunk: expected ErrChecksum, got %v", err)
	}

	got, err := chk.Reassemble(msg.Manifest, chunks)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("recovered data differs")
	}
}

func TestReassembleOutOfOrderWithDuplicates(t *testing.T) {
	data := randomBytes(700, 7)
	chk := NewChunker(ChunkerConfig{})
	msg, err := chk.ChunkCarrier(data)
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}

	var shuffled []Chunk
	for i := len(msg.Chunks) - 1; i >= 0; i-- {
		shuffled = append(shuffled, msg.Chunks[i], msg.Chunks[i])
	}

	got, err := chk.Reassemble(msg.Manifest, shuffled)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Reassemble: %v", err)
	}
}

func TestReassembleMixedMessages(t *testing.T) {
	chk := NewChunker(ChunkerConfig{})
	a, _ := chk.ChunkCarrier(randomBytes(300, 8))
	b, _ := chk.ChunkCarrier(randomBytes(300, 9))

	_, err := chk.Reassemble(a.Manifest, append(a.Chunks, b.Chunks[0]))
	if !errors.Is(err, ErrInvalidChunk) {
		t.Fatalf("expected ErrInvalidChunk, got %v", err)
	}
}

func TestDecodeChunk(t *testing.T) {
	for _, enc := range []string{ENCODE_BASE32, ENCODE_HEX} {
		chk := NewChunker(ChunkerConfig{Encoding: enc})
		msg, err := chk.ChunkCarrier(randomBytes(300, 10))
		if err != nil {
			t.Fatalf("ChunkCarrier: %v", err)
		}

		for _, want := range msg.Chunks {
			got, err := chk.DecodeChunk(want.Encoded)
			if err != nil {
				t.Fatalf("%s DecodeChunk: %v", enc, err)
			}
			if got.Metadata != want.Metadata || !bytes.Equal(got.Payload, want.Payload) {
				t.Fatalf("%s chunk %d mismatch", enc, want.Metadata.Sequence)
			}
			if got.RecordName != want.RecordName {
				t.Fatalf("record name %q, want %q", got.RecordName, want.RecordName)
			}
			if err := chk.ValidateChunk(got); err != nil {
				t.Fatalf("ValidateChunk: %v", err)
			}
		}
	}
}

func TestDecodeChunkRejects(t *testing.T) {
	chk := NewChunker(ChunkerConfig{})
	tests := map[string]string{
		"not base32": "!!!!",
		"too short":  b32.EncodeToString(make([]byte, METADATA_OVERHEAD-1)),
		"bad magic":  b32.EncodeToString(make([]byte, METADATA_OVERHEAD+4)),
	}
	for name, in := range tests {
		if _, err := chk.DecodeChunk(in); !errors.Is(err, ErrInvalidChunk) {
			t.Errorf("%s: expected ErrInvalidChunk, got %v", name, err)
		}
	}
}

func TestChunkCarrierInvalidConfig(t *testing.T) {
	tests := map[string]ChunkerConfig{
		"too many shards":  {StripeWidth: 200, Parity: 57},
		"negative parity":  {Parity: -1},
		"unknown encoding": {Encoding: "foo"},
	}
	for name, cfg := range tests {
		if _, err := NewChunker(cfg).ChunkCarrier([]byte("x")); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestDecompressLimit(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 1<<20)
	z, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	got, err := Decompress(z, len(data))
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Decompress at exact limit: %d bytes, %v", len(got), err)
	}
	if _, err := Decompress(z, 4096); !errors.Is(err, ErrDecompressionFailed) {
		t.Fatalf("expected ErrDecompressionFailed over limit, got %v", err)
	}
	if _, err := Decompress(z, -1); !errors.Is(err, ErrDecompressionFailed) {
		t.Fatalf("expected ErrDecompressionFailed for negative limit, got %v", err)
	}
}

func TestReassembleBoundsDecompression(t *testing.T) {
	chk := NewChunker(ChunkerConfig{Compression: true})
	msg, err := chk.ChunkCarrier(bytes.Repeat([]byte{0x42}, 64*1024))
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}
	if !msg.Manifest.Compressed {
		t.Fatalf("expected a compressed message")
	}

	manifest := msg.Manifest
	manifest.OriginalSize = 1000
	if _, err := chk.Reassemble(manifest, msg.Chunks); !errors.Is(err, ErrDecompressionFailed) {
		t.Fatalf("expected ErrDecompressionFailed, got %v", err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	msg, err := NewChunker(ChunkerConfig{Compression: true, Parity: 2}).ChunkCarrier(bytes.Repeat([]byte("abc"), 2000))
	if err != nil {
		t.Fatalf("ChunkCarrier: %v", err)
	}

	got, err := ParseManifest(msg.Manifest.MessageID, msg.Manifest.String())
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	want := msg.Manifest
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt, want.CreatedAt = time.Time{}, time.Time{}
	if got != want {
		t.Fatalf("manifest mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestParseManifestRejects(t *testing.T) {
	id := IDString(uuid.New())
	tests := map[string]string{
		"empty":           "",
		"wrong version":   "9:2:2:10:0:10:10:00000000:-:base32:0",
		"bad total":       "1:5:2:10:0:10:10:00000000:-:base32:0",
		"bad encoding":    "1:2:2:10:0:10:10:00000000:-:base64:0",
		"size too big":    "1:1:1:10:0:500:500:00000000:-:base32:0",
		"bad checksum":    "1:2:2:10:0:10:10:zz:-:base32:0",
		"too few fields":  "1:2:2",
		"too many chunks": "1:2000000000:2000000000:10:0:0:0:00000000:-:base32:0",
	}
	for name, value := range tests {
		if _, err := ParseManifest(id, value); !errors.Is(err, ErrInvalidManifest) {
			t.Errorf("%s: expected ErrInvalidManifest, got %v", name, err)
		}
	}

	if _, err := ParseManifest("not-an-id", "1:2:2:10:0:10:10:00000000:-:base32:0"); !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("bad id: expected ErrInvalidManifest, got %v", err)
	}
}

func TestIDString(t *testing.T) {
	id := uuid.New()
	s := IDString(id)
	if len(s) != 32 || strings.ToLower(s) != s || strings.Contains(s, "-") {
		t.Fatalf("IDString = %q", s)
	}
	back, err := ParseID(s)
	if err != nil || back != id {
		t.Fatalf("ParseID(%q) = %v, %v", s, back, err)
	}
	if _, err := ParseID(id.String()); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("hyphenated id should be rejected, got %v", err)
	}
}

func BenchmarkChunkCarrier(b *testing.B) {
	data := randomBytes(64*1024, 11)
	chk := NewChunker(ChunkerConfig{Parity: 2})

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := chk.ChunkCarrier(data); err != nil {
			b.Fatal(err)
		}
	}
}
