package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("chunker: compression failed")
	ErrDecompressionFailed = errors.New("chunker: decompression failed")
)

// compressorPool reuses LZ4 writers between messages
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// Compress LZ4-compresses a carrier file. BMP and WAV carriers usually
// shrink; PNG is already deflated and is sent as is.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)
	_ = w.Apply(lz4.CompressionLevelOption(lz4.Level4))

	if _, err := w.Write(data); err != nil {
		return nil, ErrCompressionFailed
	}
	if err := w.Close(); err != nil {
		return nil, ErrCompressionFailed
	}

	return buf.Bytes(), nil
}

// Decompress reverses Compress. Output longer than limit bytes is an
// error; inflation stops one byte past the limit.
func Decompress(data []byte, limit int) ([]byte, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrDecompressionFailed, limit)
	}

	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	readLimit := int64(limit)
	if readLimit < math.MaxInt64 {
		readLimit++
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, readLimit))
	if err != nil {
		return nil, ErrDecompressionFailed
	}
	if n > int64(limit) {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrDecompressionFailed, limit)
	}
	return buf.Bytes(), nil
}
