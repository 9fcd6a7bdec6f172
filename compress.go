package apng

import (
	"bytes"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// CompressionLevel tells the encoding algorithm how to trade compression speed
// for image size.
type CompressionLevel int

const (
	DefaultCompression CompressionLevel = 0
	NoCompression      CompressionLevel = -1
	BestSpeed          CompressionLevel = -2
	BestCompression    CompressionLevel = -3

	// Positive CompressionLevel values 1 through 9 are passed to zlib as a
	// numeric compression level.
)

func (l CompressionLevel) zlib() int {
	switch {
	case l == DefaultCompression:
		return zlib.DefaultCompression
	case l == NoCompression:
		return zlib.NoCompression
	case l == BestSpeed:
		return zlib.BestSpeed
	case l == BestCompression:
		return zlib.BestCompression
	case l >= 1 && l <= 9:
		return int(l)
	default:
		return zlib.DefaultCompression
	}
}

// Compressor is the deflate and checksum backend used by the Encoder and
// Decoder. Implementations must be safe for concurrent use.
type Compressor interface {
	// Compress returns p as a zlib stream.
	Compress(p []byte, level CompressionLevel) ([]byte, error)
	// Decompress inflates the zlib stream p. It fails if the output would
	// exceed maxSize bytes.
	Decompress(p []byte, maxSize int) ([]byte, error)
	// Checksum returns the CRC-32 (IEEE) of the concatenation of parts.
	Checksum(parts ...[]byte) uint32
}

// DefaultCompressor is the zlib backend used when an Encoder or Decoder has
// no Compressor set.
var DefaultCompressor Compressor = &zlibCompressor{}

type zlibCompressor struct {
	// writers holds one *sync.Pool of *zlib.Writer per zlib level.
	writers sync.Map
}

func (z *zlibCompressor) pool(level int) *sync.Pool {
	if p, ok := z.writers.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := z.writers.LoadOrStore(level, &sync.Pool{})
	return p.(*sync.Pool)
}

func (z *zlibCompressor) Compress(p []byte, level CompressionLevel) ([]byte, error) {
	lvl := level.zlib()
	pool := z.pool(lvl)

	var buf bytes.Buffer
	zw, _ := pool.Get().(*zlib.Writer)
	if zw == nil {
		var err error
		zw, err = zlib.NewWriterLevel(&buf, lvl)
		if err != nil {
			return nil, errors.Wrap(err, "zlib writer")
		}
	} else {
		zw.Reset(&buf)
	}
	if _, err := zw.Write(p); err != nil {
		return nil, errors.Wrap(err, "zlib write")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "zlib close")
	}
	pool.Put(zw)
	return buf.Bytes(), nil
}

func (z *zlibCompressor) Decompress(p []byte, maxSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, errors.Wrap(err, "zlib reader")
	}
	defer zr.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(zr, int64(maxSize)+1))
	if err != nil {
		return nil, errors.Wrap(err, "zlib read")
	}
	if n > int64(maxSize) {
		return nil, errors.Errorf("inflated data exceeds %d bytes", maxSize)
	}
	return buf.Bytes(), nil
}

func (z *zlibCompressor) Checksum(parts ...[]byte) uint32 {
	var crc uint32
	for _, p := range parts {
		crc = crc32.Update(crc, crc32.IEEETable, p)
	}
	return crc
}
