package apng

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxChunkLength is the largest payload a PNG chunk may carry.
const MaxChunkLength = 1<<31 - 1

// maxChunkLength is the limit enforced by ChunkWriter and ChunkReader.
var maxChunkLength = MaxChunkLength

// ChunkType is a four-letter chunk type code. The case of each letter
// carries a property bit, as per the PNG spec.
type ChunkType [4]byte

var (
	typeIHDR = ChunkType{'I', 'H', 'D', 'R'}
	typeIDAT = ChunkType{'I', 'D', 'A', 'T'}
	typeIEND = ChunkType{'I', 'E', 'N', 'D'}
	typePHYs = ChunkType{'p', 'H', 'Y', 's'}
	typeACTL = ChunkType{'a', 'c', 'T', 'L'}
	typeFCTL = ChunkType{'f', 'c', 'T', 'L'}
	typeFDAT = ChunkType{'f', 'd', 'A', 'T'}
)

func (t ChunkType) String() string { return string(t[:]) }

func isLower(b byte) bool { return b&0x20 != 0 }

// IsAncillary reports whether a decoder may ignore a chunk of this type.
func (t ChunkType) IsAncillary() bool { return isLower(t[0]) }

// IsPrivate reports whether this type is outside the public registry.
func (t ChunkType) IsPrivate() bool { return isLower(t[1]) }

// IsSafeToCopy reports whether editors may copy an unknown chunk of this
// type after modifying critical chunks.
func (t ChunkType) IsSafeToCopy() bool { return isLower(t[3]) }

// Valid reports whether every byte is an ASCII letter and the reserved bit
// is clear.
func (t ChunkType) Valid() bool {
	for _, b := range t {
		if !('a' <= b && b <= 'z' || 'A' <= b && b <= 'Z') {
			return false
		}
	}
	return !isLower(t[2])
}

// Chunk is a single decoded chunk.
type Chunk struct {
	Type ChunkType
	Data []byte
}

// ChunkWriter frames chunks onto an io.Writer. The CRC is always computed
// from the bytes being written.
type ChunkWriter struct {
	w   io.Writer
	crc func(parts ...[]byte) uint32
	n   int64

	header [8]byte
	footer [4]byte
}

// NewChunkWriter returns a ChunkWriter writing to w. A nil c uses
// DefaultCompressor for checksums.
func NewChunkWriter(w io.Writer, c Compressor) *ChunkWriter {
	if c == nil {
		c = DefaultCompressor
	}
	return &ChunkWriter{w: w, crc: c.Checksum}
}

// Written returns the number of bytes written so far, including any raw
// bytes written with WriteRaw.
func (cw *ChunkWriter) Written() int64 { return cw.n }

// WriteRaw writes b unframed. It is used for the PNG signature.
func (cw *ChunkWriter) WriteRaw(b []byte) error {
	n, err := cw.w.Write(b)
	cw.n += int64(n)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return failure(ErrIOFailure, err)
}

// WriteChunk writes length, type, data and CRC. Payloads longer than
// MaxChunkLength are rejected before anything is written.
func (cw *ChunkWriter) WriteChunk(t ChunkType, data []byte) error {
	if len(data) > maxChunkLength {
		return errors.Wrapf(ErrChunkTooLarge, "%s chunk of %d bytes", t, len(data))
	}
	binary.BigEndian.PutUint32(cw.header[:4], uint32(len(data)))
	copy(cw.header[4:8], t[:])
	binary.BigEndian.PutUint32(cw.footer[:], cw.crc(cw.header[4:8], data))

	if err := cw.WriteRaw(cw.header[:]); err != nil {
		return err
	}
	if err := cw.WriteRaw(data); err != nil {
		return err
	}
	return cw.WriteRaw(cw.footer[:])
}

// ChunkReader reads framed chunks from an io.Reader and verifies their CRC.
type ChunkReader struct {
	r   io.Reader
	crc func(parts ...[]byte) uint32
	tmp [8]byte
}

// NewChunkReader returns a ChunkReader reading from r. A nil c uses
// DefaultCompressor for checksums.
func NewChunkReader(r io.Reader, c Compressor) *ChunkReader {
	if c == nil {
		c = DefaultCompressor
	}
	return &ChunkReader{r: r, crc: c.Checksum}
}

func (cr *ChunkReader) readFull(b []byte) error {
	_, err := io.ReadFull(cr.r, b)
	switch err {
	case nil:
		return nil
	case io.EOF, io.ErrUnexpectedEOF:
		return errors.WithStack(ErrTruncatedStream)
	default:
		return failure(ErrIOFailure, err)
	}
}

// ReadChunk reads the next chunk. It returns io.EOF only when the stream
// ends cleanly between chunks.
func (cr *ChunkReader) ReadChunk() (Chunk, error) {
	n, err := io.ReadFull(cr.r, cr.tmp[:8])
	if err == io.EOF && n == 0 {
		return Chunk{}, io.EOF
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return Chunk{}, errors.Wrap(ErrTruncatedStream, "chunk header")
		}
		return Chunk{}, failure(ErrIOFailure, err)
	}
	length := binary.BigEndian.Uint32(cr.tmp[:4])
	var c Chunk
	copy(c.Type[:], cr.tmp[4:8])
	if !c.Type.Valid() {
		return Chunk{}, invalidf("bad chunk type %q", c.Type[:])
	}
	if uint64(length) > uint64(maxChunkLength) {
		return Chunk{}, errors.Wrapf(ErrChunkTooLarge, "%s chunk declares %d bytes", c.Type, length)
	}

	// Grow the buffer as bytes arrive rather than trusting the declared length.
	var buf bytes.Buffer
	got, err := io.Copy(&buf, io.LimitReader(cr.r, int64(length)))
	if err != nil {
		return Chunk{}, failure(ErrIOFailure, err)
	}
	if got < int64(length) {
		return Chunk{}, errors.Wrapf(ErrTruncatedStream, "%s chunk: got %d of %d bytes", c.Type, got, length)
	}
	c.Data = buf.Bytes()

	if err := cr.readFull(cr.tmp[:4]); err != nil {
		return Chunk{}, errors.Wrapf(err, "%s chunk checksum", c.Type)
	}
	if want, have := binary.BigEndian.Uint32(cr.tmp[:4]), cr.crc(c.Type[:], c.Data); want != have {
		return Chunk{}, errors.Wrapf(ErrChecksumMismatch, "%s chunk: stored %08x, computed %08x", c.Type, want, have)
	}
	return c, nil
}
