// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package apng

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"
)

// ColorType is the type of color of the image, per the PNG spec.
type ColorType uint8

const sizeOfColorType = 1

const (
	ColorType_TrueColorAlpha = ColorType(6)
)

// BitDepth is the bit depth of the image, as per the PNG spec.
type BitDepth uint8

const sizeOfBitDepth = 1

const (
	BitDepth_8 = BitDepth(8)
)

// CompressionMethod is the compression method, as per the PNG spec.
type CompressionMethod uint8

const sizeOfCompressionMethod = 1

const (
	CompressionMethod_Default = CompressionMethod(0)
)

// FilterMethod is the filter method, as per the PNG spec.
type FilterMethod uint8

const sizeOfFilterMethod = 1

const (
	FilterMethod_Default = FilterMethod(0)
)

// InterlaceMethod is the interlace method, as per the PNG spec.
type InterlaceMethod uint8

const sizeOfInterlaceMethod = 1

const (
	InterlaceMethod_NonInterlaced = InterlaceMethod(0)
)

const sizeOfIHDR = sizeOfUint32*2 + sizeOfBitDepth + sizeOfColorType + sizeOfCompressionMethod + sizeOfFilterMethod + sizeOfInterlaceMethod

// Chunk_IHDR is the image header chunk, as per the PNG spec.
type Chunk_IHDR struct {
	Width             uint32
	Height            uint32
	BitDepth          BitDepth
	ColorType         ColorType
	CompressionMethod CompressionMethod
	FilterMethod      FilterMethod
	InterlaceMethod   InterlaceMethod
}

// newChunk_IHDR returns the only header this package writes: 8-bit RGBA,
// deflate, adaptive filtering method 0, not interlaced.
func newChunk_IHDR(width, height int) *Chunk_IHDR {
	return &Chunk_IHDR{
		Width:     uint32(width),
		Height:    uint32(height),
		BitDepth:  BitDepth_8,
		ColorType: ColorType_TrueColorAlpha,
	}
}

func (c *Chunk_IHDR) MarshalBinary() ([]byte, error) {
	buf := make([]byte, sizeOfIHDR)
	binary.BigEndian.PutUint32(buf[0:4], c.Width)
	binary.BigEndian.PutUint32(buf[4:8], c.Height)
	buf[8] = byte(c.BitDepth)
	buf[9] = byte(c.ColorType)
	buf[10] = byte(c.CompressionMethod)
	buf[11] = byte(c.FilterMethod)
	buf[12] = byte(c.InterlaceMethod)
	return buf, nil
}

func (c *Chunk_IHDR) UnmarshalBinary(b []byte) error {
	if len(b) != sizeOfIHDR {
		return invalidf("IHDR length %d", len(b))
	}
	c.Width = binary.BigEndian.Uint32(b[0:4])
	c.Height = binary.BigEndian.Uint32(b[4:8])
	c.BitDepth = BitDepth(b[8])
	c.ColorType = ColorType(b[9])
	c.CompressionMethod = CompressionMethod(b[10])
	c.FilterMethod = FilterMethod(b[11])
	c.InterlaceMethod = InterlaceMethod(b[12])
	return nil
}

// supported reports whether this package can decode images with this header.
func (c *Chunk_IHDR) supported() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return invalidf("IHDR dimensions %dx%d", c.Width, c.Height)
	case c.BitDepth != BitDepth_8 || c.ColorType != ColorType_TrueColorAlpha:
		return invalidf("unsupported bit depth %d, color type %d", c.BitDepth, c.ColorType)
	case c.CompressionMethod != CompressionMethod_Default:
		return invalidf("unsupported compression method %d", c.CompressionMethod)
	case c.FilterMethod != FilterMethod_Default:
		return invalidf("unsupported filter method %d", c.FilterMethod)
	case c.InterlaceMethod != InterlaceMethod_NonInterlaced:
		return invalidf("unsupported interlace method %d", c.InterlaceMethod)
	}
	return nil
}

// WriteChunk encodes the IHDR chunk to cw.
func (c *Chunk_IHDR) WriteChunk(cw *ChunkWriter) error {
	b, _ := c.MarshalBinary()
	return cw.WriteChunk(typeIHDR, b)
}

// WriteTo encodes the IHDR chunk to the io.Writer.  This supports the
// io.WriterTo interface.
func (c *Chunk_IHDR) WriteTo(w io.Writer) (int64, error) {
	return writeTo(w, c.WriteChunk)
}

// Chunk_pHYs is the physical pixel dimensions chunk, as per the PNG spec.
// It is used to carry the image scale as a multiple of 72 dpi.
type Chunk_pHYs struct {
	PixelsPerUnitX uint32
	PixelsPerUnitY uint32
	Unit           uint8 // 1 means metre, 0 means unknown
}

const sizeOfPHYs = sizeOfUint32*2 + 1

// pixelsPerMetre72 is 72 dpi expressed in pixels per metre.
const pixelsPerMetre72 = 72 / 0.0254

func newChunk_pHYs(scale int) *Chunk_pHYs {
	ppm := uint32(float64(scale)*pixelsPerMetre72 + 0.5)
	return &Chunk_pHYs{PixelsPerUnitX: ppm, PixelsPerUnitY: ppm, Unit: 1}
}

// Scale returns the 72 dpi multiple this chunk describes, or 0 if it does
// not describe a whole, uniform multiple.
func (c *Chunk_pHYs) Scale() int {
	if c.Unit != 1 || c.PixelsPerUnitX != c.PixelsPerUnitY {
		return 0
	}
	s := int(float64(c.PixelsPerUnitX)/pixelsPerMetre72 + 0.5)
	if s < 1 || *newChunk_pHYs(s) != *c {
		return 0
	}
	return s
}

func (c *Chunk_pHYs) MarshalBinary() ([]byte, error) {
	buf := make([]byte, sizeOfPHYs)
	binary.BigEndian.PutUint32(buf[0:4], c.PixelsPerUnitX)
	binary.BigEndian.PutUint32(buf[4:8], c.PixelsPerUnitY)
	buf[8] = c.Unit
	return buf, nil
}

func (c *Chunk_pHYs) UnmarshalBinary(b []byte) error {
	if len(b) != sizeOfPHYs {
		return invalidf("pHYs length %d", len(b))
	}
	c.PixelsPerUnitX = binary.BigEndian.Uint32(b[0:4])
	c.PixelsPerUnitY = binary.BigEndian.Uint32(b[4:8])
	c.Unit = b[8]
	return nil
}

// WriteChunk encodes the pHYs chunk to cw.
func (c *Chunk_pHYs) WriteChunk(cw *ChunkWriter) error {
	b, _ := c.MarshalBinary()
	return cw.WriteChunk(typePHYs, b)
}

// Chunk_IEND is the ending chunk, as per the PNG spec.  Write this after all other chunks.
type Chunk_IEND struct{}

// WriteChunk encodes the IEND chunk to cw.
func (c *Chunk_IEND) WriteChunk(cw *ChunkWriter) error {
	return cw.WriteChunk(typeIEND, nil)
}

// WriteTo encodes the ending chunk to the io.Writer.  This supports the
// io.WriterTo interface.
func (c *Chunk_IEND) WriteTo(w io.Writer) (int64, error) {
	return writeTo(w, c.WriteChunk)
}

// Chunk_acTL is the animation control chunk, as per the APNG spec.  Write this
// before any image data.
type Chunk_acTL struct {
	NumFrames uint32 // Number of frames
	NumPlays  uint32 // Number of times to loop this APNG. 0 indicates infinite looping.
}

const sizeOfACTL = sizeOfUint32 * 2

func (c *Chunk_acTL) MarshalBinary() ([]byte, error) {
	buf := make([]byte, sizeOfACTL)
	binary.BigEndian.PutUint32(buf[0:4], c.NumFrames)
	binary.BigEndian.PutUint32(buf[4:8], c.NumPlays)
	return buf, nil
}

func (c *Chunk_acTL) UnmarshalBinary(b []byte) error {
	if len(b) != sizeOfACTL {
		return invalidf("acTL length %d", len(b))
	}
	c.NumFrames = binary.BigEndian.Uint32(b[0:4])
	c.NumPlays = binary.BigEndian.Uint32(b[4:8])
	return nil
}

// WriteChunk encodes the acTL chunk to cw.
func (c *Chunk_acTL) WriteChunk(cw *ChunkWriter) error {
	b, _ := c.MarshalBinary()
	return cw.WriteChunk(typeACTL, b)
}

// WriteTo encodes the animation control chunk to the io.Writer.  This supports
// the io.WriterTo interface.
func (c *Chunk_acTL) WriteTo(w io.Writer) (int64, error) {
	return writeTo(w, c.WriteChunk)
}

// Chunk_fcTL is the frame control chunk, as per the APNG spec.
type Chunk_fcTL struct {
	SequenceNumber uint32    // Sequence number of the animation chunk, starting from 0
	Width          uint32    // Width of the following frame
	Height         uint32    // Height of the following frame
	XOffset        uint32    // X position at which to render the following frame
	YOffset        uint32    // Y position at which to render the following frame
	DelayNum       uint16    // Frame delay fraction numerator
	DelayDen       uint16    // Frame delay fraction denominator
	DisposeOp      DisposeOp // Type of frame area disposal to be done after rendering this frame
	BlendOp        BlendOp   // Type of frame area rendering for this frame
}

const sizeOfFCTL = sizeOfUint32*5 + sizeOfUint16*2 + sizeOfDisposeOp + sizeOfBlendOp

func (c *Chunk_fcTL) MarshalBinary() ([]byte, error) {
	buf := make([]byte, sizeOfFCTL)
	binary.BigEndian.PutUint32(buf[0:4], c.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], c.Width)
	binary.BigEndian.PutUint32(buf[8:12], c.Height)
	binary.BigEndian.PutUint32(buf[12:16], c.XOffset)
	binary.BigEndian.PutUint32(buf[16:20], c.YOffset)
	binary.BigEndian.PutUint16(buf[20:22], c.DelayNum)
	binary.BigEndian.PutUint16(buf[22:24], c.DelayDen)
	buf[24] = byte(c.DisposeOp)
	buf[25] = byte(c.BlendOp)
	return buf, nil
}

func (c *Chunk_fcTL) UnmarshalBinary(b []byte) error {
	if len(b) != sizeOfFCTL {
		return invalidf("fcTL length %d", len(b))
	}
	c.SequenceNumber = binary.BigEndian.Uint32(b[0:4])
	c.Width = binary.BigEndian.Uint32(b[4:8])
	c.Height = binary.BigEndian.Uint32(b[8:12])
	c.XOffset = binary.BigEndian.Uint32(b[12:16])
	c.YOffset = binary.BigEndian.Uint32(b[16:20])
	c.DelayNum = binary.BigEndian.Uint16(b[20:22])
	c.DelayDen = binary.BigEndian.Uint16(b[22:24])
	c.DisposeOp = DisposeOp(b[24])
	c.BlendOp = BlendOp(b[25])
	if !c.DisposeOp.valid() || !c.BlendOp.valid() {
		return invalidf("fcTL %d: dispose op %d, blend op %d", c.SequenceNumber, b[24], b[25])
	}
	return nil
}

// WriteChunk encodes the fcTL chunk to cw.
func (c *Chunk_fcTL) WriteChunk(cw *ChunkWriter) error {
	b, _ := c.MarshalBinary()
	return cw.WriteChunk(typeFCTL, b)
}

// WriteTo encodes the frame control chunk to the io.Writer.  This supports the
// io.WriterTo interface.
func (c *Chunk_fcTL) WriteTo(w io.Writer) (int64, error) {
	return writeTo(w, c.WriteChunk)
}

// SequenceNumbers is used to track sequence numbers across all frames and
// chunks; use this with Chunk_fcTL and Encoder_fdAT.
type SequenceNumbers uint32

func NewSequenceNumbers() *SequenceNumbers {
	return new(SequenceNumbers)
}

// Next returns the next unused sequence number.
func (s *SequenceNumbers) Next() uint32 {
	tmp := uint32(*s)
	*s++
	return tmp
}

// Chunk_IDAT is one image data chunk, as per the PNG spec.
type Chunk_IDAT []byte

// WriteChunk encodes the image data chunk to cw.
func (c Chunk_IDAT) WriteChunk(cw *ChunkWriter) error {
	return cw.WriteChunk(typeIDAT, c)
}

// WriteTo encodes the image data chunk to the io.Writer.  This supports the
// io.WriterTo interface.
func (c Chunk_IDAT) WriteTo(w io.Writer) (int64, error) {
	return writeTo(w, c.WriteChunk)
}

// DefaultMaxChunkSize is the number of compressed bytes carried by each image
// data chunk before a new one is started.
const DefaultMaxChunkSize = 8 << 20

// maxDataChunkSize leaves room for the fdAT sequence number.
const maxDataChunkSize = MaxChunkLength - sizeOfUint32

// Encoder_IDAT is used to split a frame's compressed data into one or more
// image data chunks.
type Encoder_IDAT struct {
	data []byte
	max  int
	cur  []byte
	err  error
}

// NewEncoder_IDAT compresses the image with the given compression level and
// returns an encoder for its image data chunks. Like libpng, rows are
// filtered adaptively unless compression is disabled.
func (c *Chunk_IHDR) NewEncoder_IDAT(m *image.NRGBA, cl CompressionLevel) *Encoder_IDAT {
	if m.Bounds().Dx() != int(c.Width) || m.Bounds().Dy() != int(c.Height) {
		return &Encoder_IDAT{err: invalidf("image is %v, header is %dx%d", m.Bounds().Size(), c.Width, c.Height)}
	}
	f := FilterAdaptive
	if cl == NoCompression {
		f = FilterNone
	}
	data, err := compressFrame(DefaultCompressor, m, f, cl)
	return newEncoder_IDAT(data, DefaultMaxChunkSize, err)
}

func newEncoder_IDAT(data []byte, max int, err error) *Encoder_IDAT {
	if max <= 0 {
		max = DefaultMaxChunkSize
	}
	if max > maxDataChunkSize {
		max = maxDataChunkSize
	}
	return &Encoder_IDAT{data: data, max: max, err: err}
}

// Next is used to advance the encoder to the next chunk.  Call this before
// using either Chunk or Err.
func (e *Encoder_IDAT) Next() bool {
	if e.err != nil || len(e.data) == 0 {
		return false
	}
	n := len(e.data)
	if n > e.max {
		n = e.max
	}
	e.cur, e.data = e.data[:n:n], e.data[n:]
	return true
}

// Err returns any errors encountered while encoding image data chunks.
func (e *Encoder_IDAT) Err() error {
	return e.err
}

// Chunk returns the current image data chunk.
func (e *Encoder_IDAT) Chunk() Chunk_IDAT {
	return Chunk_IDAT(e.cur)
}

// Chunk_fdAT is the frame data chunk, as per the APNG spec.
type Chunk_fdAT struct {
	SequenceNumber uint32
	Chunk_IDAT     Chunk_IDAT
}

// WriteChunk encodes the frame data chunk to cw.
func (c *Chunk_fdAT) WriteChunk(cw *ChunkWriter) error {
	buf := make([]byte, sizeOfUint32+len(c.Chunk_IDAT))
	binary.BigEndian.PutUint32(buf[0:4], c.SequenceNumber)
	copy(buf[4:], c.Chunk_IDAT)
	return cw.WriteChunk(typeFDAT, buf)
}

// WriteTo encodes the frame data chunk to the io.Writer.  This supports the
// io.WriterTo interface.
func (c *Chunk_fdAT) WriteTo(w io.Writer) (int64, error) {
	return writeTo(w, c.WriteChunk)
}

func (c *Chunk_fdAT) UnmarshalBinary(b []byte) error {
	if len(b) < sizeOfUint32 {
		return invalidf("fdAT length %d", len(b))
	}
	c.SequenceNumber = binary.BigEndian.Uint32(b[0:4])
	c.Chunk_IDAT = Chunk_IDAT(b[4:])
	return nil
}

// Encoder_fdAT is used to split a frame's compressed data into one or more
// frame data chunks. Sequence numbers are taken when Chunk is called, not
// when the data is compressed.
type Encoder_fdAT struct {
	seq          *SequenceNumbers
	encoder_IDAT *Encoder_IDAT
}

// NewEncoder_fdAT makes a new frame data encoder for the given sequence
// numbers, image, and compression level.
func (c *Chunk_IHDR) NewEncoder_fdAT(seq *SequenceNumbers, m *image.NRGBA, cl CompressionLevel) *Encoder_fdAT {
	return &Encoder_fdAT{
		seq:          seq,
		encoder_IDAT: c.NewEncoder_IDAT(m, cl),
	}
}

// Next is used to advance the encoder to the next chunk.  Call this before
// using either Chunk or Err.
func (e *Encoder_fdAT) Next() bool {
	return e.encoder_IDAT.Next()
}

// Err returns any errors encountered while encoding image data chunks.
func (e *Encoder_fdAT) Err() error {
	return e.encoder_IDAT.Err()
}

// Chunk returns the current frame data chunk.
func (e *Encoder_fdAT) Chunk() *Chunk_fdAT {
	return &Chunk_fdAT{
		SequenceNumber: e.seq.Next(),
		Chunk_IDAT:     e.encoder_IDAT.Chunk(),
	}
}

const (
	sizeOfUint16 = 2
	sizeOfUint32 = 4
)

// writeTo adapts a WriteChunk method to io.WriterTo.
func writeTo(w io.Writer, write func(*ChunkWriter) error) (int64, error) {
	cw := NewChunkWriter(w, nil)
	err := write(cw)
	return cw.Written(), err
}

// writeSignature writes the PNG file signature.
func writeSignature(cw *ChunkWriter) error {
	return cw.WriteRaw([]byte(PngHeader))
}

func hasSignature(b []byte) bool {
	return bytes.Equal(b, []byte(PngHeader))
}
