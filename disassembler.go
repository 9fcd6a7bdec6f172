package apng

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

// Decoder configures APNG disassembly. The zero value is ready to use.
type Decoder struct {
	// Scale is used when the stream carries no pHYs scale, for example
	// when the caller derived it from an "@2x" resource name. 0 means 1.
	Scale int
	// Compressor defaults to DefaultCompressor.
	Compressor Compressor
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Disassemble reads an APNG (or plain PNG) stream using the zero Decoder.
//
// Without a pHYs chunk the scale cannot be recovered: the image comes back
// at scale 1 with its canvas measured in pixels. Use a Decoder with Scale
// set, or encode with Encoder.EmbedScale, to round-trip a scaled image.
func Disassemble(r io.Reader) (*Image, error) {
	var d Decoder
	return d.Decode(r)
}

// DecodeFile reads the named file using the zero Decoder.
func DecodeFile(path string) (*Image, error) {
	var d Decoder
	return d.DecodeFile(path)
}

// DecodeFile reads the named file.
func (d *Decoder) DecodeFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure(ErrIOFailure, err)
	}
	defer f.Close()
	return d.Decode(bufio.NewReader(f))
}

// frameChunks collects the control and data of one frame while parsing.
type frameChunks struct {
	fctl Chunk_fcTL
	data [][]byte
	// idat is set when the frame's data is carried by IDAT chunks.
	idat bool
}

// disassembler holds parsing state for one stream.
type disassembler struct {
	d    *Decoder
	cr   *ChunkReader
	comp Compressor
	log  *slog.Logger

	ihdr     Chunk_IHDR
	phys     *Chunk_pHYs
	actl     *Chunk_acTL
	seq      uint32
	defaults [][]byte // IDAT data seen before the first fcTL
	frames   []*frameChunks
	// idatDone is set once a chunk other than IDAT follows IDAT.
	idatDone bool
}

// Decode reads an APNG stream from r. A PNG without an acTL chunk decodes
// as a single frame with DelayInfinite.
func (d *Decoder) Decode(r io.Reader) (*Image, error) {
	comp := d.Compressor
	if comp == nil {
		comp = DefaultCompressor
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &disassembler{d: d, cr: NewChunkReader(r, comp), comp: comp, log: log}
	if err := p.parse(r); err != nil {
		return nil, err
	}
	return p.build()
}

func (p *disassembler) parse(r io.Reader) error {
	var sig [len(PngHeader)]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrap(ErrTruncatedStream, "signature")
		}
		return failure(ErrIOFailure, err)
	}
	if !hasSignature(sig[:]) {
		return invalidf("not a PNG file")
	}

	c, err := p.cr.ReadChunk()
	if err != nil {
		return p.eof(err)
	}
	if c.Type != typeIHDR {
		return invalidf("first chunk is %s, want IHDR", c.Type)
	}
	if err := p.ihdr.UnmarshalBinary(c.Data); err != nil {
		return err
	}
	if err := p.ihdr.supported(); err != nil {
		return err
	}
	if p.ihdr.Width > MaxPixelDimension || p.ihdr.Height > MaxPixelDimension {
		return errors.Wrapf(ErrFileSizeExceeded, "%dx%d pixels", p.ihdr.Width, p.ihdr.Height)
	}

	for {
		c, err := p.cr.ReadChunk()
		if err != nil {
			return p.eof(err)
		}
		if c.Type != typeIDAT && p.seenIDAT() {
			p.idatDone = true
		}
		switch c.Type {
		case typeIEND:
			if len(c.Data) != 0 {
				return invalidf("IEND length %d", len(c.Data))
			}
			return nil
		case typeIHDR:
			return invalidf("duplicate IHDR")
		case typePHYs:
			err = p.parsePHYs(c.Data)
		case typeACTL:
			err = p.parseACTL(c.Data)
		case typeFCTL:
			err = p.parseFCTL(c.Data)
		case typeIDAT:
			err = p.parseIDAT(c.Data)
		case typeFDAT:
			err = p.parseFDAT(c.Data)
		default:
			if !c.Type.IsAncillary() {
				return invalidf("unsupported critical chunk %s", c.Type)
			}
			p.log.Debug("apng: skipping chunk", "type", c.Type.String(), "length", len(c.Data))
		}
		if err != nil {
			return err
		}
	}
}

// eof maps a clean end of stream before IEND to ErrTruncatedStream.
func (p *disassembler) eof(err error) error {
	if err == io.EOF {
		return errors.Wrap(ErrTruncatedStream, "missing IEND")
	}
	return err
}

func (p *disassembler) seenIDAT() bool {
	return len(p.defaults) > 0 || (len(p.frames) > 0 && p.frames[0].idat)
}

func (p *disassembler) parsePHYs(b []byte) error {
	if p.seenIDAT() {
		return invalidf("pHYs after IDAT")
	}
	var phys Chunk_pHYs
	if err := phys.UnmarshalBinary(b); err != nil {
		return err
	}
	p.phys = &phys
	return nil
}

func (p *disassembler) parseACTL(b []byte) error {
	if p.actl != nil {
		return invalidf("duplicate acTL")
	}
	if p.seenIDAT() {
		return invalidf("acTL after IDAT")
	}
	var actl Chunk_acTL
	if err := actl.UnmarshalBinary(b); err != nil {
		return err
	}
	if actl.NumFrames == 0 {
		return invalidf("acTL declares no frames")
	}
	p.actl = &actl
	return nil
}

// checkSequence consumes the next sequence number.
func (p *disassembler) checkSequence(t ChunkType, seq uint32) error {
	if seq != p.seq {
		return invalidf("%s sequence number %d, want %d", t, seq, p.seq)
	}
	p.seq++
	return nil
}

func (p *disassembler) parseFCTL(b []byte) error {
	if p.actl == nil {
		p.log.Debug("apng: skipping fcTL without acTL")
		return nil
	}
	f := &frameChunks{}
	if err := f.fctl.UnmarshalBinary(b); err != nil {
		return err
	}
	if err := p.checkSequence(typeFCTL, f.fctl.SequenceNumber); err != nil {
		return err
	}
	if n := len(p.frames); n > 0 && len(p.frames[n-1].data) == 0 {
		return invalidf("frame %d has no data", n-1)
	}
	if uint32(len(p.frames)) >= p.actl.NumFrames {
		return invalidf("more than %d frames", p.actl.NumFrames)
	}
	fc := &f.fctl
	if fc.Width == 0 || fc.Height == 0 ||
		uint64(fc.XOffset)+uint64(fc.Width) > uint64(p.ihdr.Width) ||
		uint64(fc.YOffset)+uint64(fc.Height) > uint64(p.ihdr.Height) {
		return invalidf("frame %d: %dx%d at (%d,%d) lies outside the %dx%d canvas",
			len(p.frames), fc.Width, fc.Height, fc.XOffset, fc.YOffset, p.ihdr.Width, p.ihdr.Height)
	}
	p.frames = append(p.frames, f)
	return nil
}

func (p *disassembler) parseIDAT(b []byte) error {
	if p.idatDone {
		return invalidf("IDAT chunks are not consecutive")
	}
	switch {
	case len(p.frames) == 0:
		p.defaults = append(p.defaults, b)
	case len(p.frames) == 1 && len(p.defaults) == 0:
		f := p.frames[0]
		fc := &f.fctl
		if fc.XOffset != 0 || fc.YOffset != 0 || fc.Width != p.ihdr.Width || fc.Height != p.ihdr.Height {
			return invalidf("default image frame must cover the canvas")
		}
		f.idat = true
		f.data = append(f.data, b)
	default:
		return invalidf("IDAT after animation frames")
	}
	return nil
}

func (p *disassembler) parseFDAT(b []byte) error {
	if p.actl == nil {
		p.log.Debug("apng: skipping fdAT without acTL")
		return nil
	}
	var c Chunk_fdAT
	if err := c.UnmarshalBinary(b); err != nil {
		return err
	}
	if err := p.checkSequence(typeFDAT, c.SequenceNumber); err != nil {
		return err
	}
	n := len(p.frames)
	if n == 0 {
		return invalidf("fdAT before fcTL")
	}
	f := p.frames[n-1]
	if f.idat {
		return invalidf("frame %d mixes IDAT and fdAT", n-1)
	}
	if !p.seenIDAT() {
		return invalidf("fdAT before IDAT")
	}
	f.data = append(f.data, c.Chunk_IDAT)
	return nil
}

// scale picks the pHYs scale, then the caller's hint, then 1.
func (p *disassembler) scale() (int, error) {
	w, h := int(p.ihdr.Width), int(p.ihdr.Height)
	if p.phys != nil {
		if s := p.phys.Scale(); s > 0 && w%s == 0 && h%s == 0 {
			return s, nil
		}
	}
	s := p.d.Scale
	if s <= 0 {
		s = 1
	}
	if w%s != 0 || h%s != 0 {
		return 0, invalidf("%dx%d pixels is not a multiple of scale %d", w, h, s)
	}
	return s, nil
}

func (p *disassembler) build() (*Image, error) {
	if !p.seenIDAT() {
		return nil, invalidf("no IDAT")
	}
	scale, err := p.scale()
	if err != nil {
		return nil, err
	}
	w, h := int(p.ihdr.Width), int(p.ihdr.Height)
	m := &Image{
		Width:  w / scale,
		Height: h / scale,
		Scale:  scale,
	}

	if p.actl == nil {
		pix, err := decompressFrame(p.comp, bytes.Join(p.defaults, nil), w, h)
		if err != nil {
			return nil, err
		}
		m.Frames = []*Frame{{Pixels: pix, Delay: DelayInfinite}}
		return m, nil
	}

	if got := uint32(len(p.frames)); got != p.actl.NumFrames {
		return nil, invalidf("acTL declares %d frames, found %d", p.actl.NumFrames, got)
	}
	if last := p.frames[len(p.frames)-1]; len(last.data) == 0 {
		return nil, invalidf("frame %d has no data", len(p.frames)-1)
	}
	switch plays := p.actl.NumPlays; plays {
	case 0:
		m.RepeatCount = 0
	case 1:
		p.log.Warn("apng: single play decoded as infinite repeat count")
		m.RepeatCount = 0
	default:
		m.RepeatCount = int(plays - 1)
	}

	if len(p.defaults) > 0 {
		if m.DefaultImage, err = decompressFrame(p.comp, bytes.Join(p.defaults, nil), w, h); err != nil {
			return nil, errors.Wrap(err, "default image")
		}
	}
	for i, f := range p.frames {
		fc := &f.fctl
		pix, err := decompressFrame(p.comp, bytes.Join(f.data, nil), int(fc.Width), int(fc.Height))
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		m.Frames = append(m.Frames, &Frame{
			Pixels:    pix,
			Delay:     Delay{Num: fc.DelayNum, Den: fc.DelayDen},
			XOffset:   int(fc.XOffset),
			YOffset:   int(fc.YOffset),
			DisposeOp: fc.DisposeOp,
			BlendOp:   fc.BlendOp,
		})
	}
	return m, nil
}
