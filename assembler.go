package apng

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

// Encoder configures APNG assembly. The zero value writes unfiltered rows
// with default zlib compression, 8 MiB data chunks, and no parallelism.
// An Encoder may be used from multiple goroutines at once.
type Encoder struct {
	CompressionLevel CompressionLevel
	Filter           FilterStrategy
	// MaxChunkSize is the largest number of compressed bytes per IDAT or
	// fdAT chunk. 0 means DefaultMaxChunkSize.
	MaxChunkSize int
	// Workers is the number of frames compressed concurrently. Chunks are
	// still written strictly in frame order.
	Workers int
	// EmbedScale writes a pHYs chunk of 72 dpi times the image scale, which
	// lets Disassemble recover the scale.
	EmbedScale bool
	// Compressor defaults to DefaultCompressor.
	Compressor Compressor
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Assemble writes m to w as an APNG stream using the zero Encoder.
//
// The zero Encoder does not record m.Scale in the stream. Disassemble then
// reports the canvas in pixels at scale 1 unless the Decoder is given the
// scale; set Encoder.EmbedScale to carry it in a pHYs chunk.
func Assemble(w io.Writer, m *Image) error {
	var enc Encoder
	return enc.Encode(w, m)
}

// EncodeFile writes m to the named file using the zero Encoder.
func EncodeFile(path string, m *Image) error {
	var enc Encoder
	return enc.EncodeFile(path, m)
}

// Encode writes m to w as an APNG stream.
//
// m is validated before anything is written. A failure after that leaves a
// partial stream on w which the caller must discard.
func (enc *Encoder) Encode(w io.Writer, m *Image) error {
	if m == nil {
		return invalidf("nil image")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	a, err := enc.newAssembler(w, m)
	if err != nil {
		return err
	}
	return a.run()
}

// EncodeFile writes m to the named file. The file is closed on every path
// and removed if encoding fails.
func (enc *Encoder) EncodeFile(path string, m *Image) (err error) {
	if m == nil {
		return invalidf("nil image")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return failure(ErrIOFailure, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = failure(ErrIOFailure, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<16)
	if err := enc.Encode(bw, m); err != nil {
		return err
	}
	return failure(ErrIOFailure, bw.Flush())
}

// state is the position of an assembler in the chunk sequence.
type state int

const (
	stateUnopened state = iota
	stateHeaderWritten
	stateAnimationControlWritten
	stateFrameControlWritten
	stateFrameDataWritten
	stateFinalized
)

func (s state) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateHeaderWritten:
		return "header written"
	case stateAnimationControlWritten:
		return "animation control written"
	case stateFrameControlWritten:
		return "frame control written"
	case stateFrameDataWritten:
		return "frame data written"
	case stateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// assembler writes one Image to one sink. It is not reused.
type assembler struct {
	enc   *Encoder
	m     *Image
	cw    *ChunkWriter
	ihdr  *Chunk_IHDR
	seq   *SequenceNumbers
	comp  Compressor
	log   *slog.Logger
	state state
	// frame is the index of the frame whose fcTL was written last.
	frame int
}

func (enc *Encoder) newAssembler(w io.Writer, m *Image) (*assembler, error) {
	if w == nil {
		return nil, errors.Wrap(ErrStructureAllocation, "nil writer")
	}
	comp := enc.Compressor
	if comp == nil {
		comp = DefaultCompressor
	}
	log := enc.Logger
	if log == nil {
		log = slog.Default()
	}
	pw, ph := m.PixelSize()
	ihdr := newChunk_IHDR(pw, ph)
	ihdr.BitDepth = BitDepth(m.BitDepth())
	return &assembler{
		enc:   enc,
		m:     m,
		cw:    NewChunkWriter(w, comp),
		ihdr:  ihdr,
		seq:   NewSequenceNumbers(),
		comp:  comp,
		log:   log,
		frame: -1,
	}, nil
}

// expect panics unless the assembler is in one of the given states.
func (a *assembler) expect(op string, states ...state) {
	for _, s := range states {
		if a.state == s {
			return
		}
	}
	panic(fmt.Sprintf("apng: %s called in state %q", op, a.state))
}

func (a *assembler) run() error {
	a.log.Debug("apng: encoding",
		"width", a.ihdr.Width,
		"height", a.ihdr.Height,
		"frames", len(a.m.Frames),
		"plays", a.m.NumPlays(),
		"filter", a.enc.Filter,
	)

	done := make(chan struct{})
	defer close(done)
	next := a.compressFrames(done)

	if err := a.writeHeader(); err != nil {
		return err
	}
	if err := a.writeAnimationControl(); err != nil {
		return err
	}
	for i := range a.m.Frames {
		if err := a.writeFrameControl(i); err != nil {
			return err
		}
		r := next(i)
		if r.err != nil {
			return errors.Wrapf(r.err, "frame %d", i)
		}
		if err := a.writeFrameData(i, r.data); err != nil {
			return err
		}
	}
	if err := a.finalize(); err != nil {
		return err
	}

	a.log.Debug("apng: encoded", "bytes", a.cw.Written(), "sequence_numbers", uint32(*a.seq))
	return nil
}

// compressed is the result of compressing one frame.
type compressed struct {
	data []byte
	err  error
}

// compressFrames returns a function yielding the compressed data of frame i.
// With more than one worker, frames are compressed ahead on up to
// enc.Workers goroutines; otherwise each frame is compressed on the calling
// goroutine when asked for. Closing done stops work that has not started.
func (a *assembler) compressFrames(done <-chan struct{}) func(i int) compressed {
	frames := a.m.Frames
	job := func(i int) compressed {
		data, err := compressFrame(a.comp, frames[i].Pixels, a.enc.Filter, a.enc.CompressionLevel)
		return compressed{data: data, err: err}
	}

	workers := a.enc.Workers
	if workers > len(frames) {
		workers = len(frames)
	}
	if workers <= 1 {
		return job
	}

	out := make([]chan compressed, len(frames))
	for i := range out {
		out[i] = make(chan compressed, 1)
	}
	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range frames {
			select {
			case jobs <- i:
			case <-done:
				return
			}
		}
	}()
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				out[i] <- job(i)
			}
		}()
	}
	return func(i int) compressed { return <-out[i] }
}

func (a *assembler) writeHeader() error {
	a.expect("writeHeader", stateUnopened)
	if err := writeSignature(a.cw); err != nil {
		return errors.Wrap(err, "signature")
	}
	if err := a.ihdr.WriteChunk(a.cw); err != nil {
		return err
	}
	if a.enc.EmbedScale {
		if err := newChunk_pHYs(a.m.Scale).WriteChunk(a.cw); err != nil {
			return err
		}
	}
	a.state = stateHeaderWritten
	return nil
}

// writeAnimationControl writes acTL and, when the image has a separate
// default image, its IDAT chunks.
func (a *assembler) writeAnimationControl() error {
	a.expect("writeAnimationControl", stateHeaderWritten)
	actl := &Chunk_acTL{
		NumFrames: uint32(len(a.m.Frames)),
		NumPlays:  a.m.NumPlays(),
	}
	if err := actl.WriteChunk(a.cw); err != nil {
		return err
	}
	if a.m.DefaultImage != nil {
		data, err := compressFrame(a.comp, a.m.DefaultImage, a.enc.Filter, a.enc.CompressionLevel)
		if err != nil {
			return errors.Wrap(err, "default image")
		}
		if _, err := a.writeIDAT(data); err != nil {
			return err
		}
	}
	a.state = stateAnimationControlWritten
	return nil
}

func (a *assembler) writeFrameControl(i int) error {
	a.expect("writeFrameControl", stateAnimationControlWritten, stateFrameDataWritten)
	if i != a.frame+1 {
		panic(fmt.Sprintf("apng: frame %d written after frame %d", i, a.frame))
	}
	f := a.m.Frames[i]
	b := f.Pixels.Bounds()
	fctl := &Chunk_fcTL{
		SequenceNumber: a.seq.Next(),
		Width:          uint32(b.Dx()),
		Height:         uint32(b.Dy()),
		XOffset:        uint32(f.XOffset),
		YOffset:        uint32(f.YOffset),
		DelayNum:       f.Delay.Num,
		DelayDen:       f.Delay.Den,
		DisposeOp:      f.DisposeOp,
		BlendOp:        f.BlendOp,
	}
	if err := fctl.WriteChunk(a.cw); err != nil {
		return errors.Wrapf(err, "frame %d", i)
	}
	a.frame = i
	a.state = stateFrameControlWritten
	return nil
}

// writeFrameData writes the compressed data of the frame whose fcTL was
// just written: as IDAT when the first frame is the default image, as fdAT
// otherwise.
func (a *assembler) writeFrameData(i int, data []byte) error {
	a.expect("writeFrameData", stateFrameControlWritten)
	if i != a.frame {
		panic(fmt.Sprintf("apng: data for frame %d written after control for frame %d", i, a.frame))
	}

	var (
		n   int
		err error
	)
	if i == 0 && a.m.DefaultImage == nil {
		n, err = a.writeIDAT(data)
	} else {
		n, err = a.writefdAT(data)
	}
	if err != nil {
		return errors.Wrapf(err, "frame %d", i)
	}
	a.log.Debug("apng: frame written",
		"frame", i,
		"chunks", n,
		"bytes", len(data),
		"next_sequence_number", uint32(*a.seq),
	)
	a.state = stateFrameDataWritten
	return nil
}

func (a *assembler) writeIDAT(data []byte) (int, error) {
	e := newEncoder_IDAT(data, a.enc.MaxChunkSize, nil)
	n := 0
	for e.Next() {
		if err := e.Chunk().WriteChunk(a.cw); err != nil {
			return n, err
		}
		n++
	}
	return n, e.Err()
}

func (a *assembler) writefdAT(data []byte) (int, error) {
	e := &Encoder_fdAT{
		seq:          a.seq,
		encoder_IDAT: newEncoder_IDAT(data, a.enc.MaxChunkSize, nil),
	}
	n := 0
	for e.Next() {
		if err := e.Chunk().WriteChunk(a.cw); err != nil {
			return n, err
		}
		n++
	}
	return n, e.Err()
}

func (a *assembler) finalize() error {
	a.expect("finalize", stateFrameDataWritten)
	if a.frame != len(a.m.Frames)-1 {
		panic(fmt.Sprintf("apng: finalize after %d of %d frames", a.frame+1, len(a.m.Frames)))
	}
	if err := (&Chunk_IEND{}).WriteChunk(a.cw); err != nil {
		return err
	}
	a.state = stateFinalized
	return nil
}
