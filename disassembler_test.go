package apng

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSameImage(t *testing.T, want, got *Image) {
	t.Helper()
	assert.Equal(t, want.Width, got.Width, "width")
	assert.Equal(t, want.Height, got.Height, "height")
	assert.Equal(t, want.Scale, got.Scale, "scale")
	assert.Equal(t, want.RepeatCount, got.RepeatCount, "repeat count")
	if want.DefaultImage == nil {
		assert.Nil(t, got.DefaultImage)
	} else if assert.NotNil(t, got.DefaultImage) {
		assert.Equal(t, toNRGBA(want.DefaultImage).Pix, got.DefaultImage.Pix)
	}
	require.Len(t, got.Frames, len(want.Frames))
	for i, wf := range want.Frames {
		gf := got.Frames[i]
		assert.Equal(t, wf.Bounds(), gf.Bounds(), "frame %d bounds", i)
		assert.Equal(t, toNRGBA(wf.Pixels).Pix, gf.Pixels.Pix, "frame %d pixels", i)
		assert.Equal(t, wf.Delay, gf.Delay, "frame %d delay", i)
		assert.Equal(t, wf.DisposeOp, gf.DisposeOp, "frame %d dispose", i)
		assert.Equal(t, wf.BlendOp, gf.BlendOp, "frame %d blend", i)
	}
}

func TestDisassemble_RoundTrip(t *testing.T) {
	offsets := animation(3, 30, 20)
	offsets.Frames[1] = &Frame{Pixels: photo(10, 5, 11), XOffset: 20, YOffset: 15, Delay: Delay{Num: 2, Den: 25}, DisposeOp: DisposeOp_Previous, BlendOp: BlendOp_Over}
	offsets.Frames[2].DisposeOp = DisposeOp_Background
	offsets.RepeatCount = 4

	hidden := animation(2, 12, 12)
	hidden.DefaultImage = photo(12, 12, 42)

	still, err := NewStill(photo(9, 7, 1), 1)
	require.NoError(t, err)

	scaled := animation(2, 16, 8)
	scaled.Width, scaled.Height, scaled.Scale = 8, 4, 2

	for _, tc := range []struct {
		name string
		m    *Image
		enc  Encoder
		dec  Decoder
	}{
		{name: "still", m: still},
		{name: "offsets and ops", m: offsets},
		{name: "hidden default", m: hidden},
		{name: "adaptive filter", m: animation(3, 21, 13), enc: Encoder{Filter: FilterAdaptive, CompressionLevel: BestCompression}},
		{name: "no compression", m: animation(2, 8, 8), enc: Encoder{CompressionLevel: NoCompression}},
		{name: "split chunks", m: hidden, enc: Encoder{MaxChunkSize: 64}},
		{name: "parallel", m: animation(5, 10, 10), enc: Encoder{Workers: 4}},
		{name: "scale from hint", m: scaled, dec: Decoder{Scale: 2}},
		{name: "scale from pHYs", m: scaled, enc: Encoder{EmbedScale: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tc.enc.Encode(&buf, tc.m))
			got, err := tc.dec.Decode(&buf)
			require.NoError(t, err)
			assertSameImage(t, tc.m, got)
		})
	}
}

func TestDisassemble_PlainPNG(t *testing.T) {
	src := photo(12, 9, 4)
	src.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 128}) // keep the alpha channel
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	m, err := Disassemble(&buf)
	require.NoError(t, err)
	require.Len(t, m.Frames, 1)
	assert.True(t, m.Frames[0].Delay.IsInfinite())
	assert.Equal(t, 12, m.Width)
	assert.Equal(t, 9, m.Height)
	assert.Equal(t, src.Pix, m.Frames[0].Pixels.Pix)
}

func TestDisassemble_ReadsStdlibDecodable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Encoder{Filter: FilterAdaptive}).Encode(&buf, animation(2, 14, 10)))

	// Viewers without APNG support see the first frame.
	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 14, 10), img.Bounds())
	assert.Equal(t, photo(14, 10, 0).Pix, toNRGBA(img).Pix)
}

// stream builds a PNG stream from a list of chunks.
func stream(t *testing.T, chunks ...Chunk) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw := NewChunkWriter(&buf, nil)
	require.NoError(t, writeSignature(cw))
	for _, c := range chunks {
		require.NoError(t, cw.WriteChunk(c.Type, c.Data))
	}
	return buf.Bytes()
}

func TestDisassemble_Malformed(t *testing.T) {
	ihdr, _ := newChunk_IHDR(4, 4).MarshalBinary()
	actl := func(frames, plays uint32) Chunk {
		b, _ := (&Chunk_acTL{NumFrames: frames, NumPlays: plays}).MarshalBinary()
		return Chunk{typeACTL, b}
	}
	fctl := func(seq, w, h uint32) Chunk {
		b, _ := (&Chunk_fcTL{SequenceNumber: seq, Width: w, Height: h}).MarshalBinary()
		return Chunk{typeFCTL, b}
	}
	data, err := compressFrame(DefaultCompressor, photo(4, 4, 0), FilterNone, DefaultCompression)
	require.NoError(t, err)
	idat := Chunk{typeIDAT, data}
	fdat := func(seq uint32) Chunk {
		b := make([]byte, 4+len(data))
		binary.BigEndian.PutUint32(b, seq)
		copy(b[4:], data)
		return Chunk{typeFDAT, b}
	}
	hdr := Chunk{typeIHDR, ihdr}
	iend := Chunk{typeIEND, nil}

	valid := stream(t, hdr, actl(2, 0), fctl(0, 4, 4), idat, fctl(1, 4, 4), fdat(2), iend)
	_, err = Disassemble(bytes.NewReader(valid))
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		in   []byte
		want error
	}{
		{name: "signature", in: []byte("GIF89a\x00\x00"), want: ErrInvalidFormat},
		{name: "short signature", in: []byte("\x89PN"), want: ErrTruncatedStream},
		{name: "no IEND", in: valid[:len(valid)-12], want: ErrTruncatedStream},
		{name: "cut mid chunk", in: valid[:len(valid)-20], want: ErrTruncatedStream},
		{name: "first chunk", in: stream(t, actl(1, 0), hdr, iend), want: ErrInvalidFormat},
		{name: "sequence gap", in: stream(t, hdr, actl(2, 0), fctl(0, 4, 4), idat, fctl(2, 4, 4), fdat(3), iend), want: ErrInvalidFormat},
		{name: "sequence reuse", in: stream(t, hdr, actl(2, 0), fctl(0, 4, 4), idat, fctl(1, 4, 4), fdat(1), iend), want: ErrInvalidFormat},
		{name: "frame count", in: stream(t, hdr, actl(3, 0), fctl(0, 4, 4), idat, fctl(1, 4, 4), fdat(2), iend), want: ErrInvalidFormat},
		{name: "too many frames", in: stream(t, hdr, actl(1, 0), fctl(0, 4, 4), idat, fctl(1, 4, 4), fdat(2), iend), want: ErrInvalidFormat},
		{name: "frame outside canvas", in: stream(t, hdr, actl(1, 0), idat, fctl(0, 5, 4), fdat(1), iend), want: ErrInvalidFormat},
		{name: "no IDAT", in: stream(t, hdr, actl(1, 0), fctl(0, 4, 4), fdat(1), iend), want: ErrInvalidFormat},
		{name: "frame without data", in: stream(t, hdr, actl(2, 0), fctl(0, 4, 4), idat, fctl(1, 4, 4), iend), want: ErrInvalidFormat},
		{name: "critical chunk", in: stream(t, hdr, Chunk{ChunkType{'P', 'L', 'T', 'E'}, []byte{0, 0, 0}}, idat, iend), want: ErrInvalidFormat},
		{name: "split IDAT", in: stream(t, hdr, idat, Chunk{ChunkType{'t', 'E', 'X', 't'}, []byte("a\x00b")}, idat, iend), want: ErrInvalidFormat},
		{name: "chunk type digit", in: stream(t, hdr, Chunk{ChunkType{'t', 'E', 'X', '1'}, nil}, idat, iend), want: ErrInvalidFormat},
		{name: "IEND payload", in: stream(t, hdr, idat, Chunk{typeIEND, []byte{1}}), want: ErrInvalidFormat},
		{name: "bad pixels", in: stream(t, hdr, Chunk{typeIDAT, []byte("garbage")}, iend), want: ErrInvalidFormat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Disassemble(bytes.NewReader(tc.in))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDisassemble_SkipsAncillaryChunks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Assemble(&buf, animation(2, 6, 6)))
	b := buf.Bytes()

	// Insert a tEXt chunk right after IHDR (8 + 25 bytes in).
	var text bytes.Buffer
	require.NoError(t, NewChunkWriter(&text, nil).WriteChunk(ChunkType{'t', 'E', 'X', 't'}, []byte("Title\x00spin")))
	at := len(PngHeader) + 12 + sizeOfIHDR
	withText := append(append(append([]byte(nil), b[:at]...), text.Bytes()...), b[at:]...)

	m, err := Disassemble(bytes.NewReader(withText))
	require.NoError(t, err)
	assert.Len(t, m.Frames, 2)
}

func TestDisassemble_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Assemble(&buf, animation(1, 6, 6)))
	b := buf.Bytes()
	b[len(PngHeader)+8] ^= 0x01 // first byte of the IHDR payload

	_, err := Disassemble(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDisassemble_FileSizeExceeded(t *testing.T) {
	ihdr, _ := newChunk_IHDR(MaxPixelDimension+1, 1).MarshalBinary()
	_, err := Disassemble(bytes.NewReader(stream(t, Chunk{typeIHDR, ihdr})))
	assert.ErrorIs(t, err, ErrFileSizeExceeded)
}

func TestDisassemble_SinglePlay(t *testing.T) {
	ihdr, _ := newChunk_IHDR(4, 4).MarshalBinary()
	actl, _ := (&Chunk_acTL{NumFrames: 1, NumPlays: 1}).MarshalBinary()
	fctl, _ := (&Chunk_fcTL{Width: 4, Height: 4}).MarshalBinary()
	data, err := compressFrame(DefaultCompressor, photo(4, 4, 0), FilterNone, DefaultCompression)
	require.NoError(t, err)

	m, err := Disassemble(bytes.NewReader(stream(t,
		Chunk{typeIHDR, ihdr}, Chunk{typeACTL, actl}, Chunk{typeFCTL, fctl}, Chunk{typeIDAT, data}, Chunk{typeIEND, nil})))
	require.NoError(t, err)
	assert.Equal(t, 0, m.RepeatCount)
}

func TestDisassemble_BadScaleHint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Assemble(&buf, animation(1, 5, 5)))
	_, err := (&Decoder{Scale: 2}).Decode(&buf)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestDisassemble_ScaleNotEmbedded(t *testing.T) {
	m := animation(2, 8, 4)
	m.Width, m.Height, m.Scale = 4, 2, 2

	var buf bytes.Buffer
	require.NoError(t, Assemble(&buf, m))

	got, err := Disassemble(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []int{8, 4, 1}, []int{got.Width, got.Height, got.Scale})

	got, err = (&Decoder{Scale: 2}).Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 2}, []int{got.Width, got.Height, got.Scale})
}
