package apng

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// solid returns a w×h image filled with c.
func solid(w, h int, c color.NRGBA) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i+0] = c.R
		m.Pix[i+1] = c.G
		m.Pix[i+2] = c.B
		m.Pix[i+3] = c.A
	}
	return m
}

// photo returns a smooth, slightly noisy w×h image standing in for
// photographic content. The same seed always gives the same pixels.
func photo(w, h int, seed uint32) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	state := seed*2654435761 + 1
	noise := func() int {
		state = state*1664525 + 1013904223
		return int(state>>29) - 4 // -4..3
	}
	clamp := func(v float64) uint8 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x+int(seed)), float64(y)
			m.SetNRGBA(x, y, color.NRGBA{
				R: clamp(128 + 100*math.Sin(fx/17)*math.Cos(fy/23) + float64(noise())),
				G: clamp(96 + 80*math.Cos(fx/29) + float64(noise())),
				B: clamp(160 + 60*math.Sin((fx+fy)/31) + float64(noise())),
				A: 255,
			})
		}
	}
	return m
}

// chunksOf parses every chunk of an encoded stream, after its signature.
func chunksOf(t *testing.T, b []byte) []Chunk {
	t.Helper()
	require.True(t, len(b) >= len(PngHeader) && hasSignature(b[:len(PngHeader)]), "missing PNG signature")
	cr := NewChunkReader(bytes.NewReader(b[len(PngHeader):]), nil)
	var out []Chunk
	for {
		c, err := cr.ReadChunk()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

// sequenceNumbers returns the sequence numbers of the fcTL and fdAT chunks
// in emission order.
func sequenceNumbers(chunks []Chunk) []uint32 {
	var seq []uint32
	for _, c := range chunks {
		if c.Type == typeFCTL || c.Type == typeFDAT {
			seq = append(seq, binary.BigEndian.Uint32(c.Data[:4]))
		}
	}
	return seq
}

func typesOf(chunks []Chunk) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, c.Type.String())
	}
	return out
}

// failingWriter accepts limit bytes and then fails with err.
type failingWriter struct {
	limit int
	n     int
	err   error
}

func (w *failingWriter) Write(b []byte) (int, error) {
	if w.n+len(b) > w.limit {
		n := w.limit - w.n
		w.n = w.limit
		return n, w.err
	}
	w.n += len(b)
	return len(b), nil
}

// fakeCompressor wraps DefaultCompressor, counting checksums and failing
// compression when compressErr is set.
type fakeCompressor struct {
	compressErr error
	checksums   int
}

func (f *fakeCompressor) Compress(p []byte, level CompressionLevel) ([]byte, error) {
	if f.compressErr != nil {
		return nil, f.compressErr
	}
	return DefaultCompressor.Compress(p, level)
}

func (f *fakeCompressor) Decompress(p []byte, maxSize int) ([]byte, error) {
	return DefaultCompressor.Decompress(p, maxSize)
}

func (f *fakeCompressor) Checksum(parts ...[]byte) uint32 {
	f.checksums++
	return DefaultCompressor.Checksum(parts...)
}

// animation returns an n-frame, full-canvas animation of w×h pixels.
func animation(n, w, h int) *Image {
	m := &Image{Width: w, Height: h, Scale: 1}
	for i := 0; i < n; i++ {
		m.Frames = append(m.Frames, &Frame{
			Pixels: photo(w, h, uint32(i)),
			Delay:  Delay{Num: 1, Den: 10},
		})
	}
	return m
}
