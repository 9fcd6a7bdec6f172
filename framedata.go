// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package apng

import (
	"image"

	"github.com/pkg/errors"
)

// FilterStrategy selects how scanlines are filtered before compression.
type FilterStrategy int

const (
	// FilterNone writes every row with filter type None. The output depends
	// only on the pixels and the compression level.
	FilterNone FilterStrategy = iota
	// FilterAdaptive picks, per row, the filter type that minimizes the sum
	// of absolute residuals.
	FilterAdaptive
)

func (f FilterStrategy) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterAdaptive:
		return "adaptive"
	}
	return "unknown"
}

// bytesPerPixel for 8-bit RGBA.
const bytesPerPixel = 4

// rawSize is the length of the filtered scanline stream for a w×h image.
func rawSize(w, h int) int {
	return (1 + bytesPerPixel*w) * h
}

// row returns the pixel bytes of row y (relative to the image bounds).
func row(m *image.NRGBA, y int) []uint8 {
	b := m.Bounds()
	off := y * m.Stride
	return m.Pix[off : off+bytesPerPixel*b.Dx()]
}

// scanlines serializes m as filtered PNG scanlines, each prefixed with its
// filter type byte.
func scanlines(m *image.NRGBA, f FilterStrategy) []byte {
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	out := make([]byte, 0, rawSize(w, h))

	if f != FilterAdaptive {
		for y := 0; y < h; y++ {
			out = append(out, ftNone)
			out = append(out, row(m, y)...)
		}
		return out
	}

	// cr[*] and pr are the bytes for the current and previous row.
	// cr[0] is unfiltered (or equivalently, filtered with the ftNone filter).
	// cr[ft], for non-zero filter types ft, are buffers for transforming cr[0] under the
	// other PNG filter types. These buffers are allocated once and re-used for each row.
	// The +1 is for the per-row filter type, which is at cr[*][0].
	var cr [nFilter][]uint8
	for i := range cr {
		cr[i] = make([]uint8, 1+bytesPerPixel*w)
		cr[i][0] = uint8(i)
	}
	pr := make([]uint8, 1+bytesPerPixel*w)

	for y := 0; y < h; y++ {
		copy(cr[0][1:], row(m, y))
		ft := filter(&cr, pr, bytesPerPixel)
		out = append(out, cr[ft]...)

		// The current row for y is the previous row for y+1.
		pr, cr[0] = cr[0], pr
		cr[0][0] = ftNone
	}
	return out
}

// compressFrame filters and compresses m into the payload of its image
// data chunks.
func compressFrame(c Compressor, m *image.NRGBA, f FilterStrategy, cl CompressionLevel) ([]byte, error) {
	data, err := c.Compress(scanlines(m, f), cl)
	if err != nil {
		return nil, failure(ErrInternalCodec, err)
	}
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInternalCodec, "compressor returned no data")
	}
	return data, nil
}

// decompressFrame reverses compressFrame for a w×h frame.
func decompressFrame(c Compressor, data []byte, w, h int) (*image.NRGBA, error) {
	size := rawSize(w, h)
	raw, err := c.Decompress(data, size)
	if err != nil {
		return nil, errors.Wrap(failure(ErrInvalidFormat, err), "image data")
	}
	if len(raw) != size {
		return nil, invalidf("image data: got %d bytes, want %d", len(raw), size)
	}

	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	stride := 1 + bytesPerPixel*w
	prev := make([]byte, bytesPerPixel*w)
	for y := 0; y < h; y++ {
		line := raw[y*stride : (y+1)*stride]
		cdat := line[1:]
		if err := unfilter(line[0], cdat, prev, bytesPerPixel); err != nil {
			return nil, errors.Wrapf(err, "row %d", y)
		}
		copy(row(m, y), cdat)
		prev = cdat
	}
	return m, nil
}
