package apng

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// MaxPixelDimension is the largest width or height, in pixels, this package
// encodes or decodes.
const MaxPixelDimension = 1 << 20

// Frame is one frame of an animation.
type Frame struct {
	// Pixels holds the frame at full pixel resolution. Its bounds give the
	// frame size; the bounds origin is ignored in favour of XOffset/YOffset.
	Pixels *image.NRGBA
	// Delay is how long the frame is shown.
	Delay Delay
	// XOffset and YOffset place the frame on the canvas, in pixels.
	XOffset int
	YOffset int
	// DisposeOp is applied to the frame region after it has been shown.
	DisposeOp DisposeOp
	// BlendOp selects whether the frame replaces or is composited over the
	// canvas.
	BlendOp BlendOp
}

// Bounds returns the frame's region on the canvas.
func (f *Frame) Bounds() image.Rectangle {
	b := f.Pixels.Bounds()
	return image.Rect(f.XOffset, f.YOffset, f.XOffset+b.Dx(), f.YOffset+b.Dy())
}

// Image is an animated image.
type Image struct {
	// Frames is the animation, in display order. It must not be empty.
	Frames []*Frame
	// Width and Height are the canvas size in points.
	Width  int
	Height int
	// Scale maps points to pixels; the canvas is Width*Scale by
	// Height*Scale pixels.
	Scale int
	// RepeatCount is the number of times the animation repeats after it has
	// played once. 0 repeats forever.
	RepeatCount int
	// DefaultImage, when set, is a canvas-sized still shown by viewers that
	// do not support animation, and is not itself part of the animation.
	// When nil, the first frame doubles as the default image.
	DefaultImage *image.NRGBA
}

// BitDepth is the only bit depth this package supports.
func (m *Image) BitDepth() int { return 8 }

// PixelSize returns the canvas size in pixels.
func (m *Image) PixelSize() (width, height int) {
	return m.Width * m.Scale, m.Height * m.Scale
}

// NumPlays returns the acTL play count: 0 for infinite, else RepeatCount+1.
func (m *Image) NumPlays() uint32 {
	if m.RepeatCount <= 0 {
		return 0
	}
	return uint32(m.RepeatCount) + 1
}

// Validate checks m without writing anything. Errors match
// ErrInvalidFormat or ErrFileSizeExceeded.
func (m *Image) Validate() error {
	if len(m.Frames) == 0 {
		return invalidf("no frames")
	}
	if m.Scale < 1 {
		return invalidf("scale %d", m.Scale)
	}
	if m.Width < 1 || m.Height < 1 {
		return invalidf("canvas size %dx%d", m.Width, m.Height)
	}
	if m.RepeatCount < 0 {
		return invalidf("repeat count %d", m.RepeatCount)
	}
	if m.Width > MaxPixelDimension/m.Scale || m.Height > MaxPixelDimension/m.Scale {
		return errors.Wrapf(ErrFileSizeExceeded, "%dx%d points at scale %d", m.Width, m.Height, m.Scale)
	}
	w, h := m.PixelSize()
	canvas := image.Rect(0, 0, w, h)

	if m.DefaultImage != nil && m.DefaultImage.Bounds().Size() != canvas.Size() {
		return invalidf("default image is %v, canvas is %v", m.DefaultImage.Bounds().Size(), canvas.Size())
	}
	for i, f := range m.Frames {
		if f == nil || f.Pixels == nil {
			return invalidf("frame %d has no pixels", i)
		}
		r := f.Bounds()
		if r.Empty() {
			return invalidf("frame %d is empty", i)
		}
		if f.XOffset < 0 || f.YOffset < 0 || !r.In(canvas) {
			return invalidf("frame %d at %v lies outside the %v canvas", i, r, canvas.Size())
		}
		if !f.DisposeOp.valid() {
			return invalidf("frame %d dispose op %d", i, f.DisposeOp)
		}
		if !f.BlendOp.valid() {
			return invalidf("frame %d blend op %d", i, f.BlendOp)
		}
	}
	if m.DefaultImage == nil && m.Frames[0].Bounds() != canvas {
		return invalidf("first frame is the default image and must cover the canvas, got %v", m.Frames[0].Bounds())
	}
	return nil
}

// toNRGBA returns src as an *image.NRGBA with its origin at (0, 0), copying
// unless it already is one.
func toNRGBA(src image.Image) *image.NRGBA {
	if m, ok := src.(*image.NRGBA); ok && m.Rect.Min == (image.Point{}) {
		return m
	}
	b := src.Bounds()
	m := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(m, m.Bounds(), src, b.Min, draw.Src)
	return m
}

// NewFrame returns a frame showing src at the canvas origin for delay.
func NewFrame(src image.Image, delay Delay) *Frame {
	return &Frame{Pixels: toNRGBA(src), Delay: delay}
}

// NewStill returns a one-frame Image showing src forever. The pixel size of
// src must be a multiple of scale.
func NewStill(src image.Image, scale int) (*Image, error) {
	if scale < 1 {
		return nil, invalidf("scale %d", scale)
	}
	b := src.Bounds()
	if b.Dx()%scale != 0 || b.Dy()%scale != 0 {
		return nil, invalidf("%v pixels is not a multiple of scale %d", b.Size(), scale)
	}
	m := &Image{
		Frames: []*Frame{NewFrame(src, DelayInfinite)},
		Width:  b.Dx() / scale,
		Height: b.Dy() / scale,
		Scale:  scale,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
