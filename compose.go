package apng

import (
	"image"

	"golang.org/x/image/draw"
)

// Composite renders every frame of m onto its canvas and returns one
// canvas-sized snapshot per frame, as a viewer would show them. Each frame
// is blended according to its BlendOp after the previous frame's DisposeOp
// has been applied.
func Composite(m *Image) ([]*image.NRGBA, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	w, h := m.PixelSize()
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	out := make([]*image.NRGBA, 0, len(m.Frames))

	for i, f := range m.Frames {
		r := f.Bounds()
		dispose := f.DisposeOp
		if i == 0 && dispose == DisposeOp_Previous {
			// There is no previous frame to revert to.
			dispose = DisposeOp_Background
		}

		var saved *image.NRGBA
		if dispose == DisposeOp_Previous {
			saved = image.NewNRGBA(r)
			draw.Draw(saved, r, canvas, r.Min, draw.Src)
		}

		op := draw.Src
		if f.BlendOp == BlendOp_Over {
			op = draw.Over
		}
		draw.Draw(canvas, r, f.Pixels, f.Pixels.Bounds().Min, op)

		snap := image.NewNRGBA(canvas.Rect)
		copy(snap.Pix, canvas.Pix)
		out = append(out, snap)

		switch dispose {
		case DisposeOp_Background:
			draw.Draw(canvas, r, image.Transparent, image.Point{}, draw.Src)
		case DisposeOp_Previous:
			draw.Draw(canvas, r, saved, r.Min, draw.Src)
		}
	}
	return out, nil
}
