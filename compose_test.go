package apng

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposite(t *testing.T) {
	var (
		red   = color.NRGBA{R: 255, A: 255}
		blue  = color.NRGBA{B: 255, A: 255}
		green = color.NRGBA{G: 255, A: 255}
		none  = color.NRGBA{}
	)
	m := &Image{
		Width: 4, Height: 4, Scale: 1,
		Frames: []*Frame{
			{Pixels: solid(4, 4, red)},
			{Pixels: solid(2, 2, blue), XOffset: 1, YOffset: 1, DisposeOp: DisposeOp_Background, BlendOp: BlendOp_Over},
			{Pixels: solid(1, 1, green), DisposeOp: DisposeOp_Previous},
			{Pixels: solid(1, 1, none), XOffset: 3, YOffset: 3, BlendOp: BlendOp_Over},
			{Pixels: solid(1, 1, none), XOffset: 3, YOffset: 3, BlendOp: BlendOp_Source},
		},
	}
	snaps, err := Composite(m)
	require.NoError(t, err)
	require.Len(t, snaps, 5)

	for _, tc := range []struct {
		frame, x, y int
		want        color.NRGBA
	}{
		{0, 0, 0, red},
		{0, 3, 3, red},
		{1, 1, 1, blue},
		{1, 2, 2, blue},
		{1, 0, 0, red},
		// Frame 1's region was cleared before frame 2.
		{2, 1, 1, none},
		{2, 2, 2, none},
		{2, 0, 0, green},
		{2, 3, 3, red},
		// Frame 2's region was restored before frame 3.
		{3, 0, 0, red},
		{3, 3, 3, red},
		{3, 1, 1, none},
		// Source replaces, even with a transparent pixel.
		{4, 3, 3, none},
	} {
		assert.Equal(t, tc.want, snaps[tc.frame].NRGBAAt(tc.x, tc.y), "frame %d at (%d,%d)", tc.frame, tc.x, tc.y)
	}
}

func TestComposite_FirstFrameDisposePrevious(t *testing.T) {
	m := &Image{
		Width: 2, Height: 2, Scale: 1,
		Frames: []*Frame{
			{Pixels: solid(2, 2, color.NRGBA{R: 255, A: 255}), DisposeOp: DisposeOp_Previous},
			{Pixels: solid(1, 1, color.NRGBA{B: 255, A: 255}), BlendOp: BlendOp_Over},
		},
	}
	snaps, err := Composite(m)
	require.NoError(t, err)
	// Dispose-previous on the first frame clears to the background.
	assert.Equal(t, color.NRGBA{}, snaps[1].NRGBAAt(1, 1))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, snaps[1].NRGBAAt(0, 0))
}

func TestComposite_Invalid(t *testing.T) {
	_, err := Composite(&Image{Width: 1, Height: 1, Scale: 1})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
