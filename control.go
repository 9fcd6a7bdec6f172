package apng

import (
	"fmt"
	"time"
)

// DisposeOp is the dispose operator, as per the APNG spec.
type DisposeOp uint8

const sizeOfDisposeOp = 1

const (
	DisposeOp_None       = DisposeOp(0)
	DisposeOp_Background = DisposeOp(1)
	DisposeOp_Previous   = DisposeOp(2)
)

func (d DisposeOp) valid() bool { return d <= DisposeOp_Previous }

func (d DisposeOp) String() string {
	switch d {
	case DisposeOp_None:
		return "none"
	case DisposeOp_Background:
		return "background"
	case DisposeOp_Previous:
		return "previous"
	}
	return fmt.Sprintf("DisposeOp(%d)", uint8(d))
}

// BlendOp is the blend operator, as per the APNG spec.
type BlendOp uint8

const sizeOfBlendOp = 1

const (
	BlendOp_Source = BlendOp(0)
	BlendOp_Over   = BlendOp(1)
)

func (b BlendOp) valid() bool { return b <= BlendOp_Over }

func (b BlendOp) String() string {
	switch b {
	case BlendOp_Source:
		return "source"
	case BlendOp_Over:
		return "over"
	}
	return fmt.Sprintf("BlendOp(%d)", uint8(b))
}

// Delay is a frame delay of Num/Den seconds. A zero Den means 1/100 s units.
//
// The zero Delay is the infinite delay of a still image: a single-frame
// Image with a zero Delay is shown forever.
type Delay struct {
	Num uint16
	Den uint16
}

// DelayInfinite is the delay of a frame that is never replaced.
var DelayInfinite = Delay{}

// IsInfinite reports whether d is DelayInfinite.
func (d Delay) IsInfinite() bool { return d == DelayInfinite }

// Duration converts d to a time.Duration. The infinite delay converts to 0.
func (d Delay) Duration() time.Duration {
	den := d.Den
	if den == 0 {
		den = 100
	}
	return time.Duration(d.Num) * time.Second / time.Duration(den)
}

func (d Delay) String() string {
	if d.IsInfinite() {
		return "infinite"
	}
	return fmt.Sprintf("%d/%d", d.Num, d.Den)
}

// DelayOf returns the Delay closest to t in 1/1000 s units, or in 1/100 s
// units when the millisecond count does not fit in 16 bits.
func DelayOf(t time.Duration) Delay {
	if t <= 0 {
		return Delay{Num: 0, Den: 1000}
	}
	if t >= 0xFFFF*10*time.Millisecond {
		return Delay{Num: 0xFFFF, Den: 100}
	}
	ms := (t + time.Millisecond/2) / time.Millisecond
	if ms <= 0xFFFF {
		return Delay{Num: uint16(ms), Den: 1000}
	}
	cs := (t + 5*time.Millisecond) / (10 * time.Millisecond)
	if cs > 0xFFFF {
		cs = 0xFFFF
	}
	return Delay{Num: uint16(cs), Den: 100}
}
