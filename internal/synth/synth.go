// Package synth generates normal maps from analytic height fields.
//
// The generated normals are the exact normalized gradient of the field, so a
// correct auditor must find them consistent. Options deliberately break that
// consistency in the ways real exports go wrong.
package synth

import (
	"math"

	"normalmap-audit/internal/texel"
)

// Wave is one sinusoidal term. FX and FY are whole periods across the image,
// which keeps the field tileable.
type Wave struct {
	Amplitude float64
	FX, FY    int
	Phase     float64
}

// Field is a sum of waves over a width x height texel grid.
type Field struct {
	Width, Height int
	Waves         []Wave
}

// DefaultField returns a smooth, tileable field whose mixed derivative is
// nowhere identically zero. Values stay within [-0.45, 0.45].
func DefaultField(width, height int) Field {
	return Field{
		Width:  width,
		Height: height,
		Waves: []Wave{
			{Amplitude: 0.2, FX: 1, FY: 1},
			{Amplitude: 0.15, FX: 2, FY: -1, Phase: 0.5},
			{Amplitude: 0.1, FX: 1, FY: 3, Phase: 1.3},
		},
	}
}

func (f Field) arg(w Wave, x, y float64) float64 {
	return 2*math.Pi*(float64(w.FX)*x/float64(f.Width)+float64(w.FY)*y/float64(f.Height)) + w.Phase
}

// At returns the height at texel coordinates (x, y).
func (f Field) At(x, y float64) float64 {
	var h float64
	for _, w := range f.Waves {
		h += w.Amplitude * math.Sin(f.arg(w, x, y))
	}
	return h
}

// Gradient returns the partial derivatives per texel.
func (f Field) Gradient(x, y float64) (dx, dy float64) {
	for _, w := range f.Waves {
		c := w.Amplitude * math.Cos(f.arg(w, x, y)) * 2 * math.Pi
		dx += c * float64(w.FX) / float64(f.Width)
		dy += c * float64(w.FY) / float64(f.Height)
	}
	return dx, dy
}

// Options shape the generated normals.
type Options struct {
	// Strength multiplies the gradient before it is turned into a normal,
	// i.e. how many height units one unit of stored height is.
	Strength float64

	// ScaleX additionally multiplies the x gradient, simulating an export
	// with non-uniform axis scaling. 0 means 1.
	ScaleX float64

	// InvertY flips the y component of every normal.
	InvertY bool

	// Length multiplies every normal, simulating denormalized data. 0 means 1.
	Length float64

	// WithHeight stores 0.5 + field height in the fourth channel and marks
	// the buffer as 4-channel.
	WithHeight bool
}

// DefaultOptions generates a consistent map with a height channel.
func DefaultOptions() Options {
	return Options{Strength: 8, ScaleX: 1, Length: 1, WithHeight: true}
}

// Generate returns a decoded buffer: channels 0-2 hold unit normals.
func Generate(f Field, opts Options) *texel.Buffer {
	scaleX := opts.ScaleX
	if scaleX == 0 {
		scaleX = 1
	}
	length := opts.Length
	if length == 0 {
		length = 1
	}
	channels := 3
	if opts.WithHeight {
		channels = 4
	}

	buf := texel.NewBuffer(f.Width, f.Height, channels)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			gx, gy := f.Gradient(float64(x), float64(y))
			gx *= opts.Strength * scaleX
			gy *= opts.Strength
			inv := length / texel.Normal{X: gx, Y: gy, Z: 1}.Length()
			n := texel.Texel{-gx * inv, -gy * inv, inv, 0}
			if opts.InvertY {
				n[1] = -n[1]
			}
			if opts.WithHeight {
				n[3] = 0.5 + f.At(float64(x), float64(y))
			}
			buf.Set(x, y, n)
		}
	}
	return buf
}

// Quantize encodes a decoded buffer, rounds every channel to the given bit
// depth and decodes it again, as if it had been stored in an image file.
func Quantize(buf *texel.Buffer, enc texel.Encoding, bits int) {
	levels := math.Exp2(float64(bits)) - 1
	buf.Encode(enc)
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			t := buf.At(x, y)
			for c := range t {
				t[c] = math.Round(clamp01(t[c])*levels) / levels
			}
			buf.Set(x, y, t)
		}
	}
	buf.Decode(enc)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
