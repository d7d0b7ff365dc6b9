package texel

import "math"

// Normal is a decoded tangent-space normal.
type Normal struct {
	X, Y, Z float64
}

// Length2 returns the squared length. Decoded normals should be close to 1
// but nothing enforces it.
func (n Normal) Length2() float64 {
	return n.X*n.X + n.Y*n.Y + n.Z*n.Z
}

// Length returns the Euclidean length.
func (n Normal) Length() float64 {
	return math.Sqrt(n.Length2())
}

// Encoding describes how normal components map to stored channel values:
// stored = normal*Range + Center.
type Encoding struct {
	Center  float64
	Range   float64
	InvertY bool
}

// Standard encodings.
var (
	// DefaultEncoding maps [-1, 1] onto [0, 1].
	DefaultEncoding = Encoding{Center: 0.5, Range: 0.5}

	// Symmetric8 is the 8-bit encoding where 127 is zero and 0/254 are -1/+1.
	Symmetric8 = Encoding{Center: 127.0 / 255.0, Range: 127.0 / 255.0}

	// FullRange8 is the 8-bit encoding where 128 is zero and 1/255 are -1/+1.
	FullRange8 = Encoding{Center: 128.0 / 255.0, Range: 127.0 / 255.0}
)

// WithInvertY returns a copy of e with the Y flip set.
func (e Encoding) WithInvertY(invert bool) Encoding {
	e.InvertY = invert
	return e
}

// Decode turns a stored texel into a normal.
func (e Encoding) Decode(t Texel) Normal {
	n := Normal{
		X: (t[0] - e.Center) / e.Range,
		Y: (t[1] - e.Center) / e.Range,
		Z: (t[2] - e.Center) / e.Range,
	}
	if e.InvertY {
		n.Y = -n.Y
	}
	return n
}

// Encode turns a normal and a height value back into a stored texel.
func (e Encoding) Encode(n Normal, height float64) Texel {
	y := n.Y
	if e.InvertY {
		y = -y
	}
	return Texel{
		n.X*e.Range + e.Center,
		y*e.Range + e.Center,
		n.Z*e.Range + e.Center,
		height,
	}
}
