// Package texel holds the decoded pixel buffer a normal map audit works on.
package texel

import "fmt"

// Texel is one stored pixel: normal x, y, z and height (or unused).
type Texel [4]float64

// Height returns the fourth channel.
func (t Texel) Height() float64 {
	return t[3]
}

// Normal returns the first three channels as a normal vector.
// Only meaningful after the buffer has been decoded.
func (t Texel) Normal() Normal {
	return Normal{X: t[0], Y: t[1], Z: t[2]}
}

// Buffer is a width x height grid of texels.
//
// Lookups through At wrap toroidally. The audit treats every image as a
// tileable texture, so the right neighbour of the last column is the first
// column and the same holds vertically.
type Buffer struct {
	Width  int
	Height int

	// Channels is the number of channels in the source image before it was
	// expanded to four. Only a 4-channel source carries a height channel.
	Channels int

	pix []Texel
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int) *Buffer {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("texel: negative buffer size %dx%d", width, height))
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		pix:      make([]Texel, width*height),
	}
}

// HasHeight reports whether the source image carried a fourth channel.
func (b *Buffer) HasHeight() bool {
	return b.Channels == 4
}

// Len returns the number of texels.
func (b *Buffer) Len() int {
	return len(b.pix)
}

// At returns the texel at (x, y), wrapping both coordinates.
func (b *Buffer) At(x, y int) Texel {
	return b.pix[b.index(x, y)]
}

// Set stores a texel at (x, y), wrapping both coordinates.
func (b *Buffer) Set(x, y int, t Texel) {
	b.pix[b.index(x, y)] = t
}

func (b *Buffer) index(x, y int) int {
	x %= b.Width
	if x < 0 {
		x += b.Width
	}
	y %= b.Height
	if y < 0 {
		y += b.Height
	}
	return y*b.Width + x
}

// Decode converts stored channel values into normal components in place.
// The height channel is left untouched.
func (b *Buffer) Decode(enc Encoding) {
	for i := range b.pix {
		n := enc.Decode(b.pix[i])
		b.pix[i][0] = n.X
		b.pix[i][1] = n.Y
		b.pix[i][2] = n.Z
	}
}

// Encode is the inverse of Decode.
func (b *Buffer) Encode(enc Encoding) {
	for i := range b.pix {
		b.pix[i] = enc.Encode(b.pix[i].Normal(), b.pix[i].Height())
	}
}
