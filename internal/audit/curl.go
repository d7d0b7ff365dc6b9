package audit

import (
	"math"

	"normalmap-audit/internal/texel"
)

// Integrate approximates the integral over t in [0, 1] of
// -(na + (nb-na)t) / (da + (db-da)t), i.e. one gradient component divided by
// the normal's z along an edge, both interpolated linearly between the two
// corner texels.
//
// With nearest set, or when both depths are equal, the edge is treated as two
// half-length constant segments.
func Integrate(na, da, nb, db float64, nearest bool) float64 {
	if nearest || da == db {
		return -(na/da + nb/db) * 0.5
	}
	dd := db - da
	return -((math.Log(math.Abs(db))-math.Log(math.Abs(da)))*(db*na-da*nb) +
		dd*(nb-na)) / (dd * dd)
}

// corners are the four texels of the 2x2 block whose top-left texel is
// (x, y). Neighbours wrap around the image edges.
type corners struct {
	p00, p10, p01, p11 texel.Texel
}

func cornersAt(buf *texel.Buffer, x, y int) corners {
	return corners{
		p00: buf.At(x, y),
		p10: buf.At(x+1, y),
		p01: buf.At(x, y+1),
		p11: buf.At(x+1, y+1),
	}
}

// Block is the discrete line integral of the gradient implied by the normals
// around the boundary of a 2x2 texel block, split into its four edges.
//
// By Stokes' theorem the loop integral equals the surface integral of the
// curl over the block, and the curl of a gradient is zero. A block of a
// consistent normal map therefore has EscherX == EscherY.
type Block struct {
	Top, Right, Bottom, Left float64

	// Height differences along the top and left edges.
	TopHeight, LeftHeight float64
}

// EscherX is the x-gradient part of the loop integral.
func (b Block) EscherX() float64 {
	return b.Top - b.Bottom
}

// EscherY is the y-gradient part of the loop integral.
func (b Block) EscherY() float64 {
	return b.Left - b.Right
}

func (c corners) block(nearest bool) Block {
	return Block{
		Top:        Integrate(c.p00[0], c.p00[2], c.p10[0], c.p10[2], nearest),
		Right:      Integrate(c.p10[1], c.p10[2], c.p11[1], c.p11[2], nearest),
		Bottom:     Integrate(c.p11[0], c.p11[2], c.p01[0], c.p01[2], nearest),
		Left:       Integrate(c.p01[1], c.p01[2], c.p00[1], c.p00[2], nearest),
		TopHeight:  c.p10[3] - c.p00[3],
		LeftHeight: c.p01[3] - c.p00[3],
	}
}

// BlockAt computes the block whose top-left texel is (x, y).
func BlockAt(buf *texel.Buffer, x, y int, nearest bool) Block {
	return cornersAt(buf, x, y).block(nearest)
}

// edgeError is the propagated uncertainty of each edge integral of a block.
type edgeError struct {
	top, right, bottom, left float64
}

func (c corners) edgeError(e float64) edgeError {
	return edgeError{
		top:    RatioError(c.p00[0], c.p00[2], e) + RatioError(c.p10[0], c.p10[2], e),
		right:  RatioError(c.p10[1], c.p10[2], e) + RatioError(c.p11[1], c.p11[2], e),
		bottom: RatioError(c.p11[0], c.p11[2], e) + RatioError(c.p01[0], c.p01[2], e),
		left:   RatioError(c.p01[1], c.p01[2], e) + RatioError(c.p00[1], c.p00[2], e),
	}
}

func (ee edgeError) escherX() float64 {
	return ee.top + ee.bottom
}

func (ee edgeError) escherY() float64 {
	return ee.left + ee.right
}
