package audit

import (
	"math"

	"normalmap-audit/internal/texel"
)

// texelError holds the unexplained residuals of one texel's block.
type texelError struct {
	// Height residuals against the combined slope.
	x, y float64

	// Height residuals against the per-axis slopes.
	xx, yy float64

	escher    float64
	escherFix float64
	length2   float64
}

// diagnostic returns the three channels written to the diagnostic buffer.
func (te texelError) diagnostic(postCorrection bool) [3]float32 {
	if postCorrection {
		return [3]float32{float32(te.xx + te.yy), float32(te.length2), float32(te.escherFix)}
	}
	return [3]float32{float32(te.x + te.y), float32(te.length2), float32(te.escher)}
}

func residualAt(buf *texel.Buffer, x, y int, fit FitParams, nearest bool, u Uncertainty) texelError {
	c := cornersAt(buf, x, y)
	b := c.block(nearest)
	ee := c.edgeError(u.Normal)

	heightE := 2 * u.Height
	escherX, escherY := b.EscherX(), b.EscherY()
	escherXE, escherYE := ee.escherX(), ee.escherY()

	n := c.p00.Normal()
	lengthE := 2 * (math.Abs(n.X) + math.Abs(n.Y) + math.Abs(n.Z)) * u.Normal

	return texelError{
		x: Unexplained(b.TopHeight-b.Top*fit.Height,
			heightE+ee.top*math.Abs(fit.Height)),
		y: Unexplained(b.LeftHeight-b.Left*fit.Height,
			heightE+ee.left*math.Abs(fit.Height)),
		xx: Unexplained(b.TopHeight-b.Top*fit.HeightX,
			heightE+ee.top*math.Abs(fit.HeightX)),
		yy: Unexplained(b.LeftHeight-b.Left*fit.HeightY,
			heightE+ee.left*math.Abs(fit.HeightY)),
		escher: Unexplained(escherX-escherY, escherXE+escherYE),
		escherFix: Unexplained(escherX*fit.EscherMX-escherY*fit.EscherMY,
			escherXE*math.Abs(fit.EscherMX)+escherYE*math.Abs(fit.EscherMY)),
		length2: Unexplained(n.Length2()-1, lengthE),
	}
}

// Residuals are the sums of squared unexplained residuals from pass two.
type Residuals struct {
	// Height sums both axes against the combined slope.
	Height    float64
	HeightX   float64
	HeightY   float64
	Escher    float64
	EscherFix float64
	Length2   float64
}

func (r *Residuals) add(te texelError) {
	r.Height += te.x*te.x + te.y*te.y
	r.HeightX += te.xx * te.xx
	r.HeightY += te.yy * te.yy
	r.Escher += te.escher * te.escher
	r.EscherFix += te.escherFix * te.escherFix
	r.Length2 += te.length2 * te.length2
}

// Plus merges two partial sums.
func (r Residuals) Plus(o Residuals) Residuals {
	return Residuals{
		Height:    r.Height + o.Height,
		HeightX:   r.HeightX + o.HeightX,
		HeightY:   r.HeightY + o.HeightY,
		Escher:    r.Escher + o.Escher,
		EscherFix: r.EscherFix + o.EscherFix,
		Length2:   r.Length2 + o.Length2,
	}
}
