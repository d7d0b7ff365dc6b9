package audit

import "math"

// Accumulator collects the sums needed for a least-squares fit of y
// against x through the origin.
type Accumulator struct {
	Sxx, Sxy, Syy float64
}

// Add records one (x, y) pair.
func (a *Accumulator) Add(x, y float64) {
	a.Sxx += x * x
	a.Sxy += x * y
	a.Syy += y * y
}

// Plus returns the accumulator holding the pairs of both a and b.
func (a Accumulator) Plus(b Accumulator) Accumulator {
	return Accumulator{
		Sxx: a.Sxx + b.Sxx,
		Sxy: a.Sxy + b.Sxy,
		Syy: a.Syy + b.Syy,
	}
}

// Slope is the least-squares m minimizing sum((y - m*x)^2).
// It is NaN or infinite when no x variance was recorded.
func (a Accumulator) Slope() float64 {
	return a.Sxy / a.Sxx
}

// AreaPreservingFit finds mx, my with |mx*my| = 1 minimizing
// sum((x*mx - y*my)^2).
//
// Substituting mx = sqrt(m), my = 1/sqrt(m) leaves
// Sxx*m - 2*Sxy + Syy/m, which is minimal at m = sqrt(Syy/Sxx). The sign of
// mx follows Sxy so that the cross term stays negative.
//
// The R^2 of this fit is not necessarily higher than that of the unscaled
// comparison: after nonuniform scaling the variance changes too, so the
// minimal RMS does not maximize R^2.
func (a Accumulator) AreaPreservingFit() (mx, my float64) {
	mx = math.Sqrt(math.Sqrt(a.Syy / a.Sxx))
	my = math.Sqrt(math.Sqrt(a.Sxx / a.Syy))
	if a.Sxy < 0 {
		mx = -mx
	}
	return mx, my
}

// Regression is the pass-one state: height differences regressed on the
// top and left edge integrals, and EscherY regressed on EscherX.
//
// The bottom and right edges are not recorded; they are the top and left
// edges of neighbouring blocks.
type Regression struct {
	HeightX Accumulator
	HeightY Accumulator
	Escher  Accumulator
}

// Add records one block.
func (r *Regression) Add(b Block) {
	r.HeightX.Add(b.Top, b.TopHeight)
	r.HeightY.Add(b.Left, b.LeftHeight)
	r.Escher.Add(b.EscherX(), b.EscherY())
}

// Plus merges two partial regressions.
func (r Regression) Plus(o Regression) Regression {
	return Regression{
		HeightX: r.HeightX.Plus(o.HeightX),
		HeightY: r.HeightY.Plus(o.HeightY),
		Escher:  r.Escher.Plus(o.Escher),
	}
}

// Height is the combined accumulator over both axes.
func (r Regression) Height() Accumulator {
	return r.HeightX.Plus(r.HeightY)
}

// Fit derives the closed-form coefficients the second pass measures
// residuals against.
func (r Regression) Fit() FitParams {
	mx, my := r.Escher.AreaPreservingFit()
	return FitParams{
		HeightX:  r.HeightX.Slope(),
		HeightY:  r.HeightY.Slope(),
		Height:   r.Height().Slope(),
		EscherMX: mx,
		EscherMY: my,
	}
}

// FitParams are the global regression coefficients from pass one.
type FitParams struct {
	// Height slopes: height difference per unit of edge integral.
	HeightX, HeightY, Height float64

	// Area-preserving scale factors for EscherX and EscherY.
	EscherMX, EscherMY float64
}
