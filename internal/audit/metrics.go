package audit

import "math"

// Decision thresholds.
const (
	// MinAxisRatio and MaxAxisRatio bound the accepted ratio between the
	// x and y scale of a fit.
	MinAxisRatio = 0.8
	MaxAxisRatio = 1.25

	// MinR2 is the lowest coefficient of determination considered consistent.
	MinR2 = 0.5

	// MaxLengthVar is the largest accepted normal length variance.
	MaxLengthVar = 0.001
)

// HeightMetrics compare the normal map against the height channel.
type HeightMetrics struct {
	Scale  float64
	R2     float64
	XScale float64
	XR2    float64
	YScale float64
	YR2    float64
}

// AxisRatio is XScale / YScale.
func (h HeightMetrics) AxisRatio() float64 {
	return h.XScale / h.YScale
}

// NormalMetrics describe the normal map on its own.
type NormalMetrics struct {
	// R2 of EscherY against EscherX with no rescaling.
	R2 float64

	// Area-preserving axis scales and the R2 after applying them.
	FixMX, FixMY float64
	FixR2        float64

	LengthVar float64
}

// FixScale is FixMX / FixMY.
func (n NormalMetrics) FixScale() float64 {
	return n.FixMX / n.FixMY
}

// Metrics are the decision values of one audit. Any of them may be NaN or
// infinite when the underlying statistics were degenerate.
type Metrics struct {
	HasHeight bool
	Height    HeightMetrics
	Normal    NormalMetrics
}

// computeMetrics turns the pass sums into metrics.
func computeMetrics(reg Regression, fit FitParams, res Residuals, texels int, hasHeight bool) Metrics {
	escherFixSyy := reg.Escher.Syy * fit.EscherMY * fit.EscherMY
	return Metrics{
		HasHeight: hasHeight,
		Height: HeightMetrics{
			Scale:  fit.Height,
			R2:     1 - res.Height/reg.Height().Syy,
			XScale: fit.HeightX,
			XR2:    1 - res.HeightX/reg.HeightX.Syy,
			YScale: fit.HeightY,
			YR2:    1 - res.HeightY/reg.HeightY.Syy,
		},
		Normal: NormalMetrics{
			R2:        1 - res.Escher/reg.Escher.Syy,
			FixMX:     fit.EscherMX,
			FixMY:     fit.EscherMY,
			FixR2:     1 - res.EscherFix/escherFixSyy,
			LengthVar: res.Length2 / float64(texels) * 0.5,
		},
	}
}

// Flags are the diagnostic conclusions drawn from Metrics.
type Flags struct {
	HeightmapMissing      bool
	HeightmapInverted     bool
	HeightmapInvertedY    bool
	HeightmapNonuniform   bool
	HeightmapInconsistent bool

	NormalmapInvertedY    bool
	NormalmapNonuniform   bool
	NormalmapInconsistent bool
	NormalmapDenormalized bool
}

// Any reports whether any flag is raised.
func (f Flags) Any() bool {
	return f != Flags{}
}

// Flags evaluates the thresholds. A NaN metric never raises a flag.
func (m Metrics) Flags() Flags {
	var f Flags
	if m.HasHeight {
		h := m.Height
		f.HeightmapInverted = h.XScale < 0
		f.HeightmapInvertedY = h.XScale*h.YScale < 0
		f.HeightmapNonuniform = nonuniform(h.AxisRatio())
		f.HeightmapInconsistent = h.R2 < MinR2
	} else {
		f.HeightmapMissing = true
	}

	n := m.Normal
	f.NormalmapInvertedY = n.FixMX*n.FixMY < 0
	f.NormalmapNonuniform = nonuniform(n.FixScale())
	f.NormalmapInconsistent = n.R2 < MinR2
	f.NormalmapDenormalized = n.LengthVar > MaxLengthVar
	return f
}

func nonuniform(ratio float64) bool {
	r := math.Abs(ratio)
	return r < MinAxisRatio || r > MaxAxisRatio
}
