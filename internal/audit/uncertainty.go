package audit

import "math"

// Uncertainty holds the assumed symmetric quantization half-widths of the
// decoded inputs. It is fixed for a whole run.
type Uncertainty struct {
	// Normal applies to each decoded normal component.
	Normal float64
	// Height applies to each height value.
	Height float64
}

// NewUncertainty derives the quantization bounds of values stored with the
// given number of bits per channel. rng is the encoding range, so one
// stored level is 1/(levels*rng) in normal units. discount scales both
// bounds; 0 disables uncertainty propagation entirely.
func NewUncertainty(discount, rng float64, bits int) Uncertainty {
	levels := math.Exp2(float64(bits)) - 1
	return Uncertainty{
		Normal: discount / (levels * rng),
		Height: discount / levels,
	}
}

// RatioError is the width of the interval n/d can take when both n and d
// are only known up to +-e. It is non-negative whenever |d| > e.
func RatioError(n, d, e float64) float64 {
	an, ad := math.Abs(n), math.Abs(d)
	return (an+e)/(ad-e) - (an-e)/(ad+e)
}

// Unexplained returns how far |r| exceeds the uncertainty u, or 0 if the
// residual is within it. Only this part of a residual counts as error.
func Unexplained(r, u float64) float64 {
	ar := math.Abs(r)
	if ar < u {
		return 0
	}
	return ar - u
}
