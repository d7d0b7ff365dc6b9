// Package colorutil provides shared color conversions for image previews.
package colorutil

import "math"

// Clamp01 limits v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ToneMap compresses an unbounded non-negative value into [0, 1) with
// v/(v+1) after multiplying by exposure. Negative, NaN and zero values map
// to 0, +Inf maps to 1.
func ToneMap(v, exposure float64) float64 {
	v *= exposure
	if !(v > 0) {
		return 0
	}
	if math.IsInf(v, 1) {
		return 1
	}
	return v / (v + 1)
}

// To8 quantizes a [0, 1] value to 8 bits with rounding.
func To8(v float64) uint8 {
	return uint8(math.Round(Clamp01(v) * 255))
}

// To16 quantizes a [0, 1] value to 16 bits with rounding.
func To16(v float64) uint16 {
	return uint16(math.Round(Clamp01(v) * 65535))
}
