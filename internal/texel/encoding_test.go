package texel

import (
	"math"
	"testing"
)

func TestDecodePresets(t *testing.T) {
	tests := []struct {
		name   string
		enc    Encoding
		stored float64
		want   float64
	}{
		{"default zero", DefaultEncoding, 0.5, 0},
		{"default one", DefaultEncoding, 1, 1},
		{"default minus one", DefaultEncoding, 0, -1},
		{"symmetric zero", Symmetric8, 127.0 / 255.0, 0},
		{"symmetric one", Symmetric8, 254.0 / 255.0, 1},
		{"symmetric minus one", Symmetric8, 0, -1},
		{"full range zero", FullRange8, 128.0 / 255.0, 0},
		{"full range one", FullRange8, 1, 1},
		{"full range minus one", FullRange8, 1.0 / 255.0, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := tc.enc.Decode(Texel{tc.stored, tc.stored, tc.stored, 0})
			for _, got := range []float64{n.X, n.Y, n.Z} {
				if math.Abs(got-tc.want) > 1e-12 {
					t.Fatalf("Decode(%v) = %v, want %v", tc.stored, got, tc.want)
				}
			}
		})
	}
}

func TestDecodeInvertY(t *testing.T) {
	stored := Texel{0.75, 0.75, 0.75, 0}
	plain := DefaultEncoding.Decode(stored)
	flipped := DefaultEncoding.WithInvertY(true).Decode(stored)

	if flipped.X != plain.X || flipped.Z != plain.Z {
		t.Fatalf("invert changed X or Z: %+v vs %+v", flipped, plain)
	}
	if flipped.Y != -plain.Y {
		t.Fatalf("flipped Y = %v, want %v", flipped.Y, -plain.Y)
	}
}

// Re-encoding an 8-bit stored value must land on the same quantization level.
func TestEncodeReproducesStoredLevels(t *testing.T) {
	for _, enc := range []Encoding{DefaultEncoding, Symmetric8, FullRange8, FullRange8.WithInvertY(true)} {
		for level := 0; level <= 255; level++ {
			stored := float64(level) / 255.0
			n := enc.Decode(Texel{stored, stored, stored, 0})
			back := enc.Encode(n, 0)
			for c := 0; c < 3; c++ {
				if got := int(math.Round(back[c] * 255)); got != level {
					t.Fatalf("%+v: level %d channel %d re-encoded to %d", enc, level, c, got)
				}
			}
		}
	}
}

func TestNormalLength(t *testing.T) {
	n := Normal{X: 3, Y: 4, Z: 0}
	if n.Length2() != 25 {
		t.Errorf("Length2() = %v, want 25", n.Length2())
	}
	if n.Length() != 5 {
		t.Errorf("Length() = %v, want 5", n.Length())
	}
}
