package texel

import "testing"

func TestAtWrapsToroidally(t *testing.T) {
	b := NewBuffer(3, 2, 4)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			b.Set(x, y, Texel{float64(x), float64(y), 0, float64(10*y + x)})
		}
	}

	tests := []struct {
		x, y  int
		wantX int
		wantY int
	}{
		{0, 0, 0, 0},
		{3, 0, 0, 0},
		{4, 1, 1, 1},
		{2, 2, 2, 0},
		{-1, 0, 2, 0},
		{-1, -1, 2, 1},
		{7, -3, 1, 1},
	}
	for _, tc := range tests {
		got := b.At(tc.x, tc.y)
		if int(got[0]) != tc.wantX || int(got[1]) != tc.wantY {
			t.Errorf("At(%d, %d) = texel from (%v, %v), want (%d, %d)",
				tc.x, tc.y, got[0], got[1], tc.wantX, tc.wantY)
		}
	}
}

func TestHasHeight(t *testing.T) {
	for channels, want := range map[int]bool{1: false, 2: false, 3: false, 4: true} {
		if got := NewBuffer(1, 1, channels).HasHeight(); got != want {
			t.Errorf("channels=%d: HasHeight() = %v, want %v", channels, got, want)
		}
	}
}

func TestDecodeLeavesHeight(t *testing.T) {
	b := NewBuffer(2, 2, 4)
	b.Set(1, 1, Texel{0.5, 1, 0, 0.25})
	b.Decode(DefaultEncoding)

	got := b.At(1, 1)
	want := Texel{0, 1, -1, 0.25}
	if got != want {
		t.Fatalf("decoded texel = %v, want %v", got, want)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	b := NewBuffer(16, 1, 3)
	for x := 0; x < 16; x++ {
		v := float64(x*16) / 255.0
		b.Set(x, 0, Texel{v, 1 - v, v, 0})
	}
	orig := make([]Texel, 16)
	for x := range orig {
		orig[x] = b.At(x, 0)
	}

	enc := FullRange8.WithInvertY(true)
	b.Decode(enc)
	b.Encode(enc)

	for x := range orig {
		got := b.At(x, 0)
		for c := 0; c < 3; c++ {
			if d := got[c] - orig[x][c]; d > 1e-12 || d < -1e-12 {
				t.Fatalf("texel %d channel %d: got %v, want %v", x, c, got[c], orig[x][c])
			}
		}
	}
}
