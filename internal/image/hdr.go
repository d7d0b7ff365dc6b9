package image

import (
	"errors"
	"fmt"
	"os"

	"normalmap-audit/internal/audit"
	"normalmap-audit/internal/texel"

	"gocv.io/x/gocv"
)

// ErrNotFloatFormat is returned when a diagnostic is written to a file
// whose extension has no floating point encoder.
var ErrNotFloatFormat = errors.New("output must be .hdr, .exr or .pfm")

// loadFloat reads an image through OpenCV. Integer depths are normalized
// to [0, 1]; float depths are taken as stored.
func loadFloat(path string) (*texel.Buffer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	if mat.Empty() {
		return nil, fmt.Errorf("failed to decode image: %s", path)
	}
	defer mat.Close()

	return matToBuffer(mat)
}

func depthScale(mt gocv.MatType) (float64, error) {
	switch mt & 7 {
	case gocv.MatTypeCV8U:
		return 1.0 / 0xff, nil
	case gocv.MatTypeCV16U:
		return 1.0 / 0xffff, nil
	case gocv.MatTypeCV32F, gocv.MatTypeCV64F:
		return 1, nil
	}
	return 0, fmt.Errorf("failed to decode image: unsupported depth %d", mt&7)
}

// matToBuffer converts a BGR(A) or gray Mat into a texel buffer.
func matToBuffer(mat gocv.Mat) (*texel.Buffer, error) {
	channels := mat.Channels()
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("failed to decode image: %d channels", channels)
	}
	scale, err := depthScale(mat.Type())
	if err != nil {
		return nil, err
	}

	f := gocv.NewMat()
	defer f.Close()
	mat.ConvertToWithParams(&f, gocv.MatTypeCV32F, float32(scale), 0)

	// OpenCV stores blue first.
	order := [4]int{2, 1, 0, 3}

	buf := texel.NewBuffer(f.Cols(), f.Rows(), channels)
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			var t texel.Texel
			if channels == 1 {
				v := float64(f.GetFloatAt(y, x))
				t = texel.Texel{v, v, v, 1}
			} else {
				t[3] = 1
				for c := 0; c < channels; c++ {
					t[order[c]] = float64(f.GetFloatAt(y, x*channels+c))
				}
			}
			buf.Set(x, y, t)
		}
	}
	return buf, nil
}

// diagnosticToMat converts the diagnostic into a 3-channel float Mat in
// OpenCV's BGR order.
func diagnosticToMat(d *audit.Diagnostic) gocv.Mat {
	mat := gocv.NewMatWithSize(d.Height, d.Width, gocv.MatTypeCV32FC3)
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			v := d.At(x, y)
			mat.SetFloatAt(y, x*3, v[2])
			mat.SetFloatAt(y, x*3+1, v[1])
			mat.SetFloatAt(y, x*3+2, v[0])
		}
	}
	return mat
}

// WriteDiagnostic writes the unclamped diagnostic buffer to a floating
// point image. The format follows the extension of path.
func WriteDiagnostic(path string, d *audit.Diagnostic) error {
	if !IsFloatFormat(path) {
		return fmt.Errorf("failed to encode %s: %w", path, ErrNotFloatFormat)
	}
	// OpenCV reports no cause on failure, so probe the path first.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	f.Close()

	mat := diagnosticToMat(d)
	defer mat.Close()

	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to encode %s", path)
	}
	return nil
}
