package image

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"normalmap-audit/internal/audit"
	"normalmap-audit/internal/texel"
	"normalmap-audit/pkg/colorutil"

	xdraw "golang.org/x/image/draw"
)

// NormalImage re-encodes the decoded normals of buf with enc into an
// opaque 8-bit image.
func NormalImage(buf *texel.Buffer, enc texel.Encoding) *image.NRGBA {
	return encodeNRGBA(buf, enc, false)
}

// EncodeImage stores buf as an 8-bit image with the normals encoded by enc
// and the height in alpha when buf carries one.
func EncodeImage(buf *texel.Buffer, enc texel.Encoding) *image.NRGBA {
	return encodeNRGBA(buf, enc, buf.HasHeight())
}

func encodeNRGBA(buf *texel.Buffer, enc texel.Encoding, withHeight bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			t := buf.At(x, y)
			s := enc.Encode(t.Normal(), t.Height())
			i := img.PixOffset(x, y)
			img.Pix[i+0] = colorutil.To8(s[0])
			img.Pix[i+1] = colorutil.To8(s[1])
			img.Pix[i+2] = colorutil.To8(s[2])
			img.Pix[i+3] = 0xff
			if withHeight {
				img.Pix[i+3] = colorutil.To8(s[3])
			}
		}
	}
	return img
}

// HeightImage returns the height channel of buf as a 16-bit gray image.
func HeightImage(buf *texel.Buffer) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			v := colorutil.To16(buf.At(x, y).Height())
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img
}

// DiagnosticPreview tone maps the diagnostic buffer into a displayable
// 8-bit image. exposure scales the errors before the v/(v+1) curve.
func DiagnosticPreview(d *audit.Diagnostic, exposure float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, d.Width, d.Height))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			v := d.At(x, y)
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				img.Pix[i+c] = colorutil.To8(colorutil.ToneMap(float64(v[c]), exposure))
			}
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

// Thumbnail scales img so its longer side is at most maxSide pixels.
// Images that already fit are returned unchanged.
func Thumbnail(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}

	tw, th := maxSide, maxSide
	if w > h {
		th = max(1, h*maxSide/w)
	} else {
		tw = max(1, w*maxSide/h)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
