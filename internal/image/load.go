// Package image loads normal map images into texel buffers and writes the
// audit's image artifacts.
package image

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"normalmap-audit/internal/texel"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load reads an image file into a texel buffer holding the stored values
// in [0, 1]. Integer formats go through image.Decode; floating point
// formats (.hdr, .exr, .pfm) go through OpenCV.
func Load(path string) (*texel.Buffer, error) {
	if IsFloatFormat(path) {
		return loadFloat(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	buf := FromImage(img)
	// image/png widens gray+alpha to NRGBA; the alpha there is coverage,
	// not height.
	if format == "png" {
		if ct, err := pngColorType(file); err == nil && ct == pngGrayAlpha {
			buf.Channels = 2
		}
	}
	return buf, nil
}

const pngGrayAlpha = 4

// pngColorType reads the color type byte of a PNG's IHDR chunk.
func pngColorType(r io.ReaderAt) (byte, error) {
	var hdr [26]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return 0, err
	}
	if !bytes.Equal(hdr[12:16], []byte("IHDR")) {
		return 0, fmt.Errorf("missing IHDR chunk")
	}
	return hdr[25], nil
}

// Channels returns the channel count of the stored image. Only a 4-channel
// image carries a height map. The decoded type cannot tell gray+alpha PNGs
// from RGBA ones; Load corrects those.
func Channels(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.NRGBA64:
		return 4
	case *image.YCbCr, *image.CMYK:
		return 3
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// FromImage converts img into a texel buffer of unpremultiplied values.
// Grayscale images are replicated into the three normal channels.
func FromImage(img image.Image) *texel.Buffer {
	b := img.Bounds()
	buf := texel.NewBuffer(b.Dx(), b.Dy(), Channels(img))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < buf.Height; y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < buf.Width; x++ {
				p := src.Pix[i : i+4 : i+4]
				buf.Set(x, y, texel.Texel{
					float64(p[0]) / 0xff,
					float64(p[1]) / 0xff,
					float64(p[2]) / 0xff,
					float64(p[3]) / 0xff,
				})
				i += 4
			}
		}
	case *image.NRGBA64:
		for y := 0; y < buf.Height; y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < buf.Width; x++ {
				p := src.Pix[i : i+8 : i+8]
				buf.Set(x, y, texel.Texel{
					float64(uint16(p[0])<<8|uint16(p[1])) / 0xffff,
					float64(uint16(p[2])<<8|uint16(p[3])) / 0xffff,
					float64(uint16(p[4])<<8|uint16(p[5])) / 0xffff,
					float64(uint16(p[6])<<8|uint16(p[7])) / 0xffff,
				})
				i += 8
			}
		}
	default:
		for y := 0; y < buf.Height; y++ {
			for x := 0; x < buf.Width; x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				buf.Set(x, y, texel.Texel{
					float64(c.R) / 0xffff,
					float64(c.G) / 0xffff,
					float64(c.B) / 0xffff,
					float64(c.A) / 0xffff,
				})
			}
		}
	}
	return buf
}

// SupportedFormats returns the list of readable file extensions.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp", ".webp", ".hdr", ".exr", ".pfm"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// IsFloatFormat reports whether path names a floating point image format
// that can hold the unclamped diagnostic.
func IsFloatFormat(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hdr", ".exr", ".pfm":
		return true
	}
	return false
}
