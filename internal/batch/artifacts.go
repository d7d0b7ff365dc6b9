package batch

import (
	"image"
	"path/filepath"

	"normalmap-audit/internal/audit"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/texel"
)

// writeArtifacts writes the images the viewer links to. Each displayable
// image gets a "-t.png" thumbnail next to it.
func (r *runner) writeArtifacts(prefix string, buf *texel.Buffer, diag *audit.Diagnostic, enc texel.Encoding) (Artifacts, error) {
	a := Artifacts{
		Norm:         prefix + "-norm.png",
		NormThumb:    prefix + "-norm-t.png",
		Preview:      prefix + "-report.png",
		PreviewThumb: prefix + "-report-t.png",
		Diagnostic:   prefix + "-report.hdr",
	}
	if err := r.writeWithThumb(a.Norm, a.NormThumb, nmimage.NormalImage(buf, enc)); err != nil {
		return a, err
	}
	if buf.HasHeight() {
		a.Height = prefix + "-height.png"
		a.HeightThumb = prefix + "-height-t.png"
		if err := r.writeWithThumb(a.Height, a.HeightThumb, nmimage.HeightImage(buf)); err != nil {
			return a, err
		}
	}
	preview := nmimage.DiagnosticPreview(diag, r.opts.Config.PreviewExposure)
	if err := r.writeWithThumb(a.Preview, a.PreviewThumb, preview); err != nil {
		return a, err
	}
	if err := nmimage.WriteDiagnostic(r.path(a.Diagnostic), diag); err != nil {
		return a, err
	}
	return a, nil
}

func (r *runner) writeWithThumb(name, thumb string, img image.Image) error {
	if err := nmimage.WritePNG(r.path(name), img); err != nil {
		return err
	}
	return nmimage.WritePNG(r.path(thumb), nmimage.Thumbnail(img, r.opts.ThumbSize))
}

func (r *runner) path(name string) string {
	return filepath.Join(r.opts.OutDir, name)
}
