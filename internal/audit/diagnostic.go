package audit

// Diagnostic is the optional per-texel error image: three float channels
// holding unexplained residual magnitudes. Values are not clamped.
type Diagnostic struct {
	Width  int
	Height int

	// PostCorrection is set when the channels were computed against the
	// per-axis and area-preserving fits instead of the unscaled ones.
	PostCorrection bool

	// Pix holds the channels row by row, three floats per texel.
	Pix []float32
}

// NewDiagnostic allocates a zeroed diagnostic buffer.
func NewDiagnostic(width, height int, postCorrection bool) *Diagnostic {
	return &Diagnostic{
		Width:          width,
		Height:         height,
		PostCorrection: postCorrection,
		Pix:            make([]float32, 3*width*height),
	}
}

// At returns the three channels at (x, y).
func (d *Diagnostic) At(x, y int) [3]float32 {
	i := 3 * (y*d.Width + x)
	return [3]float32{d.Pix[i], d.Pix[i+1], d.Pix[i+2]}
}

// Set stores the three channels at (x, y).
func (d *Diagnostic) Set(x, y int, v [3]float32) {
	i := 3 * (y*d.Width + x)
	d.Pix[i] = v[0]
	d.Pix[i+1] = v[1]
	d.Pix[i+2] = v[2]
}

// Max returns the largest value of each channel.
func (d *Diagnostic) Max() [3]float32 {
	var m [3]float32
	for i, v := range d.Pix {
		if v > m[i%3] {
			m[i%3] = v
		}
	}
	return m
}

// ChannelNames describes what each diagnostic channel holds.
func (d *Diagnostic) ChannelNames() [3]string {
	return DiagnosticChannels(d.PostCorrection)
}

// DiagnosticChannels returns the channel labels for either diagnostic mode.
func DiagnosticChannels(postCorrection bool) [3]string {
	if postCorrection {
		return [3]string{"heightmap_scale_error", "length_error", "normalmap_fix_error"}
	}
	return [3]string{"heightmap_error", "length_error", "normalmap_error"}
}
