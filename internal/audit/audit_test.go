package audit

import (
	"errors"
	"math"
	"testing"

	"normalmap-audit/internal/synth"
	"normalmap-audit/internal/texel"
)

const size = 64

func quantized() Uncertainty {
	return NewUncertainty(1, texel.DefaultEncoding.Range, 8)
}

func run(t *testing.T, buf *texel.Buffer, opts Options) *Result {
	t.Helper()
	res, err := Run(buf, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func generate(opts synth.Options) *texel.Buffer {
	return synth.Generate(synth.DefaultField(size, size), opts)
}

func TestConsistentMapIsClean(t *testing.T) {
	res := run(t, generate(synth.DefaultOptions()), Options{Uncertainty: quantized(), Workers: 1})
	m := res.Metrics

	for name, r2 := range map[string]float64{
		"heightmap_R_2":     m.Height.R2,
		"heightmap_x_R_2":   m.Height.XR2,
		"heightmap_y_R_2":   m.Height.YR2,
		"normalmap_R_2":     m.Normal.R2,
		"normalmap_fix_R_2": m.Normal.FixR2,
	} {
		if math.Abs(r2-1) > 1e-9 {
			t.Errorf("%s = %v, want 1", name, r2)
		}
	}
	if m.Normal.LengthVar > 1e-12 {
		t.Errorf("LengthVar = %v, want 0", m.Normal.LengthVar)
	}
	// One stored height unit corresponds to Strength gradient units.
	if want := 1.0 / 8; math.Abs(m.Height.Scale-want) > 1e-3 {
		t.Errorf("height scale = %v, want about %v", m.Height.Scale, want)
	}
	if f := res.Flags(); f.Any() {
		t.Errorf("unexpected flags: %+v", f)
	}
}

func TestConsistentMapWithoutUncertainty(t *testing.T) {
	res := run(t, generate(synth.DefaultOptions()), Options{Workers: 1})
	m := res.Metrics
	if m.Height.R2 < 0.99 || m.Normal.R2 < 0.99 {
		t.Errorf("R2 = %v / %v, want close to 1", m.Height.R2, m.Normal.R2)
	}
	if f := res.Flags(); f.Any() {
		t.Errorf("unexpected flags: %+v", f)
	}
}

func TestQuantizedMapIsClean(t *testing.T) {
	buf := generate(synth.DefaultOptions())
	synth.Quantize(buf, texel.DefaultEncoding, 8)

	res := run(t, buf, Options{Uncertainty: quantized(), Workers: 1})
	if f := res.Flags(); f.Any() {
		t.Errorf("unexpected flags on 8-bit map: %+v", f)
	}
}

func TestFlatMap(t *testing.T) {
	buf := texel.NewBuffer(8, 8, 4)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			buf.Set(x, y, texel.Texel{0, 0, 1, 0.5})
		}
	}
	res := run(t, buf, Options{Uncertainty: quantized()})
	m := res.Metrics

	if m.Normal.LengthVar > 1e-12 {
		t.Errorf("LengthVar = %v, want 0", m.Normal.LengthVar)
	}
	// Nothing varies, so every R2 is 0/0.
	if !math.IsNaN(m.Normal.R2) || !math.IsNaN(m.Height.R2) {
		t.Errorf("R2 = %v / %v, want NaN", m.Normal.R2, m.Height.R2)
	}
	f := res.Flags()
	if f.NormalmapDenormalized {
		t.Error("flat map flagged as denormalized")
	}
	if f.NormalmapInconsistent || f.HeightmapInconsistent {
		t.Error("NaN R2 must not raise a flag")
	}
}

func TestInvertedY(t *testing.T) {
	opts := synth.DefaultOptions()
	opts.InvertY = true
	res := run(t, generate(opts), Options{Uncertainty: quantized(), Workers: 1})
	h := res.Metrics.Height

	if h.XScale <= 0 || h.YScale >= 0 {
		t.Fatalf("scales = %v / %v, want x positive and y negative", h.XScale, h.YScale)
	}
	if math.Abs(h.XScale+h.YScale) > 1e-3 {
		t.Errorf("y scale %v is not the mirror of x scale %v", h.YScale, h.XScale)
	}
	f := res.Flags()
	if !f.HeightmapInvertedY {
		t.Error("missing error_heightmap_normalmap_inverted_y")
	}
	if f.HeightmapInverted {
		t.Error("x axis flagged as inverted")
	}
	if !f.NormalmapInvertedY {
		t.Error("missing error_normalmap_inverted_y")
	}
}

func TestNonuniformScaling(t *testing.T) {
	opts := synth.DefaultOptions()
	opts.ScaleX = 2
	opts.WithHeight = false
	res := run(t, generate(opts), Options{Uncertainty: quantized(), Workers: 1})
	n := res.Metrics.Normal

	if ratio := math.Abs(n.FixScale()); ratio >= MinAxisRatio && ratio <= MaxAxisRatio {
		t.Errorf("fix scale %v inside [%v, %v]", ratio, MinAxisRatio, MaxAxisRatio)
	}
	if math.Abs(n.FixR2-1) > 1e-3 {
		t.Errorf("FixR2 = %v, want about 1", n.FixR2)
	}
	f := res.Flags()
	if !f.NormalmapNonuniform {
		t.Error("missing error_normalmap_nonuniform_scaling")
	}
	if !f.HeightmapMissing {
		t.Error("missing error_heightmap_missing")
	}
	if f.HeightmapNonuniform || f.HeightmapInvertedY || f.HeightmapInconsistent {
		t.Errorf("height flags raised without a height channel: %+v", f)
	}
}

func TestDenormalized(t *testing.T) {
	opts := synth.DefaultOptions()
	opts.Length = 1.1
	res := run(t, generate(opts), Options{Uncertainty: quantized()})

	if lv := res.Metrics.Normal.LengthVar; lv <= MaxLengthVar {
		t.Fatalf("LengthVar = %v, want > %v", lv, MaxLengthVar)
	}
	if !res.Flags().NormalmapDenormalized {
		t.Error("missing error_normalmap_denormalized")
	}
}

func TestDiagnosticBuffer(t *testing.T) {
	opts := synth.DefaultOptions()
	opts.ScaleX = 2
	buf := generate(opts)

	plain := run(t, buf, Options{Diagnostic: true})
	post := run(t, buf, Options{Diagnostic: true, PostCorrection: true})

	if plain.Diagnostic == nil || post.Diagnostic == nil {
		t.Fatal("diagnostic buffer not allocated")
	}
	d := plain.Diagnostic
	if d.Width != size || d.Height != size || len(d.Pix) != 3*size*size {
		t.Fatalf("diagnostic is %dx%d with %d floats", d.Width, d.Height, len(d.Pix))
	}
	if d.ChannelNames()[2] != "normalmap_error" || post.Diagnostic.ChannelNames()[2] != "normalmap_fix_error" {
		t.Errorf("channel names %v / %v", d.ChannelNames(), post.Diagnostic.ChannelNames())
	}

	// The area-preserving fit absorbs the axis mismatch the direct check sees.
	var direct, fixed float64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			direct += float64(d.At(x, y)[2])
			fixed += float64(post.Diagnostic.At(x, y)[2])
		}
	}
	if direct <= 0 {
		t.Fatal("direct escher error is zero on a scaled map")
	}
	if fixed > direct*0.05 {
		t.Errorf("fixed escher error %v not much below direct %v", fixed, direct)
	}
}

func TestDiagnosticOfConsistentMapIsZero(t *testing.T) {
	res := run(t, generate(synth.DefaultOptions()), Options{Uncertainty: quantized(), Diagnostic: true})
	if m := res.Diagnostic.Max(); m != [3]float32{} {
		t.Fatalf("diagnostic max = %v, want zero", m)
	}
}

func TestWorkersAgree(t *testing.T) {
	buf := generate(synth.DefaultOptions())
	opts := Options{Workers: 1}
	seq := run(t, buf, opts)

	opts.Workers = 5
	par := run(t, buf, opts)
	again := run(t, buf, opts)

	if par.Regression != again.Regression || par.Residuals != again.Residuals {
		t.Fatal("parallel run is not deterministic")
	}
	rel := func(a, b float64) float64 { return math.Abs(a-b) / math.Max(math.Abs(a), 1e-300) }
	if rel(seq.Fit.Height, par.Fit.Height) > 1e-12 || rel(seq.Regression.Escher.Syy, par.Regression.Escher.Syy) > 1e-12 {
		t.Errorf("sequential and parallel fits differ: %+v vs %+v", seq.Fit, par.Fit)
	}
}

func TestRunErrors(t *testing.T) {
	if _, err := Run(texel.NewBuffer(0, 0, 4), Options{}); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("empty buffer: err = %v", err)
	}
	if _, err := Run(texel.NewBuffer(2, 2, 4), Options{PostCorrection: true}); !errors.Is(err, ErrNoOutput) {
		t.Errorf("post-correction without output: err = %v", err)
	}
}

func TestZeroDepthDoesNotPanic(t *testing.T) {
	buf := texel.NewBuffer(4, 4, 3)
	res := run(t, buf, Options{Uncertainty: quantized()})
	if !math.IsNaN(res.Metrics.Normal.R2) {
		t.Errorf("R2 = %v, want NaN for an all-zero map", res.Metrics.Normal.R2)
	}
}
