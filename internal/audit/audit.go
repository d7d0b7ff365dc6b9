// Package audit checks a decoded normal map for physical consistency.
//
// The audit makes two passes over the buffer. The first accumulates the
// least-squares sums relating edge line integrals to height differences and
// the two halves of each block's loop integral to each other. The closed-form
// fit derived from those sums is then fixed, and the second pass measures
// every block's residual against it, discounting the part explained by
// quantization of the inputs.
package audit

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"normalmap-audit/internal/texel"

	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyBuffer = errors.New("audit: empty pixel buffer")
	ErrNoOutput    = errors.New("audit: post-correction mode requires a diagnostic buffer")
)

// Options control one audit run.
type Options struct {
	// Nearest uses the midpoint approximation for every edge integral.
	Nearest bool

	// Uncertainty is the assumed quantization of the inputs.
	Uncertainty Uncertainty

	// Diagnostic requests the per-texel error buffer.
	Diagnostic bool

	// PostCorrection fills the diagnostic buffer with residuals against the
	// per-axis and area-preserving fits. Requires Diagnostic.
	PostCorrection bool

	// Workers splits each pass into horizontal bands. 0 uses one worker per
	// CPU; 1 runs sequentially. Sums are merged in band order, so results
	// only depend on the number of bands.
	Workers int
}

// Result is the outcome of one audit run.
type Result struct {
	Width  int
	Height int

	Regression Regression
	Fit        FitParams
	Residuals  Residuals
	Metrics    Metrics

	// Diagnostic is nil unless Options.Diagnostic was set.
	Diagnostic *Diagnostic
}

// Flags evaluates the decision thresholds on the result's metrics.
func (r *Result) Flags() Flags {
	return r.Metrics.Flags()
}

// Run audits a decoded buffer. The buffer is only read.
func Run(buf *texel.Buffer, opts Options) (*Result, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, ErrEmptyBuffer
	}
	if opts.PostCorrection && !opts.Diagnostic {
		return nil, ErrNoOutput
	}

	bands := opts.bands(buf.Height)
	start := time.Now()

	// Pass 1: regression sums.
	regs := make([]Regression, len(bands))
	forEachBand(bands, func(i int, b band) {
		var reg Regression
		for y := b.y0; y < b.y1; y++ {
			for x := 0; x < buf.Width; x++ {
				reg.Add(BlockAt(buf, x, y, opts.Nearest))
			}
		}
		regs[i] = reg
	})
	var reg Regression
	for _, r := range regs {
		reg = reg.Plus(r)
	}
	fit := reg.Fit()

	log.Debug().
		Dur("elapsed", time.Since(start)).
		Float64("height_x_m", fit.HeightX).
		Float64("height_y_m", fit.HeightY).
		Float64("height_m", fit.Height).
		Float64("escher_mx", fit.EscherMX).
		Float64("escher_my", fit.EscherMY).
		Msg("Regression pass complete")

	// Pass 2: unexplained residuals against the fixed fit.
	var diag *Diagnostic
	if opts.Diagnostic {
		diag = NewDiagnostic(buf.Width, buf.Height, opts.PostCorrection)
	}
	parts := make([]Residuals, len(bands))
	forEachBand(bands, func(i int, b band) {
		var res Residuals
		for y := b.y0; y < b.y1; y++ {
			for x := 0; x < buf.Width; x++ {
				te := residualAt(buf, x, y, fit, opts.Nearest, opts.Uncertainty)
				res.add(te)
				if diag != nil {
					diag.Set(x, y, te.diagnostic(opts.PostCorrection))
				}
			}
		}
		parts[i] = res
	})
	var res Residuals
	for _, p := range parts {
		res = res.Plus(p)
	}

	log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("bands", len(bands)).
		Msg("Residual pass complete")

	return &Result{
		Width:      buf.Width,
		Height:     buf.Height,
		Regression: reg,
		Fit:        fit,
		Residuals:  res,
		Metrics:    computeMetrics(reg, fit, res, buf.Len(), buf.HasHeight()),
		Diagnostic: diag,
	}, nil
}

// band is a half-open range of rows.
type band struct {
	y0, y1 int
}

func (o Options) bands(height int) []band {
	workers := o.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > height {
		workers = height
	}
	rowsPerWorker := (height + workers - 1) / workers

	var bands []band
	for y := 0; y < height; y += rowsPerWorker {
		bands = append(bands, band{y0: y, y1: min(y+rowsPerWorker, height)})
	}
	return bands
}

// forEachBand runs fn for every band, in parallel when there is more than one.
func forEachBand(bands []band, fn func(i int, b band)) {
	if len(bands) == 1 {
		fn(0, bands[0])
		return
	}
	var wg sync.WaitGroup
	for i, b := range bands {
		wg.Add(1)
		go func(i int, b band) {
			defer wg.Done()
			fn(i, b)
		}(i, b)
	}
	wg.Wait()
}
