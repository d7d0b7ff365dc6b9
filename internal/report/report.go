package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"normalmap-audit/internal/audit"
)

// Field names.
const (
	KeyImage = "image"

	KeyHeightmapScale          = "heightmap_scale"
	KeyHeightmapR2             = "heightmap_R_2"
	KeyHeightmapXScale         = "heightmap_x_scale"
	KeyHeightmapXR2            = "heightmap_x_R_2"
	KeyHeightmapYScale         = "heightmap_y_scale"
	KeyHeightmapYR2            = "heightmap_y_R_2"
	KeyHeightmapNormalmapScale = "heightmap_normalmap_scale"

	KeyNormalmapR2        = "normalmap_R_2"
	KeyNormalmapFixScale  = "normalmap_fix_scale"
	KeyNormalmapFixR2     = "normalmap_fix_R_2"
	KeyNormalmapLengthVar = "normalmap_length_var"

	KeyOutputName     = "output_name"
	KeyOutputChannelR = "output_channel_r"
	KeyOutputChannelG = "output_channel_g"
	KeyOutputChannelB = "output_channel_b"

	ErrHeightmapInverted     = "error_heightmap_normalmap_inverted"
	ErrHeightmapInvertedY    = "error_heightmap_normalmap_inverted_y"
	ErrHeightmapNonuniform   = "error_heightmap_normalmap_nonuniform_scaling"
	ErrHeightmapInconsistent = "error_heightmap_inconsistent"
	ErrHeightmapMissing      = "error_heightmap_missing"
	ErrNormalmapInvertedY    = "error_normalmap_inverted_y"
	ErrNormalmapNonuniform   = "error_normalmap_nonuniform_scaling"
	ErrNormalmapInconsistent = "error_normalmap_inconsistent"
	ErrNormalmapDenormalized = "error_normalmap_denormalized"
)

// ErrorPrefix starts the name of every flag field.
const ErrorPrefix = "error_"

// Field is one report entry. Value is a string, a float64 (possibly NaN for
// null) or the bool true.
type Field struct {
	Key   string
	Value any
}

// Report is the ordered set of fields describing one audited image.
type Report struct {
	Fields []Field
}

func (r *Report) str(key, v string) {
	r.Fields = append(r.Fields, Field{key, v})
}

func (r *Report) num(key string, v float64) {
	r.Fields = append(r.Fields, Field{key, v})
}

func (r *Report) flag(key string, raised bool) {
	if raised {
		r.Fields = append(r.Fields, Field{key, true})
	}
}

// New builds the report of one audit. output is the name of the written
// diagnostic artifact, or empty if none was written.
func New(image string, res *audit.Result, output string) *Report {
	m := res.Metrics
	f := m.Flags()

	r := &Report{}
	r.str(KeyImage, image)
	if m.HasHeight {
		h := m.Height
		r.num(KeyHeightmapScale, h.Scale)
		r.num(KeyHeightmapR2, h.R2)
		r.num(KeyHeightmapXScale, h.XScale)
		r.num(KeyHeightmapXR2, h.XR2)
		r.num(KeyHeightmapYScale, h.YScale)
		r.num(KeyHeightmapYR2, h.YR2)
		r.num(KeyHeightmapNormalmapScale, h.AxisRatio())
		r.flag(ErrHeightmapInverted, f.HeightmapInverted)
		r.flag(ErrHeightmapInvertedY, f.HeightmapInvertedY)
		r.flag(ErrHeightmapNonuniform, f.HeightmapNonuniform)
		r.flag(ErrHeightmapInconsistent, f.HeightmapInconsistent)
	} else {
		r.flag(ErrHeightmapMissing, f.HeightmapMissing)
	}

	n := m.Normal
	r.num(KeyNormalmapR2, n.R2)
	r.num(KeyNormalmapFixScale, n.FixScale())
	r.num(KeyNormalmapFixR2, n.FixR2)
	r.num(KeyNormalmapLengthVar, n.LengthVar)
	r.flag(ErrNormalmapInvertedY, f.NormalmapInvertedY)
	r.flag(ErrNormalmapNonuniform, f.NormalmapNonuniform)
	r.flag(ErrNormalmapInconsistent, f.NormalmapInconsistent)
	r.flag(ErrNormalmapDenormalized, f.NormalmapDenormalized)

	if output != "" && res.Diagnostic != nil {
		names := res.Diagnostic.ChannelNames()
		r.str(KeyOutputName, output)
		r.str(KeyOutputChannelR, names[0])
		r.str(KeyOutputChannelG, names[1])
		r.str(KeyOutputChannelB, names[2])
	}
	return r
}

// Get returns the value of a field.
func (r *Report) Get(key string) (any, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Number returns a numeric field. Missing and null fields are NaN.
func (r *Report) Number(key string) float64 {
	v, ok := r.Get(key)
	if !ok {
		return math.NaN()
	}
	if n, ok := v.(float64); ok {
		return n
	}
	return math.NaN()
}

// Image returns the image field.
func (r *Report) Image() string {
	v, _ := r.Get(KeyImage)
	s, _ := v.(string)
	return s
}

// Errors returns the raised flags in report order.
func (r *Report) Errors() []string {
	var errs []string
	for _, f := range r.Fields {
		if strings.HasPrefix(f.Key, ErrorPrefix) && f.Value == true {
			errs = append(errs, f.Key)
		}
	}
	return errs
}

// Write serializes the report.
func (r *Report) Write(w io.Writer) error {
	b := NewBuilder(w)
	b.Begin()
	for _, f := range r.Fields {
		switch v := f.Value.(type) {
		case string:
			b.String(f.Key, v)
		case float64:
			b.Number(f.Key, v)
		case bool:
			if v {
				b.True(f.Key)
			}
		default:
			b.Null(f.Key)
		}
	}
	return b.End()
}

// MarshalJSON implements json.Marshaler.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping the field order.
// null becomes NaN.
func (r *Report) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// Parse reads a report written by Write.
func Parse(data []byte) (*Report, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("failed to parse report: expected object, got %v", tok)
	}

	r := &Report{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse report: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to parse report: expected key, got %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse report field %s: %w", key, err)
		}
		switch v := tok.(type) {
		case string:
			r.str(key, v)
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("failed to parse report field %s: %w", key, err)
			}
			r.num(key, n)
		case bool:
			r.Fields = append(r.Fields, Field{key, v})
		case nil:
			r.num(key, math.NaN())
		default:
			return nil, fmt.Errorf("failed to parse report field %s: unexpected %v", key, tok)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return r, nil
}
