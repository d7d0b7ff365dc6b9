// Package config provides YAML-based audit settings.
//
// Settings are read from ~/.config/normalmap-audit/config.yaml when it
// exists, or from an explicit file. Command-line flags are applied on top.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"normalmap-audit/internal/audit"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/texel"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	appDir     = "normalmap-audit"
	configFile = "config.yaml"
)

// Encoding names.
const (
	EncodingDefault    = "default"
	EncodingSymmetric8 = "symmetric8"
	EncodingFullRange8 = "fullrange8"
	EncodingCustom     = "custom"
)

var (
	ErrPostCorrectionWithoutOutput = errors.New("post-correction output requires an output file")
	ErrConflictingEncoding         = errors.New("only one of -7, -8 and a custom center/range may be given")
	ErrUnknownEncoding             = errors.New("unknown encoding")
	ErrInvalidRange                = errors.New("encoding range must be positive")
	ErrInvalidBits                 = errors.New("bits per channel must be between 1 and 32")
	ErrNegativeDiscount            = errors.New("round-off discount must not be negative")
	ErrNegativeWorkers             = errors.New("workers must not be negative")
	ErrOutputFormat                = errors.New("output must be .hdr, .exr or .pfm")
	ErrInvalidExposure             = errors.New("preview exposure must be positive")
)

// Config holds the settings of one audit invocation.
type Config struct {
	// Encoding selects center/range: default, symmetric8, fullrange8 or custom.
	Encoding string  `yaml:"encoding"`
	Center   float64 `yaml:"center"`
	Range    float64 `yaml:"range"`
	InvertY  bool    `yaml:"invert_y"`

	// Nearest uses the midpoint rule for edge integrals.
	Nearest bool `yaml:"nearest"`

	// RoundoffDiscount scales the assumed quantization error.
	RoundoffDiscount float64 `yaml:"roundoff_discount"`

	// Bits is the storage precision the input was quantized to.
	Bits int `yaml:"bits"`

	Output          string  `yaml:"output,omitempty"`
	PostCorrection  bool    `yaml:"post_correction"`
	Preview         string  `yaml:"preview,omitempty"`
	PreviewExposure float64 `yaml:"preview_exposure"`

	Workers  int    `yaml:"workers"`
	Database string `yaml:"database,omitempty"`
	LogLevel string `yaml:"log_level"`

	path string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Encoding:         EncodingDefault,
		Center:           texel.DefaultEncoding.Center,
		Range:            texel.DefaultEncoding.Range,
		RoundoffDiscount: 1.0,
		Bits:             8,
		PreviewExposure:  1.0,
		Workers:          1,
		LogLevel:         "info",
	}
}

// UserPath returns the location of the per-user config file.
func UserPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, appDir, configFile)
}

// Load reads the per-user config file. A missing file yields the defaults.
func Load() (Config, error) {
	c, err := LoadFile(UserPath())
	if errors.Is(err, os.ErrNotExist) {
		c = Default()
		c.path = UserPath()
		return c, nil
	}
	return c, err
}

// LoadFile reads settings from path on top of the defaults.
func LoadFile(path string) (Config, error) {
	c := Default()
	c.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return c, nil
}

// Path returns the file the config was loaded from.
func (c Config) Path() string {
	return c.path
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SelectEncoding applies the mutually exclusive encoding switches of the
// command line.
func (c *Config) SelectEncoding(symmetric8, fullRange8, custom bool) error {
	n := 0
	for _, set := range []bool{symmetric8, fullRange8, custom} {
		if set {
			n++
		}
	}
	if n > 1 {
		return ErrConflictingEncoding
	}
	switch {
	case symmetric8:
		c.Encoding = EncodingSymmetric8
	case fullRange8:
		c.Encoding = EncodingFullRange8
	case custom:
		c.Encoding = EncodingCustom
	}
	return nil
}

// Validate rejects settings no audit can run with.
func (c Config) Validate() error {
	if c.PostCorrection && c.Output == "" {
		return ErrPostCorrectionWithoutOutput
	}
	if c.Output != "" && !nmimage.IsFloatFormat(c.Output) {
		return fmt.Errorf("%w: %s", ErrOutputFormat, c.Output)
	}
	switch c.Encoding {
	case EncodingDefault, EncodingSymmetric8, EncodingFullRange8:
	case EncodingCustom:
		if !(c.Range > 0) {
			return fmt.Errorf("%w: %v", ErrInvalidRange, c.Range)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, c.Encoding)
	}
	if c.Bits < 1 || c.Bits > 32 {
		return fmt.Errorf("%w: %d", ErrInvalidBits, c.Bits)
	}
	if c.RoundoffDiscount < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeDiscount, c.RoundoffDiscount)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeWorkers, c.Workers)
	}
	if !(c.PreviewExposure > 0) || math.IsInf(c.PreviewExposure, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidExposure, c.PreviewExposure)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// TexelEncoding returns the decoder settings.
func (c Config) TexelEncoding() texel.Encoding {
	var enc texel.Encoding
	switch c.Encoding {
	case EncodingSymmetric8:
		enc = texel.Symmetric8
	case EncodingFullRange8:
		enc = texel.FullRange8
	case EncodingCustom:
		enc = texel.Encoding{Center: c.Center, Range: c.Range}
	default:
		enc = texel.DefaultEncoding
	}
	return enc.WithInvertY(c.InvertY)
}

// Uncertainty returns the quantization bounds implied by the encoding,
// precision and round-off discount.
func (c Config) Uncertainty() audit.Uncertainty {
	return audit.NewUncertainty(c.RoundoffDiscount, c.TexelEncoding().Range, c.Bits)
}

// WantsDiagnostic reports whether any artifact needs the diagnostic buffer.
func (c Config) WantsDiagnostic() bool {
	return c.Output != "" || c.Preview != ""
}

// AuditOptions returns the options for audit.Run.
func (c Config) AuditOptions() audit.Options {
	return audit.Options{
		Nearest:        c.Nearest,
		Uncertainty:    c.Uncertainty(),
		Diagnostic:     c.WantsDiagnostic(),
		PostCorrection: c.PostCorrection,
		Workers:        c.Workers,
	}
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
