package config

import (
	"flag"

	"github.com/rs/zerolog"
)

// Flags are the command-line switches shared by the auditing commands.
// Only flags given explicitly override the config file.
type Flags struct {
	fs *flag.FlagSet

	path           string
	symmetric8     bool
	fullRange8     bool
	center         float64
	rng            float64
	invertY        bool
	nearest        bool
	discount       float64
	bits           int
	postCorrection bool
	exposure       float64
	workers        int
	database       string
	verbose        bool
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}
	fs.StringVar(&f.path, "config", "", "Read settings from this YAML file instead of the user config")
	fs.BoolVar(&f.symmetric8, "7", false, "8-bit symmetric encoding (center 127/255, range 127/255)")
	fs.BoolVar(&f.fullRange8, "8", false, "8-bit full-range encoding (center 128/255, range 127/255)")
	fs.Float64Var(&f.center, "center", d.Center, "Custom encoding center")
	fs.Float64Var(&f.rng, "range", d.Range, "Custom encoding range")
	fs.BoolVar(&f.invertY, "y", false, "Invert the Y channel of the normal map")
	fs.BoolVar(&f.nearest, "n", false, "Nearest (midpoint) integration instead of the log-interpolated line integral")
	fs.Float64Var(&f.discount, "r", d.RoundoffDiscount, "Round-off discount applied to the quantization error")
	fs.IntVar(&f.bits, "bits", d.Bits, "Bits per channel the images were stored with")
	fs.BoolVar(&f.postCorrection, "c", false, "Diagnose errors left after the per-axis correction (requires an output)")
	fs.Float64Var(&f.exposure, "exposure", d.PreviewExposure, "Exposure of the tone-mapped preview")
	fs.IntVar(&f.workers, "workers", d.Workers, "Goroutines per audit pass (0 = number of CPUs)")
	fs.StringVar(&f.database, "db", "", "Record reports in this SQLite database")
	fs.BoolVar(&f.verbose, "v", false, "Debug logging")
	return f
}

// Load reads the -config file, or the user config when none was given,
// and applies the flags set on the command line.
func (f *Flags) Load() (Config, error) {
	var cfg Config
	var err error
	if f.path != "" {
		cfg, err = LoadFile(f.path)
	} else {
		cfg, err = Load()
	}
	if err != nil {
		return cfg, err
	}

	set := map[string]bool{}
	f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if err := cfg.SelectEncoding(f.symmetric8, f.fullRange8, set["center"] || set["range"]); err != nil {
		return cfg, err
	}
	if set["center"] {
		cfg.Center = f.center
	}
	if set["range"] {
		cfg.Range = f.rng
	}
	if set["y"] {
		cfg.InvertY = f.invertY
	}
	if set["n"] {
		cfg.Nearest = f.nearest
	}
	if set["r"] {
		cfg.RoundoffDiscount = f.discount
	}
	if set["bits"] {
		cfg.Bits = f.bits
	}
	if set["c"] {
		cfg.PostCorrection = f.postCorrection
	}
	if set["exposure"] {
		cfg.PreviewExposure = f.exposure
	}
	if set["workers"] {
		cfg.Workers = f.workers
	}
	if set["db"] {
		cfg.Database = f.database
	}
	if f.verbose {
		cfg.LogLevel = zerolog.DebugLevel.String()
	}
	return cfg, nil
}
