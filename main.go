// Command normalmap-audit checks whether a normal map is the gradient field
// of a height map and prints a JSON report on stdout.
//
// Usage:
//
//	normalmap-audit [flags] image
//	normalmap-audit -db history.db -reload ID -o out.hdr
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"normalmap-audit/internal/audit"
	"normalmap-audit/internal/config"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/logging"
	"normalmap-audit/internal/report"
	"normalmap-audit/internal/store"
	"normalmap-audit/internal/version"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const command = "normalmap-audit"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliFlags are the flags of this command on top of the shared ones.
type cliFlags struct {
	shared     *config.Flags
	output     string
	preview    string
	saveConfig string
	reload     int64
	version    bool
}

func newFlagSet(stderr io.Writer, f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] image\n", command)
		fs.PrintDefaults()
	}

	f.shared = config.RegisterFlags(fs)
	fs.StringVar(&f.output, "o", "", "Write the HDR diagnostic image (.hdr, .exr or .pfm)")
	fs.StringVar(&f.preview, "preview", "", "Write a tone-mapped PNG preview of the diagnostic")
	fs.StringVar(&f.saveConfig, "save-config", "", "Write the effective settings to this YAML file and exit")
	fs.Int64Var(&f.reload, "reload", 0, "Rewrite the diagnostic of this stored report (needs -db and -o or -preview)")
	fs.BoolVar(&f.version, "version", false, "Print the version and exit")
	return fs
}

// loadConfig merges the config file, the shared flags and the output flags.
func loadConfig(fs *flag.FlagSet, f *cliFlags) (config.Config, error) {
	cfg, err := f.shared.Load()
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "o":
			cfg.Output = f.output
		case "preview":
			cfg.Preview = f.preview
		}
	})
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	var o cliFlags
	fs := newFlagSet(stderr, &o)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if o.version {
		fmt.Fprintln(stdout, version.String(command))
		return 0
	}

	logging.Setup(stderr, zerolog.InfoLevel)
	cfg, err := loadConfig(fs, &o)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}
	level, _ := cfg.Level()
	logging.Setup(stderr, level)

	if o.saveConfig != "" {
		if err := cfg.Save(o.saveConfig); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
			return 1
		}
		log.Info().Str("path", o.saveConfig).Msg("Saved config")
		return 0
	}

	if o.reload != 0 {
		if fs.NArg() != 0 || cfg.Database == "" || (cfg.Output == "" && cfg.Preview == "") {
			fs.Usage()
			return 1
		}
		return reload(cfg, o.reload)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	path := fs.Arg(0)

	buf, err := nmimage.Load(path)
	if err != nil {
		log.Error().Err(err).Str("image", path).Msg("Failed to load image")
		return 1
	}
	log.Debug().
		Str("image", path).
		Int("width", buf.Width).
		Int("height", buf.Height).
		Int("channels", buf.Channels).
		Msg("Loaded image")

	buf.Decode(cfg.TexelEncoding())
	res, err := audit.Run(buf, cfg.AuditOptions())
	if err != nil {
		log.Error().Err(err).Str("image", path).Msg("Audit failed")
		return 1
	}

	rep := report.New(path, res, cfg.Output)
	if err := rep.Write(stdout); err != nil {
		log.Error().Err(err).Msg("Failed to write report")
		return 1
	}

	status := 0
	if cfg.Output != "" {
		if err := nmimage.WriteDiagnostic(cfg.Output, res.Diagnostic); err != nil {
			log.Error().Err(err).Str("output", cfg.Output).Msg("Failed to write diagnostic")
			status = 1
		}
	}
	if cfg.Preview != "" {
		preview := nmimage.DiagnosticPreview(res.Diagnostic, cfg.PreviewExposure)
		if err := nmimage.WritePNG(cfg.Preview, preview); err != nil {
			log.Error().Err(err).Str("preview", cfg.Preview).Msg("Failed to write preview")
			status = 1
		}
	}
	if cfg.Database != "" {
		if err := record(cfg, rep, res.Diagnostic); err != nil {
			log.Error().Err(err).Str("db", cfg.Database).Msg("Failed to record report")
			status = 1
		}
	}
	return status
}

func record(cfg config.Config, rep *report.Report, diag *audit.Diagnostic) error {
	s, err := store.NewStore(cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.BeginRun(cfg)
	if err != nil {
		return err
	}
	id, err := s.SaveReport(r.ID, rep, diag)
	if err != nil {
		return err
	}
	log.Info().Str("run", r.ID).Int64("report", id).Msg("Recorded report")
	return nil
}

// reload writes the outputs of a stored report from its saved diagnostic.
func reload(cfg config.Config, id int64) int {
	s, err := store.NewStore(cfg.Database)
	if err != nil {
		log.Error().Err(err).Str("db", cfg.Database).Msg("Failed to open database")
		return 1
	}
	defer s.Close()

	diag, err := s.LoadDiagnostic(id)
	if err != nil {
		log.Error().Err(err).Int64("report", id).Msg("Failed to load diagnostic")
		return 1
	}
	names, peak := diag.ChannelNames(), diag.Max()
	log.Info().
		Int64("report", id).
		Int("width", diag.Width).
		Int("height", diag.Height).
		Strs("channels", names[:]).
		Floats32("max", peak[:]).
		Msg("Loaded diagnostic")

	status := 0
	if cfg.Output != "" {
		if err := nmimage.WriteDiagnostic(cfg.Output, diag); err != nil {
			log.Error().Err(err).Str("output", cfg.Output).Msg("Failed to write diagnostic")
			status = 1
		}
	}
	if cfg.Preview != "" {
		if err := nmimage.WritePNG(cfg.Preview, nmimage.DiagnosticPreview(diag, cfg.PreviewExposure)); err != nil {
			log.Error().Err(err).Str("preview", cfg.Preview).Msg("Failed to write preview")
			status = 1
		}
	}
	return status
}
