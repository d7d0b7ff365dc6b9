// Command auditmany audits a set of normal maps and writes a static HTML
// table comparing their reports.
//
// Usage:
//
//	auditmany [flags] image|directory...
//	auditmany -db history.db -history RUN_ID
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"normalmap-audit/internal/batch"
	"normalmap-audit/internal/config"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/logging"
	"normalmap-audit/internal/store"
	"normalmap-audit/internal/version"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const command = "auditmany"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] image|directory...\n", command)
		flags.PrintDefaults()
	}
	shared := config.RegisterFlags(flags)
	outDir := flags.String("out", "audit", "Directory for index.html and the per-image files")
	jobs := flags.Int("jobs", 0, "Images audited at once (0 = number of CPUs)")
	thumb := flags.Int("thumb", batch.DefaultThumbSize, "Longer side of thumbnails in pixels")
	history := flags.String("history", "", "List the stored reports of this run (needs -db) instead of auditing")
	showVersion := flags.Bool("version", false, "Print the version and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *showVersion {
		fmt.Fprintln(stderr, version.String(command))
		return 0
	}

	logging.Setup(stderr, zerolog.InfoLevel)
	cfg, err := shared.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}
	// Every image gets an HDR diagnostic, so post-correction is always valid.
	check := cfg
	check.Output = filepath.Join(*outDir, "diagnostic.hdr")
	if err := check.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}
	level, _ := cfg.Level()
	logging.Setup(stderr, level)

	if *history != "" {
		if cfg.Database == "" || flags.NArg() != 0 {
			flags.Usage()
			return 1
		}
		return listHistory(cfg.Database, *history)
	}

	paths, err := collect(flags.Args())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list images")
		return 1
	}
	if len(paths) == 0 {
		flags.Usage()
		return 1
	}

	opts := batch.Options{Config: cfg, OutDir: *outDir, Jobs: *jobs, ThumbSize: *thumb}
	if cfg.Database != "" {
		s, err := store.NewStore(cfg.Database)
		if err != nil {
			log.Error().Err(err).Str("db", cfg.Database).Msg("Failed to open database")
			return 1
		}
		defer s.Close()
		r, err := s.BeginRun(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to record run")
			return 1
		}
		opts.Store, opts.RunID = s, r.ID
		log.Info().Str("run", r.ID).Msg("Recording reports")
	}

	log.Info().Int("images", len(paths)).Str("out", *outDir).Msg("Auditing")
	res, err := batch.Run(ctx, paths, opts)
	if err != nil {
		log.Error().Err(err).Msg("Batch failed")
		return 1
	}

	sum := res.Summary
	log.Info().
		Int("images", sum.Images).
		Int("failed", sum.Failed).
		Int("flagged", sum.Flagged).
		Str("index", filepath.Join(*outDir, batch.IndexFile)).
		Msg("Done")
	for _, name := range sortedKeys(sum.Errors) {
		log.Info().Str("error", name).Int("images", sum.Errors[name]).Msg("Flag count")
	}
	for _, f := range sum.Fields {
		log.Debug().
			Str("field", f.Field).
			Float64("mean", f.Mean).
			Float64("median", f.Median).
			Msg("Field summary")
	}

	if sum.Failed > 0 {
		for _, it := range res.Failed() {
			log.Error().Err(it.Err).Str("image", it.Path).Msg("Not audited")
		}
		return 1
	}
	return 0
}

// listHistory logs the stored reports of one run.
func listHistory(dbPath, runID string) int {
	s, err := store.NewStore(dbPath)
	if err != nil {
		log.Error().Err(err).Str("db", dbPath).Msg("Failed to open database")
		return 1
	}
	defer s.Close()

	r, err := s.Run(runID)
	if err != nil {
		log.Error().Err(err).Msg("Unknown run")
		return 1
	}
	recs, err := s.Reports(runID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read reports")
		return 1
	}
	flagged, err := s.FlaggedCount(runID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count flagged reports")
		return 1
	}

	log.Info().
		Str("run", r.ID).
		Time("started", r.CreatedAt).
		Int("reports", len(recs)).
		Int("flagged", flagged).
		Msg("Run")
	log.Debug().Str("run", r.ID).Msg("Settings:\n" + r.Config)
	for _, rec := range recs {
		log.Info().
			Int64("report", rec.ID).
			Str("image", rec.Report.Image()).
			Strs("errors", rec.Report.Errors()).
			Bool("diagnostic", rec.HasDiagnostic).
			Msg("Report")
	}
	return 0
}

// collect expands directories into the supported image files they contain.
func collect(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			// Missing files are reported per image by the batch.
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && nmimage.IsSupportedFormat(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
