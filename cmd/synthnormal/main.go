// Command synthnormal writes a synthetic normal map whose normals are the
// exact gradient of a smooth tileable height field stored in alpha.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"normalmap-audit/internal/config"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/logging"
	"normalmap-audit/internal/synth"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("synthnormal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	d := synth.DefaultOptions()
	output := fs.String("o", "", "Output PNG path (required)")
	width := fs.Int("width", 256, "Width in pixels")
	height := fs.Int("height", 256, "Height in pixels")
	strength := fs.Float64("strength", d.Strength, "Gradient multiplier applied to the height field")
	scaleX := fs.Float64("scale-x", d.ScaleX, "Extra factor on the x gradient (1 = uniform)")
	length := fs.Float64("length", d.Length, "Length of the stored normals (1 = normalized)")
	invertY := fs.Bool("invert-y", false, "Flip the y component of every normal")
	noHeight := fs.Bool("no-height", false, "Write an opaque map without the height channel")
	sym8 := fs.Bool("7", false, "8-bit symmetric encoding")
	full8 := fs.Bool("8", false, "8-bit full-range encoding")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logging.Setup(stderr, level)

	if *output == "" || fs.NArg() != 0 {
		fmt.Fprintln(stderr, "Usage: synthnormal -o <path.png> [-width 256] [-height 256] [-invert-y] [-scale-x 1]")
		return 1
	}
	if *width <= 0 || *height <= 0 {
		log.Error().Int("width", *width).Int("height", *height).Msg("Invalid size")
		return 1
	}

	cfg := config.Default()
	if err := cfg.SelectEncoding(*sym8, *full8, false); err != nil {
		log.Error().Err(err).Msg("Invalid encoding")
		return 1
	}

	opts := synth.Options{
		Strength:   *strength,
		ScaleX:     *scaleX,
		InvertY:    *invertY,
		Length:     *length,
		WithHeight: !*noHeight,
	}
	buf := synth.Generate(synth.DefaultField(*width, *height), opts)
	if err := nmimage.WritePNG(*output, nmimage.EncodeImage(buf, cfg.TexelEncoding())); err != nil {
		log.Error().Err(err).Msg("Failed to write map")
		return 1
	}
	log.Info().
		Str("path", *output).
		Int("width", *width).
		Int("height", *height).
		Bool("height_channel", opts.WithHeight).
		Msg("Wrote synthetic normal map")
	return 0
}
