// Package batch audits many normal maps concurrently and writes a static
// HTML viewer of the results.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"normalmap-audit/internal/audit"
	"normalmap-audit/internal/config"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/report"
	"normalmap-audit/internal/store"

	"github.com/rs/zerolog/log"
)

// Output file names inside the output directory.
const (
	IndexFile   = "index.html"
	ReportsFile = "reports.jsonl"
	SummaryFile = "summary.json"
)

// DefaultThumbSize is the longer side of viewer thumbnails.
const DefaultThumbSize = 128

// Options configures a batch run.
type Options struct {
	// Config supplies the encoding, integration and uncertainty settings.
	Config config.Config

	OutDir string

	// Jobs is the number of images audited at once. 0 means NumCPU.
	Jobs int

	ThumbSize int

	// Store, when set, receives every report under RunID.
	Store *store.Store
	RunID string
}

func (o Options) jobs(n int) int {
	j := o.Jobs
	if j <= 0 {
		j = runtime.NumCPU()
	}
	return max(1, min(j, n))
}

// Artifacts are the files written for one image, relative to OutDir.
// Height names are empty when the image has no height channel.
type Artifacts struct {
	Norm         string
	NormThumb    string
	Height       string
	HeightThumb  string
	Preview      string
	PreviewThumb string
	Diagnostic   string
}

// Item is the outcome of auditing one image.
type Item struct {
	Path      string
	Prefix    string
	Report    *report.Report
	Artifacts Artifacts
	Err       error
}

// Result is the outcome of a batch run in input order.
type Result struct {
	Items   []Item
	Summary Summary
}

// Failed returns the items that could not be audited.
func (r *Result) Failed() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

type runner struct {
	opts    Options
	storeMu sync.Mutex
}

// Run audits every path and writes the per-image artifacts, reports.jsonl,
// summary.json and index.html into opts.OutDir. Failures of single images
// are recorded in their Item; the returned error covers the batch itself.
func Run(ctx context.Context, paths []string, opts Options) (*Result, error) {
	if opts.ThumbSize == 0 {
		opts.ThumbSize = DefaultThumbSize
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	r := &runner{opts: opts}
	items := make([]Item, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < opts.jobs(len(paths)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = r.process(i, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Items: items, Summary: Summarize(items)}
	if err := writeReports(filepath.Join(opts.OutDir, ReportsFile), items); err != nil {
		return res, err
	}
	if err := writeSummary(filepath.Join(opts.OutDir, SummaryFile), res.Summary); err != nil {
		return res, err
	}
	if err := writeIndex(filepath.Join(opts.OutDir, IndexFile), items); err != nil {
		return res, err
	}
	return res, nil
}

// Prefix returns the artifact name prefix of the i-th input.
func Prefix(i int, path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, stem)
	return fmt.Sprintf("%04d-%s", i, stem)
}

func (r *runner) process(i int, path string) Item {
	item := Item{Path: path, Prefix: Prefix(i, path)}

	buf, err := nmimage.Load(path)
	if err != nil {
		item.Err = err
		log.Error().Err(err).Str("image", path).Msg("Audit failed")
		return item
	}

	cfg := r.opts.Config
	enc := cfg.TexelEncoding()
	buf.Decode(enc)

	opts := cfg.AuditOptions()
	opts.Diagnostic = true
	res, err := audit.Run(buf, opts)
	if err != nil {
		item.Err = err
		log.Error().Err(err).Str("image", path).Msg("Audit failed")
		return item
	}

	item.Artifacts, err = r.writeArtifacts(item.Prefix, buf, res.Diagnostic, enc)
	if err != nil {
		item.Err = err
		log.Error().Err(err).Str("image", path).Msg("Writing artifacts failed")
		return item
	}
	item.Report = report.New(path, res, item.Artifacts.Diagnostic)

	if r.opts.Store != nil {
		r.storeMu.Lock()
		_, err = r.opts.Store.SaveReport(r.opts.RunID, item.Report, res.Diagnostic)
		r.storeMu.Unlock()
		if err != nil {
			item.Err = err
			log.Error().Err(err).Str("image", path).Msg("Saving report failed")
			return item
		}
	}

	log.Debug().
		Str("image", path).
		Str("prefix", item.Prefix).
		Strs("errors", item.Report.Errors()).
		Msg("Audited")
	return item
}
