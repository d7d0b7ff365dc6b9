package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"normalmap-audit/internal/config"
	nmimage "normalmap-audit/internal/image"
	"normalmap-audit/internal/report"
	"normalmap-audit/internal/store"
	"normalmap-audit/internal/synth"
	"normalmap-audit/internal/texel"
)

func writeSynthetic(t *testing.T, dir, name string, opts synth.Options) string {
	t.Helper()
	buf := synth.Generate(synth.DefaultField(64, 64), opts)
	path := filepath.Join(dir, name)
	if err := nmimage.WritePNG(path, nmimage.EncodeImage(buf, texel.DefaultEncoding)); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	return path
}

func inputs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	inverted := synth.DefaultOptions()
	inverted.InvertY = true
	flat := synth.DefaultOptions()
	flat.WithHeight = false

	junk := filepath.Join(dir, "junk.png")
	if err := os.WriteFile(junk, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	return []string{
		writeSynthetic(t, dir, "clean.png", synth.DefaultOptions()),
		writeSynthetic(t, dir, "inverted.png", inverted),
		junk,
		writeSynthetic(t, dir, "flat.png", flat),
	}
}

func TestRun(t *testing.T) {
	out := t.TempDir()
	paths := inputs(t)

	res, err := Run(context.Background(), paths, Options{Config: config.Default(), OutDir: out, Jobs: 2, ThumbSize: 16})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != len(paths) {
		t.Fatalf("got %d items, want %d", len(res.Items), len(paths))
	}
	for i, it := range res.Items {
		if it.Path != paths[i] {
			t.Errorf("item %d path = %s, want %s", i, it.Path, paths[i])
		}
	}

	failed := res.Failed()
	if len(failed) != 1 || failed[0].Path != paths[2] {
		t.Fatalf("failed = %+v, want only the junk file", failed)
	}

	clean := res.Items[0].Report
	if errs := clean.Errors(); len(errs) != 0 {
		t.Errorf("clean map errors = %v", errs)
	}
	inv := res.Items[1].Report
	if !contains(inv.Errors(), report.ErrHeightmapInvertedY) {
		t.Errorf("inverted map errors = %v", inv.Errors())
	}
	if flat := res.Items[3]; flat.Artifacts.Height != "" || !contains(flat.Report.Errors(), report.ErrHeightmapMissing) {
		t.Errorf("map without height: artifacts %+v errors %v", flat.Artifacts, flat.Report.Errors())
	}

	a := res.Items[0].Artifacts
	for _, name := range []string{a.Norm, a.NormThumb, a.Height, a.HeightThumb, a.Preview, a.PreviewThumb, a.Diagnostic} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("artifact %q: %v", name, err)
		}
	}
	thumb, err := nmimage.Load(filepath.Join(out, a.NormThumb))
	if err != nil {
		t.Fatalf("Load thumbnail: %v", err)
	}
	if thumb.Width != 16 || thumb.Height != 16 {
		t.Errorf("thumbnail %dx%d", thumb.Width, thumb.Height)
	}
	if got, _ := clean.Get(report.KeyOutputName); got != a.Diagnostic {
		t.Errorf("output_name = %v, want %s", got, a.Diagnostic)
	}
}

func TestRunWritesViewerFiles(t *testing.T) {
	out := t.TempDir()
	paths := inputs(t)
	if _, err := Run(context.Background(), paths, Options{Config: config.Default(), OutDir: out}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(filepath.Join(out, ReportsFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var images []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		rep, err := report.Parse(sc.Bytes())
		if err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		images = append(images, rep.Image())
	}
	if want := []string{paths[0], paths[1], paths[3]}; strings.Join(images, ",") != strings.Join(want, ",") {
		t.Errorf("reports.jsonl images = %v, want %v", images, want)
	}

	html, err := os.ReadFile(filepath.Join(out, IndexFile))
	if err != nil {
		t.Fatal(err)
	}
	page := string(html)
	for _, want := range []string{
		"<th>filename</th>",
		"<th>normalmap_R_2</th>",
		"heightmap_normalmap_inverted_y",
		"0000-clean-norm-t.png",
		"0001-inverted-report.png",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("index.html lacks %q", want)
		}
	}
	for _, hidden := range []string{"<th>image</th>", "<th>output_name</th>", "<th>error_"} {
		if strings.Contains(page, hidden) {
			t.Errorf("index.html shows %q", hidden)
		}
	}

	data, err := os.ReadFile(filepath.Join(out, SummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("summary.json: %v", err)
	}
	if sum.Images != 4 || sum.Failed != 1 || sum.Flagged != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunStoresReports(t *testing.T) {
	s, err := store.NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	cfg := config.Default()
	run, err := s.BeginRun(cfg)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	paths := inputs(t)
	opts := Options{Config: cfg, OutDir: t.TempDir(), Jobs: 3, Store: s, RunID: run.ID}
	if _, err := Run(context.Background(), paths, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	recs, err := s.Reports(run.ID)
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("stored %d reports, want 3", len(recs))
	}
	for _, rec := range recs {
		if !rec.HasDiagnostic {
			t.Errorf("report %d stored without diagnostic", rec.ID)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, inputs(t), Options{Config: config.Default(), OutDir: t.TempDir()})
	if err == nil {
		t.Fatal("cancelled run returned no error")
	}
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		i    int
		path string
		want string
	}{
		{0, "rock.png", "0000-rock"},
		{12, "maps/rock wall.tga.png", "0012-rock_wall_tga"},
		{7, "/abs/äpfel-n.png", "0007-_pfel-n"},
	}
	for _, tc := range tests {
		if got := Prefix(tc.i, tc.path); got != tc.want {
			t.Errorf("Prefix(%d, %q) = %q, want %q", tc.i, tc.path, got, tc.want)
		}
	}
}

func TestFormatPrecision(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "0.00"},
		{1, "1.00"},
		{0.123456, "0.123"},
		{-0.5, "-0.500"},
		{123.456, "123"},
		{999.6, "1.00e+3"},
		{1234.5, "1.23e+3"},
		{0.00012345, "0.000123"},
		{1.5e-7, "1.50e-7"},
	}
	for _, tc := range tests {
		if got := formatPrecision(tc.v, 3); got != tc.want {
			t.Errorf("formatPrecision(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, ""},
		{true, "x"},
		{math.NaN(), ""},
		{0.5, "0.500"},
		{"rock.png", "rock.png"},
	}
	for _, tc := range tests {
		if got := formatValue(tc.v); got != tc.want {
			t.Errorf("formatValue(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	rep := func(r2 float64, errs ...string) *report.Report {
		r := &report.Report{Fields: []report.Field{
			{Key: report.KeyImage, Value: "x.png"},
			{Key: report.KeyNormalmapR2, Value: r2},
		}}
		for _, e := range errs {
			r.Fields = append(r.Fields, report.Field{Key: e, Value: true})
		}
		return r
	}
	items := []Item{
		{Report: rep(0.9)},
		{Report: rep(0.2, report.ErrNormalmapInconsistent)},
		{Err: os.ErrNotExist},
		{Report: rep(0.4, report.ErrNormalmapInconsistent, report.ErrHeightmapMissing)},
		{Report: rep(math.NaN(), report.ErrHeightmapMissing)},
	}

	s := Summarize(items)
	if s.Images != 5 || s.Failed != 1 || s.Flagged != 3 {
		t.Errorf("counts = %+v", s)
	}
	if s.Errors[report.ErrNormalmapInconsistent] != 2 || s.Errors[report.ErrHeightmapMissing] != 2 {
		t.Errorf("errors = %v", s.Errors)
	}

	f, ok := s.Field(report.KeyNormalmapR2)
	if !ok {
		t.Fatal("normalmap_R_2 missing from summary")
	}
	if f.Count != 3 {
		t.Errorf("count = %d, want 3 finite values", f.Count)
	}
	if math.Abs(f.Mean-0.5) > 1e-12 {
		t.Errorf("mean = %v, want 0.5", f.Mean)
	}
	if f.Median != 0.4 || f.Min != 0.2 || f.Max != 0.9 {
		t.Errorf("median/min/max = %v/%v/%v", f.Median, f.Min, f.Max)
	}
	if _, ok := s.Field(report.KeyImage); ok {
		t.Error("string field summarized")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
