package main

import (
	"bytes"
	"path/filepath"
	"testing"

	nmimage "normalmap-audit/internal/image"
)

func TestWritesMap(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name       string
		args       []string
		wantHeight bool
	}{
		{"with height", []string{"-width", "48", "-height", "32"}, true},
		{"without height", []string{"-width", "48", "-height", "32", "-no-height", "-8"}, false},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".png")
			var stderr bytes.Buffer
			if code := run(append(tc.args, "-o", path), &stderr); code != 0 {
				t.Fatalf("case %d exit %d:\n%s", i, code, stderr.String())
			}
			buf, err := nmimage.Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if buf.Width != 48 || buf.Height != 32 {
				t.Errorf("size %dx%d", buf.Width, buf.Height)
			}
			if buf.HasHeight() != tc.wantHeight {
				t.Errorf("HasHeight = %v, want %v", buf.HasHeight(), tc.wantHeight)
			}
		})
	}
}

func TestRejectsBadArgs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.png")
	for _, args := range [][]string{
		nil,
		{"-o", out, "-width", "0"},
		{"-o", out, "-7", "-8"},
		{"-o", out, "extra"},
	} {
		var stderr bytes.Buffer
		if code := run(args, &stderr); code != 1 {
			t.Errorf("run(%v) = %d, want 1", args, code)
		}
	}
}
