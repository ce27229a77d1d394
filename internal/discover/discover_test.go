package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, dir string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("package x\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func relPaths(files []FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "main.go", "app.py", "pkg/b.go", "pkg/a.go", "pkg/a_test.go")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if diff := cmp.Diff([]string{"main.go", "pkg/a.go", "pkg/b.go"}, relPaths(files)); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	for _, f := range files {
		if !filepath.IsAbs(f.Path) || f.Size == 0 || f.ModTime == 0 {
			t.Errorf("incomplete file info %+v", f)
		}
	}
}

func TestDiscoverTests(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.go", "a_test.go")

	files, err := Discover(context.Background(), dir, &Options{Tests: true})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if diff := cmp.Diff([]string{"a.go", "a_test.go"}, relPaths(files)); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
}

func TestDiscoverExcludes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"a.go",
		"testdata/fixture.go",
		"vendor/dep/dep.go",
		"_scratch/s.go",
		".hidden/h.go",
		"gen/out.pb.go",
		"gen/keep.go",
		"nested/go.mod",
		"nested/n.go",
		"deep/x/generated.go",
	)
	if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("# comment\ngenerated.go\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := Discover(context.Background(), dir, &Options{
		ExcludePaths: []string{"testdata/**", "vendor/**", "gen/*.pb.go"},
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if diff := cmp.Diff([]string{"a.go", "gen/keep.go"}, relPaths(files)); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "main.go")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
