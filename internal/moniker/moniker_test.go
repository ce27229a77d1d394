package moniker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newMapper(t *testing.T, opts Options) (*PathMapper, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/app\n\ngo 1.22\n")
	if opts.GOROOT == "" {
		opts.GOROOT = filepath.Join(t.TempDir(), "goroot")
	}
	if opts.ModCache == "" {
		opts.ModCache = filepath.Join(t.TempDir(), "modcache")
	}
	return NewPathMapper(root, opts), root
}

func TestComputeProjectFiles(t *testing.T) {
	m, root := newMapper(t, Options{Version: "v1.0.0"})

	tests := []struct {
		file string
		want string
	}{
		{"main.go", "example.com/app"},
		{"internal/store/store.go", "example.com/app/internal/store"},
		{"cmd/app/main.go", "example.com/app/cmd/app"},
	}
	for _, tt := range tests {
		loc, ok := m.Compute(filepath.Join(root, tt.file))
		if !ok {
			t.Fatalf("%s: no location", tt.file)
		}
		if loc.Path != tt.want {
			t.Errorf("%s: path = %q, want %q", tt.file, loc.Path, tt.want)
		}
		if loc.External {
			t.Errorf("%s: project file marked external", tt.file)
		}
		if loc.Package.Name != "example.com/app" || loc.Package.Version != "v1.0.0" {
			t.Errorf("%s: package = %+v", tt.file, loc.Package)
		}
	}
}

func TestComputeSourceDirRewrite(t *testing.T) {
	m, root := newMapper(t, Options{SourceDir: "src", OutputDir: "pkg"})

	loc, _ := m.Compute(filepath.Join(root, "src", "api", "api.go"))
	if loc.Path != "example.com/app/pkg/api" {
		t.Fatalf("rewritten path = %q", loc.Path)
	}
	loc, _ = m.Compute(filepath.Join(root, "src", "top.go"))
	if loc.Path != "example.com/app/pkg" {
		t.Fatalf("rewritten top path = %q", loc.Path)
	}
	loc, _ = m.Compute(filepath.Join(root, "srcx", "other.go"))
	if loc.Path != "example.com/app/srcx" {
		t.Fatalf("non-matching prefix rewritten: %q", loc.Path)
	}
}

func TestComputeExternalFiles(t *testing.T) {
	goroot := filepath.Join(t.TempDir(), "goroot")
	modcache := filepath.Join(t.TempDir(), "modcache")
	m, root := newMapper(t, Options{GOROOT: goroot, ModCache: modcache})

	loc, ok := m.Compute(filepath.Join(goroot, "src", "net", "http", "server.go"))
	if !ok || loc.Path != "net/http" || !loc.External || !loc.DefaultLib {
		t.Fatalf("goroot location = %+v ok=%v", loc, ok)
	}

	loc, ok = m.Compute(filepath.Join(modcache, "github.com", "!burnt!sushi", "toml@v1.3.2", "decode.go"))
	if !ok {
		t.Fatal("modcache file has no location")
	}
	want := Location{
		Path:     "github.com/BurntSushi/toml",
		External: true,
		Package:  PackageInfo{Name: "github.com/BurntSushi/toml", Version: "v1.3.2", Manager: "gomod"},
	}
	if diff := cmp.Diff(want, loc); diff != "" {
		t.Fatalf("modcache location mismatch (-want +got):\n%s", diff)
	}

	loc, ok = m.Compute(filepath.Join(modcache, "golang.org", "x", "sync@v0.17.0", "errgroup", "errgroup.go"))
	if !ok || loc.Path != "golang.org/x/sync/errgroup" || loc.Package.Name != "golang.org/x/sync" {
		t.Fatalf("modcache subpackage = %+v", loc)
	}

	loc, ok = m.Compute(filepath.Join(root, "vendor", "github.com", "pkg", "errors", "errors.go"))
	if !ok || loc.Path != "github.com/pkg/errors" || !loc.External {
		t.Fatalf("vendor location = %+v", loc)
	}

	if _, ok := m.Compute("/somewhere/else/x.go"); ok {
		t.Fatal("unrelated file should have no location")
	}
}

func TestMissingGoModFallsBackToDirName(t *testing.T) {
	root := filepath.Join(t.TempDir(), "plain")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewPathMapper(root, Options{GOROOT: "/nonexistent", ModCache: "/nonexistent"})
	if m.Module() != "plain" {
		t.Fatalf("module = %q", m.Module())
	}
}

func TestIdentifierEscaping(t *testing.T) {
	tests := []struct {
		path   string
		export []string
		want   string
	}{
		{"example.com/app", nil, "example.com/app"},
		{"example.com/app", []string{"Server"}, "example.com/app:Server"},
		{"example.com/app", []string{"Server", "Close"}, "example.com/app:Server.Close"},
		{"example.com/app", []string{"a.b", "c"}, "example.com/app:a..b.c"},
	}
	for _, tt := range tests {
		if got := Identifier(tt.path, tt.export); got != tt.want {
			t.Errorf("Identifier(%q, %v) = %q, want %q", tt.path, tt.export, got, tt.want)
		}
	}
}

func TestAgree(t *testing.T) {
	a := Location{Path: "example.com/app"}
	b := Location{Path: "example.com/app/other"}

	if _, ok := Agree(nil); ok {
		t.Fatal("empty set should not agree")
	}
	if got, ok := Agree([]Location{a, a}); !ok || got.Path != a.Path {
		t.Fatalf("identical locations: %+v %v", got, ok)
	}
	if _, ok := Agree([]Location{a, b}); ok {
		t.Fatal("disagreeing locations should not produce a moniker path")
	}
}

func TestComputeExternalTestPackage(t *testing.T) {
	m, root := newMapper(t, Options{})
	writeFile(t, filepath.Join(root, "store", "store_test.go"), "package store\n")
	writeFile(t, filepath.Join(root, "store", "api_test.go"), "// Black-box tests.\npackage store_test\n")

	tests := []struct {
		file string
		want string
	}{
		{"store/store.go", "example.com/app/store"},
		{"store/store_test.go", "example.com/app/store"},
		{"store/api_test.go", "example.com/app/store_test"},
	}
	for _, tt := range tests {
		loc, ok := m.Compute(filepath.Join(root, tt.file))
		if !ok || loc.Path != tt.want {
			t.Errorf("%s: path = %q (ok %v), want %q", tt.file, loc.Path, ok, tt.want)
		}
	}
}
