// Package moniker computes path-based global identifiers for exported symbols.
//
// A moniker identifier is "<monikerPath>:<exportPath>" where monikerPath is
// the import path of the package a declaration file belongs to, and
// exportPath is the dotted chain of exported names leading to the symbol.
package moniker

import (
	"go/build"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

// DefaultScheme is the moniker scheme for Go module paths.
const DefaultScheme = "gomod"

// Kind is the moniker's direction relative to the indexed project.
type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
)

// PackageInfo names the module a moniker belongs to.
type PackageInfo struct {
	Name    string
	Version string
	Manager string
}

// Moniker is a global identifier attached to a symbol.
type Moniker struct {
	Scheme     string
	Identifier string
	Kind       Kind
	Package    PackageInfo
}

// Location is the moniker path of one file.
type Location struct {
	Path       string
	External   bool
	DefaultLib bool
	Package    PackageInfo
}

// Locator maps a file to the package it belongs to.
type Locator interface {
	Compute(file string) (Location, bool)
}

// Options tune a PathMapper. Zero values fall back to the environment.
type Options struct {
	// SourceDir and OutputDir are root-relative; files under SourceDir are
	// addressed as if they lived under OutputDir.
	SourceDir string
	OutputDir string
	GOROOT    string
	ModCache  string
	// Version is recorded on project monikers.
	Version string
}

// PathMapper maps absolute file paths to moniker paths. It is not safe for
// concurrent use.
type PathMapper struct {
	root      string
	module    string
	version   string
	sourceDir string
	outputDir string
	goroot    string
	modcache  string
	// external records, per _test.go file, whether it belongs to an
	// external test package ("p_test").
	external  map[string]bool
}

// NewPathMapper reads root/go.mod for the module path. A missing or invalid
// go.mod falls back to the root directory name.
func NewPathMapper(root string, opts Options) *PathMapper {
	root = filepath.Clean(root)
	m := &PathMapper{
		root:      root,
		version:   opts.Version,
		sourceDir: cleanRel(opts.SourceDir),
		outputDir: cleanRel(opts.OutputDir),
		goroot:    opts.GOROOT,
		modcache:  opts.ModCache,
		external:  make(map[string]bool),
	}
	if m.goroot == "" {
		m.goroot = build.Default.GOROOT
	}
	if m.modcache == "" {
		m.modcache = os.Getenv("GOMODCACHE")
	}
	if m.modcache == "" && build.Default.GOPATH != "" {
		m.modcache = filepath.Join(filepath.SplitList(build.Default.GOPATH)[0], "pkg", "mod")
	}

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err == nil {
		m.module = modfile.ModulePath(data)
	}
	if m.module == "" {
		m.module = filepath.Base(root)
		slog.Debug("moniker.no_module", "root", root, "fallback", m.module)
	}
	return m
}

// Module returns the project module path.
func (m *PathMapper) Module() string { return m.module }

// Package returns package information for project monikers.
func (m *PathMapper) Package() PackageInfo {
	return PackageInfo{Name: m.module, Version: m.version, Manager: DefaultScheme}
}

// Compute returns the moniker path of the package containing file. ok is
// false when the file is neither in the project, the Go root, the module
// cache nor the vendor tree.
func (m *PathMapper) Compute(file string) (Location, bool) {
	file = filepath.Clean(file)
	dir := filepath.Dir(file)

	if rel, ok := within(m.root, dir); ok {
		if rel == "vendor" || strings.HasPrefix(rel, "vendor/") {
			p := strings.TrimPrefix(strings.TrimPrefix(rel, "vendor"), "/")
			if p == "" {
				return Location{}, false
			}
			return Location{
				Path:     p,
				External: true,
				Package:  PackageInfo{Name: p, Manager: DefaultScheme},
			}, true
		}
		rel = m.rewrite(rel)
		p := m.module
		if rel != "." {
			p = path.Join(m.module, rel)
		}
		// External test packages get their own import path, as go list reports it.
		if m.externalTest(file) {
			p += "_test"
		}
		return Location{Path: p, Package: m.Package()}, true
	}

	if m.goroot != "" {
		if rel, ok := within(filepath.Join(m.goroot, "src"), dir); ok && rel != "." {
			// The vendored std dependencies keep their own import paths.
			rel = strings.TrimPrefix(rel, "vendor/")
			return Location{
				Path:       rel,
				External:   true,
				DefaultLib: true,
				Package:    PackageInfo{Name: "std", Version: runtime.Version(), Manager: DefaultScheme},
			}, true
		}
	}

	if m.modcache != "" {
		if rel, ok := within(m.modcache, dir); ok {
			return modCacheLocation(rel)
		}
	}
	return Location{}, false
}

func (m *PathMapper) externalTest(file string) bool {
	if !strings.HasSuffix(file, "_test.go") {
		return false
	}
	if ext, ok := m.external[file]; ok {
		return ext
	}
	af, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.PackageClauseOnly)
	ext := err == nil && strings.HasSuffix(af.Name.Name, "_test")
	m.external[file] = ext
	return ext
}

func (m *PathMapper) rewrite(rel string) string {
	if m.sourceDir == "" {
		return rel
	}
	switch {
	case m.sourceDir == ".":
		return path.Join(m.outputDir, rel)
	case rel == m.sourceDir:
		return m.outputDir
	case strings.HasPrefix(rel, m.sourceDir+"/"):
		return path.Join(m.outputDir, strings.TrimPrefix(rel, m.sourceDir+"/"))
	}
	return rel
}

// modCacheLocation decodes "<escaped module>@<version>/<dir>".
func modCacheLocation(rel string) (Location, bool) {
	at := strings.Index(rel, "@")
	if at <= 0 {
		return Location{}, false
	}
	escaped := rel[:at]
	rest := rel[at+1:]
	version, sub, _ := strings.Cut(rest, "/")

	modPath, err := module.UnescapePath(escaped)
	if err != nil {
		return Location{}, false
	}
	if v, err := module.UnescapeVersion(version); err == nil {
		version = v
	}
	p := modPath
	if sub != "" {
		p = path.Join(modPath, sub)
	}
	return Location{
		Path:     p,
		External: true,
		Package:  PackageInfo{Name: modPath, Version: version, Manager: DefaultScheme},
	}, true
}

// Agree returns the shared location of a symbol's declaration files. ok is
// false when there are none or when two files disagree on the path.
func Agree(locs []Location) (Location, bool) {
	if len(locs) == 0 {
		return Location{}, false
	}
	first := locs[0]
	for _, l := range locs[1:] {
		if l.Path != first.Path {
			return Location{}, false
		}
	}
	return first, true
}

// EscapeExportPath joins export path segments with ".", doubling dots that
// occur inside a segment.
func EscapeExportPath(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = strings.ReplaceAll(s, ".", "..")
	}
	return strings.Join(escaped, ".")
}

// Identifier concatenates a moniker path and an export path.
func Identifier(monikerPath string, exportPath []string) string {
	if len(exportPath) == 0 {
		return monikerPath
	}
	return monikerPath + ":" + EscapeExportPath(exportPath)
}

func within(base, dir string) (string, bool) {
	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func cleanRel(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(p))
}
