// Package gotypes answers semantic questions about a Go module using
// golang.org/x/tools/go/packages and go/types.
package gotypes

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/build"
	"go/token"
	"go/types"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

// ErrNoPackages is returned when the pattern matched no Go files under root.
var ErrNoPackages = errors.New("gotypes: no packages found")

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo |
	packages.NeedImports | packages.NeedModule

// LoadOptions control which packages and files Load type-checks.
type LoadOptions struct {
	// Tests includes _test.go files and external test packages.
	Tests     bool
	BuildTags []string
	// GOROOT locates the standard library and builtin.go; defaults to the
	// GOROOT reported by the go command that loads the packages.
	GOROOT string
	// Include filters files by absolute path; nil keeps everything.
	Include func(path string) bool
}

type file struct {
	*source
	pkg      *packages.Package
	info     *types.Info
	ast      *ast.File
	node     *Node
	external bool
}

type posKey struct {
	filename string
	offset   int
}

// Program is a loaded, type-checked module. It implements oracle.Oracle.
// A Program is not safe for concurrent use.
type Program struct {
	root   string
	goroot string
	fset   *token.FileSet

	files    []*file
	external map[string]*file

	symbols        map[string]*Symbol
	decls          map[posKey]*Node
	stubs          map[string]*Node
	pkgClauses     map[string][]*Node
	implicitClause map[types.Object]int
	fieldOwners    map[*types.Package]map[*types.Var]*types.TypeName
	builtins       map[string]token.Position

	packageErrors int
}

// Load type-checks every package under root ("./...").
func Load(ctx context.Context, root string, opts LoadOptions) (*Program, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	goroot := opts.GOROOT
	if goroot == "" {
		goroot = toolchainGOROOT(ctx, root)
	}

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     root,
		Fset:    fset,
		Tests:   opts.Tests,
	}
	if len(opts.BuildTags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(opts.BuildTags, ",")}
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	p := &Program{
		root:           root,
		goroot:         goroot,
		fset:           fset,
		external:       make(map[string]*file),
		symbols:        make(map[string]*Symbol),
		decls:          make(map[posKey]*Node),
		stubs:          make(map[string]*Node),
		pkgClauses:     make(map[string][]*Node),
		implicitClause: make(map[types.Object]int),
		fieldOwners:    make(map[*types.Package]map[*types.Var]*types.TypeName),
	}

	// Test variants ("p [p.test]") contain every file of p; visiting them
	// first lets one type-checked copy own each file.
	sort.SliceStable(pkgs, func(i, j int) bool {
		if pkgs[i].PkgPath != pkgs[j].PkgPath {
			return pkgs[i].PkgPath < pkgs[j].PkgPath
		}
		return isTestVariant(pkgs[i]) && !isTestVariant(pkgs[j])
	})

	seen := make(map[string]bool)
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			p.packageErrors++
			slog.Debug("gotypes.package_error", "pkg", pkg.ID, "err", e.Msg)
		}
		if pkg.Types == nil || pkg.TypesInfo == nil || strings.HasSuffix(pkg.ID, ".test") {
			continue
		}
		for _, af := range pkg.Syntax {
			tf := fset.File(af.Pos())
			if tf == nil {
				continue
			}
			path := tf.Name()
			if seen[path] || !within(root, path) {
				continue
			}
			if opts.Include != nil && !opts.Include(path) {
				continue
			}
			seen[path] = true
			p.files = append(p.files, &file{source: readSource(path), pkg: pkg, info: pkg.TypesInfo, ast: af})
		}
	}
	if len(p.files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoPackages, root)
	}
	if p.packageErrors > 0 {
		slog.Warn("gotypes.package_errors", "count", p.packageErrors, "root", root)
	}

	sort.Slice(p.files, func(i, j int) bool {
		a, b := p.files[i], p.files[j]
		if a.pkg.PkgPath != b.pkg.PkgPath {
			return a.pkg.PkgPath < b.pkg.PkgPath
		}
		return a.path < b.path
	})
	for _, f := range p.files {
		f.node = newBuilder(p, f).build()
	}
	slog.Info("gotypes.loaded", "root", root, "packages", len(pkgs), "files", len(p.files))
	return p, nil
}

func isTestVariant(pkg *packages.Package) bool {
	return strings.Contains(pkg.ID, "[")
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// toolchainGOROOT asks the go command for its GOROOT so that standard
// library positions agree with the toolchain that produced export data.
func toolchainGOROOT(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, "go", "env", "GOROOT")
	cmd.Dir = dir
	if out, err := cmd.Output(); err == nil {
		if goroot := strings.TrimSpace(string(out)); goroot != "" {
			return goroot
		}
	}
	return build.Default.GOROOT
}

// Root is the absolute module directory.
func (p *Program) Root() string { return p.root }

// GOROOT is the Go root standard library files were resolved against.
func (p *Program) GOROOT() string { return p.goroot }

// PackageErrors counts load and type errors reported by go/packages.
func (p *Program) PackageErrors() int { return p.packageErrors }

// Paths lists the loaded files in processing order.
func (p *Program) Paths() []string {
	out := make([]string, len(p.files))
	for i, f := range p.files {
		out[i] = f.path
	}
	return out
}

func (p *Program) posKey(pos token.Pos) posKey {
	position := p.position(pos)
	return posKey{filename: position.Filename, offset: position.Offset}
}

// position resolves pos. Export data records standard library files as
// "$GOROOT/src/...", which is expanded against the program's GOROOT.
func (p *Program) position(pos token.Pos) token.Position {
	position := p.fset.Position(pos)
	if rest, ok := strings.CutPrefix(position.Filename, "$GOROOT"); ok && p.goroot != "" {
		position.Filename = filepath.Join(p.goroot, filepath.FromSlash(rest))
	}
	return position
}

func (p *Program) registerDecl(pos token.Pos, d *Node) {
	k := p.posKey(pos)
	if _, ok := p.decls[k]; !ok {
		p.decls[k] = d
	}
}

var _ oracle.Oracle = (*Program)(nil)

func (p *Program) Files() []oracle.Node {
	out := make([]oracle.Node, len(p.files))
	for i, f := range p.files {
		out[i] = f.node
	}
	return out
}

func (p *Program) SymbolAt(n oracle.Node) oracle.Symbol {
	gn, ok := n.(*Node)
	if !ok || gn == nil {
		return nil
	}
	if s := p.symbolAt(gn); s != nil {
		return s
	}
	return nil
}

func (p *Program) symbolAt(n *Node) *Symbol {
	if n.sym != nil {
		return n.sym
	}
	if n.ident == nil || n.file.info == nil {
		return nil
	}
	obj := n.file.info.Defs[n.ident]
	if obj == nil {
		obj = n.file.info.Uses[n.ident]
	}
	if obj == nil {
		return nil
	}
	return p.symbolFor(obj)
}

func toNodes(ns []*Node) []oracle.Node {
	out := make([]oracle.Node, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (p *Program) DeclarationsOf(s oracle.Symbol) []oracle.Node {
	sym, ok := s.(*Symbol)
	if !ok {
		return nil
	}
	switch sym.kind {
	case symPackage:
		return toNodes(p.packageDecls(sym.pkg))
	case symGuard:
		return toNodes([]*Node{sym.guard})
	}
	return toNodes([]*Node{p.declFor(sym.obj)})
}

func (p *Program) IsAlias(s oracle.Symbol) bool {
	return s.Flags().Has(oracle.FlagAlias)
}

func (p *Program) ResolveAlias(s oracle.Symbol) oracle.Symbol {
	sym, ok := s.(*Symbol)
	if !ok || sym.obj == nil {
		return nil
	}
	switch o := sym.obj.(type) {
	case *types.PkgName:
		return p.packageSymbol(o.Imported())
	case *types.TypeName:
		if !o.IsAlias() {
			return nil
		}
		switch t := types.Unalias(o.Type()).(type) {
		case *types.Named:
			return p.symbolFor(t.Origin().Obj())
		case *types.Basic:
			if obj := types.Universe.Lookup(t.Name()); obj != nil {
				return p.symbolFor(obj)
			}
		case *types.TypeParam:
			return p.symbolFor(t.Obj())
		}
	}
	return nil
}

func (p *Program) IsTransient(s oracle.Symbol) bool {
	return s.Flags().Has(oracle.FlagTransient)
}

func (p *Program) CompositeMembers(s oracle.Symbol, _ oracle.Node) []oracle.Symbol {
	sym, ok := s.(*Symbol)
	if !ok || sym.kind != symGuard {
		return nil
	}
	out := make([]oracle.Symbol, 0, len(sym.members))
	for _, m := range sym.members {
		out = append(out, p.symbolFor(m))
	}
	return out
}

func (p *Program) ContainerOf(s oracle.Symbol) oracle.Symbol {
	sym, ok := s.(*Symbol)
	if !ok || sym.obj == nil {
		return nil
	}
	if tn := p.containerOf(sym.obj); tn != nil {
		return p.symbolFor(tn)
	}
	return nil
}

// containerOf returns the named type owning a method or field.
func (p *Program) containerOf(obj types.Object) *types.TypeName {
	switch o := obj.(type) {
	case *types.Func:
		sig, ok := o.Type().(*types.Signature)
		if !ok || sig.Recv() == nil {
			return nil
		}
		if n := asNamed(sig.Recv().Type()); n != nil {
			return n.Obj()
		}
	case *types.Var:
		if o.IsField() {
			return p.fieldOwner(o)
		}
	}
	return nil
}

// fieldOwner finds the package-level struct type declaring v.
func (p *Program) fieldOwner(v *types.Var) *types.TypeName {
	pkg := v.Pkg()
	if pkg == nil {
		return nil
	}
	owners, ok := p.fieldOwners[pkg]
	if !ok {
		owners = make(map[*types.Var]*types.TypeName)
		scope := pkg.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			st, ok := tn.Type().Underlying().(*types.Struct)
			if !ok {
				continue
			}
			for i := 0; i < st.NumFields(); i++ {
				owners[st.Field(i)] = tn
			}
		}
		p.fieldOwners[pkg] = owners
	}
	return owners[v.Origin()]
}

// BaseMembers walks embedded fields and embedded interfaces of the container
// breadth-first and returns members named name.
func (p *Program) BaseMembers(container oracle.Symbol, name string) []oracle.Symbol {
	sym, ok := container.(*Symbol)
	if !ok {
		return nil
	}
	tn, ok := sym.obj.(*types.TypeName)
	if !ok {
		return nil
	}
	start := asNamed(tn.Type())
	if start == nil {
		return nil
	}

	var out []oracle.Symbol
	visited := map[*types.Named]bool{start: true}
	queue := embeddedNamed(start)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		if m := memberNamed(n, name); m != nil {
			out = append(out, p.symbolFor(m))
		}
		queue = append(queue, embeddedNamed(n)...)
	}
	return out
}

func embeddedNamed(n *types.Named) []*types.Named {
	var out []*types.Named
	switch u := n.Underlying().(type) {
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			if f := u.Field(i); f.Embedded() {
				if e := asNamed(f.Type()); e != nil {
					out = append(out, e)
				}
			}
		}
	case *types.Interface:
		for i := 0; i < u.NumEmbeddeds(); i++ {
			if e := asNamed(u.EmbeddedType(i)); e != nil {
				out = append(out, e)
			}
		}
	}
	return out
}

// memberNamed returns a member declared directly by n.
func memberNamed(n *types.Named, name string) types.Object {
	for i := 0; i < n.NumMethods(); i++ {
		if m := n.Method(i); m.Name() == name {
			return m
		}
	}
	switch u := n.Underlying().(type) {
	case *types.Interface:
		for i := 0; i < u.NumExplicitMethods(); i++ {
			if m := u.ExplicitMethod(i); m.Name() == name {
				return m
			}
		}
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			if f := u.Field(i); f.Name() == name {
				return f
			}
		}
	}
	return nil
}

func (p *Program) ExportPath(s oracle.Symbol) ([]string, bool) {
	sym, ok := s.(*Symbol)
	if !ok {
		return nil, false
	}
	switch sym.kind {
	case symPackage:
		return []string{}, true
	case symGuard:
		return nil, false
	}
	obj := sym.obj
	if isUniverse(obj) {
		if tn := p.containerOf(obj); tn != nil {
			return []string{tn.Name(), obj.Name()}, true
		}
		return []string{obj.Name()}, true
	}
	if !obj.Exported() {
		return nil, false
	}
	switch obj.(type) {
	case *types.Func, *types.Var:
		if tn := p.containerOf(obj); tn != nil {
			if !tn.Exported() || tn.Parent() != tn.Pkg().Scope() {
				return nil, false
			}
			return []string{tn.Name(), obj.Name()}, true
		}
	}
	if obj.Parent() != obj.Pkg().Scope() {
		return nil, false
	}
	return []string{obj.Name()}, true
}

func (p *Program) ExportAlias(decl oracle.Node) (string, bool) {
	d, ok := decl.(*Node)
	if !ok || d.kind != oracle.KindTypeDecl {
		return "", false
	}
	tn, ok := d.obj.(*types.TypeName)
	if !ok || !tn.IsAlias() || !tn.Exported() || tn.Pkg() == nil || tn.Parent() != tn.Pkg().Scope() {
		return "", false
	}
	return tn.Name(), true
}

// IsExternalLibraryFile reports files outside the module or under vendor/.
func (p *Program) IsExternalLibraryFile(path string) bool {
	return !within(p.root, path) || within(filepath.Join(p.root, "vendor"), path)
}

func (p *Program) IsDefaultLibraryFile(path string) bool {
	return p.goroot != "" && within(filepath.Join(p.goroot, "src"), path)
}

func (p *Program) HoverText(nameNode oracle.Node) (oracle.Hover, error) {
	n, ok := nameNode.(*Node)
	if !ok {
		return oracle.Hover{}, fmt.Errorf("gotypes: foreign node %T", nameNode)
	}
	sym := p.symbolAt(n)
	if sym == nil {
		return oracle.Hover{}, fmt.Errorf("gotypes: no symbol at %s:%s", n.File(), n.rng)
	}
	var h oracle.Hover
	switch sym.kind {
	case symPackage:
		h.Signature = fmt.Sprintf("package %s (%q)", sym.pkg.Name(), sym.pkg.Path())
	case symGuard:
		h.Signature = "var " + sym.name
	default:
		var qual types.Qualifier
		if pkg := sym.obj.Pkg(); pkg != nil {
			qual = types.RelativeTo(pkg)
		}
		h.Signature = types.ObjectString(sym.obj, qual)
	}
	if n.parent != nil && n.parent.nameNode == n {
		h.Doc = n.parent.doc
	}
	return h, nil
}
