package gotypes

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

// Declarations outside the loaded files (dependencies, the standard library,
// predeclared identifiers) are represented by stub nodes hanging off a
// per-file File node that is never returned by Files.

func (p *Program) externalFile(path string) *file {
	if f, ok := p.external[path]; ok {
		return f
	}
	f := &file{source: readSource(path), external: true}
	f.node = &Node{kind: oracle.KindFile, name: path, file: f, prog: p}
	p.external[path] = f
	return f
}

// declFor returns the declaration node of obj, creating a stub when the
// object was not declared in a loaded file.
func (p *Program) declFor(obj types.Object) *Node {
	if obj == nil {
		return nil
	}
	obj = origin(obj)
	if !isUniverse(obj) && obj.Pos().IsValid() {
		if d, ok := p.decls[p.posKey(obj.Pos())]; ok {
			return d
		}
	}
	return p.stub(obj)
}

func (p *Program) typeDecl(tn *types.TypeName) *Node {
	return p.declFor(tn)
}

func (p *Program) stub(obj types.Object) *Node {
	key := p.objectKey(obj)
	if d, ok := p.stubs[key]; ok {
		return d
	}

	var pos token.Position
	if isUniverse(obj) {
		var ok bool
		if pos, ok = p.builtinPosition(universeName(obj)); !ok {
			return nil
		}
	} else {
		if !obj.Pos().IsValid() {
			return nil
		}
		pos = p.position(obj.Pos())
	}
	if pos.Filename == "" {
		return nil
	}

	f := p.externalFile(pos.Filename)
	r := f.nameRange(pos, obj.Name())
	d := &Node{kind: kindOf(obj, false), name: obj.Name(), file: f, prog: p, obj: obj, rng: r, full: r}
	d.nameNode = d.add(&Node{kind: oracle.KindIdentifier, name: obj.Name(), file: f, prog: p, rng: r, full: r, sym: p.symbolFor(obj)})
	d.redecl = obj.Name() == "_"
	f.node.add(d)

	switch d.kind {
	case oracle.KindMethod, oracle.KindInterfaceMethod, oracle.KindField:
		if tn := p.containerOf(obj); tn != nil {
			d.owner = p.declFor(tn)
		}
	}
	p.stubs[key] = d
	return d
}

// builtinPosition locates a predeclared identifier in $GOROOT/src/builtin.
func (p *Program) builtinPosition(name string) (token.Position, bool) {
	if p.builtins == nil {
		p.builtins = make(map[string]token.Position)
		p.loadBuiltins()
	}
	pos, ok := p.builtins[name]
	return pos, ok
}

func (p *Program) loadBuiltins() {
	if p.goroot == "" {
		return
	}
	path := filepath.Join(p.goroot, "src", "builtin", "builtin.go")
	fset := token.NewFileSet()
	af, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return
	}
	for _, decl := range af.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			p.builtins[d.Name.Name] = fset.Position(d.Name.Pos())
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					p.builtins[s.Name.Name] = fset.Position(s.Name.Pos())
					if it, ok := s.Type.(*ast.InterfaceType); ok {
						for _, m := range it.Methods.List {
							for _, n := range m.Names {
								p.builtins[s.Name.Name+"."+n.Name] = fset.Position(n.Pos())
							}
						}
					}
				case *ast.ValueSpec:
					for _, n := range s.Names {
						p.builtins[n.Name] = fset.Position(n.Pos())
					}
				}
			}
		}
	}
}

// packageDecls returns the package clauses declaring pkg. Packages without
// loaded files get one stub clause from the first file holding a
// package-level object.
func (p *Program) packageDecls(pkg *types.Package) []*Node {
	if ds, ok := p.pkgClauses[pkg.Path()]; ok {
		return ds
	}
	key := "package|" + pkg.Path()
	if d, ok := p.stubs[key]; ok {
		return []*Node{d}
	}

	var filename string
	names := pkg.Scope().Names()
	sort.Strings(names)
	for _, n := range names {
		if obj := pkg.Scope().Lookup(n); obj.Pos().IsValid() {
			filename = p.position(obj.Pos()).Filename
			break
		}
	}
	if filename == "" {
		return nil
	}
	fset := token.NewFileSet()
	af, err := parser.ParseFile(fset, filename, nil, parser.PackageClauseOnly)
	if err != nil {
		return nil
	}

	f := p.externalFile(filename)
	r := f.nameRange(fset.Position(af.Name.Pos()), af.Name.Name)
	d := &Node{kind: oracle.KindPackage, name: af.Name.Name, file: f, prog: p, rng: r, full: r}
	d.nameNode = d.add(&Node{kind: oracle.KindIdentifier, name: af.Name.Name, file: f, prog: p, rng: r, full: r, sym: p.packageSymbol(pkg)})
	f.node.add(d)
	p.stubs[key] = d
	return []*Node{d}
}
