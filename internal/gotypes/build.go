package gotypes

import (
	"go/ast"
	"go/token"
	"go/types"
	"path"
	"strconv"
	"strings"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

// builder converts one type-checked *ast.File into a Node tree.
type builder struct {
	p       *Program
	f       *file
	claimed map[*ast.Ident]bool
}

func newBuilder(p *Program, f *file) *builder {
	return &builder{p: p, f: f, claimed: make(map[*ast.Ident]bool)}
}

func (b *builder) build() *Node {
	af := b.f.ast
	whole := oracle.Range{End: b.f.offsetPosition(len(b.f.content))}
	root := &Node{kind: oracle.KindFile, name: b.f.path, file: b.f, prog: b.p, rng: whole, full: whole}

	pkg := b.declNode(oracle.KindPackage, af.Name, af, nil)
	pkg.nameNode.sym = b.p.packageSymbol(b.f.pkg.Types)
	pkg.doc = docText(af.Doc)
	root.add(pkg)
	b.p.pkgClauses[b.f.pkg.Types.Path()] = append(b.p.pkgClauses[b.f.pkg.Types.Path()], pkg)

	for _, d := range af.Decls {
		b.visit(d, root, false)
	}
	return root
}

func (b *builder) pos(p token.Pos) oracle.Position {
	return b.f.offsetPosition(b.p.fset.Position(p).Offset)
}

func (b *builder) span(n ast.Node) oracle.Range {
	return oracle.Range{Start: b.pos(n.Pos()), End: b.pos(n.End())}
}

func (b *builder) container(kind oracle.NodeKind, n ast.Node) *Node {
	r := b.span(n)
	return &Node{kind: kind, file: b.f, prog: b.p, rng: r, full: r}
}

func (b *builder) identNode(id *ast.Ident) *Node {
	b.claimed[id] = true
	r := b.span(id)
	return &Node{kind: oracle.KindIdentifier, name: id.Name, ident: id, file: b.f, prog: b.p, rng: r, full: r}
}

// declNode creates a declaration named by id spanning full and registers it
// in the program's declaration index.
func (b *builder) declNode(kind oracle.NodeKind, id *ast.Ident, full ast.Node, obj types.Object) *Node {
	d := &Node{kind: kind, name: id.Name, file: b.f, prog: b.p, full: b.span(full), obj: obj}
	nn := d.add(b.identNode(id))
	d.nameNode = nn
	d.rng = nn.rng
	d.redecl = id.Name == "_"
	if kind != oracle.KindPackage {
		b.p.registerDecl(id.Pos(), d)
	}
	return d
}

// children visits every direct child of n under parent.
func (b *builder) children(n ast.Node, parent *Node, inSig bool) {
	if n == nil {
		return
	}
	ast.Inspect(n, func(c ast.Node) bool {
		if c == n {
			return true
		}
		if c != nil {
			b.visit(c, parent, inSig)
		}
		return false
	})
}

func (b *builder) fields(fl *ast.FieldList, parent *Node, inSig bool) {
	if fl == nil {
		return
	}
	b.children(fl, parent, inSig)
}

func (b *builder) visit(n ast.Node, parent *Node, inSig bool) {
	switch x := n.(type) {
	case nil:
	case *ast.GenDecl:
		b.genDecl(x, parent)
	case *ast.FuncDecl:
		b.funcDecl(x, parent)
	case *ast.FuncLit:
		b.visit(x.Type, parent, false)
		b.visit(x.Body, parent, false)
	case *ast.FuncType:
		if x == nil {
			return
		}
		b.children(x, parent.add(b.container(oracle.KindSignature, x)), true)
	case *ast.BlockStmt:
		if x == nil {
			return
		}
		blk := parent.add(b.container(oracle.KindBlock, x))
		for _, s := range x.List {
			b.visit(s, blk, false)
		}
	case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.SelectStmt,
		*ast.CaseClause, *ast.CommClause:
		b.children(n, parent.add(b.container(oracle.KindBlock, n)), false)
	case *ast.TypeSwitchStmt:
		b.typeSwitch(x, parent)
	case *ast.StructType:
		b.structType(x, parent)
	case *ast.InterfaceType:
		b.interfaceType(x, parent)
	case *ast.Ident:
		b.ident(x, parent, inSig)
	default:
		b.children(n, parent, inSig)
	}
}

func (b *builder) ident(id *ast.Ident, parent *Node, inSig bool) {
	if b.claimed[id] {
		return
	}
	if obj := b.f.info.Defs[id]; obj != nil {
		parent.add(b.declNode(kindOf(obj, inSig), id, id, obj))
		return
	}
	parent.add(b.identNode(id))
}

func (b *builder) genDecl(gd *ast.GenDecl, parent *Node) {
	g := parent.add(b.container(oracle.KindGroup, gd))
	var groupDoc string
	if len(gd.Specs) == 1 {
		groupDoc = docText(gd.Doc)
	}
	for _, spec := range gd.Specs {
		switch s := spec.(type) {
		case *ast.ImportSpec:
			b.importSpec(s, g)
		case *ast.TypeSpec:
			d := b.declNode(oracle.KindTypeDecl, s.Name, s, b.f.info.Defs[s.Name])
			d.doc = firstDoc(docText(s.Doc), groupDoc)
			g.add(d)
			b.fields(s.TypeParams, d, false)
			b.visit(s.Type, d, false)
		case *ast.ValueSpec:
			b.valueSpec(s, g, gd.Tok, firstDoc(docText(s.Doc), groupDoc))
		}
	}
}

func (b *builder) importSpec(s *ast.ImportSpec, g *Node) {
	info := b.f.info
	var obj types.Object
	if s.Name != nil {
		obj = info.Defs[s.Name]
	}
	if obj == nil {
		obj = info.Implicits[s]
	}

	if s.Name != nil {
		d := g.add(b.declNode(oracle.KindImport, s.Name, s, obj))
		if info.Defs[s.Name] == nil && obj != nil {
			d.nameNode.sym = b.p.symbolFor(obj)
		}
		return
	}

	// Unnamed imports are named by their path literal.
	name := ""
	if pn, ok := obj.(*types.PkgName); ok {
		name = pn.Name()
	} else if lit, err := strconv.Unquote(s.Path.Value); err == nil {
		name = path.Base(lit)
	}
	r := b.span(s.Path)
	d := &Node{kind: oracle.KindImport, name: name, file: b.f, prog: b.p, full: b.span(s), obj: obj, rng: r}
	nn := d.add(&Node{kind: oracle.KindIdentifier, name: name, file: b.f, prog: b.p, rng: r, full: r})
	if obj != nil {
		nn.sym = b.p.symbolFor(obj)
	}
	d.nameNode = nn
	b.p.registerDecl(s.Path.Pos(), d)
	g.add(d)
}

func (b *builder) valueSpec(s *ast.ValueSpec, g *Node, tok token.Token, doc string) {
	kind := oracle.KindVar
	if tok == token.CONST {
		kind = oracle.KindConst
	}
	owner := g
	if len(s.Names) > 1 {
		owner = g.add(b.container(oracle.KindGroup, s))
	}
	var last *Node
	for _, name := range s.Names {
		last = owner.add(b.declNode(kind, name, s, b.f.info.Defs[name]))
		last.doc = doc
	}
	if len(s.Names) == 1 {
		owner = last
	}
	b.visit(s.Type, owner, false)
	for _, v := range s.Values {
		b.visit(v, owner, false)
	}
}

func (b *builder) funcDecl(fd *ast.FuncDecl, parent *Node) {
	obj := b.f.info.Defs[fd.Name]
	kind := oracle.KindFunc
	if fd.Recv != nil {
		kind = oracle.KindMethod
	}
	d := parent.add(b.declNode(kind, fd.Name, fd, obj))
	d.doc = docText(fd.Doc)
	if fd.Recv != nil {
		d.recv = receiverTypeName(obj)
	} else if fd.Name.Name == "init" {
		d.redecl = true
	}

	b.fields(fd.Type.TypeParams, d, false)
	sig := d.add(b.container(oracle.KindSignature, fd.Type))
	b.fields(fd.Recv, sig, true)
	b.fields(fd.Type.Params, sig, true)
	b.fields(fd.Type.Results, sig, true)
	b.visit(fd.Body, d, false)
}

func (b *builder) structType(st *ast.StructType, parent *Node) {
	g := parent.add(b.container(oracle.KindGroup, st))
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 {
			id := embeddedIdent(f.Type)
			if id == nil {
				b.visit(f.Type, g, false)
				continue
			}
			d := g.add(b.declNode(oracle.KindField, id, f, b.f.info.Defs[id]))
			d.doc = docText(f.Doc)
			b.visit(f.Type, d, false)
			continue
		}
		owner := g
		if len(f.Names) > 1 {
			owner = g.add(b.container(oracle.KindGroup, f))
		}
		var last *Node
		for _, name := range f.Names {
			last = owner.add(b.declNode(oracle.KindField, name, f, b.f.info.Defs[name]))
			last.doc = docText(f.Doc)
		}
		if len(f.Names) == 1 {
			owner = last
		}
		b.visit(f.Type, owner, false)
	}
}

func (b *builder) interfaceType(it *ast.InterfaceType, parent *Node) {
	g := parent.add(b.container(oracle.KindGroup, it))
	for _, f := range it.Methods.List {
		if len(f.Names) == 0 {
			b.visit(f.Type, g, false)
			continue
		}
		for _, name := range f.Names {
			d := g.add(b.declNode(oracle.KindInterfaceMethod, name, f, b.f.info.Defs[name]))
			d.doc = docText(f.Doc)
			b.visit(f.Type, d, false)
		}
	}
}

// typeSwitch gives the guard of "switch v := x.(type)" a composite symbol
// whose members are the per-clause implicit variables.
func (b *builder) typeSwitch(ts *ast.TypeSwitchStmt, parent *Node) {
	blk := parent.add(b.container(oracle.KindBlock, ts))
	b.visit(ts.Init, blk, false)

	var guard *Node
	if a, ok := ts.Assign.(*ast.AssignStmt); ok && len(a.Lhs) == 1 {
		if id, ok := a.Lhs[0].(*ast.Ident); ok {
			guard = blk.add(b.declNode(oracle.KindVar, id, a, nil))
			for _, rhs := range a.Rhs {
				b.visit(rhs, blk, false)
			}
		}
	}
	if guard == nil {
		b.visit(ts.Assign, blk, false)
	}

	var members []types.Object
	for i, stmt := range ts.Body.List {
		cc, ok := stmt.(*ast.CaseClause)
		if !ok {
			continue
		}
		if obj := b.f.info.Implicits[cc]; obj != nil {
			b.p.implicitClause[obj] = i
			members = append(members, obj)
		}
	}
	if guard != nil {
		pos := b.p.fset.Position(guard.nameNode.ident.Pos())
		guard.nameNode.sym = b.p.guardSymbol(guard, b.f.pkg.Types, pos, members)
	}
	b.visit(ts.Body, blk, false)
}

// embeddedIdent returns the identifier that names an embedded field.
func embeddedIdent(e ast.Expr) *ast.Ident {
	switch x := e.(type) {
	case *ast.Ident:
		return x
	case *ast.SelectorExpr:
		return x.Sel
	case *ast.StarExpr:
		return embeddedIdent(x.X)
	case *ast.IndexExpr:
		return embeddedIdent(x.X)
	case *ast.IndexListExpr:
		return embeddedIdent(x.X)
	case *ast.ParenExpr:
		return embeddedIdent(x.X)
	}
	return nil
}

func receiverTypeName(obj types.Object) *types.TypeName {
	fn, ok := obj.(*types.Func)
	if !ok {
		return nil
	}
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return nil
	}
	if n := asNamed(sig.Recv().Type()); n != nil {
		return n.Obj()
	}
	return nil
}

func docText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.TrimSpace(cg.Text())
}

func firstDoc(docs ...string) string {
	for _, d := range docs {
		if d != "" {
			return d
		}
	}
	return ""
}
