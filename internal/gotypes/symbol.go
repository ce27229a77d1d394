package gotypes

import (
	"fmt"
	"go/token"
	"go/types"
	"strconv"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

type symbolKind int

const (
	symObject symbolKind = iota
	symPackage
	symGuard
)

// Symbol wraps a types.Object, an imported package or a type switch guard.
type Symbol struct {
	kind  symbolKind
	key   string
	name  string
	flags oracle.SymbolFlags

	obj     types.Object
	pkg     *types.Package
	guard   *Node
	members []types.Object
}

func (s *Symbol) Key() string                { return s.key }
func (s *Symbol) Name() string               { return s.name }
func (s *Symbol) Flags() oracle.SymbolFlags { return s.flags }

// Object returns the underlying object, or nil for packages and guards.
func (s *Symbol) Object() types.Object { return s.obj }

// origin maps instantiated generic members back to their declaration.
func origin(obj types.Object) types.Object {
	switch o := obj.(type) {
	case *types.Func:
		return o.Origin()
	case *types.Var:
		return o.Origin()
	}
	return obj
}

func isUniverse(obj types.Object) bool {
	return obj.Pkg() == nil
}

func objectTag(obj types.Object) string {
	switch o := obj.(type) {
	case *types.PkgName:
		return "pkgname"
	case *types.Const:
		return "const"
	case *types.TypeName:
		return "type"
	case *types.Func:
		if sig, ok := o.Type().(*types.Signature); ok && sig.Recv() != nil {
			return "method"
		}
		return "func"
	case *types.Var:
		if o.IsField() {
			return "field"
		}
		return "var"
	case *types.Label:
		return "label"
	case *types.Builtin:
		return "builtin"
	case *types.Nil:
		return "nil"
	}
	return "object"
}

// universeName qualifies universe methods by their receiver ("error.Error").
func universeName(obj types.Object) string {
	if fn, ok := obj.(*types.Func); ok {
		if sig, ok := fn.Type().(*types.Signature); ok && sig.Recv() != nil {
			if n := asNamed(sig.Recv().Type()); n != nil {
				return n.Obj().Name() + "." + fn.Name()
			}
		}
	}
	return obj.Name()
}

func (p *Program) objectKey(obj types.Object) string {
	if isUniverse(obj) {
		return "universe|" + universeName(obj)
	}
	pos := p.position(obj.Pos())
	key := fmt.Sprintf("%s|%s|%s|%s:%d:%d", objectTag(obj), obj.Pkg().Path(), obj.Name(), pos.Filename, pos.Line, pos.Column)
	if i, ok := p.implicitClause[obj]; ok {
		key += "#case" + strconv.Itoa(i)
	}
	return key
}

func (p *Program) flagsOf(obj types.Object) oracle.SymbolFlags {
	switch o := obj.(type) {
	case *types.PkgName:
		return oracle.FlagAlias | oracle.FlagModule
	case *types.TypeName:
		if o.IsAlias() {
			return oracle.FlagAlias | oracle.FlagTypeOnly
		}
		return oracle.FlagTypeOnly
	case *types.Func:
		if sig, ok := o.Type().(*types.Signature); ok && sig.Recv() != nil {
			return oracle.FlagMember
		}
	case *types.Var:
		if o.IsField() {
			return oracle.FlagMember
		}
		if _, ok := p.implicitClause[o]; ok {
			return oracle.FlagTransient
		}
	}
	return 0
}

// symbolFor returns the canonical symbol for obj; the same key always
// yields the same *Symbol.
func (p *Program) symbolFor(obj types.Object) *Symbol {
	obj = origin(obj)
	key := p.objectKey(obj)
	if s, ok := p.symbols[key]; ok {
		return s
	}
	s := &Symbol{kind: symObject, key: key, name: obj.Name(), flags: p.flagsOf(obj), obj: obj}
	p.symbols[key] = s
	return s
}

func (p *Program) packageSymbol(pkg *types.Package) *Symbol {
	key := "package|" + pkg.Path()
	if s, ok := p.symbols[key]; ok {
		return s
	}
	s := &Symbol{kind: symPackage, key: key, name: pkg.Name(), flags: oracle.FlagModule, pkg: pkg}
	p.symbols[key] = s
	return s
}

func (p *Program) guardSymbol(guard *Node, pkg *types.Package, pos token.Position, members []types.Object) *Symbol {
	key := fmt.Sprintf("guard|%s|%s|%s:%d:%d", pkg.Path(), guard.name, pos.Filename, pos.Line, pos.Column)
	s := &Symbol{kind: symGuard, key: key, name: guard.name, flags: oracle.FlagTransient, guard: guard, members: members}
	p.symbols[key] = s
	return s
}

// asNamed strips pointers and aliases down to a named type, or nil.
func asNamed(t types.Type) *types.Named {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		t = types.Unalias(ptr.Elem())
	}
	n, ok := t.(*types.Named)
	if !ok {
		return nil
	}
	return n.Origin()
}
