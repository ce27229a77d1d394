package gotypes

import (
	"go/ast"
	"go/types"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

// Node adapts a piece of go/ast to oracle.Node.
type Node struct {
	kind     oracle.NodeKind
	name     string
	parent   *Node
	children []*Node
	nameNode *Node
	file     *file
	rng      oracle.Range
	full     oracle.Range
	redecl   bool

	// ident is the syntax behind Identifier nodes; nil for synthetic names.
	ident *ast.Ident
	// sym is preset for names the type checker does not record (package
	// clauses, type switch guards, unnamed imports).
	sym *Symbol
	// obj is the object a declaration introduces.
	obj types.Object
	// recv is the receiver base type of a method declaration.
	recv *types.TypeName
	// owner overrides Parent for qualification (stub members).
	owner *Node
	doc   string
	prog  *Program
}

func (n *Node) Kind() oracle.NodeKind   { return n.kind }
func (n *Node) Name() string            { return n.name }
func (n *Node) File() string            { return n.file.path }
func (n *Node) Range() oracle.Range     { return n.rng }
func (n *Node) FullRange() oracle.Range { return n.full }
func (n *Node) Redeclarable() bool      { return n.redecl }

func (n *Node) NameNode() oracle.Node {
	if n.nameNode == nil {
		return nil
	}
	return n.nameNode
}

func (n *Node) Parent() oracle.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Owner is the receiver type declaration for methods and the parent for
// everything else.
func (n *Node) Owner() oracle.Node {
	if n.owner != nil {
		return n.owner
	}
	if n.recv != nil {
		if d := n.prog.typeDecl(n.recv); d != nil {
			return d
		}
	}
	return n.Parent()
}

func (n *Node) Children() []oracle.Node {
	out := make([]oracle.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *Node) add(child *Node) *Node {
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// kindOf picks the declaration kind for an object found without a dedicated
// syntax rule.
func kindOf(obj types.Object, inSignature bool) oracle.NodeKind {
	switch o := obj.(type) {
	case *types.PkgName:
		return oracle.KindImport
	case *types.Const:
		return oracle.KindConst
	case *types.TypeName:
		if _, ok := o.Type().(*types.TypeParam); ok {
			return oracle.KindTypeParam
		}
		return oracle.KindTypeDecl
	case *types.Func:
		if sig, ok := o.Type().(*types.Signature); ok && sig.Recv() != nil {
			if types.IsInterface(sig.Recv().Type()) {
				return oracle.KindInterfaceMethod
			}
			return oracle.KindMethod
		}
		return oracle.KindFunc
	case *types.Label:
		return oracle.KindLabel
	case *types.Var:
		switch {
		case o.IsField():
			return oracle.KindField
		case inSignature:
			return oracle.KindParam
		}
		return oracle.KindVar
	}
	return oracle.KindOther
}
