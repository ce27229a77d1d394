// Package oracletest provides a programmable in-memory oracle for tests of
// the indexing core. Every node created through the builder gets its own line
// in its file, so ranges are unique and ordered by creation.
package oracletest

import (
	"fmt"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

// Node is an in-memory syntax node.
type Node struct {
	kind     oracle.NodeKind
	name     string
	parent   *Node
	owner    *Node
	children []*Node
	nameNode *Node
	file     string
	rng      oracle.Range
	full     oracle.Range
	redecl   bool
}

func (n *Node) Kind() oracle.NodeKind { return n.kind }
func (n *Node) Name() string          { return n.name }
func (n *Node) File() string          { return n.file }
func (n *Node) Range() oracle.Range   { return n.rng }
func (n *Node) FullRange() oracle.Range {
	return n.full
}
func (n *Node) Redeclarable() bool { return n.redecl }

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

func (n *Node) Owner() oracle.Node {
	if n.owner != nil {
		return n.owner
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

// SetOwner overrides the qualification container.
func (n *Node) SetOwner(owner *Node) *Node {
	n.owner = owner
	return n
}

// SetRedeclarable marks the node's name as legally repeatable.
func (n *Node) SetRedeclarable() *Node {
	n.redecl = true
	return n
}

// Ident returns the name child of a declaration.
func (n *Node) Ident() *Node { return n.nameNode }

// Symbol is an in-memory semantic symbol.
type Symbol struct {
	key   string
	name  string
	flags oracle.SymbolFlags
}

func (s *Symbol) Key() string                { return s.key }
func (s *Symbol) Name() string               { return s.name }
func (s *Symbol) Flags() oracle.SymbolFlags { return s.flags }

// Oracle implements oracle.Oracle over hand-built trees.
type Oracle struct {
	files      []*Node
	lines      map[string]int
	symbolAt   map[*Node]*Symbol
	decls      map[*Symbol][]*Node
	aliases    map[*Symbol]*Symbol
	composites map[*Symbol][]*Symbol
	containers map[*Symbol]*Symbol
	bases      map[string][]*Symbol
	exports    map[*Symbol][]string
	reexports  map[*Node]string
	external   map[string]bool
	defaultLib map[string]bool
	hovers     map[*Symbol]oracle.Hover
	hoverErrs  map[*Symbol]error

	// ResolveAliasCalls counts ResolveAlias queries per symbol key.
	ResolveAliasCalls map[string]int
}

// New returns an empty oracle.
func New() *Oracle {
	return &Oracle{
		lines:             make(map[string]int),
		symbolAt:          make(map[*Node]*Symbol),
		decls:             make(map[*Symbol][]*Node),
		aliases:           make(map[*Symbol]*Symbol),
		composites:        make(map[*Symbol][]*Symbol),
		containers:        make(map[*Symbol]*Symbol),
		bases:             make(map[string][]*Symbol),
		exports:           make(map[*Symbol][]string),
		reexports:         make(map[*Node]string),
		external:          make(map[string]bool),
		defaultLib:        make(map[string]bool),
		hovers:            make(map[*Symbol]oracle.Hover),
		hoverErrs:         make(map[*Symbol]error),
		ResolveAliasCalls: make(map[string]int),
	}
}

func (o *Oracle) nextLine(file string) int {
	l := o.lines[file]
	o.lines[file] = l + 1
	return l
}

func (o *Oracle) newNode(parent *Node, file string, kind oracle.NodeKind, name string) *Node {
	line := o.nextLine(file)
	n := &Node{
		kind:   kind,
		name:   name,
		parent: parent,
		file:   file,
		rng: oracle.Range{
			Start: oracle.Position{Line: line},
			End:   oracle.Position{Line: line, Character: len(name)},
		},
		full: oracle.Range{
			Start: oracle.Position{Line: line},
			End:   oracle.Position{Line: line, Character: len(name) + 1},
		},
	}
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	return n
}

// AddFile creates a File node that Files enumerates.
func (o *Oracle) AddFile(path string) *Node {
	f := o.newNode(nil, path, oracle.KindFile, path)
	o.files = append(o.files, f)
	return f
}

// LibraryFile creates an external File node that Files does not enumerate.
func (o *Oracle) LibraryFile(path string) *Node {
	o.external[path] = true
	return o.newNode(nil, path, oracle.KindFile, path)
}

// Container adds a node without a name of its own (Group, Block, Signature).
func (o *Oracle) Container(parent *Node, kind oracle.NodeKind) *Node {
	return o.newNode(parent, parent.file, kind, "")
}

// Declare adds a declaration node with an identifier name child.
func (o *Oracle) Declare(parent *Node, kind oracle.NodeKind, name string) *Node {
	d := o.newNode(parent, parent.file, kind, name)
	d.nameNode = o.newNode(d, parent.file, oracle.KindIdentifier, name)
	// The declaration's selection span is its name.
	d.rng = d.nameNode.rng
	return d
}

// Ident adds a plain identifier (a reference site).
func (o *Oracle) Ident(parent *Node, name string) *Node {
	return o.newNode(parent, parent.file, oracle.KindIdentifier, name)
}

// NewSymbol creates a symbol; it is not bound to any node yet.
func (o *Oracle) NewSymbol(key, name string, flags ...oracle.SymbolFlags) *Symbol {
	s := &Symbol{key: key, name: name}
	for _, f := range flags {
		s.flags |= f
	}
	return s
}

// Bind makes SymbolAt(n) return s.
func (o *Oracle) Bind(n *Node, s *Symbol) {
	o.symbolAt[n] = s
}

// AddDeclarations appends declaration nodes for s.
func (o *Oracle) AddDeclarations(s *Symbol, decls ...*Node) {
	o.decls[s] = append(o.decls[s], decls...)
}

// Define declares name under parent, binds its name to s and records the
// declaration.
func (o *Oracle) Define(parent *Node, kind oracle.NodeKind, name string, s *Symbol) *Node {
	d := o.Declare(parent, kind, name)
	o.Bind(d.nameNode, s)
	o.AddDeclarations(s, d)
	return d
}

// Ref adds an identifier bound to s.
func (o *Oracle) Ref(parent *Node, s *Symbol) *Node {
	id := o.Ident(parent, s.name)
	o.Bind(id, s)
	return id
}

func (o *Oracle) SetAlias(s, target *Symbol) {
	s.flags |= oracle.FlagAlias
	if target != nil {
		o.aliases[s] = target
	}
}

func (o *Oracle) SetComposite(s *Symbol, members ...*Symbol) {
	s.flags |= oracle.FlagTransient
	o.composites[s] = members
}

func (o *Oracle) SetContainer(s, container *Symbol) {
	s.flags |= oracle.FlagMember
	o.containers[s] = container
}

func (o *Oracle) SetBases(container *Symbol, name string, bases ...*Symbol) {
	o.bases[container.key+"\x00"+name] = bases
}

func (o *Oracle) SetExportPath(s *Symbol, path ...string) {
	o.exports[s] = path
}

// SetExportAlias marks decl as publishing its alias target under name.
func (o *Oracle) SetExportAlias(decl *Node, name string) {
	o.reexports[decl] = name
}

func (o *Oracle) SetExternal(file string)   { o.external[file] = true }
func (o *Oracle) SetDefaultLib(file string) { o.defaultLib[file] = true }

func (o *Oracle) SetHover(s *Symbol, h oracle.Hover) { o.hovers[s] = h }
func (o *Oracle) SetHoverError(s *Symbol, err error) { o.hoverErrs[s] = err }

func (o *Oracle) Files() []oracle.Node {
	out := make([]oracle.Node, len(o.files))
	for i, f := range o.files {
		out[i] = f
	}
	return out
}

func (o *Oracle) SymbolAt(n oracle.Node) oracle.Symbol {
	tn, ok := n.(*Node)
	if !ok {
		return nil
	}
	if s, ok := o.symbolAt[tn]; ok {
		return s
	}
	return nil
}

func (o *Oracle) DeclarationsOf(s oracle.Symbol) []oracle.Node {
	ts := s.(*Symbol)
	out := make([]oracle.Node, len(o.decls[ts]))
	for i, d := range o.decls[ts] {
		out[i] = d
	}
	return out
}

func (o *Oracle) IsAlias(s oracle.Symbol) bool { return s.Flags().Has(oracle.FlagAlias) }

func (o *Oracle) ResolveAlias(s oracle.Symbol) oracle.Symbol {
	o.ResolveAliasCalls[s.Key()]++
	if t, ok := o.aliases[s.(*Symbol)]; ok {
		return t
	}
	return nil
}

func (o *Oracle) IsTransient(s oracle.Symbol) bool { return s.Flags().Has(oracle.FlagTransient) }

func (o *Oracle) CompositeMembers(s oracle.Symbol, _ oracle.Node) []oracle.Symbol {
	members, ok := o.composites[s.(*Symbol)]
	if !ok {
		return nil
	}
	return toSymbols(members)
}

func (o *Oracle) ContainerOf(s oracle.Symbol) oracle.Symbol {
	if c, ok := o.containers[s.(*Symbol)]; ok {
		return c
	}
	return nil
}

func (o *Oracle) BaseMembers(container oracle.Symbol, name string) []oracle.Symbol {
	return toSymbols(o.bases[container.Key()+"\x00"+name])
}

func (o *Oracle) ExportPath(s oracle.Symbol) ([]string, bool) {
	p, ok := o.exports[s.(*Symbol)]
	return p, ok
}

func (o *Oracle) ExportAlias(decl oracle.Node) (string, bool) {
	tn, ok := decl.(*Node)
	if !ok {
		return "", false
	}
	name, ok := o.reexports[tn]
	return name, ok
}

func (o *Oracle) IsExternalLibraryFile(file string) bool { return o.external[file] }
func (o *Oracle) IsDefaultLibraryFile(file string) bool  { return o.defaultLib[file] }

func (o *Oracle) HoverText(nameNode oracle.Node) (oracle.Hover, error) {
	s, ok := o.SymbolAt(nameNode).(*Symbol)
	if !ok || s == nil {
		return oracle.Hover{}, fmt.Errorf("no symbol at %s", nameNode.Range())
	}
	if err := o.hoverErrs[s]; err != nil {
		return oracle.Hover{}, err
	}
	return o.hovers[s], nil
}

func toSymbols(in []*Symbol) []oracle.Symbol {
	if in == nil {
		return nil
	}
	out := make([]oracle.Symbol, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
