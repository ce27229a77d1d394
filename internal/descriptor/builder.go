package descriptor

import (
	"strconv"

	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
)

type resultKind int

const (
	resultEmpty resultKind = iota
	resultLocal
	resultGlobal
)

type result struct {
	kind resultKind
	sym  Symbol
}

// counterKey scopes the redeclaration counter to the resolved owner, so
// transparent wrappers and sibling files of one package share it.
type counterKey struct {
	owner string
	name  string
}

// Builder resolves declaration nodes to symbols. Each node is resolved once;
// later calls return the memoised result. A Builder is not safe for
// concurrent use.
type Builder struct {
	scheme    string
	locate    moniker.Locator
	memo      map[oracle.Node]result
	counters  map[counterKey]int
	nextLocal int
}

// NewBuilder returns a builder emitting symbols under scheme.
func NewBuilder(scheme string, locate moniker.Locator) *Builder {
	if scheme == "" {
		scheme = moniker.DefaultScheme
	}
	return &Builder{
		scheme:   scheme,
		locate:   locate,
		memo:     make(map[oracle.Node]result),
		counters: make(map[counterKey]int),
	}
}

// Symbol returns the symbol for a declaration node. Nodes that carry no
// identity of their own yield a local symbol.
func (b *Builder) Symbol(n oracle.Node) Symbol {
	r := b.resolve(n)
	if r.kind != resultGlobal && r.kind != resultLocal {
		r = b.local(n)
	}
	return r.sym
}

// NewLocal allocates a local symbol that is not tied to any node.
func (b *Builder) NewLocal() Symbol {
	s := LocalSymbol(b.nextLocal)
	b.nextLocal++
	return s
}

func (b *Builder) resolve(n oracle.Node) result {
	if n == nil {
		return result{kind: resultEmpty}
	}
	if r, ok := b.memo[n]; ok {
		return r
	}

	var r result
	switch n.Kind() {
	case oracle.KindFile:
		r = b.namespace(n)
	case oracle.KindPackage:
		r = b.resolve(n.Parent())
	case oracle.KindGroup:
		r = b.resolve(n.Owner())
	case oracle.KindBlock, oracle.KindSignature:
		r = result{kind: resultEmpty}
	case oracle.KindTypeDecl:
		r = b.child(n, SuffixType)
	case oracle.KindFunc, oracle.KindMethod, oracle.KindInterfaceMethod:
		r = b.child(n, SuffixMethod)
	case oracle.KindVar, oracle.KindConst, oracle.KindField, oracle.KindProperty:
		r = b.child(n, SuffixTerm)
	case oracle.KindTypeParam:
		r = b.child(n, SuffixMeta)
	default:
		r = b.local(n)
	}
	b.memo[n] = r
	return r
}

func (b *Builder) namespace(file oracle.Node) result {
	loc, ok := b.locate.Compute(file.File())
	if !ok {
		return result{kind: resultEmpty}
	}
	return result{kind: resultGlobal, sym: Symbol{
		Scheme:      b.scheme,
		Package:     loc.Package,
		Descriptors: []Descriptor{{Name: loc.Path, Suffix: SuffixNamespace}},
	}}
}

// child appends one descriptor to the owner's symbol. Identity never becomes
// global beneath a local or empty owner.
func (b *Builder) child(n oracle.Node, suffix Suffix) result {
	owner := n.Owner()
	parent := b.resolve(owner)
	if parent.kind != resultGlobal || n.Name() == "" {
		return b.local(n)
	}

	name := n.Name()
	key := counterKey{owner: parent.sym.String(), name: name}
	seen := b.counters[key]
	b.counters[key] = seen + 1
	if n.Redeclarable() || seen > 0 {
		name += strconv.Itoa(seen)
	}

	descs := make([]Descriptor, len(parent.sym.Descriptors), len(parent.sym.Descriptors)+1)
	copy(descs, parent.sym.Descriptors)
	descs = append(descs, Descriptor{Name: name, Suffix: suffix})
	return result{kind: resultGlobal, sym: Symbol{
		Scheme:      parent.sym.Scheme,
		Package:     parent.sym.Package,
		Descriptors: descs,
	}}
}

func (b *Builder) local(n oracle.Node) result {
	r := result{kind: resultLocal, sym: b.NewLocal()}
	if n != nil {
		b.memo[n] = r
	}
	return r
}
