// Package resolve decides how a semantic symbol is addressed before any graph
// node exists for it.
package resolve

import "github.com/DeusData/codebase-xref/internal/oracle"

// Tag names a resolution variant.
type Tag int

const (
	TagStandard Tag = iota
	TagAlias
	TagMethod
	TagComposite
	TagTransient
)

func (t Tag) String() string {
	switch t {
	case TagStandard:
		return "standard"
	case TagAlias:
		return "alias"
	case TagMethod:
		return "method"
	case TagComposite:
		return "composite"
	case TagTransient:
		return "transient"
	}
	return "unknown"
}

// Variant is one of Standard, Alias, Method, Composite or Transient. The set
// is closed: only this package can add implementations.
type Variant interface {
	Tag() Tag
	variant()
}

// Standard declarations are addressed through their own declaration sites.
type Standard struct{}

// Alias bindings resolve to Target. Target is nil when the oracle could not
// resolve it.
type Alias struct {
	Target oracle.Symbol
}

// Method is a member of a named type. Bases holds the same-named members of
// the types the container embeds.
type Method struct {
	Container oracle.Symbol
	Bases     []oracle.Symbol
}

// Composite is a synthesized symbol that stands for several members at the
// use site.
type Composite struct {
	Members []oracle.Symbol
}

// Transient symbols have no declaration beyond their use site.
type Transient struct{}

func (Standard) Tag() Tag  { return TagStandard }
func (Alias) Tag() Tag     { return TagAlias }
func (Method) Tag() Tag    { return TagMethod }
func (Composite) Tag() Tag { return TagComposite }
func (Transient) Tag() Tag { return TagTransient }

func (Standard) variant()  {}
func (Alias) variant()     {}
func (Method) variant()    {}
func (Composite) variant() {}
func (Transient) variant() {}

// Classify picks the variant for sym as seen from useSite. It performs only
// oracle queries; ResolveAlias is asked at most once.
func Classify(o oracle.Oracle, sym oracle.Symbol, useSite oracle.Node) Variant {
	if o.IsAlias(sym) {
		return Alias{Target: o.ResolveAlias(sym)}
	}

	if o.IsTransient(sym) {
		if members := o.CompositeMembers(sym, useSite); members != nil {
			return Composite{Members: members}
		}
		// Only structural when nothing but the transient bit is set.
		if sym.Flags()&^oracle.FlagTransient == 0 {
			return Transient{}
		}
	}

	if sym.Flags().Has(oracle.FlagMember) {
		if container := o.ContainerOf(sym); container != nil {
			return Method{
				Container: container,
				Bases:     withoutSelf(sym, o.BaseMembers(container, sym.Name())),
			}
		}
	}

	return Standard{}
}

func withoutSelf(sym oracle.Symbol, bases []oracle.Symbol) []oracle.Symbol {
	out := bases[:0:0]
	for _, b := range bases {
		if b != nil && b.Key() != sym.Key() {
			out = append(out, b)
		}
	}
	return out
}
