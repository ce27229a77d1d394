package oracle

import "fmt"

// Position is a zero-based line/character location in a file.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open span [Start, End) within one file.
type Range struct {
	Start Position
	End   Position
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line, r.Start.Character, r.End.Line, r.End.Character)
}

// Contains reports whether p lies inside r (end exclusive).
func (r Range) Contains(p Position) bool {
	if p.Line < r.Start.Line || p.Line > r.End.Line {
		return false
	}
	if p.Line == r.Start.Line && p.Character < r.Start.Character {
		return false
	}
	if p.Line == r.End.Line && p.Character >= r.End.Character {
		return false
	}
	return true
}

// SymbolFlags describe how the oracle classifies a semantic symbol.
type SymbolFlags uint8

const (
	FlagAlias SymbolFlags = 1 << iota
	FlagTransient
	FlagModule
	FlagTypeOnly
	// FlagMember marks methods and fields owned by a named type.
	FlagMember
)

// Has reports whether all bits of f are set.
func (s SymbolFlags) Has(f SymbolFlags) bool { return s&f == f }

// Symbol is an opaque, oracle-owned handle. The core never mutates it.
type Symbol interface {
	// Key is stable for the lifetime of a run: identical symbols yield identical
	// keys and distinct symbols never collide.
	Key() string
	Name() string
	Flags() SymbolFlags
}

// Hover is best-effort documentation for a declaration.
type Hover struct {
	Signature string
	Doc       string
}

// IsEmpty reports whether the hover carries no text.
func (h Hover) IsEmpty() bool { return h.Signature == "" && h.Doc == "" }

// Markdown renders the hover the way editors display it.
func (h Hover) Markdown(languageID string) string {
	out := ""
	if h.Signature != "" {
		out = "```" + languageID + "\n" + h.Signature + "\n```"
	}
	if h.Doc != "" {
		if out != "" {
			out += "\n\n---\n\n"
		}
		out += h.Doc
	}
	return out
}

// Oracle is the semantic-analysis collaborator. It owns parsing, type checking
// and symbol tables; the indexer only asks questions.
type Oracle interface {
	// Files returns File nodes in processing order.
	Files() []Node
	// SymbolAt returns the symbol a name-bearing node denotes, or nil.
	SymbolAt(n Node) Symbol
	DeclarationsOf(s Symbol) []Node

	IsAlias(s Symbol) bool
	// ResolveAlias returns the aliased symbol, or nil when it cannot be resolved.
	ResolveAlias(s Symbol) Symbol

	IsTransient(s Symbol) bool
	// CompositeMembers returns the member symbols when s is a composite at
	// useSite, or nil when it is not.
	CompositeMembers(s Symbol, useSite Node) []Symbol

	// ContainerOf returns the type that owns a member symbol, or nil.
	ContainerOf(s Symbol) Symbol
	// BaseMembers returns same-named members of the container's ancestors.
	BaseMembers(container Symbol, name string) []Symbol

	// ExportPath returns the exported container names leading to s, ending
	// with s itself. ok is false when s is not reachable from outside.
	ExportPath(s Symbol) (path []string, ok bool)
	// ExportAlias reports whether decl publishes its alias target under an
	// external name. An empty name means "use the target's own name".
	ExportAlias(decl Node) (name string, ok bool)

	IsExternalLibraryFile(file string) bool
	IsDefaultLibraryFile(file string) bool

	HoverText(nameNode Node) (Hover, error)
}
