// Package descriptor builds hierarchical symbol identifiers from the lexical
// containment of declarations.
package descriptor

import (
	"strconv"
	"strings"

	"github.com/DeusData/codebase-xref/internal/moniker"
)

// Suffix is the kind of a descriptor segment.
type Suffix int

const (
	SuffixNamespace Suffix = iota
	SuffixType
	SuffixTerm
	SuffixMethod
	SuffixMeta
)

// Descriptor is one named segment of a symbol.
type Descriptor struct {
	Name   string
	Suffix Suffix
}

func (d Descriptor) String() string {
	name := escapeName(d.Name)
	switch d.Suffix {
	case SuffixNamespace:
		return name + "/"
	case SuffixType:
		return name + "#"
	case SuffixTerm:
		return name + "."
	case SuffixMethod:
		return name + "()."
	case SuffixMeta:
		return name + ":"
	}
	return name
}

// Symbol is a formatted global or local symbol.
type Symbol struct {
	Scheme      string
	Package     moniker.PackageInfo
	Descriptors []Descriptor
	// Local is set for file-confined symbols; Descriptors is then empty.
	Local int
	local bool
}

// LocalSymbol returns the n-th local symbol.
func LocalSymbol(n int) Symbol {
	return Symbol{Local: n, local: true}
}

// IsLocal reports whether s is file-confined.
func (s Symbol) IsLocal() bool { return s.local }

func (s Symbol) String() string {
	if s.local {
		return "local " + strconv.Itoa(s.Local)
	}
	var b strings.Builder
	b.WriteString(escapeField(s.Scheme))
	b.WriteByte(' ')
	b.WriteString(escapeField(s.Package.Manager))
	b.WriteByte(' ')
	b.WriteString(escapeField(s.Package.Name))
	b.WriteByte(' ')
	b.WriteString(escapeField(s.Package.Version))
	b.WriteByte(' ')
	for _, d := range s.Descriptors {
		b.WriteString(d.String())
	}
	return b.String()
}

// escapeField doubles spaces; an empty field is written as ".".
func escapeField(s string) string {
	if s == "" {
		return "."
	}
	return strings.ReplaceAll(s, " ", "  ")
}

// escapeName back-quotes names containing anything but identifier characters.
func escapeName(s string) string {
	if s != "" && isSimple(s) {
		return s
	}
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func isSimple(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '+', r == '-', r == '$':
		default:
			return false
		}
	}
	return true
}
