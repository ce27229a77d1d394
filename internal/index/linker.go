package index

import (
	"log/slog"

	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
	"github.com/DeusData/codebase-xref/internal/resolve"
)

// ExportLinker gives alias targets an extra moniker under the name the
// exporting package publishes them as.
type ExportLinker struct {
	s *Session
}

// Link attaches "<current package>:<name>" to the target of the alias
// declared by decl. An empty name uses the target's own name. Unresolvable
// targets are ignored.
func (l *ExportLinker) Link(decl oracle.Node, name string) {
	s := l.s
	if s.current == nil {
		panic("index: export alias linked outside a document")
	}
	nn := decl.NameNode()
	if nn == nil {
		return
	}
	sym := s.oracle.SymbolAt(nn)
	if sym == nil {
		return
	}
	node := s.symbols.GetOrCreate(sym, nn)
	alias, ok := node.Variant.(resolve.Alias)
	if !ok || alias.Target == nil {
		slog.Debug("index.export_unresolved", "decl", decl.Name(), "file", s.relPath(decl.File()))
		return
	}
	target := s.symbols.GetOrCreate(alias.Target, nn)
	if target.ended || !s.current.HasLocation {
		return
	}
	if name == "" {
		name = alias.Target.Name()
	}

	kind := moniker.KindExport
	if s.current.External {
		kind = moniker.KindImport
	}
	before := len(target.Monikers)
	s.symbols.attachMoniker(target, moniker.Moniker{
		Scheme:     s.opts.Scheme,
		Identifier: moniker.Identifier(s.current.MonikerPath(), []string{name}),
		Kind:       kind,
		Package:    s.current.Location.Package,
	})
	if len(target.Monikers) > before {
		s.stats.ExportAliases++
	}
}
