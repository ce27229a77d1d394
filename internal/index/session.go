// Package index builds the cross-reference graph for one run: it walks the
// oracle's files, resolves every name to a single symbol node and emits
// definitions, references and monikers.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DeusData/codebase-xref/internal/descriptor"
	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
)

var tracer = otel.Tracer("github.com/DeusData/codebase-xref/internal/index")

// ErrSessionUsed is returned when Run is called twice on one session.
var ErrSessionUsed = errors.New("index: session already ran")

// Options configure a Session.
type Options struct {
	ProjectName string
	Root        string
	RunID       string
	// Scheme names the moniker and descriptor scheme; defaults to gomod.
	Scheme     string
	LanguageID string
	Hover      bool
	Locator    moniker.Locator

	ToolName    string
	ToolVersion string
}

// Stats summarises a run.
type Stats struct {
	Documents     int
	Symbols       int
	Definitions   int
	References    int
	Monikers      int
	ExportAliases int
	Skipped       int
}

// Session owns all per-run state. It is single-use and not safe for
// concurrent use.
type Session struct {
	oracle oracle.Oracle
	out    graph.Emitter
	opts   Options
	locate moniker.Locator

	ids     *graph.IDs
	descs   *descriptor.Builder
	symbols *SymbolCache
	docs    *DocumentCache
	linker  *ExportLinker

	traversal     map[string]bool
	pendingLocals map[string][]*SymbolNode
	current       *Document
	projectID     graph.ID

	stats Stats
	err   error
	ran   bool
}

// NewSession prepares a run over o writing to out.
func NewSession(o oracle.Oracle, out graph.Emitter, opts Options) *Session {
	if opts.Scheme == "" {
		opts.Scheme = moniker.DefaultScheme
	}
	if opts.LanguageID == "" {
		opts.LanguageID = "go"
	}
	if opts.Locator == nil {
		opts.Locator = moniker.NewPathMapper(opts.Root, moniker.Options{})
	}
	s := &Session{
		oracle:        o,
		out:           out,
		opts:          opts,
		locate:        opts.Locator,
		ids:           &graph.IDs{},
		traversal:     make(map[string]bool),
		pendingLocals: make(map[string][]*SymbolNode),
	}
	s.descs = descriptor.NewBuilder(opts.Scheme, opts.Locator)
	s.symbols = newSymbolCache(s)
	s.docs = newDocumentCache(s)
	s.linker = &ExportLinker{s: s}
	return s
}

// Symbols exposes the symbol cache for inspection after a run.
func (s *Session) Symbols() *SymbolCache { return s.symbols }

// Documents exposes the document cache for inspection after a run.
func (s *Session) Documents() *DocumentCache { return s.docs }

// Run indexes every file the oracle enumerates, in order. The first emitter
// error aborts the run.
func (s *Session) Run(ctx context.Context) (Stats, error) {
	if s.ran {
		return Stats{}, ErrSessionUsed
	}
	s.ran = true

	ctx, span := tracer.Start(ctx, "index.Session.Run")
	defer span.End()
	t := time.Now()

	s.emit(&graph.Metadata{
		ID:          s.ids.Next(),
		Version:     "0.4.3",
		ProjectRoot: "file://" + filepath.ToSlash(s.opts.Root),
		ToolName:    s.opts.ToolName,
		ToolVersion: s.opts.ToolVersion,
	})
	s.projectID = s.ids.Next()
	s.emit(&graph.Project{
		ID:    s.projectID,
		Name:  s.opts.ProjectName,
		Root:  s.opts.Root,
		Kind:  s.opts.LanguageID,
		RunID: s.opts.RunID,
	})

	files := s.oracle.Files()
	for _, f := range files {
		s.traversal[f.File()] = true
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return s.stats, err
		}
		s.indexFile(ctx, f)
		if s.err != nil {
			return s.stats, fmt.Errorf("emit: %w", s.err)
		}
	}
	s.finish()
	if s.err != nil {
		return s.stats, fmt.Errorf("emit: %w", s.err)
	}

	span.SetAttributes(
		attribute.Int("documents", s.stats.Documents),
		attribute.Int("symbols", s.stats.Symbols),
		attribute.Int("references", s.stats.References),
	)
	slog.Info("index.done",
		"project", s.opts.ProjectName,
		"documents", s.stats.Documents,
		"symbols", s.stats.Symbols,
		"definitions", s.stats.Definitions,
		"references", s.stats.References,
		"monikers", s.stats.Monikers,
		"elapsed", time.Since(t))
	return s.stats, nil
}

func (s *Session) indexFile(ctx context.Context, f oracle.Node) {
	path := f.File()
	if d, ok := s.docs.Lookup(path); ok && d.ended {
		slog.Warn("index.file_revisited", "file", path)
		return
	}
	_, span := tracer.Start(ctx, "index.file", trace.WithAttributes(attribute.String("file", s.relPath(path))))
	defer span.End()

	doc := s.docs.GetOrCreate(path)
	s.current = doc
	oracle.Walk(f, s.visit, s.leave)
	s.current = nil
	s.docs.end(doc)
}

func (s *Session) visit(n oracle.Node) bool {
	if s.err != nil {
		return false
	}
	if n.Kind() == oracle.KindIdentifier {
		s.visitIdentifier(n)
	}
	return true
}

func (s *Session) leave(n oracle.Node) {
	if s.err != nil || !n.Kind().IsDeclaration() {
		return
	}
	if name, ok := s.oracle.ExportAlias(n); ok {
		s.linker.Link(n, name)
	}
}

func (s *Session) visitIdentifier(id oracle.Node) {
	sym := s.oracle.SymbolAt(id)
	if sym == nil {
		s.stats.Skipped++
		return
	}
	node := s.symbols.GetOrCreate(sym, id)
	if s.symbols.isDefinition(node, id) {
		s.symbols.markDefinition(node, s.current, id)
		return
	}
	s.symbols.addReference(node, s.current, id)
}

// finish ends the remaining symbols, then the documents outside the
// traversal, then links the project to every document.
func (s *Session) finish() {
	for _, n := range s.symbols.order {
		if !n.ended {
			s.symbols.end(n)
		}
	}
	docs := make([]graph.ID, 0, len(s.docs.order))
	for _, d := range s.docs.order {
		if !d.ended {
			s.docs.end(d)
		}
		docs = append(docs, d.ID)
	}
	if len(docs) > 0 {
		s.emit(&graph.Contains{ID: s.ids.Next(), OutV: s.projectID, InVs: docs})
	}
}

// confine ends a local symbol together with its document when all of its
// declarations sit inside one function body of one traversal file.
func (s *Session) confine(n *SymbolNode) {
	if len(n.decls) == 0 {
		return
	}
	file := n.decls[0].File()
	if !s.traversal[file] {
		return
	}
	for _, decl := range n.decls {
		if decl.File() != file || !confined(decl) {
			return
		}
	}
	d, ok := s.docs.Lookup(file)
	switch {
	case !ok:
		s.pendingLocals[file] = append(s.pendingLocals[file], n)
	case !d.ended:
		d.locals = append(d.locals, n)
	}
}

func confined(decl oracle.Node) bool {
	switch decl.Kind() {
	case oracle.KindParam, oracle.KindLabel:
		return true
	}
	for p := decl.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case oracle.KindBlock:
			return true
		case oracle.KindFile:
			return false
		}
	}
	return false
}

func (s *Session) emit(el graph.Element) {
	if s.err != nil {
		return
	}
	if err := s.out.Emit(el); err != nil {
		s.err = err
	}
}

func (s *Session) relPath(path string) string {
	if s.opts.Root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(s.opts.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
