package index

import (
	"fmt"
	"path/filepath"

	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/moniker"
)

// Document is the graph node of one source file.
type Document struct {
	ID          graph.ID
	Path        string
	External    bool
	Location    moniker.Location
	HasLocation bool

	// DefaultLibrary is set for standard library files; they are also External.
	DefaultLibrary bool

	ranges []graph.ID
	// locals are symbols confined to this file; they end with it.
	locals []*SymbolNode
	ended  bool
}

// MonikerPath returns the file's package path, or "" when it has none.
func (d *Document) MonikerPath() string {
	if !d.HasLocation {
		return ""
	}
	return d.Location.Path
}

// Ended reports whether the document is frozen.
func (d *Document) Ended() bool { return d.ended }

// DocumentCache holds one Document per file path for a run.
type DocumentCache struct {
	s     *Session
	docs  map[string]*Document
	order []*Document
}

func newDocumentCache(s *Session) *DocumentCache {
	return &DocumentCache{s: s, docs: make(map[string]*Document)}
}

// Lookup returns the document for path if it was created.
func (c *DocumentCache) Lookup(path string) (*Document, bool) {
	d, ok := c.docs[path]
	return d, ok
}

// GetOrCreate returns the document for path, beginning it on first access.
func (c *DocumentCache) GetOrCreate(path string) *Document {
	if d, ok := c.docs[path]; ok {
		return d
	}
	s := c.s
	d := &Document{Path: path}
	d.Location, d.HasLocation = s.locate.Compute(path)
	d.DefaultLibrary = s.oracle.IsDefaultLibraryFile(path) || (d.HasLocation && d.Location.DefaultLib)
	d.External = d.DefaultLibrary || s.oracle.IsExternalLibraryFile(path) || (d.HasLocation && d.Location.External)

	d.ID = s.ids.Next()
	s.emit(&graph.Document{
		ID:          d.ID,
		URI:         "file://" + filepath.ToSlash(path),
		Path:        s.relPath(path),
		LanguageID:  s.opts.LanguageID,
		External:    d.External,
		MonikerPath: d.MonikerPath(),

		DefaultLibrary: d.DefaultLibrary,
	})

	c.docs[path] = d
	c.order = append(c.order, d)
	if pending, ok := s.pendingLocals[path]; ok {
		d.locals = pending
		delete(s.pendingLocals, path)
	}
	s.stats.Documents++
	return d
}

// addRange appends an occurrence vertex to d.
func (c *DocumentCache) addRange(d *Document, r *graph.Range) graph.ID {
	if d.ended {
		panic(fmt.Sprintf("index: range appended to ended document %s", d.Path))
	}
	r.ID = c.s.ids.Next()
	r.Document = d.ID
	c.s.emit(r)
	d.ranges = append(d.ranges, r.ID)
	return r.ID
}

// end freezes d: its confined symbols end first, then the contains edge is
// written.
func (c *DocumentCache) end(d *Document) {
	if d.ended {
		panic(fmt.Sprintf("index: document %s ended twice", d.Path))
	}
	for _, sym := range d.locals {
		if !sym.ended {
			c.s.symbols.end(sym)
		}
	}
	d.locals = nil
	if len(d.ranges) > 0 {
		c.s.emit(&graph.Contains{ID: c.s.ids.Next(), OutV: d.ID, InVs: d.ranges})
	}
	d.ended = true
}
