package store

import (
	"fmt"
	"strings"

	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/moniker"
)

// SQLite has a 999 bind variable limit; items bind 4 values per row.
const itemsBatchSize = 999 / 4

// GraphWriter persists one indexing run of a project. It implements
// graph.Emitter and should be driven inside WithTransaction so a failed run
// leaves the previous graph in place.
type GraphWriter struct {
	s       *Store
	project string

	docs     map[graph.ID]int64
	symbols  map[graph.ID]int64
	ranges   map[graph.ID]int64
	monikers map[graph.ID]moniker.Moniker
	hovers   map[graph.ID]string

	items   []any
	written int
}

// NewGraphWriter records the project and clears its previous graph.
func (s *Store) NewGraphWriter(project, rootPath, runID string) (*GraphWriter, error) {
	if err := s.UpsertProject(project, rootPath, runID); err != nil {
		return nil, err
	}
	if err := s.ClearGraph(project); err != nil {
		return nil, err
	}
	return &GraphWriter{
		s:        s,
		project:  project,
		docs:     make(map[graph.ID]int64),
		symbols:  make(map[graph.ID]int64),
		ranges:   make(map[graph.ID]int64),
		monikers: make(map[graph.ID]moniker.Moniker),
		hovers:   make(map[graph.ID]string),
	}, nil
}

// ClearGraph removes every document, symbol, range, item and moniker of a
// project but keeps the project row and its file hashes.
func (s *Store) ClearGraph(project string) error {
	for _, table := range []string{"items", "monikers", "ranges", "symbols", "documents"} {
		if _, err := s.q.Exec("DELETE FROM "+table+" WHERE project=?", project); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// Written reports how many elements were persisted.
func (w *GraphWriter) Written() int { return w.written }

func (w *GraphWriter) insert(query string, args ...any) (int64, error) {
	res, err := w.s.q.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (w *GraphWriter) Emit(el graph.Element) error {
	if err := w.emit(el); err != nil {
		return fmt.Errorf("store %s %d: %w", el.Label(), el.ElementID(), err)
	}
	w.written++
	return nil
}

func (w *GraphWriter) emit(el graph.Element) error {
	switch e := el.(type) {
	case *graph.Document:
		id, err := w.insert(`INSERT INTO documents (project, rel_path, uri, external, moniker_path, default_library) VALUES (?, ?, ?, ?, ?, ?)`,
			w.project, e.Path, e.URI, boolInt(e.External), e.MonikerPath, boolInt(e.DefaultLibrary))
		if err != nil {
			return err
		}
		w.docs[e.ID] = id
	case *graph.ResultSet:
		id, err := w.insert(`INSERT INTO symbols (project, descriptor, name, variant, local) VALUES (?, ?, ?, ?, ?)`,
			w.project, e.Symbol, e.Name, e.Variant, boolInt(e.Local))
		if err != nil {
			return err
		}
		w.symbols[e.ID] = id
	case *graph.Range:
		doc, sym, err := w.resolve(e.Document, e.ResultSet)
		if err != nil {
			return err
		}
		id, err := w.insert(`INSERT INTO ranges (project, document_id, symbol_id, role, kind, text, start_line, start_char, end_line, end_char)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.project, doc, sym, string(e.Role), e.Kind, e.Text,
			e.Range.Start.Line, e.Range.Start.Character, e.Range.End.Line, e.Range.End.Character)
		if err != nil {
			return err
		}
		w.ranges[e.ID] = id
	case *graph.Moniker:
		w.monikers[e.ID] = e.Moniker
	case *graph.MonikerEdge:
		m, ok := w.monikers[e.InV]
		if !ok {
			return fmt.Errorf("unknown moniker %d", e.InV)
		}
		sym, ok := w.symbols[e.OutV]
		if !ok {
			return fmt.Errorf("unknown result set %d", e.OutV)
		}
		_, err := w.insert(`INSERT INTO monikers (project, symbol_id, scheme, identifier, kind, package_name, package_version, package_manager)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.project, sym, m.Scheme, m.Identifier, string(m.Kind), m.Package.Name, m.Package.Version, m.Package.Manager)
		return err
	case *graph.Hover:
		w.hovers[e.ID] = e.Contents
	case *graph.HoverEdge:
		sym, ok := w.symbols[e.OutV]
		if !ok {
			return fmt.Errorf("unknown result set %d", e.OutV)
		}
		_, err := w.s.q.Exec("UPDATE symbols SET hover=? WHERE id=?", w.hovers[e.InV], sym)
		return err
	case *graph.Next:
		from, okFrom := w.symbols[e.OutV]
		to, okTo := w.symbols[e.InV]
		if !okFrom || !okTo {
			return fmt.Errorf("next edge %d -> %d between unknown result sets", e.OutV, e.InV)
		}
		_, err := w.s.q.Exec("UPDATE symbols SET alias_of=? WHERE id=?", to, from)
		return err
	case *graph.Item:
		return w.item(e)
	case *graph.Contains:
		// The project contains edge closes the run.
		if _, ok := w.docs[e.OutV]; !ok {
			return w.flushItems()
		}
	}
	return nil
}

func (w *GraphWriter) resolve(doc, rs graph.ID) (int64, int64, error) {
	d, ok := w.docs[doc]
	if !ok {
		return 0, 0, fmt.Errorf("unknown document %d", doc)
	}
	s, ok := w.symbols[rs]
	if !ok {
		return 0, 0, fmt.Errorf("unknown result set %d", rs)
	}
	return d, s, nil
}

func (w *GraphWriter) item(it *graph.Item) error {
	sym, ok := w.symbols[it.OutV]
	if !ok {
		return fmt.Errorf("unknown result set %d", it.OutV)
	}
	for _, in := range it.InVs {
		r, ok := w.ranges[in]
		if !ok {
			return fmt.Errorf("unknown range %d", in)
		}
		w.items = append(w.items, w.project, sym, r, string(it.Property))
		if len(w.items) >= itemsBatchSize*4 {
			if err := w.flushItems(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *GraphWriter) flushItems() error {
	if len(w.items) == 0 {
		return nil
	}
	rows := len(w.items) / 4
	query := "INSERT OR IGNORE INTO items (project, symbol_id, range_id, property) VALUES " +
		strings.TrimSuffix(strings.Repeat("(?, ?, ?, ?),", rows), ",")
	if _, err := w.s.q.Exec(query, w.items...); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	w.items = w.items[:0]
	return nil
}

// Close writes pending items. It is safe to call after the project
// contains edge already flushed them.
func (w *GraphWriter) Close() error {
	return w.flushItems()
}
