package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// maxAliasHops bounds next-edge chains when a symbol has no definition or
// hover of its own.
const maxAliasHops = 8

// Location is one range of a stored graph.
type Location struct {
	Project   string `json:"project"`
	Path      string `json:"path"`
	URI       string `json:"uri"`
	External  bool   `json:"external,omitempty"`
	StartLine int    `json:"start_line"`
	StartChar int    `json:"start_character"`
	EndLine   int    `json:"end_line"`
	EndChar   int    `json:"end_character"`
	Text      string `json:"text,omitempty"`
	Kind      string `json:"kind,omitempty"`

	// DefaultLibrary marks standard library locations.
	DefaultLibrary bool `json:"default_library,omitempty"`
}

// Symbol is a stored result set.
type Symbol struct {
	ID         int64  `json:"-"`
	Project    string `json:"project"`
	Descriptor string `json:"symbol"`
	Name       string `json:"name"`
	Variant    string `json:"variant"`
	Local      bool   `json:"local,omitempty"`
	Hover      string `json:"hover,omitempty"`
	aliasOf    sql.NullInt64
}

// MonikerMatch is a symbol found by moniker identifier.
type MonikerMatch struct {
	Scheme         string     `json:"scheme"`
	Identifier     string     `json:"identifier"`
	Kind           string     `json:"kind"`
	PackageName    string     `json:"package_name,omitempty"`
	PackageVersion string     `json:"package_version,omitempty"`
	Symbol         Symbol     `json:"symbol"`
	Definitions    []Location `json:"definitions"`
}

const symbolColumns = "s.id, s.project, s.descriptor, s.name, s.variant, s.local, s.hover, s.alias_of"

type scanner interface {
	Scan(dest ...any) error
}

func scanSymbol(row scanner) (*Symbol, error) {
	var sym Symbol
	var local int
	if err := row.Scan(&sym.ID, &sym.Project, &sym.Descriptor, &sym.Name, &sym.Variant, &local, &sym.Hover, &sym.aliasOf); err != nil {
		return nil, err
	}
	sym.Local = local != 0
	return &sym, nil
}

func (s *Store) symbolByID(id int64) (*Symbol, error) {
	sym, err := scanSymbol(s.q.QueryRow("SELECT "+symbolColumns+" FROM symbols s WHERE s.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symbol %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by id: %w", err)
	}
	return sym, nil
}

// SymbolAt returns the symbol of the innermost range covering a zero-based
// line and UTF-16 character in a project file.
func (s *Store) SymbolAt(project, relPath string, line, char int) (*Symbol, error) {
	sym, err := scanSymbol(s.q.QueryRow(`
		SELECT `+symbolColumns+`
		FROM ranges r
		JOIN documents d ON d.id = r.document_id
		JOIN symbols s ON s.id = r.symbol_id
		WHERE d.project=? AND d.rel_path=?
		  AND (r.start_line < ? OR (r.start_line = ? AND r.start_char <= ?))
		  AND (r.end_line > ? OR (r.end_line = ? AND r.end_char > ?))
		ORDER BY (r.end_line - r.start_line), (r.end_char - r.start_char)
		LIMIT 1`,
		project, relPath, line, line, char, line, line, char))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s:%d:%d: %w", project, relPath, line, char, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("symbol at: %w", err)
	}
	return sym, nil
}

func (s *Store) itemLocations(symbolID int64, properties ...string) ([]Location, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(properties)), ",")
	args := []any{symbolID}
	for _, p := range properties {
		args = append(args, p)
	}
	rows, err := s.q.Query(`
		SELECT DISTINCT d.project, d.rel_path, d.uri, d.external, d.default_library,
		       r.start_line, r.start_char, r.end_line, r.end_char, r.text, r.kind
		FROM items i
		JOIN ranges r ON r.id = i.range_id
		JOIN documents d ON d.id = r.document_id
		WHERE i.symbol_id=? AND i.property IN (`+placeholders+`)
		ORDER BY d.rel_path, r.start_line, r.start_char`, args...)
	if err != nil {
		return nil, fmt.Errorf("item locations: %w", err)
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		var l Location
		var external, defaultLib int
		if err := rows.Scan(&l.Project, &l.Path, &l.URI, &external, &defaultLib,
			&l.StartLine, &l.StartChar, &l.EndLine, &l.EndChar, &l.Text, &l.Kind); err != nil {
			return nil, err
		}
		l.External = external != 0
		l.DefaultLibrary = defaultLib != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

// Definitions returns the definition ranges of sym, following alias links
// when sym has none of its own.
func (s *Store) Definitions(sym *Symbol) ([]Location, error) {
	for hop := 0; hop < maxAliasHops; hop++ {
		locs, err := s.itemLocations(sym.ID, "definitions")
		if err != nil {
			return nil, err
		}
		if len(locs) > 0 || !sym.aliasOf.Valid {
			return locs, nil
		}
		if sym, err = s.symbolByID(sym.aliasOf.Int64); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// DefinitionAt resolves go-to-definition at a position.
func (s *Store) DefinitionAt(project, relPath string, line, char int) ([]Location, error) {
	sym, err := s.SymbolAt(project, relPath, line, char)
	if err != nil {
		return nil, err
	}
	return s.Definitions(sym)
}

// ReferencesAt resolves find-references at a position. Forwarded references
// (uses of overriding methods, clause variables) are included.
func (s *Store) ReferencesAt(project, relPath string, line, char int, includeDeclaration bool) ([]Location, error) {
	sym, err := s.SymbolAt(project, relPath, line, char)
	if err != nil {
		return nil, err
	}
	return s.References(sym, includeDeclaration)
}

// References returns the reference ranges of sym, plus its definition
// ranges when includeDeclaration is set.
func (s *Store) References(sym *Symbol, includeDeclaration bool) ([]Location, error) {
	props := []string{"references"}
	if includeDeclaration {
		props = append(props, "definitions")
	}
	return s.itemLocations(sym.ID, props...)
}

// HoverAt returns the hover markdown at a position, following alias links.
func (s *Store) HoverAt(project, relPath string, line, char int) (string, error) {
	sym, err := s.SymbolAt(project, relPath, line, char)
	if err != nil {
		return "", err
	}
	for hop := 0; hop < maxAliasHops && sym.Hover == "" && sym.aliasOf.Valid; hop++ {
		if sym, err = s.symbolByID(sym.aliasOf.Int64); err != nil {
			return "", err
		}
	}
	if sym.Hover == "" {
		return "", fmt.Errorf("hover for %s: %w", sym.Name, ErrNotFound)
	}
	return sym.Hover, nil
}

// SymbolsByMoniker finds symbols carrying identifier in every project, with
// their definitions. This is how references cross project boundaries.
func (s *Store) SymbolsByMoniker(identifier string) ([]MonikerMatch, error) {
	rows, err := s.q.Query(`
		SELECT m.scheme, m.identifier, m.kind, m.package_name, m.package_version, `+symbolColumns+`
		FROM monikers m
		JOIN symbols s ON s.id = m.symbol_id
		WHERE m.identifier=?
		ORDER BY m.project, m.kind, s.id`, identifier)
	if err != nil {
		return nil, fmt.Errorf("symbols by moniker: %w", err)
	}
	var matches []MonikerMatch
	for rows.Next() {
		var m MonikerMatch
		var local int
		if err := rows.Scan(&m.Scheme, &m.Identifier, &m.Kind, &m.PackageName, &m.PackageVersion,
			&m.Symbol.ID, &m.Symbol.Project, &m.Symbol.Descriptor, &m.Symbol.Name, &m.Symbol.Variant,
			&local, &m.Symbol.Hover, &m.Symbol.aliasOf); err != nil {
			rows.Close()
			return nil, err
		}
		m.Symbol.Local = local != 0
		matches = append(matches, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range matches {
		defs, err := s.Definitions(&matches[i].Symbol)
		if err != nil {
			return nil, err
		}
		matches[i].Definitions = defs
	}
	return matches, nil
}

// MonikersOf lists the identifiers attached to a symbol.
func (s *Store) MonikersOf(sym *Symbol) ([]string, error) {
	rows, err := s.q.Query("SELECT identifier FROM monikers WHERE symbol_id=? ORDER BY id", sym.ID)
	if err != nil {
		return nil, fmt.Errorf("monikers of: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
