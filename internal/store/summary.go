package store

import "fmt"

// Summary contains graph statistics for one project.
type Summary struct {
	Documents         int          `json:"documents"`
	ExternalDocuments int          `json:"external_documents"`
	Symbols           int          `json:"symbols"`
	Ranges            int          `json:"ranges"`
	Monikers          int          `json:"monikers"`
	Variants          []LabelCount `json:"variants"`
	DefinitionKinds   []LabelCount `json:"definition_kinds"`
	MonikerKinds      []LabelCount `json:"moniker_kinds"`

	// DefaultLibraryDocuments counts the standard library files referenced.
	DefaultLibraryDocuments int `json:"default_library_documents"`
}

// LabelCount is a label with its count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// GetSummary returns graph statistics for a project.
func (s *Store) GetSummary(project string) (*Summary, error) {
	if _, err := s.GetProject(project); err != nil {
		return nil, err
	}
	sum := &Summary{}
	counts := []struct {
		dst   *int
		query string
	}{
		{&sum.Documents, "SELECT COUNT(*) FROM documents WHERE project=?"},
		{&sum.ExternalDocuments, "SELECT COUNT(*) FROM documents WHERE project=? AND external=1"},
		{&sum.DefaultLibraryDocuments, "SELECT COUNT(*) FROM documents WHERE project=? AND default_library=1"},
		{&sum.Symbols, "SELECT COUNT(*) FROM symbols WHERE project=?"},
		{&sum.Ranges, "SELECT COUNT(*) FROM ranges WHERE project=?"},
		{&sum.Monikers, "SELECT COUNT(*) FROM monikers WHERE project=?"},
	}
	for _, c := range counts {
		if err := s.q.QueryRow(c.query, project).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("summary count: %w", err)
		}
	}

	var err error
	if sum.Variants, err = s.labelCounts("SELECT variant, COUNT(*) AS cnt FROM symbols WHERE project=? GROUP BY variant ORDER BY cnt DESC, variant", project); err != nil {
		return nil, err
	}
	if sum.DefinitionKinds, err = s.labelCounts("SELECT kind, COUNT(*) AS cnt FROM ranges WHERE project=? AND role='definition' GROUP BY kind ORDER BY cnt DESC, kind", project); err != nil {
		return nil, err
	}
	if sum.MonikerKinds, err = s.labelCounts("SELECT kind, COUNT(*) AS cnt FROM monikers WHERE project=? GROUP BY kind ORDER BY cnt DESC, kind", project); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Store) labelCounts(query, project string) ([]LabelCount, error) {
	rows, err := s.q.Query(query, project)
	if err != nil {
		return nil, fmt.Errorf("summary labels: %w", err)
	}
	defer rows.Close()
	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}
