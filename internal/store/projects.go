package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Project represents an indexed project.
type Project struct {
	Name      string `json:"name"`
	IndexedAt string `json:"indexed_at"`
	RootPath  string `json:"root_path"`
	RunID     string `json:"run_id"`
}

// UpsertProject creates or updates a project record.
func (s *Store) UpsertProject(name, rootPath, runID string) error {
	_, err := s.q.Exec(`
		INSERT INTO projects (name, indexed_at, root_path, run_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET indexed_at=excluded.indexed_at, root_path=excluded.root_path, run_id=excluded.run_id`,
		name, Now(), rootPath, runID)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject returns a project by name, or ErrNotFound.
func (s *Store) GetProject(name string) (*Project, error) {
	var p Project
	err := s.q.QueryRow("SELECT name, indexed_at, root_path, run_id FROM projects WHERE name=?", name).
		Scan(&p.Name, &p.IndexedAt, &p.RootPath, &p.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all indexed projects.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.q.Query("SELECT name, indexed_at, root_path, run_id FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var result []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Name, &p.IndexedAt, &p.RootPath, &p.RunID); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// DeleteProject deletes a project and all associated data (CASCADE).
func (s *Store) DeleteProject(name string) error {
	res, err := s.q.Exec("DELETE FROM projects WHERE name=?", name)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	return nil
}

// GetFileHashes returns all file hashes for a project.
func (s *Store) GetFileHashes(project string) (map[string]string, error) {
	rows, err := s.q.Query("SELECT rel_path, hash FROM file_hashes WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("get file hashes: %w", err)
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}
	return result, rows.Err()
}

// ReplaceFileHashes swaps a project's stored hashes for hashes.
func (s *Store) ReplaceFileHashes(project string, hashes map[string]string) error {
	if _, err := s.q.Exec("DELETE FROM file_hashes WHERE project=?", project); err != nil {
		return fmt.Errorf("clear file hashes: %w", err)
	}
	for path, hash := range hashes {
		if _, err := s.q.Exec("INSERT INTO file_hashes (project, rel_path, hash) VALUES (?, ?, ?)", project, path, hash); err != nil {
			return fmt.Errorf("insert file hash: %w", err)
		}
	}
	return nil
}
