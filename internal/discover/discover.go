// Package discover lists the Go source files of a repository.
package discover

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// IgnoreFileName holds extra exclude patterns, one per line.
const IgnoreFileName = ".xrefignore"

// IGNORE_PATTERNS are directory names to skip during discovery, on top of
// the "." and "_" prefixes the go tool ignores.
var IGNORE_PATTERNS = map[string]bool{
	"node_modules": true,
	"testdata":     true,
}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path    string // absolute path
	RelPath string // slash-separated, relative to repo root
	Size    int64
	ModTime int64 // UnixNano
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string // path to the ignore file; defaults to root/.xrefignore
	// ExcludePaths are doublestar globs matched against RelPath.
	ExcludePaths []string
	Tests        bool
}

type matcher struct {
	patterns []string
}

func (m *matcher) excluded(rel string, dir bool) bool {
	for _, p := range m.patterns {
		if ok, _ := doublestar.PathMatch(p, rel); ok {
			return true
		}
		// "testdata/**" must prune the directory itself as well.
		if dir && strings.HasSuffix(p, "/**") {
			if ok, _ := doublestar.PathMatch(strings.TrimSuffix(p, "/**"), rel); ok {
				return true
			}
		}
		// Bare names match at any depth, like .gitignore.
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, filepath.Base(rel)); ok {
				return true
			}
		}
	}
	return false
}

// shouldSkipDir returns true if the directory should be skipped during discovery.
func shouldSkipDir(name, rel string, m *matcher) bool {
	if IGNORE_PATTERNS[name] {
		return true
	}
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return true
	}
	return m.excluded(rel, true)
}

// Discover walks a repository and returns its Go files sorted by RelPath.
// Nested modules (directories with their own go.mod) are not descended into.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	m := &matcher{patterns: append([]string(nil), opts.ExcludePaths...)}
	ignPath := opts.IgnoreFile
	if ignPath == "" {
		ignPath = filepath.Join(repoPath, IgnoreFileName)
	}
	if extra, err := loadIgnoreFile(ignPath); err == nil {
		m.patterns = append(m.patterns, extra...)
	}

	var files []FileInfo
	err = filepath.WalkDir(repoPath, func(path string, d os.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if shouldSkipDir(d.Name(), rel, m) {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || filepath.Ext(path) != ".go" {
			return nil
		}
		if !opts.Tests && strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if m.excluded(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, strings.TrimSuffix(line, "/"))
		}
	}
	return patterns, scanner.Err()
}
