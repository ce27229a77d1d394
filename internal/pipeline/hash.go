package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/codebase-xref/internal/config"
	"github.com/DeusData/codebase-xref/internal/discover"
)

// hashFiles returns the content hash of every file keyed by RelPath.
// Hashing is parallelized across CPU cores.
func hashFiles(ctx context.Context, files []discover.FileInfo) (map[string]string, error) {
	results := make([]string, len(files))
	numWorkers := runtime.NumCPU()
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(numWorkers, 1))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := fileHash(f.Path)
			if err != nil {
				return err
			}
			results[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hashes := make(map[string]string, len(files))
	for i, f := range files {
		hashes[f.RelPath] = results[i]
	}
	return hashes, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashSettings adds entries for the inputs that shape monikers without being
// Go sources: go.mod by content and the effective config by fingerprint,
// keyed by their file names.
func hashSettings(root string, cfg *config.Config, hashes map[string]string) error {
	for _, name := range config.SettingsFiles {
		if name == config.FileName {
			h := xxh3.New()
			_, _ = h.Write(cfg.Fingerprint())
			hashes[name] = hex.EncodeToString(h.Sum(nil))
			continue
		}
		h, err := fileHash(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		hashes[name] = h
	}
	return nil
}
