// Package pipeline runs one indexing pass over a Go module: discover files,
// detect changes, type-check, and stream the cross-reference graph into the
// store and an optional LSIF dump.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DeusData/codebase-xref/internal/config"
	"github.com/DeusData/codebase-xref/internal/discover"
	"github.com/DeusData/codebase-xref/internal/gotypes"
	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/index"
	"github.com/DeusData/codebase-xref/internal/lsif"
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/store"
)

var tracer = otel.Tracer("github.com/DeusData/codebase-xref/internal/pipeline")

// ToolName is recorded in the graph metadata.
const ToolName = "codebase-xref"

// Pipeline indexes one repository into a store.
type Pipeline struct {
	ctx         context.Context
	Store       *store.Store
	RepoPath    string
	ProjectName string
	Config      *config.Config

	// LSIFPath, when set, receives an LSIF dump of the run.
	LSIFPath string
	// Force re-indexes even when no file changed.
	Force       bool
	ToolVersion string

	// Populated by Run.
	RunID     string
	Stats     index.Stats
	Unchanged bool
}

// New creates a new Pipeline. A nil cfg loads .xrefconfig from repoPath.
func New(ctx context.Context, s *store.Store, repoPath string, cfg *config.Config) *Pipeline {
	if abs, err := filepath.Abs(repoPath); err == nil {
		repoPath = abs
	}
	if resolved, err := filepath.EvalSymlinks(repoPath); err == nil {
		repoPath = resolved
	}
	if cfg == nil {
		cfg = config.Load(repoPath)
	}
	return &Pipeline{
		ctx:         ctx,
		Store:       s,
		RepoPath:    repoPath,
		ProjectName: ProjectNameFromPath(repoPath),
		Config:      cfg,
		ToolVersion: "dev",
	}
}

// ProjectNameFromPath derives a unique project name from an absolute path
// by replacing path separators with dashes and trimming the leading dash.
func ProjectNameFromPath(absPath string) string {
	cleaned := filepath.ToSlash(filepath.Clean(absPath))
	name := strings.ReplaceAll(cleaned, "/", "-")
	name = strings.ReplaceAll(name, ":", "")
	name = strings.TrimLeft(name, "-")
	if name == "" {
		return "root"
	}
	return name
}

// Run executes discovery, change detection and indexing. The graph is
// written in a single transaction: a failed run keeps the previous graph.
func (p *Pipeline) Run() error {
	ctx, span := tracer.Start(p.ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("project", p.ProjectName))

	start := time.Now()
	slog.Info("pipeline.start", "project", p.ProjectName, "path", p.RepoPath)

	if err := ctx.Err(); err != nil {
		return err
	}

	files, err := p.discover(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	slog.Info("pipeline.discovered", "files", len(files))

	hashes, err := hashFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	if err := hashSettings(p.RepoPath, p.Config, hashes); err != nil {
		return fmt.Errorf("hash settings: %w", err)
	}

	// A requested LSIF dump is always written.
	if !p.Force && p.LSIFPath == "" && p.unchanged(hashes) {
		slog.Info("incremental.noop", "project", p.ProjectName, "reason", "no_changes")
		p.Unchanged = true
		return nil
	}

	prog, err := p.load(ctx, files)
	if err != nil {
		return err
	}

	p.RunID = uuid.NewString()
	if err := p.index(ctx, prog, hashes); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("run_id", p.RunID),
		attribute.Int("documents", p.Stats.Documents),
	)
	slog.Info("pipeline.done",
		"project", p.ProjectName,
		"run", p.RunID,
		"documents", p.Stats.Documents,
		"symbols", p.Stats.Symbols,
		"elapsed", time.Since(start))
	return nil
}

func (p *Pipeline) discover(ctx context.Context) ([]discover.FileInfo, error) {
	ctx, span := tracer.Start(ctx, "pipeline.discover")
	defer span.End()
	files, err := discover.Discover(ctx, p.RepoPath, &discover.Options{
		ExcludePaths: p.Config.AllExcludePaths(),
		Tests:        p.Config.EffectiveTests(),
	})
	span.SetAttributes(attribute.Int("files", len(files)))
	return files, err
}

// unchanged reports whether the project was indexed before from exactly
// the same set of file contents.
func (p *Pipeline) unchanged(hashes map[string]string) bool {
	if _, err := p.Store.GetProject(p.ProjectName); err != nil {
		return false
	}
	stored, err := p.Store.GetFileHashes(p.ProjectName)
	if err != nil || len(stored) != len(hashes) || len(stored) == 0 {
		return false
	}
	changed := 0
	for path, h := range hashes {
		if stored[path] != h {
			changed++
		}
	}
	slog.Info("incremental.classify", "changed", changed, "total", len(hashes))
	return changed == 0
}

func (p *Pipeline) load(ctx context.Context, files []discover.FileInfo) (*gotypes.Program, error) {
	ctx, span := tracer.Start(ctx, "pipeline.load")
	defer span.End()

	include := make(map[string]bool, len(files))
	for _, f := range files {
		include[f.Path] = true
	}
	t := time.Now()
	prog, err := gotypes.Load(ctx, p.RepoPath, gotypes.LoadOptions{
		Tests:     p.Config.EffectiveTests(),
		BuildTags: p.Config.Index.BuildTags,
		Include:   func(path string) bool { return include[path] },
	})
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	slog.Info("pass.timing", "pass", "load", "files", len(prog.Paths()), "package_errors", prog.PackageErrors(), "elapsed", time.Since(t))
	return prog, nil
}

func (p *Pipeline) index(ctx context.Context, prog *gotypes.Program, hashes map[string]string) error {
	ctx, span := tracer.Start(ctx, "pipeline.index")
	defer span.End()

	locator := moniker.NewPathMapper(p.RepoPath, moniker.Options{
		SourceDir: p.Config.Monikers.SourceDir,
		OutputDir: p.Config.Monikers.OutputDir,
		GOROOT:    prog.GOROOT(),
	})

	var dump *os.File
	var lw *lsif.Writer
	if p.LSIFPath != "" {
		f, err := os.Create(p.LSIFPath)
		if err != nil {
			return fmt.Errorf("create lsif: %w", err)
		}
		dump, lw = f, lsif.NewWriter(f)
	}

	err := p.Store.WithTransaction(func(tx *store.Store) error {
		w, err := tx.NewGraphWriter(p.ProjectName, p.RepoPath, p.RunID)
		if err != nil {
			return err
		}
		out := graph.MultiEmitter{w}
		if lw != nil {
			out = append(out, lw)
		}
		sess := index.NewSession(prog, out, index.Options{
			ProjectName: p.ProjectName,
			Root:        p.RepoPath,
			RunID:       p.RunID,
			Scheme:      p.Config.EffectiveScheme(),
			Hover:       p.Config.EffectiveHover(),
			Locator:     locator,
			ToolName:    ToolName,
			ToolVersion: p.ToolVersion,
		})
		if p.Stats, err = sess.Run(ctx); err != nil {
			return fmt.Errorf("index: %w", err)
		}
		if err := w.Close(); err != nil {
			return err
		}
		return tx.ReplaceFileHashes(p.ProjectName, hashes)
	})

	if dump != nil {
		if cerr := lw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("write lsif: %w", cerr)
		}
		dump.Close()
		if err != nil {
			os.Remove(p.LSIFPath)
		} else {
			slog.Info("pipeline.lsif", "path", p.LSIFPath, "elements", lw.Elements())
		}
	}
	return err
}
