// Package watcher re-indexes projects when their Go sources or settings
// files change on disk.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/DeusData/codebase-xref/internal/config"
	"github.com/DeusData/codebase-xref/internal/discover"
	"github.com/DeusData/codebase-xref/internal/store"
)

const (
	tick        = 1 * time.Second
	maxInterval = 60 * time.Second
)

// stamp is the cheap change signal of one file.
type stamp struct {
	modTime int64
	size    int64
}

// snapshot is what the indexer would read from a project root: the Go
// sources selected by its .xrefconfig plus the settings files that change
// monikers without touching a source.
type snapshot struct {
	sources  map[string]stamp
	settings map[string]stamp
}

// changeSet lists the differences between two snapshots.
type changeSet struct {
	added, removed, modified []string
	settings                 []string
}

func (c changeSet) empty() bool {
	return len(c.added)+len(c.removed)+len(c.modified)+len(c.settings) == 0
}

type projectState struct {
	last     *snapshot
	nextPoll time.Time
	failures int
}

// IndexFunc re-indexes the project at rootPath.
type IndexFunc func(ctx context.Context, projectName, rootPath string) error

// Watcher polls the projects in a store and calls an IndexFunc for the ones
// that changed. The first poll of a project only records a baseline.
type Watcher struct {
	store    *store.Store
	indexFn  IndexFunc
	projects map[string]*projectState
	now      func() time.Time
}

// New creates a Watcher over the projects of s.
func New(s *store.Store, indexFn IndexFunc) *Watcher {
	return &Watcher{
		store:    s,
		indexFn:  indexFn,
		projects: make(map[string]*projectState),
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollAll(ctx)
		}
	}
}

func (w *Watcher) pollAll(ctx context.Context) {
	projects, err := w.store.ListProjects()
	if err != nil {
		slog.Warn("watcher.list_projects", "err", err)
		return
	}

	now := w.now()
	live := make(map[string]bool, len(projects))
	for _, proj := range projects {
		live[proj.Name] = true
		state, ok := w.projects[proj.Name]
		if !ok {
			state = &projectState{}
			w.projects[proj.Name] = state
		}
		if now.Before(state.nextPoll) {
			continue
		}
		w.poll(ctx, proj, state)
	}
	for name := range w.projects {
		if !live[name] {
			delete(w.projects, name)
		}
	}
}

func (w *Watcher) poll(ctx context.Context, proj *store.Project, state *projectState) {
	if _, err := os.Stat(proj.RootPath); err != nil {
		slog.Warn("watcher.root_gone", "project", proj.Name, "path", proj.RootPath)
		state.nextPoll = w.now().Add(maxInterval)
		return
	}

	snap, err := capture(ctx, proj.RootPath)
	if err != nil {
		slog.Warn("watcher.snapshot", "project", proj.Name, "err", err)
		files := 0
		if state.last != nil {
			files = len(state.last.sources)
		}
		w.backoff(state, files)
		return
	}
	interval := pollInterval(len(snap.sources))

	if state.last == nil {
		slog.Debug("watcher.baseline", "project", proj.Name, "files", len(snap.sources))
		state.last = snap
		state.nextPoll = w.now().Add(interval)
		return
	}

	changes := diff(state.last, snap)
	if changes.empty() {
		state.nextPoll = w.now().Add(interval)
		return
	}

	slog.Info("watcher.changed", "project", proj.Name,
		"added", len(changes.added), "removed", len(changes.removed),
		"modified", len(changes.modified), "settings", changes.settings)
	if err := w.indexFn(ctx, proj.Name, proj.RootPath); err != nil {
		// The old snapshot stays so the change is seen again.
		slog.Warn("watcher.index", "project", proj.Name, "err", err, "failures", state.failures+1)
		w.backoff(state, len(snap.sources))
		return
	}
	state.last = snap
	state.failures = 0
	state.nextPoll = w.now().Add(interval)
}

// backoff doubles the poll interval for each consecutive failure.
func (w *Watcher) backoff(state *projectState, files int) {
	state.failures++
	d := pollInterval(files)
	for i := 1; i < state.failures && d < maxInterval; i++ {
		d *= 2
	}
	state.nextPoll = w.now().Add(min(d, maxInterval))
}

// capture stats every file the indexer would read under root, honouring
// the project's .xrefconfig.
func capture(ctx context.Context, root string) (*snapshot, error) {
	cfg := config.Load(root)
	files, err := discover.Discover(ctx, root, &discover.Options{
		ExcludePaths: cfg.AllExcludePaths(),
		Tests:        cfg.EffectiveTests(),
	})
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		sources:  make(map[string]stamp, len(files)),
		settings: make(map[string]stamp, len(config.SettingsFiles)),
	}
	for _, f := range files {
		snap.sources[f.RelPath] = stamp{modTime: f.ModTime, size: f.Size}
	}
	for _, name := range config.SettingsFiles {
		info, err := os.Stat(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snap.settings[name] = stamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
	}
	return snap, nil
}

// diff compares two snapshots. Settings files that appear, disappear or
// change are all reported in settings.
func diff(old, cur *snapshot) changeSet {
	var c changeSet
	for path, st := range cur.sources {
		prev, ok := old.sources[path]
		switch {
		case !ok:
			c.added = append(c.added, path)
		case prev != st:
			c.modified = append(c.modified, path)
		}
	}
	for path := range old.sources {
		if _, ok := cur.sources[path]; !ok {
			c.removed = append(c.removed, path)
		}
	}
	for _, name := range config.SettingsFiles {
		prev, hadPrev := old.settings[name]
		st, has := cur.settings[name]
		if hadPrev != has || prev != st {
			c.settings = append(c.settings, name)
		}
	}
	return c
}

// pollInterval is 1s plus 1s per 500 source files, capped at 60s.
func pollInterval(files int) time.Duration {
	return min(tick+time.Duration(files/500)*time.Second, maxInterval)
}
