package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/DeusData/codebase-xref/internal/store"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// touch moves a file's mtime forward; some filesystems have 1s granularity.
func touch(t *testing.T, path string) {
	t.Helper()
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
}

func writeModule(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/shop\n\ngo 1.21\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "service/order.go", "package service\n")
	return root
}

type testWatcher struct {
	*Watcher
	clock   time.Time
	indexed atomic.Int32
	fail    error
}

// watch registers root as an indexed project and returns a watcher whose
// clock only moves through advance.
func watch(t *testing.T, root string) *testWatcher {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.UpsertProject("shop", root, "run-1"); err != nil {
		t.Fatal(err)
	}

	tw := &testWatcher{clock: time.Unix(1_700_000_000, 0)}
	tw.Watcher = New(s, func(_ context.Context, name, path string) error {
		if name != "shop" || path != root {
			t.Errorf("indexFn(%q, %q)", name, path)
		}
		tw.indexed.Add(1)
		return tw.fail
	})
	tw.now = func() time.Time { return tw.clock }
	return tw
}

func (tw *testWatcher) advance(d time.Duration) {
	tw.clock = tw.clock.Add(d)
	tw.pollAll(context.Background())
}

func TestDiff(t *testing.T) {
	base := &snapshot{
		sources: map[string]stamp{
			"main.go":  {modTime: 1, size: 10},
			"store.go": {modTime: 1, size: 20},
		},
		settings: map[string]stamp{"go.mod": {modTime: 1, size: 30}},
	}
	tests := []struct {
		name string
		cur  *snapshot
		want changeSet
	}{
		{"same", base, changeSet{}},
		{"source changes", &snapshot{
			sources: map[string]stamp{
				"main.go": {modTime: 2, size: 10},
				"new.go":  {modTime: 1, size: 5},
			},
			settings: base.settings,
		}, changeSet{added: []string{"new.go"}, removed: []string{"store.go"}, modified: []string{"main.go"}}},
		{"go.mod edited", &snapshot{
			sources:  base.sources,
			settings: map[string]stamp{"go.mod": {modTime: 1, size: 31}},
		}, changeSet{settings: []string{"go.mod"}}},
		{"config added and go.mod removed", &snapshot{
			sources:  base.sources,
			settings: map[string]stamp{".xrefconfig": {modTime: 1, size: 12}},
		}, changeSet{settings: []string{"go.mod", ".xrefconfig"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diff(base, tt.cur)
			if got.empty() != tt.want.empty() {
				t.Fatalf("empty() = %v", got.empty())
			}
			for _, list := range [][]string{got.added, got.removed, got.modified} {
				sort.Strings(list)
			}
			if d := cmp.Diff(tt.want, got, cmp.AllowUnexported(changeSet{})); d != "" {
				t.Fatalf("diff mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		files int
		want  time.Duration
	}{
		{0, 1 * time.Second},
		{499, 1 * time.Second},
		{500, 2 * time.Second},
		{2000, 5 * time.Second},
		{10000, 21 * time.Second},
		{50000, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := pollInterval(tt.files); got != tt.want {
			t.Errorf("pollInterval(%d) = %v, want %v", tt.files, got, tt.want)
		}
	}
}

func TestCapture(t *testing.T) {
	root := writeModule(t)
	writeFile(t, root, "README.md", "shop\n")

	snap, err := capture(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.sources) != 2 || snap.sources["service/order.go"].size == 0 {
		t.Fatalf("sources = %v", snap.sources)
	}
	if _, ok := snap.settings["go.mod"]; !ok || len(snap.settings) != 1 {
		t.Fatalf("settings = %v", snap.settings)
	}
}

func TestCaptureHonoursConfig(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"main.go", "main_test.go", "gen/gen.go"} {
		writeFile(t, root, name, "package main\n")
	}
	writeFile(t, root, ".xrefconfig", "index:\n  tests: true\n  exclude_paths: [\"gen/**\"]\n")

	snap, err := capture(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.sources) != 2 {
		t.Fatalf("expected main.go and main_test.go, got %v", snap.sources)
	}
	if _, ok := snap.sources["gen/gen.go"]; ok {
		t.Fatal("excluded file in snapshot")
	}
	if _, ok := snap.settings[".xrefconfig"]; !ok {
		t.Fatalf("settings = %v", snap.settings)
	}
}

func TestWatcherReindexes(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, root string)
		want   int32
	}{
		{"nothing", func(*testing.T, string) {}, 0},
		{"source edited", func(t *testing.T, root string) {
			touch(t, filepath.Join(root, "main.go"))
		}, 1},
		{"source added", func(t *testing.T, root string) {
			writeFile(t, root, "service/refund.go", "package service\n")
		}, 1},
		{"source removed", func(t *testing.T, root string) {
			if err := os.Remove(filepath.Join(root, "service/order.go")); err != nil {
				t.Fatal(err)
			}
		}, 1},
		{"go.mod edited", func(t *testing.T, root string) {
			writeFile(t, root, "go.mod", "module example.com/store\n\ngo 1.21\n")
		}, 1},
		{"config added", func(t *testing.T, root string) {
			writeFile(t, root, ".xrefconfig", "monikers:\n  source_dir: service\n  output_dir: api\n")
		}, 1},
		{"unrelated file", func(t *testing.T, root string) {
			writeFile(t, root, "README.md", "shop\n")
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeModule(t)
			tw := watch(t, root)

			tw.advance(0)
			if n := tw.indexed.Load(); n != 0 {
				t.Fatalf("baseline poll indexed %d times", n)
			}
			tt.change(t, root)
			tw.advance(time.Minute)
			if n := tw.indexed.Load(); n != tt.want {
				t.Fatalf("indexed %d times, want %d", n, tt.want)
			}

			tw.advance(time.Minute)
			if n := tw.indexed.Load(); n != tt.want {
				t.Fatalf("settled poll indexed again: %d", n)
			}
		})
	}
}

func TestWatcherConfigEditReindexes(t *testing.T) {
	root := writeModule(t)
	writeFile(t, root, ".xrefconfig", "monikers:\n  output_dir: api\n")
	tw := watch(t, root)
	tw.advance(0)

	writeFile(t, root, ".xrefconfig", "monikers:\n  output_dir: public/api\n")
	tw.advance(time.Minute)
	if n := tw.indexed.Load(); n != 1 {
		t.Fatalf("indexed %d times", n)
	}
}

func TestWatcherWaitsForInterval(t *testing.T) {
	root := writeModule(t)
	tw := watch(t, root)
	tw.advance(0)

	touch(t, filepath.Join(root, "main.go"))
	tw.advance(500 * time.Millisecond)
	if n := tw.indexed.Load(); n != 0 {
		t.Fatalf("polled before the interval elapsed: %d", n)
	}
	tw.advance(500 * time.Millisecond)
	if n := tw.indexed.Load(); n != 1 {
		t.Fatalf("indexed %d times", n)
	}
}

func TestWatcherBacksOffOnFailure(t *testing.T) {
	root := writeModule(t)
	tw := watch(t, root)
	tw.fail = errors.New("load failed")
	tw.advance(0)
	touch(t, filepath.Join(root, "main.go"))

	// Retries come 1s, 2s, then 4s apart.
	tw.advance(time.Second)
	for i, wait := range []time.Duration{time.Second, 2 * time.Second} {
		tw.advance(wait - time.Millisecond)
		if n := tw.indexed.Load(); n != int32(i+1) {
			t.Fatalf("retry %d came early: indexed %d times", i+1, n)
		}
		tw.advance(time.Millisecond)
		if n := tw.indexed.Load(); n != int32(i+2) {
			t.Fatalf("retry %d missing: indexed %d times", i+1, n)
		}
	}
	if got := tw.projects["shop"].nextPoll.Sub(tw.clock); got != 4*time.Second {
		t.Fatalf("next retry in %v, want 4s", got)
	}

	tw.fail = nil
	tw.advance(4 * time.Second)
	if n := tw.indexed.Load(); n != 4 {
		t.Fatalf("indexed %d times", n)
	}
	state := tw.projects["shop"]
	if state.failures != 0 || state.nextPoll.Sub(tw.clock) != time.Second {
		t.Fatalf("state after recovery = %+v", state)
	}
	tw.advance(time.Second)
	if n := tw.indexed.Load(); n != 4 {
		t.Fatalf("recovered project indexed again: %d", n)
	}
}

func TestWatcherCancellation(t *testing.T) {
	tw := watch(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tw.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	tw := watch(t, root)
	tw.advance(0)
	tw.advance(time.Minute)
	if n := tw.indexed.Load(); n != 0 {
		t.Fatalf("missing root indexed %d times", n)
	}
	if state := tw.projects["shop"]; state.last != nil {
		t.Fatal("missing root produced a baseline")
	}
}

func TestWatcherForgetsDeletedProjects(t *testing.T) {
	tw := watch(t, writeModule(t))
	tw.advance(0)
	if _, ok := tw.projects["shop"]; !ok {
		t.Fatal("project not tracked after first poll")
	}

	if err := tw.store.DeleteProject("shop"); err != nil {
		t.Fatal(err)
	}
	tw.advance(time.Second)
	if len(tw.projects) != 0 {
		t.Fatalf("deleted project still tracked: %v", tw.projects)
	}
}
