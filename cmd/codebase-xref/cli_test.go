package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// testBinPath is set in TestMain and shared by every test in this package.
var testBinPath string

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("go"); err != nil {
		os.Exit(0)
	}
	tmpDir, err := os.MkdirTemp("", "xref-cli-test-*")
	if err != nil {
		panic("create temp dir: " + err.Error())
	}

	binName := "codebase-xref"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	binPath := filepath.Join(tmpDir, binName)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", binPath, "./")
	if out, err := cmd.CombinedOutput(); err != nil {
		cancel()
		os.RemoveAll(tmpDir)
		os.Stderr.Write(out)
		panic("build test binary: " + err.Error())
	}
	cancel()
	testBinPath = binPath

	code := m.Run()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

func testCmd(t *testing.T, args ...string) *exec.Cmd {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return exec.CommandContext(ctx, testBinPath, args...)
}

func writeModule(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"go.mod": "module example.com/cli\n\ngo 1.21\n",
		"main.go": `package main

func greet() string { return "hi" }

func main() { _ = greet() }
`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestCLI_Version(t *testing.T) {
	out, err := testCmd(t, "version").CombinedOutput()
	if err != nil {
		t.Fatalf("version failed: %v\n%s", err, out)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(out)), "codebase-xref") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestCLI_Index(t *testing.T) {
	repo := writeModule(t)
	db := filepath.Join(t.TempDir(), "xref.db")
	lsif := filepath.Join(t.TempDir(), "dump.lsif")

	out, err := testCmd(t, "--db", db, "index", repo, "--lsif", lsif).Output()
	if err != nil {
		t.Fatalf("index failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), " documents, ") {
		t.Fatalf("unexpected index output: %q", out)
	}
	if fi, err := os.Stat(lsif); err != nil || fi.Size() == 0 {
		t.Fatalf("lsif dump missing: %v", err)
	}

	out, err = testCmd(t, "--db", db, "index", repo).Output()
	if err != nil {
		t.Fatalf("second index failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "unchanged") {
		t.Fatalf("expected unchanged re-index, got %q", out)
	}
}

func TestCLI_Dump(t *testing.T) {
	repo := writeModule(t)
	out, err := testCmd(t, "dump", repo, "--file", "main.go").Output()
	if err != nil {
		t.Fatalf("dump failed: %v\n%s", err, out)
	}
	text := string(out)
	for _, want := range []string{"== main.go", "identifier greet", "variant=", "def="} {
		if !strings.Contains(text, want) {
			t.Errorf("dump output missing %q:\n%s", want, text)
		}
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	if out, err := testCmd(t, "nope").CombinedOutput(); err == nil {
		t.Fatalf("expected failure, got %q", out)
	}
}
