package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewProjectPathsLayout(t *testing.T) {
	root := t.TempDir()
	pp := NewProjectPaths(root)

	if pp.ManifestFile != filepath.Join(root, "opencli.toml") {
		t.Fatalf("unexpected manifest path %s", pp.ManifestFile)
	}
	if pp.LedgerFile != filepath.Join(root, ".opencli", "installed.yaml") {
		t.Fatalf("unexpected ledger path %s", pp.LedgerFile)
	}
	if pp.PluginsDir != filepath.Join(root, "plugins") {
		t.Fatalf("unexpected plugins dir %s", pp.PluginsDir)
	}
}

func TestJoinRelativeAndAbsolute(t *testing.T) {
	root := t.TempDir()
	pp := NewProjectPaths(root)

	if got := pp.Join("gamemodes/main.pwn"); got != filepath.Join(root, "gamemodes", "main.pwn") {
		t.Fatalf("expected relative join, got %s", got)
	}
	abs := filepath.Join(t.TempDir(), "include")
	if got := pp.Join(abs); got != abs {
		t.Fatalf("expected absolute path unchanged, got %s", got)
	}
}

func TestRel(t *testing.T) {
	root := t.TempDir()
	pp := NewProjectPaths(root)

	if got := pp.Rel(filepath.Join(root, "qawno", "include", "sscanf2.inc")); got != "qawno/include/sscanf2.inc" {
		t.Fatalf("unexpected relative path %s", got)
	}
	outside := filepath.Join(filepath.Dir(root), "elsewhere")
	if got := pp.Rel(outside); got != outside {
		t.Fatalf("expected outside path kept absolute, got %s", got)
	}
}

func TestEnsureMetaDirs(t *testing.T) {
	pp := NewProjectPaths(t.TempDir())
	if err := pp.EnsureMetaDirs(); err != nil {
		t.Fatalf("EnsureMetaDirs: %v", err)
	}
	ok, err := DirExists(pp.LogsDir)
	if err != nil || !ok {
		t.Fatalf("expected logs dir to exist: ok=%v err=%v", ok, err)
	}
}

func TestHomeHonoursOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENCLI_HOME", dir)

	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if home.Root != dir {
		t.Fatalf("expected root %s, got %s", dir, home.Root)
	}
	if home.IndexFile != filepath.Join(dir, "cache", "index.json") {
		t.Fatalf("unexpected index file %s", home.IndexFile)
	}
	if err := home.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if ok, _ := DirExists(home.StagingDir); !ok {
		t.Fatalf("expected staging dir to exist")
	}
}

func TestHomeDefault(t *testing.T) {
	t.Setenv("OPENCLI_HOME", "")
	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if !filepath.IsAbs(home.Root) || filepath.Base(home.Root) != "opencli" {
		t.Fatalf("unexpected default home %s", home.Root)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if ok, err := FileExists(file); err != nil || ok {
		t.Fatalf("expected missing file: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := FileExists(file); err != nil || !ok {
		t.Fatalf("expected file to exist: ok=%v err=%v", ok, err)
	}
	if ok, _ := FileExists(dir); ok {
		t.Fatalf("directory must not count as file")
	}
}
