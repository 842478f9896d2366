package tools

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"opencli/internal/registry"
	"opencli/internal/version"
)

type fakeDownloader struct {
	blobs map[string][]byte
	calls int
}

func (f *fakeDownloader) Download(_ context.Context, url string, w io.Writer) (int64, error) {
	f.calls++
	data, ok := f.blobs[url]
	if !ok {
		return 0, registry.ErrReleaseNotFound
	}
	n, err := w.Write(data)
	return int64(n), err
}

func tgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func linux(t *testing.T) PlatformConfig {
	t.Helper()
	p, err := DefaultConfig().Platform("linux")
	if err != nil {
		t.Fatalf("Platform(linux): %v", err)
	}
	return p
}

func TestDefaultConfigCoversPlatforms(t *testing.T) {
	cfg := DefaultConfig()
	for _, goos := range []string{"linux", "windows", "darwin"} {
		p, err := cfg.Platform(goos)
		if err != nil {
			t.Fatalf("Platform(%s): %v", goos, err)
		}
		if p.Binary == "" || len(p.Paths) == 0 {
			t.Fatalf("%s: incomplete entry %+v", goos, p)
		}
	}
	if _, err := cfg.Platform("plan9"); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}

func TestParseConfigRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"method": "[linux]\nmatch = \"linux\"\nmethod = \"rar\"\nbinary = \"pawncc\"\n",
		"binary": "[linux]\nmatch = \"linux\"\nmethod = \"tgz\"\n",
		"regex":  "[linux]\nmatch = \"(\"\nmethod = \"tgz\"\nbinary = \"pawncc\"\n",
		"target": "[linux]\nmatch = \"linux\"\nmethod = \"tgz\"\nbinary = \"pawncc\"\n[linux.paths]\n\"x\" = \"../x\"\n",
	}
	for name, doc := range cases {
		if _, err := ParseConfig([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigFallsBackToEmbedded(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "compilers.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Linux == nil || cfg.Linux.Binary != "pawncc" {
		t.Fatalf("unexpected config %+v", cfg.Linux)
	}
}

func TestUpdateConfigWritesFile(t *testing.T) {
	doc := "[linux]\nmatch = \"x86\"\nmethod = \"zip\"\nbinary = \"pawncc\"\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, doc)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "home", "compilers.toml")
	cfg, err := UpdateConfig(context.Background(), srv.Client(), srv.URL, path)
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if cfg.Linux.Match != "x86" {
		t.Fatalf("match = %q", cfg.Linux.Match)
	}
	loaded, err := LoadConfig(path)
	if err != nil || loaded.Linux.Match != "x86" {
		t.Fatalf("reload = %+v, %v", loaded.Linux, err)
	}
}

func TestUpdateConfigKeepsFileOnBadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "[linux\n")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "compilers.toml")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := UpdateConfig(context.Background(), srv.Client(), srv.URL, path); err == nil {
		t.Fatal("expected parse error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Fatalf("file replaced with %q", data)
	}
}

func TestRepoFor(t *testing.T) {
	cases := map[string]string{
		"3.10.10":  "pawn-lang",
		"3.10.11":  "openmultiplayer",
		"3.11.0":   "openmultiplayer",
		"3.2.3664": "pawn-lang",
	}
	for raw, want := range cases {
		owner, repo := RepoFor(version.MustParseVersion(raw))
		if owner != want || repo != "compiler" {
			t.Fatalf("RepoFor(%s) = %s/%s", raw, owner, repo)
		}
	}
}

func TestFindAssetPrefersMethod(t *testing.T) {
	release := registry.Release{TagName: "v3.10.11", Assets: []registry.Asset{
		{Name: "pawnc-3.10.11-windows.zip"},
		{Name: "pawnc-3.10.11-linux.zip"},
		{Name: "pawnc-3.10.11-linux.tar.gz"},
	}}
	a, err := FindAsset(release, linux(t))
	if err != nil || a.Name != "pawnc-3.10.11-linux.tar.gz" {
		t.Fatalf("FindAsset = %+v, %v", a, err)
	}

	_, err = FindAsset(registry.Release{TagName: "v1", Assets: []registry.Asset{{Name: "src.zip"}}}, linux(t))
	if !errors.Is(err, ErrNoMatchingAsset) {
		t.Fatalf("expected ErrNoMatchingAsset, got %v", err)
	}
}

func TestCompilerFetcherOrganizesFiles(t *testing.T) {
	const url = "https://example.test/pawnc-linux.tar.gz"
	dl := &fakeDownloader{blobs: map[string][]byte{url: tgz(t, map[string]string{
		"pawnc-3.10.11-linux/bin/pawncc":      "#!compiler",
		"pawnc-3.10.11-linux/lib/libpawnc.so": "lib",
		"pawnc-3.10.11-linux/README":          "docs",
	})}}
	release := registry.Release{TagName: "v3.10.11", Assets: []registry.Asset{
		{Name: "pawnc-3.10.11-linux.tar.gz", BrowserDownloadURL: url},
	}}

	dir := t.TempDir()
	source, err := CompilerFetcher(dl, release, linux(t)).Fetch(context.Background(), dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if source != url {
		t.Fatalf("source = %q", source)
	}

	info, err := os.Stat(BinaryPath(dir, linux(t)))
	if err != nil {
		t.Fatalf("binary missing: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("binary not executable: %v", info.Mode())
	}
	if _, err := os.Stat(filepath.Join(dir, "libpawnc.so")); err != nil {
		t.Fatalf("library missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pawnc-3.10.11-linux", "bin")); !os.IsNotExist(err) {
		t.Fatalf("empty bin dir should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".download-pawnc-3.10.11-linux.tar.gz")); !os.IsNotExist(err) {
		t.Fatal("downloaded archive should be removed")
	}
}

func TestCompilerFetcherMissingBinary(t *testing.T) {
	const url = "https://example.test/empty.tar.gz"
	dl := &fakeDownloader{blobs: map[string][]byte{url: tgz(t, map[string]string{"README": "x"})}}
	release := registry.Release{TagName: "v3.10.11", Assets: []registry.Asset{
		{Name: "pawnc-linux.tar.gz", BrowserDownloadURL: url},
	}}
	_, err := CompilerFetcher(dl, release, linux(t)).Fetch(context.Background(), t.TempDir())
	if !errors.Is(err, ErrBinaryMissing) {
		t.Fatalf("expected ErrBinaryMissing, got %v", err)
	}
}

func TestAcquireLockBlocksUntilReleased(t *testing.T) {
	dir := t.TempDir()
	release, err := AcquireLock(context.Background(), dir, "compiler")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := AcquireLock(ctx, dir, "compiler"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while held, got %v", err)
	}

	release()
	again, err := AcquireLock(context.Background(), dir, "compiler")
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	again()
}

func TestAcquireLockReclaimsDeadHolder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pid probing differs on windows")
	}
	dir := t.TempDir()
	// Above the Linux pid_max ceiling, so no process can own it.
	if err := os.WriteFile(filepath.Join(dir, "compiler.lock"), []byte("2147483646\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	release, err := AcquireLock(ctx, dir, "compiler")
	if err != nil {
		t.Fatalf("AcquireLock over dead holder: %v", err)
	}
	release()
}

func TestAcquireLockReclaimsExpiredLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "compiler.lock")
	// A live pid: only the age makes this lock stale.
	if err := os.WriteFile(lockPath, []byte("1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * lockStaleAfter)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	release, err := AcquireLock(ctx, dir, "compiler")
	if err != nil {
		t.Fatalf("AcquireLock over expired lock: %v", err)
	}
	release()
}
