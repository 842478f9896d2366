package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
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
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sscanf-2.13.8-linux.zip")
	writeZip(t, src, map[string]string{
		"components/sscanf.so":      "elf",
		"qawno/include/sscanf2.inc": "native sscanf();",
	})

	dest := filepath.Join(dir, "out")
	files, err := Extract(context.Background(), src, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	data, err := os.ReadFile(filepath.Join(dest, "qawno", "include", "sscanf2.inc"))
	if err != nil || string(data) != "native sscanf();" {
		t.Fatalf("unexpected include content %q, %v", data, err)
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pawnc-3.10.11-linux.tar.gz")
	writeTarGz(t, src, map[string]string{
		"pawnc-3.10.11-linux/bin/pawncc":          "#!",
		"pawnc-3.10.11-linux/lib/libpawnc.so":     "elf",
		"pawnc-3.10.11-linux/include/console.inc": "",
	})

	dest := filepath.Join(dir, "out")
	files, err := Extract(context.Background(), src, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}
	info, err := os.Stat(filepath.Join(dest, "pawnc-3.10.11-linux", "bin", "pawncc"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit preserved, got %v", info.Mode())
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{"../escape.inc": "x"})

	_, err := Extract(context.Background(), src, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "escape.inc")); !os.IsNotExist(statErr) {
		t.Fatal("traversal entry was written")
	}
}

func TestExtractUnsupported(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plugin.rar")
	if err := os.WriteFile(src, []byte("rar"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(context.Background(), src, dir); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestClassifyComponentsPrefersQawno(t *testing.T) {
	files := []string{
		"sscanf/components/sscanf.so",
		"sscanf/components/sscanf.dll",
		"sscanf/plugins/sscanf.so",
		"sscanf/qawno/include/sscanf2.inc",
		"sscanf/pawno/include/sscanf2.inc",
		"sscanf/amxsscanf.so",
		"README.md",
	}
	got := ClassifyFor(files, TargetComponents, "linux")
	want := Files{
		Includes:   []string{"sscanf/qawno/include/sscanf2.inc"},
		Root:       []string{"sscanf/amxsscanf.so"},
		Components: []string{"sscanf/components/sscanf.so"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ClassifyFor components:\n got %+v\nwant %+v", got, want)
	}
}

func TestClassifyPluginsWithoutFolder(t *testing.T) {
	files := []string{"mysql.so", "mysql.dll", "a_mysql.inc", "log-core.so"}
	got := ClassifyFor(files, TargetPlugins, "windows")
	want := Files{
		Includes: []string{"a_mysql.inc"},
		Plugins:  []string{"mysql.dll"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ClassifyFor plugins:\n got %+v\nwant %+v", got, want)
	}

	got = ClassifyFor(files, TargetPlugins, "linux")
	if !reflect.DeepEqual(got.Root, []string{"log-core.so"}) || !reflect.DeepEqual(got.Plugins, []string{"mysql.so"}) {
		t.Fatalf("ClassifyFor plugins linux: %+v", got)
	}
}

func TestClassifyAutoDetect(t *testing.T) {
	files := []string{
		"components/Pawn.RakNet.so",
		"plugins/streamer.so",
		"omp-node.so",
		"crashdetect.so",
		"include/streamer.inc",
	}
	got := ClassifyFor(files, TargetAuto, "linux")
	want := Files{
		Includes:   []string{"include/streamer.inc"},
		Components: []string{"components/Pawn.RakNet.so", "omp-node.so"},
		Plugins:    []string{"crashdetect.so", "plugins/streamer.so"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ClassifyFor auto:\n got %+v\nwant %+v", got, want)
	}
}

func TestParseTarget(t *testing.T) {
	for in, want := range map[string]Target{"": TargetAuto, "Components": TargetComponents, " plugins ": TargetPlugins} {
		got, ok := ParseTarget(in)
		if !ok || got != want {
			t.Fatalf("ParseTarget(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseTarget("filterscripts"); ok {
		t.Fatal("expected unknown target to be rejected")
	}
}
