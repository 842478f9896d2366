package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewWritesTimestampedFile(t *testing.T) {
	nowFunc = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	defer func() { nowFunc = time.Now }()

	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := New(dir, Options{Prefix: "install"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Printf("installed %s %s", "Y-Less/sscanf", "2.13.8")
	logger.Debug("hidden at info level")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "20250304-050607.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "install") || !strings.Contains(text, "installed Y-Less/sscanf 2.13.8") {
		t.Fatalf("log = %q", text)
	}
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug line written at info level: %q", text)
	}
}

func TestVerboseMirrors(t *testing.T) {
	var mirror bytes.Buffer
	logger, closer, err := New(t.TempDir(), Options{Verbose: true, Mirror: &mirror})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.Debug("resolving", "package", "Y-Less/sscanf")
	if !strings.Contains(mirror.String(), "resolving") {
		t.Fatalf("mirror = %q", mirror.String())
	}
}
