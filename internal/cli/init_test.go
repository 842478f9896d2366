package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"opencli/internal/config"
	"opencli/internal/paths"
)

func TestResolveInitDir(t *testing.T) {
	t.Run("project flag takes precedence", func(t *testing.T) {
		dir, err := resolveInitDir("/custom/path", []string{"ignored"})
		if err != nil {
			t.Fatal(err)
		}
		if dir != "/custom/path" {
			t.Fatalf("got %s, want /custom/path", dir)
		}
	})

	t.Run("no args uses cwd", func(t *testing.T) {
		cwd, _ := os.Getwd()
		for _, args := range [][]string{nil, {"."}} {
			dir, err := resolveInitDir("", args)
			if err != nil {
				t.Fatal(err)
			}
			if dir != cwd {
				t.Fatalf("args %v: got %s, want %s", args, dir, cwd)
			}
		}
	})

	t.Run("named arg creates subdirectory", func(t *testing.T) {
		cwd, _ := os.Getwd()
		dir, err := resolveInitDir("", []string{"my-server"})
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(cwd, "my-server")
		if dir != want {
			t.Fatalf("got %s, want %s", dir, want)
		}
	})
}

// execute runs the root command with args and resets the package flags
// afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		projectDir, outputJSON, noProgress, checkStrict = "", false, false, false
	})
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitWritesDefaultManifest(t *testing.T) {
	root := filepath.Join(t.TempDir(), "server")

	out, err := execute(t, "init", root)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "created opencli.toml") {
		t.Fatalf("output = %q", out)
	}

	pp := paths.NewProjectPaths(root)
	cfg, err := config.Load(pp.ManifestFile)
	if err != nil {
		t.Fatalf("load written manifest: %v", err)
	}
	if cfg.Build.EntryFile != "gamemode.pwn" || cfg.Build.CompilerVersion == "" {
		t.Fatalf("unexpected manifest: %+v", cfg.Build)
	}
	if ok, _ := paths.DirExists(pp.LogsDir); !ok {
		t.Fatal("logs directory was not created")
	}
}

func TestInitKeepsExistingManifest(t *testing.T) {
	root := t.TempDir()
	pp := paths.NewProjectPaths(root)
	custom := []byte("[build]\nentry_file = \"main.pwn\"\noutput_file = \"main.amx\"\ncompiler_version = \"v3.10.10\"\n")
	if err := os.WriteFile(pp.ManifestFile, custom, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "init", "--project", root)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "already initialized") {
		t.Fatalf("output = %q", out)
	}
	data, _ := os.ReadFile(pp.ManifestFile)
	if !bytes.Equal(data, custom) {
		t.Fatal("existing manifest was overwritten")
	}

	if _, err := execute(t, "init", "--project", root, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	cfg, err := config.Load(pp.ManifestFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.EntryFile != "gamemode.pwn" {
		t.Fatalf("--force did not rewrite the manifest: %+v", cfg.Build)
	}
}

func TestSetupCreatesWorkspace(t *testing.T) {
	root := t.TempDir()
	if _, err := execute(t, "init", "--project", root); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "setup", "--project", root)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	for _, dir := range []string{"components", "plugins", "include"} {
		if ok, _ := paths.DirExists(filepath.Join(root, dir)); !ok {
			t.Fatalf("%s/ not created", dir)
		}
		if !strings.Contains(out, "created "+dir+"/") {
			t.Fatalf("output lacks %s: %q", dir, out)
		}
	}

	out, err = execute(t, "setup", "--project", root)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already set up") {
		t.Fatalf("second setup output = %q", out)
	}
}

func TestSetupNeedsManifest(t *testing.T) {
	_, err := execute(t, "setup", "--project", t.TempDir())
	if err == nil {
		t.Fatal("expected an error without opencli.toml")
	}
}
