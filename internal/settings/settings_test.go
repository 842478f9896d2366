package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"opencli/internal/paths"
	"opencli/internal/tools"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENCLI_GITHUB_TOKEN", "OPENCLI_CONCURRENCY", "OPENCLI_RETRY_MAX_ATTEMPTS", "GITHUB_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	s, err := Load(paths.NewHomePaths(t.TempDir()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Concurrency != 4 || s.Retry.MaxAttempts != 4 || s.Retry.InitialInterval != 500*time.Millisecond {
		t.Fatalf("defaults = %+v", s)
	}
	if s.CompilersConfigURL != tools.DefaultConfigURL {
		t.Fatalf("url = %q", s.CompilersConfigURL)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	home := paths.NewHomePaths(t.TempDir())
	doc := "concurrency: 8\nretry:\n  max_attempts: 2\n  initial_interval: 1s\ngithub_token: from-file\n"
	if err := os.WriteFile(home.SettingsFile, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENCLI_CONCURRENCY", "2")

	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Concurrency != 2 {
		t.Fatalf("env should override file, concurrency=%d", s.Concurrency)
	}
	if s.Retry.MaxAttempts != 2 || s.Retry.InitialInterval != time.Second || s.Retry.MaxInterval != 8*time.Second {
		t.Fatalf("retry = %+v", s.Retry)
	}
	if s.GitHubToken != "from-file" {
		t.Fatalf("token = %q", s.GitHubToken)
	}
	if p := s.Policy(); p.MaxAttempts != 2 {
		t.Fatalf("policy = %+v", p)
	}
}

func TestGitHubTokenFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")
	s, err := Load(paths.NewHomePaths(t.TempDir()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.GitHubToken != "ghp_fallback" {
		t.Fatalf("token = %q", s.GitHubToken)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	home := paths.NewHomePaths(t.TempDir())
	if err := os.WriteFile(filepath.Join(home.Root, "settings.yaml"), []byte("concurrency: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(home); err == nil {
		t.Fatal("expected validation error")
	}
}
