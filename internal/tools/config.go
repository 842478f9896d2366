// Package tools installs Pawn compiler toolchains into the shared cache.
package tools

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfigURL is where --update-config fetches the platform table from.
const DefaultConfigURL = "https://gist.githubusercontent.com/mxp96/798edeb8da39c7997948a9432d6f61bb/raw/compilers.toml"

//go:embed compilers.toml
var defaultConfig []byte

// PlatformConfig describes how a compiler release is laid out on one OS.
type PlatformConfig struct {
	Match  string            `toml:"match"`
	Method string            `toml:"method"`
	Binary string            `toml:"binary"`
	Paths  map[string]string `toml:"paths"`
}

// CompilerConfig is the parsed compilers.toml.
type CompilerConfig struct {
	Linux   *PlatformConfig `toml:"linux"`
	Windows *PlatformConfig `toml:"windows"`
	Darwin  *PlatformConfig `toml:"darwin"`
}

// DefaultConfig returns the table shipped with the binary.
func DefaultConfig() CompilerConfig {
	cfg, err := ParseConfig(defaultConfig)
	if err != nil {
		panic(fmt.Sprintf("embedded compilers.toml: %v", err))
	}
	return cfg
}

// ParseConfig decodes and validates a compilers.toml document.
func ParseConfig(data []byte) (CompilerConfig, error) {
	var cfg CompilerConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return CompilerConfig{}, fmt.Errorf("parse compilers config: %w", err)
	}
	for goos, p := range cfg.platforms() {
		if err := p.validate(); err != nil {
			return CompilerConfig{}, fmt.Errorf("compilers config [%s]: %w", goos, err)
		}
	}
	return cfg, nil
}

// LoadConfig reads path, falling back to the embedded table when the file
// does not exist.
func LoadConfig(path string) (CompilerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return CompilerConfig{}, fmt.Errorf("read compilers config: %w", err)
	}
	return ParseConfig(data)
}

// UpdateConfig downloads a fresh table from url, validates it and replaces
// the file at path atomically.
func UpdateConfig(ctx context.Context, client *http.Client, url, path string) (CompilerConfig, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultConfigURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return CompilerConfig{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "opencli/dev")

	resp, err := client.Do(req)
	if err != nil {
		return CompilerConfig{}, fmt.Errorf("download compilers config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompilerConfig{}, fmt.Errorf("download compilers config: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CompilerConfig{}, fmt.Errorf("read compilers config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return CompilerConfig{}, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return CompilerConfig{}, err
	}
	return cfg, nil
}

// Platform returns the entry for goos, or an error naming the platform.
func (c CompilerConfig) Platform(goos string) (PlatformConfig, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	p, ok := c.platforms()[goos]
	if !ok || p == nil {
		return PlatformConfig{}, fmt.Errorf("no compiler available for platform %s", goos)
	}
	return *p, nil
}

func (c CompilerConfig) platforms() map[string]*PlatformConfig {
	out := map[string]*PlatformConfig{}
	if c.Linux != nil {
		out["linux"] = c.Linux
	}
	if c.Windows != nil {
		out["windows"] = c.Windows
	}
	if c.Darwin != nil {
		out["darwin"] = c.Darwin
	}
	return out
}

func (p PlatformConfig) validate() error {
	if strings.TrimSpace(p.Binary) == "" {
		return errors.New("binary is required")
	}
	if _, err := regexp.Compile(p.Match); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	switch p.Method {
	case "zip", "tgz":
	default:
		return fmt.Errorf("unsupported method %q", p.Method)
	}
	for pattern, target := range p.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("paths %q: %w", pattern, err)
		}
		if target == "" || strings.Contains(target, "..") || filepath.IsAbs(target) {
			return fmt.Errorf("paths %q: invalid target %q", pattern, target)
		}
	}
	return nil
}

// sortedPatterns gives a stable order for applying the paths table.
func (p PlatformConfig) sortedPatterns() []string {
	keys := make([]string, 0, len(p.Paths))
	for k := range p.Paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
