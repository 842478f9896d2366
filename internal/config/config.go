package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"opencli/internal/archive"
)

// ErrNoManifest is returned by Load when the project has no opencli.toml.
var ErrNoManifest = errors.New("no opencli.toml found, run `opencli init` to create one")

// Config is the project manifest, opencli.toml.
type Config struct {
	Build    BuildConfig            `toml:"build"`
	Packages map[string]PackageSpec `toml:"packages,omitempty"`
}

// BuildConfig describes how the gamemode is compiled.
type BuildConfig struct {
	EntryFile       string         `toml:"entry_file"`
	OutputFile      string         `toml:"output_file"`
	CompilerVersion string         `toml:"compiler_version"`
	Includes        IncludesConfig `toml:"includes"`
	Args            ArgsConfig     `toml:"args"`
}

// IncludesConfig lists include directories relative to the project root.
type IncludesConfig struct {
	Paths []string `toml:"paths"`
}

// ArgsConfig holds compiler flags passed through in order.
type ArgsConfig struct {
	Args []string `toml:"args"`
}

// PackageSpec is one entry of [packages]: either a bare constraint string or
// a table with version and target.
type PackageSpec struct {
	Version string
	Target  archive.Target
}

// UnmarshalTOML accepts both forms of a package entry.
func (p *PackageSpec) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		*p = PackageSpec{Version: v}
		return nil
	case map[string]any:
		spec := PackageSpec{}
		for key, raw := range v {
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("package field %q must be a string", key)
			}
			switch key {
			case "version":
				spec.Version = s
			case "target":
				spec.Target = archive.Target(s)
			default:
				return fmt.Errorf("unknown package field %q", key)
			}
		}
		*p = spec
		return nil
	default:
		return fmt.Errorf("package entry must be a string or a table, got %T", data)
	}
}

// Constraint returns the requested version, defaulting to latest.
func (p PackageSpec) Constraint() string {
	if strings.TrimSpace(p.Version) == "" {
		return "latest"
	}
	return p.Version
}

func (p PackageSpec) encode() any {
	if p.Target == archive.TargetAuto {
		return p.Constraint()
	}
	return map[string]string{"version": p.Constraint(), "target": string(p.Target)}
}

// DefaultArgs are the compiler flags of a new project: full debug info,
// required semicolons and parentheses, backslash escapes, compatibility mode.
var DefaultArgs = []string{"-d3", "-;+", "-(+", `-\+`, "-Z+"}

// Default returns the manifest written by `opencli init`.
func Default() Config {
	return Config{
		Build: BuildConfig{
			EntryFile:       "gamemode.pwn",
			OutputFile:      "gamemode.amx",
			CompilerVersion: "v3.10.11",
			Includes:        IncludesConfig{Paths: []string{"include", "qawno/include"}},
			Args:            ArgsConfig{Args: slices.Clone(DefaultArgs)},
		},
	}
}

// Load reads the manifest at path.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ErrNoManifest
		}
		return Config{}, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(contents)
}

// Parse decodes a manifest document and fills defaults for omitted build
// fields.
func Parse(contents []byte) (Config, error) {
	var cfg Config
	md, err := toml.Decode(string(contents), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse manifest: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			// package tables are validated by PackageSpec itself
			if len(k) > 0 && k[0] == "packages" {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return Config{}, fmt.Errorf("parse manifest: unknown keys %s", strings.Join(keys, ", "))
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills omitted build fields. Explicitly empty include or arg
// lists are kept.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Build.EntryFile == "" {
		c.Build.EntryFile = defaults.Build.EntryFile
	}
	if c.Build.OutputFile == "" {
		c.Build.OutputFile = defaults.Build.OutputFile
	}
	if c.Build.CompilerVersion == "" {
		c.Build.CompilerVersion = defaults.Build.CompilerVersion
	}
	if c.Build.Includes.Paths == nil {
		c.Build.Includes.Paths = defaults.Build.Includes.Paths
	}
	if c.Build.Args.Args == nil {
		c.Build.Args.Args = defaults.Build.Args.Args
	}
	if c.Packages == nil {
		c.Packages = map[string]PackageSpec{}
	}
}

// IncludeDir is where package include files are placed: the first declared
// include path, or "include".
func (c Config) IncludeDir() string {
	if len(c.Build.Includes.Paths) > 0 && strings.TrimSpace(c.Build.Includes.Paths[0]) != "" {
		return c.Build.Includes.Paths[0]
	}
	return "include"
}

// SetPackage adds or replaces a [packages] entry. An existing key that
// differs only in case is replaced.
func (c *Config) SetPackage(identity string, spec PackageSpec) {
	if c.Packages == nil {
		c.Packages = map[string]PackageSpec{}
	}
	if key, ok := c.LookupPackage(identity); ok {
		delete(c.Packages, key)
	}
	c.Packages[identity] = spec
}

// LookupPackage returns the [packages] key that matches identity without
// regard to case.
func (c Config) LookupPackage(identity string) (string, bool) {
	if _, ok := c.Packages[identity]; ok {
		return identity, true
	}
	for key := range c.Packages {
		if strings.EqualFold(key, identity) {
			return key, true
		}
	}
	return "", false
}

// RemovePackage deletes a [packages] entry, matching identity without regard
// to case. It reports whether an entry was removed.
func (c *Config) RemovePackage(identity string) bool {
	for key := range c.Packages {
		if strings.EqualFold(key, identity) {
			delete(c.Packages, key)
			return true
		}
	}
	return false
}

// PackageNames returns the [packages] keys in sorted order.
func (c Config) PackageNames() []string {
	names := make([]string, 0, len(c.Packages))
	for name := range c.Packages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type document struct {
	Build    BuildConfig    `toml:"build"`
	Packages map[string]any `toml:"packages,omitempty"`
}

// Marshal returns the TOML encoding of the manifest.
func (c Config) Marshal() ([]byte, error) {
	doc := document{Build: c.Build}
	if len(c.Packages) > 0 {
		doc.Packages = make(map[string]any, len(c.Packages))
		for name, spec := range c.Packages {
			doc.Packages[name] = spec.encode()
		}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the manifest to path through a temp file in the same directory.
func (c Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".opencli-*.toml")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}
