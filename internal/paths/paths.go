package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// ManifestName is the project manifest file name.
	ManifestName = "opencli.toml"
	metaDirName  = ".opencli"
)

// ProjectPaths captures canonical locations for an open.mp project.
type ProjectPaths struct {
	Root          string
	ManifestFile  string
	MetaDir       string
	LedgerFile    string
	LogsDir       string
	ServerConfig  string
	ComponentsDir string
	PluginsDir    string
}

// Resolve determines the project root using the optional --project flag or the
// current working directory when the flag is empty.
func Resolve(projectFlag string) (ProjectPaths, error) {
	var (
		root string
		err  error
	)

	if projectFlag != "" {
		root, err = filepath.Abs(projectFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return ProjectPaths{}, fmt.Errorf("resolve project root: %w", err)
	}

	return NewProjectPaths(root), nil
}

// NewProjectPaths lays out the standard files below root.
func NewProjectPaths(root string) ProjectPaths {
	metaDir := filepath.Join(root, metaDirName)
	return ProjectPaths{
		Root:          root,
		ManifestFile:  filepath.Join(root, ManifestName),
		MetaDir:       metaDir,
		LedgerFile:    filepath.Join(metaDir, "installed.yaml"),
		LogsDir:       filepath.Join(metaDir, "logs"),
		ServerConfig:  filepath.Join(root, "config.json"),
		ComponentsDir: filepath.Join(root, "components"),
		PluginsDir:    filepath.Join(root, "plugins"),
	}
}

// Join resolves a manifest-relative path against the project root.
func (p ProjectPaths) Join(value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(p.Root, filepath.FromSlash(value))
}

// Rel returns path relative to the project root using forward slashes, or the
// cleaned absolute path when it lies outside the project.
func (p ProjectPaths) Rel(path string) string {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Clean(path)
	}
	return filepath.ToSlash(rel)
}

// EnsureMetaDirs creates the hidden .opencli metadata directory and its logs
// folder.
func (p ProjectPaths) EnsureMetaDirs() error {
	for _, dir := range []string{p.MetaDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// HomePaths are the user-level locations shared by every project: the
// artifact cache, the compiler platform table and user settings.
type HomePaths struct {
	Root            string
	CacheDir        string
	StagingDir      string
	IndexFile       string
	CompilersConfig string
	SettingsFile    string
	LogsDir         string
}

// Home resolves the user-level opencli directory. OPENCLI_HOME overrides the
// platform default.
func Home() (HomePaths, error) {
	root, err := homeRoot()
	if err != nil {
		return HomePaths{}, err
	}
	return NewHomePaths(root), nil
}

// NewHomePaths lays out the user-level directory below root.
func NewHomePaths(root string) HomePaths {
	cacheDir := filepath.Join(root, "cache")
	return HomePaths{
		Root:            root,
		CacheDir:        cacheDir,
		StagingDir:      filepath.Join(cacheDir, ".staging"),
		IndexFile:       filepath.Join(cacheDir, "index.json"),
		CompilersConfig: filepath.Join(root, "compilers.toml"),
		SettingsFile:    filepath.Join(root, "settings.yaml"),
		LogsDir:         filepath.Join(root, "logs"),
	}
}

// Ensure creates the cache, staging and logs directories.
func (h HomePaths) Ensure() error {
	for _, dir := range []string{h.Root, h.CacheDir, h.StagingDir, h.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func homeRoot() (string, error) {
	if override, ok := os.LookupEnv("OPENCLI_HOME"); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve OPENCLI_HOME: %w", err)
		}
		return abs, nil
	}

	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "opencli"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Roaming", "opencli"), nil
	}
	return filepath.Join(home, ".config", "opencli"), nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
