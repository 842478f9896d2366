package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"opencli/internal/archive"
	"opencli/internal/cache"
	"opencli/internal/registry"
	"opencli/internal/version"
)

var (
	// ErrNoMatchingAsset means the release has no asset for this platform.
	ErrNoMatchingAsset = errors.New("no compiler asset for this platform")
	// ErrBinaryMissing means the extracted asset did not contain the compiler.
	ErrBinaryMissing = errors.New("compiler binary missing from release asset")
)

const (
	ompOwner     = "openmultiplayer"
	legacyOwner  = "pawn-lang"
	compilerRepo = "compiler"
)

// ompFirst is the first compiler release published by open.mp.
var ompFirst = version.MustParseVersion("3.10.11")

// Repo is a GitHub repository publishing compiler releases.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// CompilerRepos are searched in order when the requested compiler version is
// not exact.
var CompilerRepos = []Repo{
	{Owner: ompOwner, Name: compilerRepo},
	{Owner: legacyOwner, Name: compilerRepo},
}

// RepoFor returns the repository that publishes compiler v.
func RepoFor(v version.Version) (owner, repo string) {
	if v.Compare(ompFirst) >= 0 {
		return ompOwner, compilerRepo
	}
	return legacyOwner, compilerRepo
}

// Downloader streams a URL into w.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// FindAsset picks the release asset for p: the first whose name matches
// p.Match and whose extension agrees with p.Method, falling back to the
// first name match.
func FindAsset(release registry.Release, p PlatformConfig) (registry.Asset, error) {
	re, err := regexp.Compile("(?i)" + p.Match)
	if err != nil {
		return registry.Asset{}, fmt.Errorf("match pattern: %w", err)
	}
	var fallback *registry.Asset
	for i := range release.Assets {
		a := release.Assets[i]
		if !re.MatchString(a.Name) {
			continue
		}
		if string(archive.DetectFormat(a.Name)) == p.Method {
			return a, nil
		}
		if fallback == nil {
			fallback = &a
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return registry.Asset{}, fmt.Errorf("%s: %w (match %q)", release.TagName, ErrNoMatchingAsset, p.Match)
}

// CompilerFetcher returns a cache.Fetcher that installs the compiler from
// release into a slot: the platform asset is downloaded, unpacked, and the
// files named by p.Paths are moved to their target names.
func CompilerFetcher(dl Downloader, release registry.Release, p PlatformConfig) cache.Fetcher {
	return cache.FetcherFunc(func(ctx context.Context, dir string) (string, error) {
		asset, err := FindAsset(release, p)
		if err != nil {
			return "", err
		}

		tmp := filepath.Join(dir, ".download-"+filepath.Base(asset.Name))
		if err := download(ctx, dl, asset.BrowserDownloadURL, tmp); err != nil {
			return "", err
		}
		files, err := archive.ExtractFormat(ctx, archive.Format(p.Method), tmp, dir)
		os.Remove(tmp)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", asset.Name, err)
		}

		if err := organize(dir, files, p); err != nil {
			return "", err
		}
		bin := filepath.Join(dir, p.Binary)
		if _, err := os.Stat(bin); err != nil {
			return "", fmt.Errorf("%s %s: %w", asset.Name, p.Binary, ErrBinaryMissing)
		}
		if err := os.Chmod(bin, 0o755); err != nil {
			return "", fmt.Errorf("chmod compiler: %w", err)
		}
		return asset.BrowserDownloadURL, nil
	})
}

// BinaryPath is the compiler executable inside slot.
func BinaryPath(slot string, p PlatformConfig) string {
	return filepath.Join(slot, p.Binary)
}

func download(ctx context.Context, dl Downloader, url, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create download: %w", err)
	}
	if _, err := dl.Download(ctx, url, f); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("close download: %w", err)
	}
	return nil
}

// organize moves, for each paths pattern, the first matching extracted file
// to its target name and then drops directories left empty.
func organize(dir string, files []string, p PlatformConfig) error {
	sorted := slices.Clone(files)
	slices.Sort(sorted)
	for _, pattern := range p.sortedPatterns() {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("paths %q: %w", pattern, err)
		}
		target := p.Paths[pattern]
		for _, rel := range sorted {
			if !re.MatchString(rel) {
				continue
			}
			if rel != target {
				dst := filepath.Join(dir, filepath.FromSlash(target))
				if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
					return fmt.Errorf("organize %s: %w", target, err)
				}
				if err := os.Rename(filepath.Join(dir, filepath.FromSlash(rel)), dst); err != nil {
					return fmt.Errorf("organize %s: %w", rel, err)
				}
			}
			break
		}
	}
	return removeEmptyDirs(dir)
}

func removeEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	// Deepest first so parents empty out after their children.
	slices.SortFunc(dirs, func(a, b string) int {
		return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
	})
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
	return nil
}
