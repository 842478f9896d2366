package registry

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"opencli/internal/archive"
	"opencli/internal/cache"
)

// PackageFetcher returns a cache.Fetcher that populates a slot with the
// installable content of release: archives are extracted, loose include
// files and shared libraries are copied as-is. Releases without usable assets
// fall back to the .inc files at the repository root for the release tag.
func (c *GitHubClient) PackageFetcher(owner, repo string, release Release) cache.Fetcher {
	return cache.FetcherFunc(func(ctx context.Context, dir string) (string, error) {
		source := release.HTMLURL
		if source == "" {
			source = fmt.Sprintf("github.com/%s/%s@%s", owner, repo, release.TagName)
		}

		n, err := c.fetchAssets(ctx, release.Assets, dir)
		if err != nil {
			return "", err
		}
		if n > 0 {
			return source, nil
		}

		n, err = c.fetchRootIncludes(ctx, owner, repo, release.TagName, dir)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", fmt.Errorf("%s/%s %s: %w", owner, repo, release.TagName, ErrNoContent)
		}
		return source, nil
	})
}

func (c *GitHubClient) fetchAssets(ctx context.Context, assets []Asset, dir string) (int, error) {
	count := 0
	for _, asset := range assets {
		name := filepath.Base(asset.Name)
		switch {
		case archive.IsArchive(name):
			tmp := filepath.Join(dir, ".download-"+name)
			if err := c.downloadTo(ctx, asset.BrowserDownloadURL, tmp); err != nil {
				return 0, err
			}
			files, err := archive.Extract(ctx, tmp, dir)
			os.Remove(tmp)
			if err != nil {
				return 0, fmt.Errorf("extract %s: %w", name, err)
			}
			count += countInstallable(files)
		case archive.IsInclude(name), archive.IsBinary(name):
			if err := c.downloadTo(ctx, asset.BrowserDownloadURL, filepath.Join(dir, name)); err != nil {
				return 0, err
			}
			count++
		}
	}
	return count, nil
}

func (c *GitHubClient) fetchRootIncludes(ctx context.Context, owner, repo, ref, dir string) (int, error) {
	items, err := c.Contents(ctx, owner, repo, ref)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		if item.Type != "file" || item.DownloadURL == "" || !archive.IsInclude(item.Name) {
			continue
		}
		if err := c.downloadTo(ctx, item.DownloadURL, filepath.Join(dir, filepath.Base(item.Name))); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// downloadTo writes assetURL to dest through a temp file so a failed transfer
// never leaves a truncated file under its final name.
func (c *GitHubClient) downloadTo(ctx context.Context, assetURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("prepare download dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return fmt.Errorf("create download temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := c.Download(ctx, assetURL, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close download: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

func countInstallable(files []string) int {
	n := 0
	for _, f := range files {
		name := path.Base(f)
		if archive.IsInclude(name) || archive.IsBinary(name) {
			n++
		}
	}
	return n
}
