package pkgmgr

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"opencli/internal/archive"
	"opencli/internal/registry"
)

// place copies the installable files of a cache slot into the project:
// includes into the first include path, server binaries into components/ or
// plugins/, and the AMX, LIB and log-core libraries into the project root.
// It returns the placed files relative to the project root.
func (s *Session) place(slot string, target archive.Target) ([]string, error) {
	files, err := slotFiles(slot)
	if err != nil {
		return nil, err
	}
	classified := archive.ClassifyFor(files, target, s.goos())
	if classified.Empty() {
		return nil, registry.ErrNoContent
	}

	groups := []struct {
		dir   string
		files []string
	}{
		{s.Paths.Join(s.Manifest.IncludeDir()), classified.Includes},
		{s.Paths.ComponentsDir, classified.Components},
		{s.Paths.PluginsDir, classified.Plugins},
		{s.Paths.Root, classified.Root},
	}

	var placed []string
	for _, g := range groups {
		for _, f := range g.files {
			dest := filepath.Join(g.dir, path.Base(f))
			if err := copyFile(filepath.Join(slot, filepath.FromSlash(f)), dest); err != nil {
				return placed, err
			}
			placed = append(placed, s.Paths.Rel(dest))
		}
	}
	sort.Strings(placed)
	return placed, nil
}

// missingFiles returns the project-relative files that no longer exist.
func (s *Session) missingFiles(files []string) []string {
	var missing []string
	for _, f := range files {
		if _, err := os.Stat(s.Paths.Join(f)); err != nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// removeFiles deletes project-relative files. Files that are already gone
// are skipped.
func (s *Session) removeFiles(files []string) error {
	var errs []error
	for _, f := range files {
		if err := os.Remove(s.Paths.Join(f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// slotFiles lists the regular files below slot in slash form.
func slotFiles(slot string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(slot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(slot, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", slot, err)
	}
	return files, nil
}

// copyFile writes src to dst through a temp file in dst's directory,
// keeping the permission bits of src.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("ensure %s: %w", filepath.Dir(dst), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".opencli-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dst, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("install %s: %w", dst, err)
	}
	return nil
}
