// Package archive unpacks release assets and sorts their files into the
// places an open.mp server expects them.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Format identifies a supported archive container.
type Format string

const (
	FormatNone  Format = ""
	FormatZip   Format = "zip"
	FormatTarGz Format = "tgz"
)

// ErrUnsafePath is returned for entries that would land outside dest.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// DetectFormat infers the archive format from a file name.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	default:
		return FormatNone
	}
}

// IsArchive reports whether name has a supported archive extension.
func IsArchive(name string) bool {
	return DetectFormat(name) != FormatNone
}

// Extract unpacks the archive at path into dest using the format implied by
// its name, and returns the extracted regular files relative to dest in
// slash form.
func Extract(ctx context.Context, path, dest string) ([]string, error) {
	return ExtractFormat(ctx, DetectFormat(path), path, dest)
}

// ExtractFormat unpacks path as format into dest.
func ExtractFormat(ctx context.Context, format Format, path, dest string) ([]string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("prepare extract dir: %w", err)
	}
	switch format {
	case FormatZip:
		return extractZip(ctx, path, dest)
	case FormatTarGz:
		return extractTarGz(ctx, path, dest)
	default:
		return nil, fmt.Errorf("unsupported archive format for %s", filepath.Base(path))
	}
}

func extractZip(ctx context.Context, archivePath, dest string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	var files []string
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, rel, err := safeJoin(dest, file.Name)
		if err != nil {
			return nil, err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("create dir %s: %w", target, err)
			}
			continue
		}
		if !file.Mode().IsRegular() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", file.Name, err)
		}
		err = writeFile(target, rc, file.Mode().Perm())
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, rel)
	}
	return files, nil
}

func extractTarGz(ctx context.Context, archivePath, dest string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(ctx, gz, dest)
}

func untarStream(ctx context.Context, r io.Reader, dest string) ([]string, error) {
	tr := tar.NewReader(r)
	var files []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}
		target, rel, err := safeJoin(dest, header.Name)
		if err != nil {
			return nil, err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return nil, err
			}
			files = append(files, rel)
		default:
			// Links and devices are never needed by Pawn packages.
		}
	}
	return files, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare file %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

// safeJoin resolves an archive entry name below dest. Windows separators in
// entry names are treated as directory separators.
func safeJoin(dest, name string) (string, string, error) {
	clean := strings.ReplaceAll(name, `\`, "/")
	clean = strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+clean)), "/")
	if clean == "" || clean == "." {
		return dest, "", nil
	}
	if strings.Contains(name, "..") {
		for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
			if part == ".." {
				return "", "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
			}
		}
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Join(dest, filepath.FromSlash(clean)), clean, nil
}
