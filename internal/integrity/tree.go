package integrity

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// HashTree digests every regular file below root with the default hasher.
func HashTree(root string) (Digest, error) {
	return defaultHasher.HashTree(root)
}

// VerifyTree recomputes the digest of root and compares it with expected.
func VerifyTree(root string, expected Digest) (bool, error) {
	sum, err := treeSum(root)
	if err != nil {
		return false, err
	}
	return verifySum(sum, expected)
}

// HashTree digests every regular file below root.
func (h Hasher) HashTree(root string) (Digest, error) {
	sum, err := treeSum(root)
	if err != nil {
		return "", err
	}
	return h.digest(sum)
}

// treeSum feeds each file's slash-separated relative path, its length and its
// content into one BLAKE3 state, in lexical path order.
func treeSum(root string) ([32]byte, error) {
	info, err := os.Stat(root)
	if err != nil {
		return [32]byte{}, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return [32]byte{}, fmt.Errorf("hash tree %s: not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("walk %s: %w", root, err)
	}
	return filesSum(root, files)
}

func filesSum(base string, files []string) ([32]byte, error) {
	rels := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(base, f)
		if err != nil {
			return [32]byte{}, fmt.Errorf("relative path %s: %w", f, err)
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	sort.Strings(rels)

	hasher := blake3.New()
	var lenBuf [8]byte
	for _, rel := range rels {
		if err := writeEntry(hasher, base, rel, lenBuf[:]); err != nil {
			return [32]byte{}, err
		}
	}

	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}

func writeEntry(w io.Writer, base, rel string, lenBuf []byte) error {
	file, err := os.Open(filepath.Join(base, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("open for hashing: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	binary.LittleEndian.PutUint64(lenBuf, uint64(len(rel)))
	w.Write(lenBuf)
	io.WriteString(w, rel)
	binary.LittleEndian.PutUint64(lenBuf, uint64(info.Size()))
	w.Write(lenBuf)

	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("hash %s: %w", rel, err)
	}
	return nil
}
