package integrity

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cheap keeps argon2 fast in tests; Verify reads parameters from the digest.
var cheap = Hasher{Params: Params{Memory: 64, Time: 1, Threads: 1}}

func TestHashVerifyRoundTrip(t *testing.T) {
	data := []byte("#include <a_samp>")
	d, err := cheap.Hash(data)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(string(d), "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Fatalf("unexpected digest format: %s", d)
	}

	ok, err := Verify(data, d)
	if err != nil || !ok {
		t.Fatalf("Verify(original) = %v, %v", ok, err)
	}
	ok, err = Verify([]byte("#include <open.mp>"), d)
	if err != nil || ok {
		t.Fatalf("Verify(tampered) = %v, %v", ok, err)
	}
}

func TestHashIsSalted(t *testing.T) {
	a, err := cheap.Hash([]byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := cheap.Hash([]byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct digests for distinct salts")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, d := range []Digest{"", "sha256:abc", "$argon2i$v=19$m=1,t=1,p=1$AAAA$AAAA", "$argon2id$v=19$m=x,t=1,p=1$AAAA$AAAA"} {
		if _, err := Verify([]byte("x"), d); !errors.Is(err, ErrMalformedDigest) {
			t.Fatalf("Verify(%q) error = %v, want ErrMalformedDigest", d, err)
		}
	}
}

func TestTreeDigest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sscanf2.inc"), "native sscanf();")
	writeFile(t, filepath.Join(root, "plugins", "sscanf.so"), "\x7fELF")

	d, err := cheap.HashTree(root)
	if err != nil {
		t.Fatalf("HashTree: %v", err)
	}
	ok, err := VerifyTree(root, d)
	if err != nil || !ok {
		t.Fatalf("VerifyTree(unchanged) = %v, %v", ok, err)
	}

	writeFile(t, filepath.Join(root, "plugins", "sscanf.so"), "\x7fELF!")
	ok, err = VerifyTree(root, d)
	if err != nil || ok {
		t.Fatalf("VerifyTree(modified) = %v, %v", ok, err)
	}
}

func TestTreeDigestDetectsRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.inc"), "x")
	d, err := cheap.HashTree(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(root, "a.inc"), filepath.Join(root, "b.inc")); err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyTree(root, d)
	if err != nil || ok {
		t.Fatalf("rename should change digest: ok=%v err=%v", ok, err)
	}
}

func TestHashTreeMissingDir(t *testing.T) {
	if _, err := cheap.HashTree(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
