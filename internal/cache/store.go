// Package cache keeps verified copies of downloaded packages and compiler
// toolchains under the user's opencli home, one directory per
// (identity, version) slot.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"opencli/internal/integrity"
	"opencli/internal/paths"
	"opencli/internal/retry"
)

// CompilerIdentity is the slot namespace for Pawn compiler toolchains.
const CompilerIdentity Identity = "compiler"

// Identity names a cached artifact family: "owner/repo" for packages or
// CompilerIdentity for toolchains.
type Identity string

// Key returns the index key of identity at version.
func (id Identity) Key(version string) string {
	return string(id) + "@" + version
}

func (id Identity) validate() error {
	s := string(id)
	if s == "" {
		return errors.New("empty identity")
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `\:`) {
			return fmt.Errorf("invalid identity %q", s)
		}
	}
	return nil
}

// Logger is satisfied by *log.Logger and the logx file logger.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Fetcher writes the content of one artifact into dir, which exists and is
// empty, and returns a description of where it came from.
type Fetcher interface {
	Fetch(ctx context.Context, dir string) (source string, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, dir string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, dir string) (string, error) { return f(ctx, dir) }

// FetchOptions tune FetchOrGet.
type FetchOptions struct {
	// Force re-downloads even when a verified slot exists.
	Force bool
	// Expect, when set, is a digest the fetched content must verify against.
	Expect integrity.Digest
}

// Result describes the slot returned by FetchOrGet.
type Result struct {
	Entry   Entry
	Fetched bool
}

var nowFunc = time.Now

// Store is the on-disk artifact cache. It is safe for concurrent use.
type Store struct {
	Root       string
	StagingDir string
	IndexFile  string
	Hasher     integrity.Hasher
	Retry      retry.Policy
	Logger     Logger

	mu    sync.Mutex
	idx   *Index
	group singleflight.Group
}

// Open loads the cache index below the user home.
func Open(home paths.HomePaths, logger Logger) (*Store, error) {
	if err := home.Ensure(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}
	idx, err := LoadIndex(home.IndexFile)
	if err != nil {
		return nil, err
	}
	return &Store{
		Root:       home.CacheDir,
		StagingDir: home.StagingDir,
		IndexFile:  home.IndexFile,
		Retry:      retry.Default(),
		Logger:     logger,
		idx:        idx,
	}, nil
}

func (s *Store) logf(format string, v ...any) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Printf(format, v...)
}

// SlotPath returns the directory that holds identity at version.
func (s *Store) SlotPath(id Identity, version string) string {
	return filepath.Join(s.Root, filepath.FromSlash(string(id)), version)
}

// Lookup returns the index entry for identity at version.
func (s *Store) Lookup(id Identity, version string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index().Get(id.Key(version))
}

// Has reports whether a slot is indexed and present on disk. Content is not
// re-verified.
func (s *Store) Has(id Identity, version string) bool {
	entry, ok := s.Lookup(id, version)
	if !ok {
		return false
	}
	info, err := os.Stat(entry.Path)
	return err == nil && info.IsDir()
}

// Verify recomputes the slot digest and compares it with the index.
func (s *Store) Verify(id Identity, version string) (bool, error) {
	entry, ok := s.Lookup(id, version)
	if !ok {
		return false, nil
	}
	return VerifyEntry(entry)
}

// VerifyEntry recomputes the digest of entry's slot. A missing slot is a
// mismatch, not an error.
func VerifyEntry(entry Entry) (bool, error) {
	if ok, err := paths.DirExists(entry.Path); err != nil || !ok {
		return false, err
	}
	return integrity.VerifyTree(entry.Path, entry.Digest)
}

// Entries lists every indexed slot ordered by key.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index().Sorted()
}

// FetchOrGet returns a verified slot for identity at version, downloading it
// through fetcher only when the slot is absent, corrupt, or opts.Force is set.
// Concurrent calls for the same slot share one download.
func (s *Store) FetchOrGet(ctx context.Context, id Identity, version string, fetcher Fetcher, opts FetchOptions) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := id.validate(); err != nil {
		return Result{}, err
	}
	if version == "" {
		return Result{}, fmt.Errorf("fetch %s: empty version", id)
	}
	key := id.Key(version)

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetchOrGet(ctx, id, version, fetcher, opts)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Store) fetchOrGet(ctx context.Context, id Identity, version string, fetcher Fetcher, opts FetchOptions) (Result, error) {
	key := id.Key(version)

	if !opts.Force {
		if entry, ok := s.Lookup(id, version); ok {
			valid, err := VerifyEntry(entry)
			if err == nil && valid {
				s.logf("cache hit %s (%s)", key, entry.Path)
				return Result{Entry: entry}, nil
			}
			if err != nil {
				s.logf("cache verify %s: %v", key, err)
			}
			s.logf("cache slot %s is corrupt, invalidating", key)
			if err := s.Invalidate(id, version); err != nil {
				return Result{}, err
			}
		}
	}

	if err := os.MkdirAll(s.StagingDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure staging dir: %w", err)
	}
	staging, err := os.MkdirTemp(s.StagingDir, stagingPrefix(key))
	if err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	promoted := false
	defer func() {
		if !promoted {
			os.RemoveAll(staging)
		}
	}()

	var source string
	err = retry.DoNotify(ctx, s.Retry, func(ctx context.Context) error {
		if err := resetDir(staging); err != nil {
			return err
		}
		src, err := fetcher.Fetch(ctx, staging)
		if err != nil {
			return err
		}
		source = src
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		s.logf("fetch %s attempt %d failed: %v (retrying in %s)", key, attempt, err, wait)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if errors.Is(err, ErrIntegrity) {
			return Result{}, err
		}
		kind := FetchFailed
		if errors.Is(err, retry.ErrUnreachable) {
			kind = FetchUnreachable
		}
		return Result{}, &FetchError{Kind: kind, Key: key, Err: err}
	}

	if opts.Expect != "" {
		ok, err := integrity.VerifyTree(staging, opts.Expect)
		if err != nil {
			return Result{}, fmt.Errorf("verify %s: %w", key, err)
		}
		if !ok {
			invalidated := true
			if err := s.Invalidate(id, version); err != nil {
				s.logf("invalidate %s: %v", key, err)
				invalidated = false
			}
			return Result{}, &IntegrityError{Key: key, Expected: opts.Expect, Invalidated: invalidated}
		}
	}

	digest, err := s.Hasher.HashTree(staging)
	if err != nil {
		return Result{}, fmt.Errorf("hash %s: %w", key, err)
	}
	size, err := treeSize(staging)
	if err != nil {
		return Result{}, fmt.Errorf("measure %s: %w", key, err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	slot := s.SlotPath(id, version)
	if err := os.RemoveAll(slot); err != nil {
		return Result{}, fmt.Errorf("clear slot %s: %w", slot, err)
	}
	if err := os.MkdirAll(filepath.Dir(slot), 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure slot parent: %w", err)
	}
	if err := os.Rename(staging, slot); err != nil {
		return Result{}, fmt.Errorf("promote %s: %w", key, err)
	}
	promoted = true

	entry := Entry{
		Key:         key,
		Identity:    id,
		Version:     version,
		Path:        slot,
		Digest:      digest,
		SizeBytes:   size,
		Source:      source,
		RetrievedAt: nowFunc().UTC(),
	}
	if err := s.put(entry); err != nil {
		return Result{}, err
	}
	s.logf("cached %s (%d bytes) from %s", key, size, source)
	return Result{Entry: entry, Fetched: true}, nil
}

// Invalidate removes the slot and its index entry. Missing slots are not an
// error. Referrers are kept so the slot can be fetched again for them.
func (s *Store) Invalidate(id Identity, version string) error {
	key := id.Key(version)
	slot := s.SlotPath(id, version)
	if err := os.RemoveAll(slot); err != nil {
		return fmt.Errorf("remove slot %s: %w", slot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return err
	}
	idx := s.index()
	if _, ok := idx.Get(key); !ok {
		return nil
	}
	idx.Delete(key)
	if err := SaveIndex(s.IndexFile, idx); err != nil {
		return err
	}
	s.logf("invalidated %s", key)
	return nil
}

// Retain records that the ledger file owner has a record pointing at
// identity at version. Slots shared between projects are only deleted once
// every owner has released them.
func (s *Store) Retain(id Identity, version, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return err
	}
	if !s.index().AddReferrer(id.Key(version), owner) {
		return nil
	}
	return SaveIndex(s.IndexFile, s.index())
}

// Release drops owner from the users of identity at version and returns how
// many remain. Owners whose ledger file no longer exists are dropped too.
func (s *Store) Release(id Identity, version, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return 0, err
	}
	key := id.Key(version)
	before := len(s.index().Referrers[key])
	kept := s.index().DropReferrer(key, owner, func(path string) bool {
		ok, err := paths.FileExists(path)
		return err == nil && !ok
	})
	if len(kept) != before {
		if err := SaveIndex(s.IndexFile, s.index()); err != nil {
			return 0, err
		}
	}
	return len(kept), nil
}

// Referrers returns the ledger files that use identity at version.
func (s *Store) Referrers(id Identity, version string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.index().Referrers[id.Key(version)])
}

// reload must be called with s.mu held. It picks up referrers recorded by
// other processes since Open.
func (s *Store) reload() error {
	if s.IndexFile == "" {
		return nil
	}
	idx, err := LoadIndex(s.IndexFile)
	if err != nil {
		return err
	}
	s.idx = idx
	return nil
}

func (s *Store) put(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return err
	}
	idx := s.index()
	idx.Set(entry)
	return SaveIndex(s.IndexFile, idx)
}

// index must be called with s.mu held.
func (s *Store) index() *Index {
	if s.idx == nil {
		s.idx = newIndex()
	}
	return s.idx
}

func stagingPrefix(key string) string {
	r := strings.NewReplacer("/", "_", "@", "_", `\`, "_", ":", "_")
	return r.Replace(key) + "-"
}

func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear staging dir: %w", err)
		}
	}
	return nil
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
