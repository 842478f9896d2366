package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"opencli/internal/integrity"
)

const indexVersion = 1

// Index captures per-slot cache state persisted to <home>/cache/index.json.
type Index struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
	// Referrers lists, per slot key, the ledger files whose records point at
	// the slot. It outlives Entries so a re-fetched slot keeps its users.
	Referrers map[string][]string `json:"referrers,omitempty"`
}

// Entry keeps metadata about one verified cache slot.
type Entry struct {
	Key         string           `json:"key"`
	Identity    Identity         `json:"identity"`
	Version     string           `json:"version"`
	Path        string           `json:"path"`
	Digest      integrity.Digest `json:"digest"`
	SizeBytes   int64            `json:"size_bytes,omitempty"`
	Source      string           `json:"source,omitempty"`
	RetrievedAt time.Time        `json:"retrieved_at"`
}

// LoadIndex reads the index file, returning an empty structure when the file
// is missing.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newIndex(), nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	idx.normalize()
	return &idx, nil
}

// SaveIndex writes the index file to disk, creating the containing directory
// if needed. The write is performed atomically.
func SaveIndex(path string, idx *Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure index dir: %w", err)
	}

	if idx == nil {
		idx = newIndex()
	}
	idx.normalize()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp index: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace index: %w", err)
	}

	return nil
}

// Get returns the entry stored under key.
func (idx *Index) Get(key string) (Entry, bool) {
	if idx == nil || idx.Entries == nil {
		return Entry{}, false
	}
	entry, ok := idx.Entries[key]
	return entry, ok
}

// Set stores an entry under its key.
func (idx *Index) Set(entry Entry) {
	if idx == nil {
		return
	}
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
	idx.Entries[entry.Key] = entry
}

// Delete removes the entry stored under key.
func (idx *Index) Delete(key string) {
	if idx == nil || idx.Entries == nil {
		return
	}
	delete(idx.Entries, key)
}

// AddReferrer records that owner uses the slot under key. It reports
// whether the index changed.
func (idx *Index) AddReferrer(key, owner string) bool {
	if idx.Referrers == nil {
		idx.Referrers = map[string][]string{}
	}
	if slices.Contains(idx.Referrers[key], owner) {
		return false
	}
	idx.Referrers[key] = append(idx.Referrers[key], owner)
	slices.Sort(idx.Referrers[key])
	return true
}

// DropReferrer removes owner and every referrer for which gone reports
// true, and returns the referrers that remain.
func (idx *Index) DropReferrer(key, owner string, gone func(string) bool) []string {
	var kept []string
	for _, r := range idx.Referrers[key] {
		if r == owner || (gone != nil && gone(r)) {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		delete(idx.Referrers, key)
	} else {
		idx.Referrers[key] = kept
	}
	return kept
}

// Sorted returns every entry ordered by key.
func (idx *Index) Sorted() []Entry {
	if idx == nil {
		return nil
	}
	out := make([]Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (idx *Index) normalize() {
	if idx.Version == 0 {
		idx.Version = indexVersion
	}
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
}

func newIndex() *Index {
	return &Index{
		Version: indexVersion,
		Entries: map[string]Entry{},
	}
}
