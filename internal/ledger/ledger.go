// Package ledger persists what is installed in a project: one record per
// package identity, plus the compiler toolchain under the identity
// "compiler".
//
// The ledger is loaded once per command, mutated in memory, and written back
// with a single Save. Callers that mutate it from several goroutines must
// serialise access themselves.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"opencli/internal/integrity"
)

const ledgerVersion = 1

// Record describes one installed artifact.
type Record struct {
	Identity    string           `yaml:"identity"`
	Version     string           `yaml:"version"`
	Requested   string           `yaml:"requested,omitempty"`
	InstallPath string           `yaml:"install_path"`
	ContentHash integrity.Digest `yaml:"content_hash"`
	InstalledAt time.Time        `yaml:"installed_at"`
	Target      string           `yaml:"target,omitempty"`
	Files       []string         `yaml:"files,omitempty"`
}

// Ledger is the set of records for one project.
type Ledger struct {
	Version int               `yaml:"ledger_version"`
	Records map[string]Record `yaml:"records"`

	path string
}

// New returns an empty ledger that saves to path.
func New(path string) *Ledger {
	return &Ledger{Version: ledgerVersion, Records: map[string]Record{}, path: path}
}

// Load reads the ledger at path. A missing file yields an empty ledger.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(path), nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	l := New(path)
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	if l.Version == 0 {
		l.Version = ledgerVersion
	}
	if l.Version != ledgerVersion {
		return nil, fmt.Errorf("unsupported ledger version %d in %s", l.Version, path)
	}
	if l.Records == nil {
		l.Records = map[string]Record{}
	}
	for id, r := range l.Records {
		if r.Identity == "" {
			r.Identity = id
			l.Records[id] = r
		}
	}
	return l, nil
}

// Path is the file Save writes to.
func (l *Ledger) Path() string { return l.path }

// Record stores r, replacing any record with the same identity.
func (l *Ledger) Record(r Record) {
	if l.Records == nil {
		l.Records = map[string]Record{}
	}
	l.Records[r.Identity] = r
}

// Remove deletes the record for identity and reports whether one existed.
func (l *Ledger) Remove(identity string) bool {
	if _, ok := l.Records[identity]; !ok {
		return false
	}
	delete(l.Records, identity)
	return true
}

// Get returns the record for identity.
func (l *Ledger) Get(identity string) (Record, bool) {
	r, ok := l.Records[identity]
	return r, ok
}

// List returns all records ordered by identity.
func (l *Ledger) List() []Record {
	out := make([]Record, 0, len(l.Records))
	for _, r := range l.Records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// References counts the records whose InstallPath is installPath.
func (l *Ledger) References(installPath string) int {
	n := 0
	for _, r := range l.Records {
		if r.InstallPath == installPath {
			n++
		}
	}
	return n
}

// Save writes the ledger atomically: a temp file in the same directory is
// renamed over the target.
func (l *Ledger) Save() error {
	if l.path == "" {
		return errors.New("ledger has no path")
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure ledger dir: %w", err)
	}
	if l.Version == 0 {
		l.Version = ledgerVersion
	}

	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
