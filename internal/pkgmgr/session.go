// Package pkgmgr runs one package command against a project: it owns the
// manifest, the installed-state ledger and the shared cache for the lifetime
// of the command and writes them back once at the end.
package pkgmgr

import (
	"context"
	"runtime"
	"sync"
	"time"

	"opencli/internal/cache"
	"opencli/internal/config"
	"opencli/internal/ledger"
	"opencli/internal/paths"
	"opencli/internal/registry"
	"opencli/internal/resolve"
	"opencli/internal/version"
)

// Source is the remote side of a session. *registry.GitHubClient satisfies it.
type Source interface {
	Versions(ctx context.Context, owner, repo string) ([]version.Version, error)
	ReleaseFor(ctx context.Context, owner, repo string, v version.Version) (registry.Release, error)
	PackageFetcher(owner, repo string, release registry.Release) cache.Fetcher
}

// Logger is the log sink used by the session.
type Logger interface {
	Printf(format string, v ...any)
}

// Reporter receives per-package progress. Complete may be called from
// several goroutines.
type Reporter interface {
	Start(ref resolve.PackageRef)
	Complete(o Outcome)
}

var nowFunc = time.Now

// Session is the explicit per-command context.
type Session struct {
	Paths    paths.ProjectPaths
	Manifest *config.Config
	Ledger   *ledger.Ledger
	Store    *cache.Store
	Source   Source
	Resolver *resolve.Resolver

	// Concurrency bounds parallel package tasks. Values below one mean one.
	Concurrency int
	// GOOS selects which shared libraries are installed. Empty means the
	// running platform.
	GOOS     string
	Logger   Logger
	Reporter Reporter

	// mu guards Ledger while package tasks run.
	mu sync.Mutex
}

// Open loads the manifest and ledger of the project at p.
func Open(p paths.ProjectPaths, store *cache.Store, src Source, logger Logger) (*Session, error) {
	cfg, err := config.Load(p.ManifestFile)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Load(p.LedgerFile)
	if err != nil {
		return nil, err
	}
	return New(p, &cfg, l, store, src, logger), nil
}

// New assembles a session from already loaded state.
func New(p paths.ProjectPaths, cfg *config.Config, l *ledger.Ledger, store *cache.Store, src Source, logger Logger) *Session {
	s := &Session{
		Paths:       p,
		Manifest:    cfg,
		Ledger:      l,
		Store:       store,
		Source:      src,
		Concurrency: 1,
		Logger:      logger,
	}
	s.Resolver = &resolve.Resolver{
		Lister:  src,
		Healthy: healthy,
		Logger:  logger,
	}
	return s
}

// healthy re-verifies the cache slot a record points at.
func healthy(rec ledger.Record) (bool, error) {
	return cache.VerifyEntry(cache.Entry{Path: rec.InstallPath, Digest: rec.ContentHash})
}

func (s *Session) logf(format string, v ...any) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Printf(format, v...)
}

func (s *Session) goos() string {
	if s.GOOS != "" {
		return s.GOOS
	}
	return runtime.GOOS
}

func (s *Session) record(identity string) (ledger.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Ledger.Get(identity)
}

func (s *Session) store(rec ledger.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ledger.Record(rec)
}

// List returns the installed records ordered by identity.
func (s *Session) List() []ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Ledger.List()
}
