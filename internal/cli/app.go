package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"opencli/internal/cache"
	"opencli/internal/logx"
	"opencli/internal/paths"
	"opencli/internal/pkgmgr"
	"opencli/internal/registry"
	"opencli/internal/settings"
)

// app is what every package command needs: where the project and the user
// directory live, the user settings, a log file, the shared cache and a
// registry client. It is built once per command and closed at the end.
type app struct {
	project  paths.ProjectPaths
	home     paths.HomePaths
	settings settings.Settings
	logger   *log.Logger
	store    *cache.Store
	client   *registry.GitHubClient

	closer io.Closer
}

type appOptions struct {
	// name prefixes every log line.
	name    string
	verbose bool
}

func openApp(opts appOptions) (*app, error) {
	pp, err := paths.Resolve(projectDir)
	if err != nil {
		return nil, err
	}
	home, err := paths.Home()
	if err != nil {
		return nil, err
	}
	st, err := settings.Load(home)
	if err != nil {
		return nil, err
	}

	logDir := home.LogsDir
	if ok, _ := paths.FileExists(pp.ManifestFile); ok {
		if err := pp.EnsureMetaDirs(); err != nil {
			return nil, err
		}
		logDir = pp.LogsDir
	}
	logger, closer, err := logx.New(logDir, logx.Options{
		Prefix:  opts.name,
		Verbose: opts.verbose,
		Mirror:  os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("opencli %s: project=%s", opts.name, pp.Root)

	store, err := cache.Open(home, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}
	store.Retry = st.Policy()

	clientOpts := []registry.ClientOption{
		registry.WithUserAgent("opencli/" + Version),
		registry.WithRetry(st.Policy()),
	}
	if st.GitHubToken != "" {
		clientOpts = append(clientOpts, registry.WithToken(st.GitHubToken))
	}

	return &app{
		project:  pp,
		home:     home,
		settings: st,
		logger:   logger,
		store:    store,
		client:   registry.NewGitHubClient(clientOpts...),
		closer:   closer,
	}, nil
}

// session opens the package session of the project.
func (a *app) session() (*pkgmgr.Session, error) {
	s, err := pkgmgr.Open(a.project, a.store, a.client, a.logger)
	if err != nil {
		return nil, err
	}
	s.Concurrency = a.settings.Concurrency
	return s, nil
}

func (a *app) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
