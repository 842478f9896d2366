// Package build prepares the Pawn compiler from the shared cache and runs it
// over the project entry file.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"opencli/internal/cache"
	"opencli/internal/config"
	"opencli/internal/ledger"
	"opencli/internal/registry"
	"opencli/internal/tools"
	"opencli/internal/version"
)

// ErrToolchainUnavailable matches any *ToolchainError.
var ErrToolchainUnavailable = errors.New("compiler toolchain unavailable")

// ToolchainError means the compiler could not be started at all.
type ToolchainError struct {
	Path string
	Err  error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("compiler %s unavailable: %v", e.Path, e.Err)
}

func (e *ToolchainError) Unwrap() error { return e.Err }

func (e *ToolchainError) Is(target error) bool { return target == ErrToolchainUnavailable }

// Status is the outcome of a compiler run that started.
type Status int

const (
	Success Status = iota
	CompileFailure
)

func (s Status) String() string {
	if s == Success {
		return "success"
	}
	return "failed"
}

// Result describes one compiler run. A CompileFailure is a normal result,
// not an error.
type Result struct {
	Status     Status
	Duration   time.Duration
	OutputPath string
	ExitCode   int
	Output     string
	Args       []string
}

// Selection is a compiler version ready to run.
type Selection struct {
	Version version.Version
	Owner   string
	Repo    string
	Dir     string
	Binary  string
	Entry   cache.Entry
	Fetched bool
}

// ReleaseSource lists compiler releases. *registry.GitHubClient satisfies it.
type ReleaseSource interface {
	Versions(ctx context.Context, owner, repo string) ([]version.Version, error)
	ReleaseFor(ctx context.Context, owner, repo string, v version.Version) (registry.Release, error)
}

// Logger is the log sink used by the orchestrator.
type Logger interface {
	Printf(format string, v ...any)
}

// Options tune Build.
type Options struct {
	// ForceDownload re-fetches the compiler even when the cached copy verifies.
	ForceDownload bool
	// Stdout and Stderr, when set, receive the compiler output as it runs.
	Stdout io.Writer
	Stderr io.Writer
}

// Orchestrator ties the compiler cache slot to the subprocess that runs it.
type Orchestrator struct {
	Store      *cache.Store
	Releases   ReleaseSource
	Downloader tools.Downloader
	Platform   tools.PlatformConfig
	Runner     Runner
	// Ledger, when set, receives a "compiler" record for the prepared version.
	Ledger *ledger.Ledger
	// LockDir, when set, holds the lock file that serialises compiler
	// installs across processes.
	LockDir string
	Logger  Logger
	GOOS    string
}

var nowFunc = time.Now

func (o *Orchestrator) logf(format string, v ...any) {
	if o == nil || o.Logger == nil {
		return
	}
	o.Logger.Printf(format, v...)
}

func (o *Orchestrator) goos() string {
	if o.GOOS != "" {
		return o.GOOS
	}
	return runtime.GOOS
}

// PrepareCompiler resolves c to a compiler version and returns its verified
// cache slot, fetching it when absent, corrupt, or force is set.
func (o *Orchestrator) PrepareCompiler(ctx context.Context, c version.Constraint, force bool) (Selection, error) {
	v, owner, repo, err := o.resolveVersion(ctx, c)
	if err != nil {
		return Selection{}, err
	}

	if o.LockDir != "" {
		release, err := tools.AcquireLock(ctx, o.LockDir, string(cache.CompilerIdentity))
		if err != nil {
			return Selection{}, err
		}
		defer release()
	}

	res, err := o.Store.FetchOrGet(ctx, cache.CompilerIdentity, v.String(), o.fetcher(owner, repo, v), cache.FetchOptions{Force: force})
	if err != nil {
		return Selection{}, fmt.Errorf("compiler %s: %w", v, err)
	}
	if res.Fetched {
		o.logf("installed compiler %s from %s/%s into %s", v, owner, repo, res.Entry.Path)
	} else {
		o.logf("using cached compiler %s at %s", v, res.Entry.Path)
	}

	if o.Ledger != nil {
		o.Ledger.Record(ledger.Record{
			Identity:    string(cache.CompilerIdentity),
			Version:     v.String(),
			Requested:   c.String(),
			InstallPath: res.Entry.Path,
			ContentHash: res.Entry.Digest,
			InstalledAt: res.Entry.RetrievedAt,
		})
	}

	return Selection{
		Version: v,
		Owner:   owner,
		Repo:    repo,
		Dir:     res.Entry.Path,
		Binary:  tools.BinaryPath(res.Entry.Path, o.Platform),
		Entry:   res.Entry,
		Fetched: res.Fetched,
	}, nil
}

// resolveVersion pins c. Exact versions need no listing. Other constraints
// are matched against the open.mp compiler releases first and the legacy
// pawn-lang releases when nothing there matches.
func (o *Orchestrator) resolveVersion(ctx context.Context, c version.Constraint) (version.Version, string, string, error) {
	if c.IsExact() {
		owner, repo := tools.RepoFor(c.Version())
		return c.Version(), owner, repo, nil
	}

	var lastErr error
	for _, r := range tools.CompilerRepos {
		versions, err := o.Releases.Versions(ctx, r.Owner, r.Name)
		if err != nil {
			return version.Version{}, "", "", fmt.Errorf("list compiler releases of %s: %w", r, err)
		}
		best, err := version.SelectBest(c, versions)
		if err == nil {
			return best, r.Owner, r.Name, nil
		}
		if !errors.Is(err, version.ErrNoMatch) {
			return version.Version{}, "", "", err
		}
		lastErr = err
	}
	return version.Version{}, "", "", fmt.Errorf("compiler: %w", lastErr)
}

// fetcher looks up the release lazily so a cache hit never touches the
// network.
func (o *Orchestrator) fetcher(owner, repo string, v version.Version) cache.Fetcher {
	return cache.FetcherFunc(func(ctx context.Context, dir string) (string, error) {
		rel, err := o.Releases.ReleaseFor(ctx, owner, repo, v)
		if err != nil {
			return "", err
		}
		return tools.CompilerFetcher(o.Downloader, rel, o.Platform).Fetch(ctx, dir)
	})
}

// Args assembles the compiler argument vector: the output file, one include
// argument per declared include path, the declared flags verbatim, then the
// entry file.
func Args(cfg config.BuildConfig, root string) []string {
	args := make([]string, 0, len(cfg.Includes.Paths)+len(cfg.Args.Args)+2)
	args = append(args, "-o"+cfg.OutputFile)
	for _, p := range cfg.Includes.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		args = append(args, "-i"+p)
	}
	args = append(args, cfg.Args.Args...)
	args = append(args, cfg.EntryFile)
	return args
}

// Invoke runs the selected compiler in root.
func (o *Orchestrator) Invoke(ctx context.Context, sel Selection, cfg config.BuildConfig, root string, opts Options) (Result, error) {
	entry := cfg.EntryFile
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(root, entry)
	}
	if _, err := os.Stat(entry); err != nil {
		return Result{}, fmt.Errorf("entry file %s: %w", cfg.EntryFile, err)
	}
	output := cfg.OutputFile
	if !filepath.IsAbs(output) {
		output = filepath.Join(root, output)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return Result{}, fmt.Errorf("prepare output dir: %w", err)
	}

	if info, err := os.Stat(sel.Binary); err != nil {
		return Result{}, &ToolchainError{Path: sel.Binary, Err: err}
	} else if info.IsDir() {
		return Result{}, &ToolchainError{Path: sel.Binary, Err: errors.New("is a directory")}
	}

	args := Args(cfg, root)
	o.logf("exec %s %s", sel.Binary, strings.Join(args, " "))

	runner := o.Runner
	if runner == nil {
		runner = CmdRunner{}
	}
	start := nowFunc()
	out, err := runner.Run(ctx, sel.Binary, args, RunOptions{
		Dir:    root,
		Env:    libraryEnv(o.goos(), sel.Dir),
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	})
	elapsed := nowFunc().Sub(start)
	combined := string(out.Stdout) + string(out.Stderr)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		// The compiler ran. A negative code means a signal ended it, which
		// says nothing about the toolchain itself.
		var exit interface{ ExitCode() int }
		if errors.As(err, &exit) {
			if exit.ExitCode() < 0 {
				o.logf("compiler terminated after %s: %v", elapsed, err)
				combined += fmt.Sprintf("\ncompiler terminated: %v\n", err)
			} else {
				o.logf("compiler exited with %d after %s", exit.ExitCode(), elapsed)
			}
			return Result{
				Status:   CompileFailure,
				Duration: elapsed,
				ExitCode: exit.ExitCode(),
				Output:   combined,
				Args:     args,
			}, nil
		}
		return Result{}, &ToolchainError{Path: sel.Binary, Err: err}
	}

	o.logf("compiled %s in %s", cfg.OutputFile, elapsed)
	return Result{
		Status:     Success,
		Duration:   elapsed,
		OutputPath: output,
		Output:     combined,
		Args:       args,
	}, nil
}

// Build prepares the compiler named by cfg and runs it. When the compiler
// cannot be started the slot is invalidated, fetched again, and the run is
// attempted once more.
func (o *Orchestrator) Build(ctx context.Context, cfg config.BuildConfig, root string, opts Options) (Result, Selection, error) {
	c, err := version.Parse(cfg.CompilerVersion)
	if err != nil {
		return Result{}, Selection{}, fmt.Errorf("build.compiler_version: %w", err)
	}

	sel, err := o.PrepareCompiler(ctx, c, opts.ForceDownload)
	if err != nil {
		return Result{}, Selection{}, err
	}
	res, err := o.Invoke(ctx, sel, cfg, root, opts)
	if err == nil || !errors.Is(err, ErrToolchainUnavailable) {
		return res, sel, err
	}

	o.logf("compiler %s unusable (%v), refetching", sel.Version, err)
	if invErr := o.Store.Invalidate(cache.CompilerIdentity, sel.Version.String()); invErr != nil {
		return Result{}, sel, invErr
	}
	sel, err = o.PrepareCompiler(ctx, version.ExactOf(sel.Version), true)
	if err != nil {
		return Result{}, Selection{}, err
	}
	res, err = o.Invoke(ctx, sel, cfg, root, opts)
	return res, sel, err
}

// libraryEnv puts the compiler directory on the dynamic loader path so the
// binary finds the libpawnc shipped next to it.
func libraryEnv(goos, dir string) []string {
	key := "LD_LIBRARY_PATH"
	switch goos {
	case "darwin":
		key = "DYLD_LIBRARY_PATH"
	case "windows":
		key = "PATH"
	}
	value := dir
	if existing := os.Getenv(key); existing != "" {
		value = dir + string(os.PathListSeparator) + existing
	}
	return []string{key + "=" + value}
}

// Duration renders d the way build summaries print it.
func Duration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
