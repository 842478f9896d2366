// Package server finds and launches the open.mp server of a project.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"

	"opencli/internal/build"
	"opencli/internal/paths"
)

// ErrNotFound is returned when no server executable can be located.
var ErrNotFound = errors.New("omp-server executable not found")

// Logger is the log sink used while the server runs.
type Logger interface {
	Printf(format string, v ...any)
}

// Names lists the executable names tried for goos, in order.
func Names(goos string) []string {
	if goos == "windows" {
		return []string{"omp-server.exe", "omp-server"}
	}
	return []string{"omp-server", "omp-server.exe"}
}

// Find returns the server executable. A custom path must exist. Otherwise
// the project root is searched first and PATH second.
func Find(root, custom, goos string) (string, error) {
	if custom != "" {
		path := custom
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if ok, err := paths.FileExists(path); err != nil {
			return "", err
		} else if !ok {
			return "", fmt.Errorf("server path %s: %w", custom, ErrNotFound)
		}
		return path, nil
	}

	names := Names(goos)
	for _, name := range names {
		path := filepath.Join(root, name)
		if ok, _ := paths.FileExists(path); ok {
			return path, nil
		}
	}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (looked for %v in %s and on PATH)", ErrNotFound, names, root)
}

// Options configure Run.
type Options struct {
	Root   string
	Custom string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Runner build.Runner
	Logger Logger
	GOOS   string
}

// Run starts the server in the project root with the terminal attached and
// waits for it. It returns the server's exit code; err is only set when the
// server could not be started or ctx ended the run.
func Run(ctx context.Context, opts Options) (int, error) {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	exe, err := Find(opts.Root, opts.Custom, goos)
	if err != nil {
		return 0, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = build.CmdRunner{}
	}
	logf(opts.Logger, "starting %s in %s", exe, opts.Root)
	_, err = runner.Run(ctx, exe, opts.Args, build.RunOptions{
		Dir:         opts.Root,
		Stdin:       opts.Stdin,
		Stdout:      opts.Stdout,
		Stderr:      opts.Stderr,
		Passthrough: true,
	})
	if err == nil {
		logf(opts.Logger, "server exited cleanly")
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logf(opts.Logger, "server stopped: %v", ctxErr)
		return 0, ctxErr
	}
	var exit interface{ ExitCode() int }
	if errors.As(err, &exit) {
		code := exit.ExitCode()
		if code < 0 {
			code = 1
		}
		logf(opts.Logger, "server exited with %d (%v)", code, err)
		return code, nil
	}
	return 0, fmt.Errorf("start %s: %w", exe, err)
}

func logf(l Logger, format string, v ...any) {
	if l != nil {
		l.Printf(format, v...)
	}
}
