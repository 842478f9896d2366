package build

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// stopGrace is how long a cancelled process gets to exit after the
// interrupt before it is killed.
var stopGrace = 10 * time.Second

// RunOptions configure one subprocess.
type RunOptions struct {
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	// Passthrough sends output only to Stdout and Stderr. Long-running
	// processes use it so nothing accumulates in memory.
	Passthrough bool
}

// RunResult holds the captured output streams. They are captured unless
// RunOptions.Passthrough is set, even when also streamed to RunOptions
// writers.
type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes the compiler. A process that ran and exited non-zero
// returns an error implementing ExitCode() int.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

// CmdRunner runs commands with os/exec.
type CmdRunner struct{}

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	cmd.Stdin = opts.Stdin
	// Interrupt first so the process can clean up; Kill after stopGrace.
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = stopGrace

	var stdoutBuf, stderrBuf bytes.Buffer
	if opts.Passthrough {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
		return RunResult{}, cmd.Run()
	}

	stdoutWriter := io.Writer(&stdoutBuf)
	if opts.Stdout != nil {
		stdoutWriter = io.MultiWriter(&stdoutBuf, opts.Stdout)
	}
	stderrWriter := io.Writer(&stderrBuf)
	if opts.Stderr != nil {
		stderrWriter = io.MultiWriter(&stderrBuf, opts.Stderr)
	}

	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	err := cmd.Run()
	return RunResult{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}, err
}

var _ Runner = CmdRunner{}
