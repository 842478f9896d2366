package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	lockPoll = 100 * time.Millisecond
	// lockStaleAfter bounds how long a lock file is honoured when its holder
	// cannot be checked or never lets go.
	lockStaleAfter = time.Hour
)

// AcquireLock serializes compiler installs across opencli processes sharing
// one home. It blocks until the lock file can be created or ctx is done and
// returns the function that releases it. A lock left behind by a process
// that is gone, or older than lockStaleAfter, is taken over.
func AcquireLock(ctx context.Context, dir, name string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	lockPath := filepath.Join(dir, name+".lock")
	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if stale(lockPath) {
			if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reclaim stale lock: %w", err)
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// stale reports whether the lock at path was abandoned.
func stale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > lockStaleAfter {
		return true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Written by a holder that has not finished its pid line yet.
		return false
	}
	return !processAlive(pid)
}

func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		// FindProcess opens a handle, so it only succeeds for live processes.
		return true
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
