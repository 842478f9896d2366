// Package logx opens the per-command log file.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Options control New.
type Options struct {
	// Prefix names the command in every line.
	Prefix string
	// Verbose lowers the level to debug and mirrors lines to Mirror.
	Verbose bool
	Mirror  io.Writer
}

var nowFunc = time.Now

// New creates a logger that writes to a timestamped file inside dir. The
// returned closer should be closed when logging is no longer needed.
func New(dir string, opts Options) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := nowFunc().Format("20060102-150405") + ".log"
	filePath := filepath.Join(dir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var w io.Writer = file
	level := log.InfoLevel
	if opts.Verbose {
		level = log.DebugLevel
		if opts.Mirror != nil {
			w = io.MultiWriter(file, opts.Mirror)
		}
	}

	logger := log.NewWithOptions(w, log.Options{
		Prefix:          opts.Prefix,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05.000000",
		Formatter:       log.TextFormatter,
	})
	return logger, file, nil
}
