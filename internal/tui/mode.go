package tui

import (
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

// OutputMode describes how command output is rendered.
type OutputMode int

const (
	// ModeTUI redraws a live progress table with bubbletea.
	ModeTUI OutputMode = iota
	// ModePlain writes a static table once the work is done.
	ModePlain
	// ModeJSON writes one JSON document.
	ModeJSON
)

// DetectMode picks the output mode for out. --json wins over --no-progress,
// and anything that is not an interactive terminal gets plain output.
func DetectMode(out io.Writer, noProgress, jsonOutput bool) OutputMode {
	if jsonOutput {
		return ModeJSON
	}
	if noProgress || !Interactive(out) {
		return ModePlain
	}
	return ModeTUI
}

// Interactive reports whether w is a terminal that can redraw lines.
func Interactive(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return false
	}
	if runtime.GOOS != "windows" {
		t := os.Getenv("TERM")
		if t == "" || strings.EqualFold(t, "dumb") {
			return false
		}
	}
	return true
}
