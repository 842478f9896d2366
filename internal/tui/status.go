package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// StatusWriter shows a spinner with the current phase ("resolving compiler",
// "downloading v3.10.11") while a command has no table to draw. On a
// non-interactive writer it stays silent.
type StatusWriter struct {
	w          io.Writer
	mu         sync.Mutex
	message    string
	phaseStart time.Time
	done       chan struct{}
	stopped    bool
	enabled    bool
}

// NewStatusWriter starts the spinner on w when w is a terminal.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:          w,
		phaseStart: time.Now(),
		done:       make(chan struct{}),
		enabled:    Interactive(w),
	}
	if sw.enabled {
		go sw.loop()
	}
	return sw
}

// Update replaces the phase text and restarts the elapsed timer.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	sw.message = msg
	sw.phaseStart = time.Now()
	sw.mu.Unlock()
}

// Printf satisfies the services' Logger interface so a StatusWriter can
// mirror their progress lines as phases.
func (sw *StatusWriter) Printf(format string, v ...any) {
	sw.Update(fmt.Sprintf(format, v...))
}

// Stop clears the status line and stops the spinner. It is safe to call
// more than once.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()
	close(sw.done)
	if sw.enabled {
		fmt.Fprint(sw.w, "\r\033[K")
	}
}

func (sw *StatusWriter) loop() {
	tick := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			msg := sw.message
			start := sw.phaseStart
			sw.mu.Unlock()
			if msg == "" {
				continue
			}
			spinner := activeStyle.Render(spinnerFrames[tick%len(spinnerFrames)])
			tick++
			fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", spinner, msg, FormatElapsed(time.Since(start)))
		}
	}
}

// FormatElapsed formats a duration for status lines and summaries.
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
