package tui

import (
	"context"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork starts a bubbletea program for model, runs work in a goroutine
// and blocks until both are finished. work receives a send callback that
// forwards messages to the program. When the user presses ctrl+c, cancel is
// called so work can stop, and ErrInterrupted is returned once it has.
func RunWithWork(out io.Writer, model ProgressModel, cancel context.CancelFunc, work func(send func(tea.Msg))) error {
	p := tea.NewProgram(model, tea.WithOutput(out))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		// Let the event loop render the first frame.
		time.Sleep(50 * time.Millisecond)
		work(func(msg tea.Msg) {
			p.Send(msg)
			// A short yield keeps successive row updates visible.
			time.Sleep(5 * time.Millisecond)
		})
		p.Send(WorkDoneMsg{})
	}()

	final, err := p.Run()
	if m, ok := final.(ProgressModel); ok && m.Interrupted() && cancel != nil {
		cancel()
	}
	<-finished
	if err != nil {
		return err
	}
	if m, ok := final.(ProgressModel); ok {
		if m.Interrupted() {
			return ErrInterrupted
		}
		return m.Err()
	}
	return nil
}
