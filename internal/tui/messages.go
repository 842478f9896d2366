package tui

import "errors"

// ErrInterrupted is returned by RunWithWork when the user quit the table
// before the work finished.
var ErrInterrupted = errors.New("interrupted")

// RowUpdateMsg updates a single row's fields by column header.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the program quits and reports it.
type ErrorMsg struct {
	Err error
}
