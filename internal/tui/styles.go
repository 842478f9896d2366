package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)
	// TitleStyle styles the line above a progress table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	pendingStyle = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		"installed": okStyle,
		"updated":   okStyle,
		"satisfied": okStyle,
		"ok":        okStyle,
		"success":   okStyle,
		"removed":   okStyle,

		"resolving": activeStyle,
		"fetching":  activeStyle,
		"compiling": activeStyle,

		"missing": warnStyle,
		"corrupt": warnStyle,

		"failed": errorStyle,
		"error":  errorStyle,

		"pending": pendingStyle,
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// Terminal reports whether status is final, so the row counts as processed.
func Terminal(status string) bool {
	switch status {
	case "", "pending", "resolving", "fetching", "compiling":
		return false
	}
	return true
}
