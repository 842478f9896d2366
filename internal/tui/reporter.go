package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"opencli/internal/pkgmgr"
	"opencli/internal/resolve"
)

// PackageColumns are the columns of the install and update table.
var PackageColumns = []Column{
	{Header: "PACKAGE", Width: 32},
	{Header: "STATUS", Width: 10},
	{Header: "VERSION", Width: 10},
	{Header: "DETAIL", Width: 48},
}

// PackageReporter turns session progress into row updates keyed by package
// identity.
type PackageReporter struct {
	send func(tea.Msg)
}

// NewPackageReporter returns a reporter that forwards updates through send.
func NewPackageReporter(send func(tea.Msg)) *PackageReporter {
	return &PackageReporter{send: send}
}

// Start implements pkgmgr.Reporter.
func (r *PackageReporter) Start(ref resolve.PackageRef) {
	r.send(RowUpdateMsg{
		Key:    ref.Identity(),
		Fields: map[string]string{"STATUS": "resolving", "DETAIL": ref.Constraint.String()},
	})
}

// Complete implements pkgmgr.Reporter.
func (r *PackageReporter) Complete(o pkgmgr.Outcome) {
	r.send(RowUpdateMsg{Key: o.Ref.Identity(), Fields: OutcomeFields(o)})
}

// OutcomeFields renders an outcome as table cells.
func OutcomeFields(o pkgmgr.Outcome) map[string]string {
	if o.Err != nil {
		return map[string]string{"STATUS": "failed", "VERSION": NonEmptyOrDash(o.Version), "DETAIL": o.Err.Error()}
	}
	detail := o.Action.From
	if detail != "" && detail != o.Version {
		detail = "from " + detail
	} else {
		detail = ""
	}
	return map[string]string{
		"STATUS":  OutcomeStatus(o),
		"VERSION": o.Version,
		"DETAIL":  NonEmptyOrDash(detail),
	}
}

// OutcomeStatus is the one-word state of an outcome.
func OutcomeStatus(o pkgmgr.Outcome) string {
	if o.Err != nil {
		return "failed"
	}
	switch o.Action.Kind {
	case resolve.NeedsInstall:
		return "installed"
	case resolve.NeedsUpdate:
		return "updated"
	default:
		return "satisfied"
	}
}

// NewPackageModel pre-populates one pending row per ref.
func NewPackageModel(title string, refs []resolve.PackageRef) ProgressModel {
	m := NewProgressModel(title, PackageColumns)
	for _, ref := range refs {
		m.AddRow(ref.Identity(), []string{ref.Identity(), "pending", "-", ref.Constraint.String()})
	}
	return m
}
