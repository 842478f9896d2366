package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"opencli/internal/cache"
	"opencli/internal/config"
	"opencli/internal/ledger"
	"opencli/internal/paths"
	"opencli/internal/tui"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show declared and installed packages",
		Args:    cobra.NoArgs,
		RunE:    runList,
	}
}

type listRow struct {
	Package     string    `json:"package"`
	Requested   string    `json:"requested,omitempty"`
	Version     string    `json:"version,omitempty"`
	Target      string    `json:"target,omitempty"`
	Files       []string  `json:"files,omitempty"`
	InstalledAt time.Time `json:"installed_at,omitzero"`
	Declared    bool      `json:"declared"`
}

func runList(cmd *cobra.Command, _ []string) error {
	pp, err := paths.Resolve(projectDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(pp.ManifestFile)
	if err != nil {
		return err
	}
	l, err := ledger.Load(pp.LedgerFile)
	if err != nil {
		return err
	}

	rows := listRows(cfg, l)
	if outputJSON {
		return writeJSON(cmd, struct {
			Project  string    `json:"project"`
			Packages []listRow `json:"packages"`
		}{Project: pp.Root, Packages: rows})
	}

	if len(rows) == 0 {
		cmd.Println("No packages declared or installed.")
		return nil
	}
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "PACKAGE\tREQUESTED\tINSTALLED\tTARGET\tFILES")
	for _, r := range rows {
		requested := r.Requested
		if !r.Declared {
			requested += " (undeclared)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			r.Package,
			strings.TrimSpace(requested),
			tui.NonEmptyOrDash(r.Version),
			tui.NonEmptyOrDash(r.Target),
			len(r.Files),
		)
	}
	return w.Flush()
}

// listRows merges the manifest with the ledger: every declared package, plus
// installed records the manifest no longer names, ordered by identity.
func listRows(cfg config.Config, l *ledger.Ledger) []listRow {
	var rows []listRow
	seen := make(map[string]bool)
	for _, name := range cfg.PackageNames() {
		row := listRow{Package: name, Requested: cfg.Packages[name].Constraint(), Declared: true}
		if rec, ok := findRecord(l, name); ok {
			fillInstalled(&row, rec)
			seen[strings.ToLower(rec.Identity)] = true
		}
		rows = append(rows, row)
	}
	for _, rec := range l.List() {
		if seen[strings.ToLower(rec.Identity)] {
			continue
		}
		// The compiler is declared by build.compiler_version.
		row := listRow{Package: rec.Identity, Requested: rec.Requested, Declared: rec.Identity == string(cache.CompilerIdentity)}
		fillInstalled(&row, rec)
		rows = append(rows, row)
	}
	return rows
}

func fillInstalled(row *listRow, rec ledger.Record) {
	row.Version = rec.Version
	row.Target = rec.Target
	row.Files = rec.Files
	row.InstalledAt = rec.InstalledAt
}

func findRecord(l *ledger.Ledger, identity string) (ledger.Record, bool) {
	if rec, ok := l.Get(identity); ok {
		return rec, true
	}
	for _, rec := range l.List() {
		if strings.EqualFold(rec.Identity, identity) {
			return rec, true
		}
	}
	return ledger.Record{}, false
}
