package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"opencli/internal/pkgmgr"
	"opencli/internal/tui"
)

func writeJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
}

type packageRow struct {
	Package string   `json:"package"`
	Status  string   `json:"status"`
	Version string   `json:"version,omitempty"`
	From    string   `json:"from,omitempty"`
	Files   []string `json:"files,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type packageCounts struct {
	Installed int `json:"installed"`
	Updated   int `json:"updated"`
	Satisfied int `json:"satisfied"`
	Failed    int `json:"failed"`
}

func packageRows(outcomes []pkgmgr.Outcome) []packageRow {
	rows := make([]packageRow, 0, len(outcomes))
	for _, o := range outcomes {
		row := packageRow{
			Package: o.Ref.Identity(),
			Status:  tui.OutcomeStatus(o),
			Version: o.Version,
			Files:   o.Files,
		}
		if o.Action.From != o.Version {
			row.From = o.Action.From
		}
		if o.Err != nil {
			row.Error = o.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func countsOf(sum pkgmgr.Summary) packageCounts {
	return packageCounts{
		Installed: sum.Installed,
		Updated:   sum.Updated,
		Satisfied: sum.Satisfied,
		Failed:    sum.Failed,
	}
}

func writePackagesJSON(cmd *cobra.Command, project string, outcomes []pkgmgr.Outcome, sum pkgmgr.Summary) error {
	payload := struct {
		Project  string        `json:"project"`
		Packages []packageRow  `json:"packages"`
		Summary  packageCounts `json:"summary"`
	}{
		Project:  project,
		Packages: packageRows(outcomes),
		Summary:  countsOf(sum),
	}
	return writeJSON(cmd, payload)
}

func writePackagesTable(cmd *cobra.Command, outcomes []pkgmgr.Outcome) {
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "PACKAGE\tSTATUS\tVERSION\tDETAIL")
	for _, o := range outcomes {
		f := tui.OutcomeFields(o)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Ref.Identity(), f["STATUS"], tui.NonEmptyOrDash(f["VERSION"]), f["DETAIL"])
	}
	w.Flush()
}

func printPackageSummary(w io.Writer, sum pkgmgr.Summary) {
	fmt.Fprintf(w, "\nSummary: installed=%d updated=%d satisfied=%d failed=%d\n",
		sum.Installed, sum.Updated, sum.Satisfied, sum.Failed)
}
