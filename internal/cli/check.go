package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"opencli/internal/cache"
	"opencli/internal/config"
	"opencli/internal/pkgmgr"
	"opencli/internal/tui"
)

var checkStrict bool

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify installed packages against their recorded digests",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}

	cmd.Flags().BoolVar(&checkStrict, "strict", false, "also validate opencli.toml against the project files")

	return cmd
}

type checkRow struct {
	Package string   `json:"package"`
	Version string   `json:"version"`
	Status  string   `json:"status"`
	Missing []string `json:"missing,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func checkStatus(r pkgmgr.CheckResult) string {
	switch {
	case r.Err != nil:
		return "error"
	case !r.Valid:
		return "corrupt"
	case len(r.Missing) > 0:
		return "missing"
	default:
		return "ok"
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	a, err := openApp(appOptions{name: "check"})
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.session()
	if err != nil {
		return err
	}

	var validations []config.ValidationResult
	if checkStrict {
		validations = s.Manifest.ValidateStrict(a.project.Root)
	}

	results, err := s.Check(cmd.Context())
	if err != nil {
		return err
	}

	rows := make([]checkRow, 0, len(results))
	for _, r := range results {
		row := checkRow{
			Package: r.Record.Identity,
			Version: r.Record.Version,
			Status:  checkStatus(r),
			Missing: r.Missing,
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}

	if outputJSON {
		if err := writeJSON(cmd, struct {
			Project     string                    `json:"project"`
			Packages    []checkRow                `json:"packages"`
			Validations []config.ValidationResult `json:"validations,omitempty"`
		}{Project: a.project.Root, Packages: rows, Validations: validations}); err != nil {
			return err
		}
	} else {
		printCheck(cmd, rows, validations)
	}

	return checkError(pkgmgr.Failed(results), validations)
}

func printCheck(cmd *cobra.Command, rows []checkRow, validations []config.ValidationResult) {
	if len(rows) == 0 {
		cmd.Println("No packages installed.")
	}
	for _, r := range rows {
		label := tui.StatusStyle(r.Status).Render(fmt.Sprintf("%-7s", r.Status))
		line := fmt.Sprintf("%s  %s %s", label, r.Package, r.Version)
		switch {
		case r.Error != "":
			line += "  " + r.Error
		case len(r.Missing) > 0:
			line += "  missing " + strings.Join(r.Missing, ", ")
		}
		cmd.Println(line)
	}
	for _, r := range rows {
		if r.Status == "corrupt" {
			cmd.Println()
			cmd.Println(corruptGuidance)
			break
		}
	}
	for _, v := range validations {
		cmd.PrintErrf("%s: %s\n", v.Level, v.Message)
	}
}

const corruptGuidance = "Corrupt cache copies were left untouched. A re-fetch is required: run `opencli install --force`."

// checkError turns findings into the command error: a corrupt slot is an
// integrity failure, anything else is generic.
func checkError(failed []pkgmgr.CheckResult, validations []config.ValidationResult) error {
	for _, r := range failed {
		if r.Err == nil && !r.Valid {
			return &cache.IntegrityError{
				Key:      cache.Identity(r.Record.Identity).Key(r.Record.Version),
				Expected: r.Record.ContentHash,
			}
		}
	}
	var msgs []string
	if len(failed) > 0 {
		msgs = append(msgs, fmt.Sprintf("%d package(s) need attention, run `opencli install` to restore them", len(failed)))
	}
	for _, v := range validations {
		if v.Level == "error" {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}
