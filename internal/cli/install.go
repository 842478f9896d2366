package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"opencli/internal/archive"
	"opencli/internal/pkgmgr"
	"opencli/internal/resolve"
	"opencli/internal/tui"
)

func newInstallCmd() *cobra.Command {
	var (
		target targetFlag
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "install [owner/repo[=constraint]...]",
		Short: "Install packages, or every package of opencli.toml when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]resolve.PackageRef, 0, len(args))
			for _, arg := range args {
				ref, err := resolve.ParseSpec(arg)
				if err != nil {
					return err
				}
				ref.Target = archive.Target(target)
				refs = append(refs, ref)
			}
			return runPackages(cmd, "install", func(ctx context.Context, s *pkgmgr.Session) ([]pkgmgr.Outcome, error) {
				return s.Install(ctx, refs, pkgmgr.Options{Force: force})
			}, func(s *pkgmgr.Session) ([]resolve.PackageRef, error) {
				if len(refs) > 0 {
					return refs, nil
				}
				return s.Manifest.PackageRefs()
			})
		},
	}
	cmd.Flags().Var(&target, "target", "Where server binaries go: components or plugins (default: detect)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-download even when the installed copy verifies")
	cmd.AddCommand(newInstallCompilerCmd())
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "update [owner/repo...]",
		Short: "Move installed packages to the newest version their constraint allows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name at least one package or pass --all")
			}
			if len(args) > 0 && all {
				return fmt.Errorf("--all cannot be combined with package names")
			}
			return runPackages(cmd, "update", func(ctx context.Context, s *pkgmgr.Session) ([]pkgmgr.Outcome, error) {
				return s.Update(ctx, args)
			}, func(s *pkgmgr.Session) ([]resolve.PackageRef, error) {
				return s.UpdateRefs(args)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Update every package declared in opencli.toml")
	return cmd
}

// targetFlag validates --target while flags are parsed.
type targetFlag archive.Target

var _ pflag.Value = (*targetFlag)(nil)

func (t *targetFlag) String() string { return string(*t) }

func (t *targetFlag) Set(s string) error {
	parsed, ok := archive.ParseTarget(s)
	if !ok {
		return fmt.Errorf("expected components or plugins, got %q", s)
	}
	*t = targetFlag(parsed)
	return nil
}

func (t *targetFlag) Type() string { return "target" }

type packageWork func(ctx context.Context, s *pkgmgr.Session) ([]pkgmgr.Outcome, error)

// runPackages opens a session, runs work under the progress table when the
// terminal allows it, and prints the outcome table or JSON. rows lists the
// packages the table starts with.
func runPackages(cmd *cobra.Command, name string, work packageWork, rows func(*pkgmgr.Session) ([]resolve.PackageRef, error)) error {
	a, err := openApp(appOptions{name: name})
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.session()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		outcomes []pkgmgr.Outcome
		workErr  error
	)
	mode := tui.DetectMode(cmd.OutOrStdout(), noProgress, outputJSON)
	if mode == tui.ModeTUI {
		refs, err := rows(s)
		if err != nil {
			return err
		}
		model := tui.NewPackageModel(titleFor(name), refs)
		runErr := tui.RunWithWork(cmd.OutOrStdout(), model, cancel, func(send func(tea.Msg)) {
			s.Reporter = tui.NewPackageReporter(send)
			outcomes, workErr = work(ctx, s)
		})
		if runErr != nil {
			return runErr
		}
	} else {
		outcomes, workErr = work(ctx, s)
	}
	if workErr != nil {
		return workErr
	}

	sum := pkgmgr.Summarize(outcomes)
	a.logger.Printf("%s finished: installed=%d updated=%d satisfied=%d failed=%d",
		name, sum.Installed, sum.Updated, sum.Satisfied, sum.Failed)

	switch mode {
	case tui.ModeJSON:
		if err := writePackagesJSON(cmd, a.project.Root, outcomes, sum); err != nil {
			return err
		}
	case tui.ModePlain:
		writePackagesTable(cmd, outcomes)
		printPackageSummary(cmd.OutOrStdout(), sum)
	default:
		printPackageSummary(cmd.OutOrStdout(), sum)
	}
	return sum.Err
}

func titleFor(name string) string {
	if name == "update" {
		return "Updating packages"
	}
	return "Installing packages"
}
