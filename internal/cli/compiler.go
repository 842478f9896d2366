package cli

import (
	"github.com/spf13/cobra"

	"opencli/internal/config"
	"opencli/internal/ledger"
	"opencli/internal/paths"
	"opencli/internal/tui"
	"opencli/internal/version"
)

func newInstallCompilerCmd() *cobra.Command {
	var (
		requested string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "compiler",
		Short: "Download a Pawn compiler into the shared cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstallCompiler(cmd, requested, force)
		},
	}
	cmd.Flags().StringVar(&requested, "version", "", "Compiler version or constraint (default: build.compiler_version, else v3.10.11)")
	cmd.Flags().BoolVar(&force, "force", false, "Download again even when the cached copy verifies")
	return cmd
}

// compilerRequest is the constraint install compiler resolves: the flag,
// then the project's build.compiler_version, then the built-in default.
func compilerRequest(flag string, pp paths.ProjectPaths) string {
	if flag != "" {
		return flag
	}
	if cfg, err := config.Load(pp.ManifestFile); err == nil && cfg.Build.CompilerVersion != "" {
		return cfg.Build.CompilerVersion
	}
	return config.Default().Build.CompilerVersion
}

func runInstallCompiler(cmd *cobra.Command, requested string, force bool) error {
	a, err := openApp(appOptions{name: "install"})
	if err != nil {
		return err
	}
	defer a.Close()

	text := compilerRequest(requested, a.project)
	c, err := version.Parse(text)
	if err != nil {
		return err
	}

	var l *ledger.Ledger
	if ok, _ := paths.FileExists(a.project.ManifestFile); ok {
		if l, err = ledger.Load(a.project.LedgerFile); err != nil {
			return err
		}
	}

	status := tui.NewStatusWriter(cmd.ErrOrStderr())
	defer status.Stop()
	o, err := a.compilerOrchestrator(cmd, status, false, l)
	if err != nil {
		return err
	}
	status.Update("preparing compiler " + text)
	sel, err := o.PrepareCompiler(cmd.Context(), c, force)
	status.Stop()
	if err != nil {
		return err
	}
	if l != nil {
		if err := l.Save(); err != nil {
			return err
		}
	}

	if outputJSON {
		return writeJSON(cmd, struct {
			Requested string `json:"requested"`
			Version   string `json:"version"`
			Source    string `json:"source"`
			Path      string `json:"path"`
			Fetched   bool   `json:"fetched"`
		}{
			Requested: text,
			Version:   sel.Version.String(),
			Source:    sel.Owner + "/" + sel.Repo,
			Path:      sel.Binary,
			Fetched:   sel.Fetched,
		})
	}
	if sel.Fetched {
		cmd.Printf("Installed compiler %s from %s/%s\n", sel.Version, sel.Owner, sel.Repo)
	} else {
		cmd.Printf("Compiler %s already cached\n", sel.Version)
	}
	cmd.Printf("  %s\n", sel.Binary)
	return nil
}
