package cli

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"opencli/internal/build"
	"opencli/internal/config"
	"opencli/internal/ledger"
	"opencli/internal/paths"
	"opencli/internal/tools"
	"opencli/internal/tui"
)

type buildFlags struct {
	config        string
	verbose       bool
	forceDownload bool
	updateConfig  bool
}

func newBuildCmd() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile the project with the Pawn compiler named in opencli.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Manifest to build from instead of the project's opencli.toml")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Stream compiler output and debug logs")
	cmd.Flags().BoolVar(&flags.forceDownload, "force-download", false, "Download the compiler again even when cached")
	cmd.Flags().BoolVar(&flags.updateConfig, "update-config", false, "Refresh compilers.toml before building")
	return cmd
}

func runBuild(cmd *cobra.Command, flags buildFlags) error {
	a, err := openApp(appOptions{name: "build", verbose: flags.verbose})
	if err != nil {
		return err
	}
	defer a.Close()

	manifest, err := buildManifestPath(a.project, flags.config)
	if err != nil {
		return err
	}
	cfg, err := config.Load(manifest)
	if err != nil {
		return fmt.Errorf("%s: %w", manifest, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	status := tui.NewStatusWriter(cmd.ErrOrStderr())
	defer status.Stop()

	l, err := ledger.Load(a.project.LedgerFile)
	if err != nil {
		return err
	}
	o, err := a.compilerOrchestrator(cmd, status, flags.updateConfig, l)
	if err != nil {
		return err
	}
	opts := build.Options{ForceDownload: flags.forceDownload}
	if flags.verbose {
		opts.Stdout = cmd.OutOrStdout()
		opts.Stderr = cmd.ErrOrStderr()
	}

	status.Update("compiling " + cfg.Build.EntryFile)
	res, sel, err := o.Build(cmd.Context(), cfg.Build, a.project.Root, opts)
	status.Stop()
	if err != nil {
		return err
	}
	if err := l.Save(); err != nil {
		return err
	}

	if outputJSON {
		if err := writeJSON(cmd, struct {
			Project  string   `json:"project"`
			Compiler string   `json:"compiler"`
			Status   string   `json:"status"`
			ExitCode int      `json:"exit_code"`
			Output   string   `json:"output_file,omitempty"`
			Duration string   `json:"duration"`
			Args     []string `json:"args"`
			Log      string   `json:"log,omitempty"`
		}{
			Project:  a.project.Root,
			Compiler: sel.Version.String(),
			Status:   res.Status.String(),
			ExitCode: res.ExitCode,
			Output:   a.project.Rel(res.OutputPath),
			Duration: build.Duration(res.Duration),
			Args:     res.Args,
			Log:      res.Output,
		}); err != nil {
			return err
		}
	} else {
		printBuild(cmd, res, sel, flags.verbose)
	}

	if res.Status == build.CompileFailure {
		return &ExitError{
			Code: ExitCompile,
			Err:  fmt.Errorf("compilation of %s failed (compiler %s exited with %d)", cfg.Build.EntryFile, sel.Version, res.ExitCode),
		}
	}
	return nil
}

func printBuild(cmd *cobra.Command, res build.Result, sel build.Selection, verbose bool) {
	if !verbose && strings.TrimSpace(res.Output) != "" {
		cmd.Print(res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			cmd.Println()
		}
	}
	label := tui.StatusStyle(res.Status.String()).Render(res.Status.String())
	cmd.Printf("Build %s in %s (compiler %s)\n", label, build.Duration(res.Duration), sel.Version)
	if res.Status == build.Success {
		cmd.Printf("  output %s\n", res.OutputPath)
	}
}

// buildManifestPath picks the manifest build reads. An explicit path is
// taken relative to the working directory.
func buildManifestPath(pp paths.ProjectPaths, explicit string) (string, error) {
	if explicit == "" {
		return pp.ManifestFile, nil
	}
	path, err := filepath.Abs(explicit)
	if err != nil {
		return "", fmt.Errorf("resolve --config: %w", err)
	}
	return path, nil
}

// compilerOrchestrator loads compilers.toml, refreshing it first when
// update is set, and wires an orchestrator to the app's cache and registry
// client. l may be nil when there is no project to record the compiler in.
func (a *app) compilerOrchestrator(cmd *cobra.Command, status *tui.StatusWriter, update bool, l *ledger.Ledger) (*build.Orchestrator, error) {
	var (
		compilers tools.CompilerConfig
		err       error
	)
	if update {
		status.Update("updating compilers.toml")
		compilers, err = tools.UpdateConfig(cmd.Context(), nil, a.settings.CompilersConfigURL, a.home.CompilersConfig)
	} else {
		compilers, err = tools.LoadConfig(a.home.CompilersConfig)
	}
	if err != nil {
		return nil, err
	}
	platform, err := compilers.Platform(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	o := &build.Orchestrator{
		Store:      a.store,
		Releases:   a.client,
		Downloader: a.client,
		Platform:   platform,
		Ledger:     l,
		LockDir:    a.home.Root,
		Logger:     teeLogger{a.logger, status},
	}
	return o, nil
}

// teeLogger forwards every line to each logger.
type teeLogger []Logger

func (t teeLogger) Printf(format string, v ...any) {
	for _, l := range t {
		l.Printf(format, v...)
	}
}
