package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"opencli/internal/config"
	"opencli/internal/paths"
	"opencli/internal/tui"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the components, plugins and include folders of the project",
		Args:  cobra.NoArgs,
		RunE:  runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	pp, err := paths.Resolve(projectDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(pp.ManifestFile)
	if err != nil {
		return err
	}

	status := tui.NewStatusWriter(cmd.ErrOrStderr())
	created, err := ensureWorkspace(pp, cfg, status)
	status.Stop()
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(cmd, map[string]any{"project": pp.Root, "created": created})
	}
	if len(created) == 0 {
		cmd.Printf("Workspace already set up at %s\n", pp.Root)
		return nil
	}
	for _, dir := range created {
		cmd.Printf("  created %s/\n", dir)
	}
	return nil
}

// ensureWorkspace creates the folders packages are placed into and returns
// the project-relative ones that did not exist yet.
func ensureWorkspace(pp paths.ProjectPaths, cfg config.Config, logger Logger) ([]string, error) {
	dirs := []string{pp.ComponentsDir, pp.PluginsDir, pp.Join(cfg.IncludeDir())}
	created := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		exists, err := paths.DirExists(dir)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		logger.Printf("creating %s", pp.Rel(dir))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, fmt.Errorf("create %s: %w", dir, err)
		}
		created = append(created, pp.Rel(dir))
	}
	return created, nil
}
