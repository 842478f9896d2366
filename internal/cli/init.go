package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"opencli/internal/config"
	"opencli/internal/logx"
	"opencli/internal/paths"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default opencli.toml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, args, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing opencli.toml")
	return cmd
}

func resolveInitDir(projectFlag string, args []string) (string, error) {
	if projectFlag != "" {
		return projectFlag, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	if len(args) > 0 && args[0] != "." {
		if filepath.IsAbs(args[0]) {
			return args[0], nil
		}
		return filepath.Join(cwd, args[0]), nil
	}
	return cwd, nil
}

func runInit(cmd *cobra.Command, args []string, force bool) error {
	dir, err := resolveInitDir(projectDir, args)
	if err != nil {
		return err
	}

	pp, err := paths.Resolve(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(pp.Root, 0o755); err != nil {
		return fmt.Errorf("create project root: %w", err)
	}
	if err := pp.EnsureMetaDirs(); err != nil {
		return err
	}

	logger, closer, err := logx.New(pp.LogsDir, logx.Options{Prefix: "init"})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Printf("opencli init: project=%s force=%t", pp.Root, force)

	created, err := ensureManifest(pp, force, logger)
	if err != nil {
		return err
	}

	if !created {
		cmd.Printf("Project already initialized at %s (use --force to overwrite %s)\n", pp.Root, paths.ManifestName)
		return nil
	}

	cmd.Printf("Initialized project at %s\n", pp.Root)
	cmd.Printf("  created %s\n", paths.ManifestName)
	cmd.Println()
	cmd.Println("Edit build.entry_file, build.output_file and the include paths to match your project, then run:")
	cmd.Println("  opencli setup && opencli build")
	return nil
}

// ensureManifest writes the default manifest unless one exists and force is
// unset. It reports whether a file was written.
func ensureManifest(pp paths.ProjectPaths, force bool, logger Logger) (bool, error) {
	exists, err := paths.FileExists(pp.ManifestFile)
	if err != nil {
		return false, fmt.Errorf("check manifest: %w", err)
	}
	if exists && !force {
		logger.Printf("manifest exists: %s", pp.ManifestFile)
		return false, nil
	}

	cfg := config.Default()
	cfg.ApplyDefaults()
	if err := cfg.Save(pp.ManifestFile); err != nil {
		return false, err
	}
	logger.Printf("created manifest: %s", pp.ManifestFile)
	return true, nil
}

// Logger keeps the subset of log.Logger used locally, enabling easy testing.
type Logger interface {
	Printf(format string, v ...any)
}
