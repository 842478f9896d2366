package cli

import (
	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove owner/repo",
		Aliases: []string{"uninstall"},
		Short:   "Uninstall a package and drop it from opencli.toml",
		Args:    cobra.ExactArgs(1),
		RunE:    runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{name: "remove"})
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.session()
	if err != nil {
		return err
	}
	res, err := s.Remove(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(cmd, struct {
			Package     string   `json:"package"`
			Version     string   `json:"version,omitempty"`
			Installed   bool     `json:"installed"`
			SlotDeleted bool     `json:"slot_deleted"`
			Files       []string `json:"files,omitempty"`
			FilesLeft   []string `json:"files_left,omitempty"`
		}{
			Package:     res.Identity,
			Version:     res.Record.Version,
			Installed:   res.Installed,
			SlotDeleted: res.SlotDeleted,
			Files:       res.Record.Files,
			FilesLeft:   res.FilesLeft,
		})
	}

	if !res.Installed {
		cmd.Printf("Removed %s from %s (it was not installed)\n", res.Identity, a.project.Rel(a.project.ManifestFile))
		return nil
	}
	cmd.Printf("Removed %s %s (%d files)\n", res.Identity, res.Record.Version, len(res.Record.Files))
	for _, f := range res.FilesLeft {
		cmd.Printf("  could not delete %s\n", f)
	}
	if res.SlotDeleted {
		cmd.Println("  cache entry deleted")
	}
	return nil
}
