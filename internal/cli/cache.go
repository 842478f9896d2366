package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opencli/internal/cache"
	"opencli/internal/tui"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the shared package and compiler cache",
	}

	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheVerifyCmd())
	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached packages and compilers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(appOptions{name: "cache"})
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.store.Entries()
			if outputJSON {
				return writeJSON(cmd, struct {
					Root    string        `json:"root"`
					Entries []cache.Entry `json:"entries"`
				}{Root: a.store.Root, Entries: entries})
			}
			if len(entries) == 0 {
				cmd.Printf("Cache at %s is empty.\n", a.store.Root)
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "IDENTITY\tVERSION\tSIZE\tRETRIEVED\tSOURCE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Identity,
					e.Version,
					formatBytes(e.SizeBytes),
					e.RetrievedAt.Local().Format("2006-01-02 15:04"),
					tui.NonEmptyOrDash(e.Source),
				)
			}
			return w.Flush()
		},
	}
}

func newCacheVerifyCmd() *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute the digest of every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(appOptions{name: "cache"})
			if err != nil {
				return err
			}
			defer a.Close()

			var bad []cache.Entry
			for _, e := range a.store.Entries() {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				ok, err := a.store.Verify(e.Identity, e.Version)
				if err != nil {
					return fmt.Errorf("verify %s: %w", e.Key, err)
				}
				status := "ok"
				if !ok {
					status = "corrupt"
					bad = append(bad, e)
					if prune {
						if err := a.store.Invalidate(e.Identity, e.Version); err != nil {
							return err
						}
						status = "removed"
					}
				}
				if !outputJSON {
					cmd.Printf("%s  %s\n", tui.StatusStyle(status).Render(fmt.Sprintf("%-7s", status)), e.Key)
				}
			}
			if outputJSON {
				if err := writeJSON(cmd, struct {
					Corrupt []cache.Entry `json:"corrupt"`
					Pruned  bool          `json:"pruned"`
				}{Corrupt: bad, Pruned: prune}); err != nil {
					return err
				}
			}
			if len(bad) > 0 && !outputJSON {
				if prune {
					cmd.Println("\nCorrupt entries were invalidated and nothing else was done to them. Projects using them re-fetch on the next `opencli install`.")
				} else {
					cmd.Println("\n" + corruptGuidance + " Use --prune to invalidate them first.")
				}
			}
			if len(bad) > 0 && !prune {
				return &cache.IntegrityError{Key: bad[0].Key, Expected: bad[0].Digest}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete entries that fail verification")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
