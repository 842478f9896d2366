package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opencli/internal/server"
)

func newRunCmd() *cobra.Command {
	var serverPath string
	cmd := &cobra.Command{
		Use:   "run [-- server arguments...]",
		Short: "Start omp-server in the project directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(appOptions{name: "run"})
			if err != nil {
				return err
			}
			defer a.Close()

			code, err := server.Run(cmd.Context(), server.Options{
				Root:   a.project.Root,
				Custom: serverPath,
				Args:   args,
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code, Err: fmt.Errorf("omp-server exited with %d", code)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverPath, "server-path", "", "Path to the omp-server executable (default: search the project, then PATH)")
	return cmd
}
