// Package commands holds the backend CLI: serve runs the HTTP server,
// db pokes at a data file directly from the command line.
package commands

import "github.com/spf13/cobra"

func Execute() error {
	root := &cobra.Command{
		Use:           "backend",
		Short:         "File-backed CRUD backend without a web framework",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(serveCmd(), dbCmd())

	return root.Execute()
}
