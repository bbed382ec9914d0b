package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeatlas/codeatlas/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codeatlas %s (%s)\n", version.Version, version.Commit)
		},
	}
}
