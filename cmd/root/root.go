// Package root assembles the CLI.
package root

import (
	"github.com/spf13/cobra"

	"github.com/codeatlas/codeatlas/pkg/logging"
)

type rootFlags struct {
	debugMode  bool
	configPath string
}

// NewRootCmd builds the top-level command.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "codeatlas",
		Short: "codeatlas - repository code intelligence service",
		Long:  "codeatlas answers natural-language questions about a source repository using semantic search and scope-graph context extraction",
		Example: `  codeatlas index --config codeatlas.yaml
  codeatlas serve --config codeatlas.yaml`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.Setup(cmd.ErrOrStderr(), flags.debugMode)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to the YAML configuration file")

	cmd.AddCommand(newIndexCmd(&flags))
	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
