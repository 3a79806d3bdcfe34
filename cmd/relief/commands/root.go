// Package commands defines all Cobra CLI commands for the relief binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/reliefconnect/internal/audit"
	"github.com/54b3r/reliefconnect/internal/config"
	"github.com/54b3r/reliefconnect/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relief",
		Short: "ReliefConnect: disaster relief products, orders and semantic search",
		Long: `ReliefConnect stores relief products and orders, keeps a vector index of
them in step with every write, and serves product search and
recommendations over HTTP.

Settings come from the environment, a .env file and a YAML config file
(~/.relief/config.yaml), in that order of precedence.
See 'relief --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			src, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), src.YAML, src.DotEnv)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.relief/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewImportCmd(),
		NewReindexCmd(),
		NewSearchCmd(),
		NewVersionCmd(),
	)

	return root
}
