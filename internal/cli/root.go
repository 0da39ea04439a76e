// Package cli implements the triagebot command line: one sub-command per
// bot, each running a single dispatch of the triggering event.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/andywolf/triagebot/internal/version"
)

var (
	cfgFile  string
	envFile  string
	readonly bool
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "triagebot",
	Short: "Triagebot - issue automation bots for GitHub Actions",
	Long: `Triagebot runs one issue automation bot against the event that triggered
the current GitHub Actions workflow.

Inputs are read from INPUT_* environment variables, as Actions passes them,
and may also come from an inputs file (--config), a dotenv file (--env-file)
or flags.

Example:
  triagebot stale-closer --config feature-requests.yaml`,
	SilenceUsage: true,
}

// Execute runs the root command. Errors have been printed, and escalated
// when a bot was running, by the time it returns.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "inputs file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with INPUT_* variables")
	rootCmd.PersistentFlags().BoolVar(&readonly, "readonly", false, "log mutations instead of sending them")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}
