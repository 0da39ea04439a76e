package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/triagebot/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version. With --verbose, also print the commit, build date and the bots this binary runs.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full(botNames()))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
