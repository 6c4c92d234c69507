package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "get version",
	Long:  `get version of the binary`,
	Run: func(cmd *cobra.Command, args []string) {
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", version.Get(), version.Commit())
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
