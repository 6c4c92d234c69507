package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = "./config/bundler.yaml"
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "ap-bundler",
		Short: "Relay sponsored bundle submission",
		Long: `Build, estimate and submit bundled executions of a delegated account
through a gas relay.

Such as "ap-bundler serve" or "ap-bundler submit --payment 1000" and so on
`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", "config/bundler.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print full structures")
}
