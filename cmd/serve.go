package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bundler",
	Long: `Initialize the bundling session and serve its HTTP API.

Use --config=path-to-your-config-file. default is=./config/bundler.yaml `,
	RunE: func(cmd *cobra.Command, args []string) error {
		return service.RunWithConfig(config)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
