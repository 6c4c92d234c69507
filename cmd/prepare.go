package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/service"
)

var (
	prepareInputs inputFlags

	prepareCmd = &cobra.Command{
		Use:   "prepare",
		Short: "Build and estimate a bundle without submitting it",
		Long: `Build the bundle for the given inputs using the stored settings, then
simulate it and quote the relay fee. Nothing is signed or sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := prepareInputs.inputs()
			if err != nil {
				return err
			}
			return withService(cmd, service.Options{}, func(ctx context.Context, svc *service.Service) error {
				prepared, err := svc.Session().Prepare(ctx, inputs)
				if err != nil {
					return err
				}
				printPrepared(cmd.OutOrStdout(), svc.Config().ChainID, prepared)
				return nil
			})
		},
	}
)

func init() {
	prepareInputs.register(prepareCmd)
	rootCmd.AddCommand(prepareCmd)
}
