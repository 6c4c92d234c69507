package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/core/chainio/signer"
	bundlerconfig "github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/service"
)

var (
	submitInputs inputFlags
	assumeYes    bool

	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Build, sign and relay a bundle",
		Long: `Build the bundle for the given inputs, ask for confirmation, sign the
execution and hand it to the relay. Waits until the relay task settles.

An undeployed account is deployed by a separate relay task first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := submitInputs.inputs()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := service.Options{}
			if !assumeYes {
				opts.WrapSigner = func(s signer.Signer) signer.Signer {
					return &signer.PromptSigner{Signer: s, In: cmd.InOrStdin(), Out: out}
				}
			}

			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				chainID := svc.Config().ChainID
				prepared, err := svc.Session().Prepare(ctx, inputs)
				if err != nil {
					return err
				}
				printPrepared(out, chainID, prepared)

				onReceipt := func(r *types.Receipt) {
					fmt.Fprintf(out, "✅ Included in block %s\n", r.BlockNumber)
					if url := bundlerconfig.TxURL(chainID, r.TxHash); url != "" {
						fmt.Fprintf(out, "   %s\n", url)
					} else {
						fmt.Fprintf(out, "   tx %s\n", r.TxHash.Hex())
					}
				}
				onOffchain := func(ctx context.Context) error {
					fmt.Fprintf(out, "✅ Nothing to relay, settings only update\n")
					return nil
				}

				if err := svc.Session().Submit(ctx, inputs, onReceipt, onOffchain); err != nil {
					fmt.Fprintf(out, "❌ %s\n", model.SanitizeError(err))
					if status := svc.Session().Status(); status.LastTaskID != "" {
						fmt.Fprintf(out, "   💡 Inspect the relay task with: ap-bundler task status %s\n", status.LastTaskID)
					}
					return err
				}
				return nil
			})
		},
	}
)

func init() {
	submitInputs.register(submitCmd)
	submitCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "sign without asking for confirmation")
	rootCmd.AddCommand(submitCmd)
}
