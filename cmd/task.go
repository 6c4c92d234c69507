package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/core/chainio"
	bundlerconfig "github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/core/relay"
	"github.com/AvaProtocol/ap-bundler/model"
)

var (
	taskCmd = &cobra.Command{
		Use:   "task",
		Short: "Inspect relay tasks",
	}

	taskStatusCmd = &cobra.Command{
		Use:   "status <task-id>",
		Short: "Print the current state of a relay task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRelay(cmd, func(ctx context.Context, cfg *bundlerconfig.Config, client *relay.Client) error {
				status, err := client.TaskStatus(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if verbose {
					pp.Fprintln(out, status)
					return nil
				}
				fmt.Fprintf(out, "📋 Task %s: %s\n", status.TaskID, status.State)
				if status.LastCheckMessage != "" {
					fmt.Fprintf(out, "   %s\n", status.LastCheckMessage)
				}
				if status.TransactionHash != (common.Hash{}) {
					fmt.Fprintf(out, "   tx %s\n", status.TransactionHash.Hex())
					if url := bundlerconfig.TxURL(cfg.ChainID, status.TransactionHash); url != "" {
						fmt.Fprintf(out, "   %s\n", url)
					}
				}
				return nil
			})
		},
	}

	taskWaitCmd = &cobra.Command{
		Use:   "wait <task-id>",
		Short: "Poll a relay task until it settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRelay(cmd, func(ctx context.Context, cfg *bundlerconfig.Config, client *relay.Client) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "⏳ Waiting for task %s\n", args[0])

				receipt, err := client.PollUntilTerminal(ctx, args[0])
				if err != nil {
					fmt.Fprintf(out, "❌ %s\n", model.SanitizeError(err))
					return err
				}
				fmt.Fprintf(out, "✅ Included in block %s\n", receipt.BlockNumber)
				if url := bundlerconfig.TxURL(cfg.ChainID, receipt.TxHash); url != "" {
					fmt.Fprintf(out, "   %s\n", url)
				}
				return nil
			})
		},
	}
)

// withRelay builds a relay client only, so it works next to a running
// bundler.
func withRelay(cmd *cobra.Command, fn func(ctx context.Context, cfg *bundlerconfig.Config, client *relay.Client) error) error {
	cfg, err := bundlerconfig.NewConfig(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := chainio.Dial(ctx, cfg.EthRpcUrl)
	if err != nil {
		return err
	}
	defer chain.Close()

	client, err := relay.New(cfg.Relay, chain, nil, cfg.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, cfg, client)
}

func init() {
	taskCmd.AddCommand(taskStatusCmd, taskWaitCmd)
	rootCmd.AddCommand(taskCmd)
}
