package cmd

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/core/apiserver"
	bundlerconfig "github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/core/session"
	"github.com/AvaProtocol/ap-bundler/pkg/units"
	"github.com/AvaProtocol/ap-bundler/service"
)

// fee and super tokens all use 18 decimals
const tokenDecimals int32 = 18

// withService builds the full bundler for a one shot command and tears it
// down afterwards. Ctrl-C cancels the context handed to fn.
func withService(cmd *cobra.Command, opts service.Options, fn func(ctx context.Context, svc *service.Service) error) error {
	cfg, err := bundlerconfig.NewConfig(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, svc)
}

type inputFlags struct {
	req apiserver.InputsRequest
}

func (f *inputFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.req.RequiredPayment, "payment", "", "amount of fee token the business call needs, e.g. 1.5")
	flags.StringVar(&f.req.RequiredFlowAmount, "flow-allowance", "", "flow rate allowance to grant, in tokens per second")
	flags.StringVar(&f.req.Spender, "spender", "", "address approved to spend the payment")
	flags.StringVar(&f.req.FlowOperator, "flow-operator", "", "address granted the flow allowance")
	flags.StringVar(&f.req.BusinessCall, "call", "", "hex encoded business call data")
	flags.StringVar(&f.req.RefundReceiver, "refund-to", "", "receiver of the refund transfer")
	flags.StringVar(&f.req.RefundAmount, "refund", "", "amount of fee token to refund")
}

// inputs converts the token amounts given on the command line to wei and
// validates the result the same way the HTTP API does.
func (f *inputFlags) inputs() (session.Inputs, error) {
	req := f.req
	for _, field := range []*string{&req.RequiredPayment, &req.RequiredFlowAmount, &req.RefundAmount} {
		if *field == "" {
			continue
		}
		wei, err := units.ParseUnits(*field, tokenDecimals)
		if err != nil {
			return session.Inputs{}, err
		}
		*field = wei.String()
	}
	if err := validator.New().Struct(&req); err != nil {
		return session.Inputs{}, err
	}
	return req.Inputs()
}

func printPrepared(out io.Writer, chainID *big.Int, prepared *session.Prepared) {
	if prepared == nil {
		fmt.Fprintf(out, "💤 Nothing to bundle for these inputs\n")
		return
	}
	if verbose {
		pp.Fprintln(out, prepared)
		return
	}

	fmt.Fprintf(out, "📦 Bundle (%d calls) on %s\n", len(prepared.Bundle), bundlerconfig.ChainEnvOf(chainID))
	for i, call := range prepared.Bundle {
		fmt.Fprintf(out, "   %d. %-15s to %s value %s\n", i+1, call.Label, call.To.Hex(), units.FormatEther(call.Value))
	}

	est := prepared.FeeEstimate
	if est == nil {
		return
	}
	fmt.Fprintf(out, "⛽ Gas: %s", est.GasUsed)
	if est.GasUsedL1 != nil && est.GasUsedL1.Sign() > 0 {
		fmt.Fprintf(out, " (+%s L1)", est.GasUsedL1)
	}
	fmt.Fprintf(out, "\n💰 Fee: %s\n", formatFee(est.FeeAmount, prepared.GasToken))
	if prepared.Settings.Sponsored {
		fmt.Fprintf(out, "   sponsored, paid from the account\n")
	}
}

func formatFee(amount *big.Int, token common.Address) string {
	if amount == nil {
		return "0"
	}
	if token == (common.Address{}) {
		return units.FormatEther(amount) + " native"
	}
	return units.FormatUnits(amount, tokenDecimals) + " " + token.Hex()
}
